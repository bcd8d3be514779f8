// Command ciphertrace provides CLI tools for interacting with a deployed
// CipherTrace gateway.
//
// # Commands
//
// submit: Encrypt and submit a transaction.
//
//	ciphertrace submit --gateway=http://localhost:3001 --key=<hex> --amount=12.5 --gas=21000
//
// analyze: Run a risk or pattern analysis over submitted handles and wait
// for the decrypted score.
//
//	ciphertrace analyze --gateway=http://localhost:3001 --key=<hex> --kind=risk --ids=0xabc,0xdef
//
// status: Display gateway status and ledger counters.
//
//	ciphertrace status --gateway=http://localhost:3001
//
// demo: Run a self-contained end-to-end flow: submit a burst of
// transactions, request both analyses, and print the decrypted scores.
//
//	ciphertrace demo --gateway=http://localhost:3001
//
// export: Write a deployment record and refresh the address book the
// frontend loads.
//
//	ciphertrace export --network=localhost --chain-id=31337 --deployer=<addr> \
//	  --analyzer=<addr> --private-analyzer=<addr> --fhevm-interface=<addr>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/fatih/color"

	"github.com/loserner/CipherTrace/client"
	"github.com/loserner/CipherTrace/deploy"
	"github.com/loserner/CipherTrace/ledger"
)

var (
	headline = color.New(color.FgCyan, color.Bold)
	okay     = color.New(color.FgGreen)
	warn     = color.New(color.FgYellow)
	fail     = color.New(color.FgRed, color.Bold)
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	var err error
	switch cmd {
	case "submit":
		err = runSubmit(ctx, args)
	case "analyze":
		err = runAnalyze(ctx, args)
	case "status":
		err = runStatus(ctx, args)
	case "demo":
		err = runDemo(ctx, args)
	case "export":
		err = runExport(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fail.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ciphertrace - CLI tools for a CipherTrace gateway

Usage:
  ciphertrace <command> [options]

Commands:
  submit    Encrypt and submit a transaction
  analyze   Request an analysis and wait for the decrypted score
  status    Display gateway status
  demo      Run an end-to-end demonstration flow
  export    Write a deployment record and address book

Run 'ciphertrace <command> --help' for command-specific options.`)
}

func newAdapter(ctx context.Context, gatewayURL, keyHex string) (*client.Adapter, error) {
	if keyHex == "" {
		key, err := ethcrypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		keyHex = fmt.Sprintf("%x", ethcrypto.FromECDSA(key))
		warn.Printf("No key given, generated %s\n", ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
	}

	adapter := client.New()
	if err := adapter.Configure(ctx, client.Config{
		Endpoint:   gatewayURL,
		PrivateKey: keyHex,
	}); err != nil {
		return nil, fmt.Errorf("configuring adapter: %w", err)
	}
	return adapter, nil
}

// --- Submit Command ---

func runSubmit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	gatewayURL := fs.String("gateway", "http://localhost:3001", "Gateway base URL")
	keyHex := fs.String("key", "", "Hex-encoded signing key (generated if empty)")
	amount := fs.Float64("amount", 1.0, "Transaction amount in ether")
	gas := fs.Uint64("gas", 21000, "Gas used")
	fs.Parse(args)

	adapter, err := newAdapter(ctx, *gatewayURL, *keyHex)
	if err != nil {
		return err
	}

	id, err := adapter.Submit(ctx, ledger.TransactionData{
		Amount:    *amount,
		GasUsed:   *gas,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	okay.Printf("Submitted: %s\n", id.Hex())
	return nil
}

// --- Analyze Command ---

func runAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	gatewayURL := fs.String("gateway", "http://localhost:3001", "Gateway base URL")
	keyHex := fs.String("key", "", "Hex-encoded signing key")
	kind := fs.String("kind", "risk", "Analysis kind: risk or pattern")
	idsFlag := fs.String("ids", "", "Comma-separated data handle IDs")
	timeout := fs.Duration("timeout", 30*time.Second, "How long to wait for completion")
	fs.Parse(args)

	if *idsFlag == "" {
		return fmt.Errorf("--ids is required")
	}
	var ids []ethcommon.Hash
	for _, s := range strings.Split(*idsFlag, ",") {
		ids = append(ids, ethcommon.HexToHash(strings.TrimSpace(s)))
	}

	adapter, err := newAdapter(ctx, *gatewayURL, *keyHex)
	if err != nil {
		return err
	}

	var analysisID ethcommon.Hash
	switch *kind {
	case "risk":
		analysisID, err = adapter.AnalyzeRisk(ctx, ids)
	case "pattern":
		analysisID, err = adapter.AnalyzePattern(ctx, ids)
	default:
		return fmt.Errorf("unknown analysis kind %q", *kind)
	}
	if err != nil {
		return err
	}
	headline.Printf("Analysis requested: %s\n", analysisID.Hex())

	score, err := awaitScore(ctx, adapter, analysisID, *timeout)
	if err != nil {
		return err
	}
	okay.Printf("Score: %.2f\n", score)
	return nil
}

func awaitScore(ctx context.Context, adapter *client.Adapter, id ethcommon.Hash, timeout time.Duration) (float64, error) {
	result, err := adapter.AwaitResult(ctx, id, timeout)
	if err != nil {
		return 0, err
	}
	if result.Status != ledger.StatusCompleted {
		return 0, fmt.Errorf("analysis %s still pending after %s", id.Hex(), timeout)
	}
	return adapter.Decrypt(ctx, result.ResultHandle)
}

// --- Status Command ---

func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	gatewayURL := fs.String("gateway", "http://localhost:3001", "Gateway base URL")
	fs.Parse(args)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *gatewayURL+"/fhevm/status", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var status struct {
		Success bool `json:"success"`
		Status  struct {
			Initialized bool   `json:"isInitialized"`
			Mode        string `json:"mode"`
			Signer      string `json:"signer"`
			Counts      struct {
				ActiveHandles     int `json:"activeHandles"`
				TotalHandles      int `json:"totalHandles"`
				TotalAnalyses     int `json:"totalAnalyses"`
				CompletedAnalyses int `json:"completedAnalyses"`
			} `json:"counts"`
		} `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decoding status: %w", err)
	}

	headline.Println("Gateway status")
	fmt.Printf("  initialized: %v\n", status.Status.Initialized)
	fmt.Printf("  mode:        %s\n", status.Status.Mode)
	fmt.Printf("  signer:      %s\n", status.Status.Signer)
	fmt.Printf("  handles:     %d active / %d total\n", status.Status.Counts.ActiveHandles, status.Status.Counts.TotalHandles)
	fmt.Printf("  analyses:    %d completed / %d total\n", status.Status.Counts.CompletedAnalyses, status.Status.Counts.TotalAnalyses)
	return nil
}

// --- Demo Command ---

func runDemo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	gatewayURL := fs.String("gateway", "http://localhost:3001", "Gateway base URL")
	keyHex := fs.String("key", "", "Hex-encoded signing key (generated if empty)")
	timeout := fs.Duration("timeout", 30*time.Second, "How long to wait for each analysis")
	fs.Parse(args)

	adapter, err := newAdapter(ctx, *gatewayURL, *keyHex)
	if err != nil {
		return err
	}

	headline.Println("1. Submitting a burst of transactions")
	now := time.Now()
	txs := []ledger.TransactionData{
		{Amount: 150.0, GasUsed: 21000, Timestamp: now.Add(-4 * time.Minute).UnixMilli()},
		{Amount: 148.5, GasUsed: 21000, Timestamp: now.Add(-3 * time.Minute).UnixMilli()},
		{Amount: 151.2, GasUsed: 21000, Timestamp: now.Add(-2 * time.Minute).UnixMilli()},
		{Amount: 2.5, GasUsed: 65000, Timestamp: now.UnixMilli()},
	}
	results, err := adapter.SubmitBatch(ctx, txs)
	if err != nil {
		return err
	}
	var ids []ethcommon.Hash
	for _, r := range results {
		if r.Err != nil {
			warn.Printf("   item %d failed: %v\n", r.Index, r.Err)
			continue
		}
		okay.Printf("   %s\n", r.DataID.Hex())
		ids = append(ids, r.DataID)
	}
	if len(ids) < 2 {
		return fmt.Errorf("not enough successful submissions to analyze")
	}

	headline.Println("2. Risk analysis")
	riskID, err := adapter.AnalyzeRisk(ctx, ids)
	if err != nil {
		return err
	}
	riskScore, err := awaitScore(ctx, adapter, riskID, *timeout)
	if err != nil {
		return err
	}
	okay.Printf("   risk score: %.2f\n", riskScore)

	headline.Println("3. Pattern analysis")
	patternID, err := adapter.AnalyzePattern(ctx, ids)
	if err != nil {
		return err
	}
	patternScore, err := awaitScore(ctx, adapter, patternID, *timeout)
	if err != nil {
		return err
	}
	okay.Printf("   pattern score: %.2f\n", patternScore)

	headline.Println("Demo complete")
	return nil
}

// --- Export Command ---

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dir := fs.String("dir", "deployments", "Directory for deployment records")
	book := fs.String("book", "deployments/addresses.json", "Address book path")
	network := fs.String("network", "localhost", "Network name")
	chainID := fs.Uint64("chain-id", 31337, "Chain ID")
	deployer := fs.String("deployer", "", "Deployer address")
	analyzer := fs.String("analyzer", "", "TransactionAnalyzer contract address")
	privateAnalyzer := fs.String("private-analyzer", "", "PrivateAnalyzer contract address")
	fhevmInterface := fs.String("fhevm-interface", "", "FHEVMInterface contract address")
	fs.Parse(args)

	for name, v := range map[string]string{
		"--deployer":         *deployer,
		"--analyzer":         *analyzer,
		"--private-analyzer": *privateAnalyzer,
		"--fhevm-interface":  *fhevmInterface,
	} {
		if !ethcommon.IsHexAddress(v) {
			return fmt.Errorf("%s must be a hex address, got %q", name, v)
		}
	}

	record := deploy.NewRecord(
		deploy.Network{ChainID: *chainID, Name: *network},
		ethcommon.HexToAddress(*deployer),
		deploy.ContractAddresses{
			TransactionAnalyzer: ethcommon.HexToAddress(*analyzer),
			PrivateAnalyzer:     ethcommon.HexToAddress(*privateAnalyzer),
			FHEVMInterface:      ethcommon.HexToAddress(*fhevmInterface),
		},
	)
	path, err := record.Write(*dir)
	if err != nil {
		return err
	}
	okay.Printf("Wrote %s\n", path)

	// Merge into the existing book so other networks keep their bindings.
	bookData, err := deploy.LoadAddressBook(*book)
	if err != nil {
		bookData = deploy.AddressBook{}
	}
	addrs, err := record.Addresses()
	if err != nil {
		return err
	}
	bookData[record.Network.ChainID] = addrs
	if err := deploy.WriteAddressBook(bookData, *book); err != nil {
		return err
	}
	okay.Printf("Updated %s\n", *book)
	return nil
}
