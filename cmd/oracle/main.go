// Command oracle runs the standalone CipherTrace completion oracle.
//
// The oracle scans the ledger for pending analysis requests, reveals the
// referenced payloads, computes the requested score, and completes each
// request with a sealed result handle. Run it standalone only against a
// shared Postgres store; with the in-memory store the gateway's embedded
// oracle is the right choice. The bgv sealer is refused outright: its key
// material lives in the sealing process, so a standalone oracle could never
// open the gateway's ciphertexts and every request would sit pending.
//
// The oracle's signing address must match the ledger's designated oracle
// (or admin) identity, otherwise every completion attempt is rejected.
//
// # Usage
//
//	go run ./cmd/oracle --config=oracle.yaml
//	go run ./cmd/oracle --store=postgres --signing-key=<hex> --interval=2s
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/loserner/CipherTrace/api/httpserver"
	"github.com/loserner/CipherTrace/cmd/common"
	"github.com/loserner/CipherTrace/ledger"
	"github.com/loserner/CipherTrace/services"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Path to YAML config file")
		addr          = flag.String("addr", "", "HTTP listen address for health endpoints")
		metricsAddr   = flag.String("metrics-addr", "", "Metrics listen address (empty disables)")
		logJSON       = flag.Bool("log-json", false, "Log in JSON format")
		logDebug      = flag.Bool("debug", false, "Enable debug logging")
		sealMode      = flag.String("seal", "", "Payload codec: simulation or bgv")
		storeKind     = flag.String("store", "", "Persistence: memory or postgres")
		signingKeyHex = flag.String("signing-key", "", "ECDSA signing key (hex, generates if empty)")
		interval      = flag.Duration("interval", 0, "Scan interval")
		batchLimit    = flag.Int("batch-limit", 0, "Requests picked up per scan")
	)
	flag.Parse()

	cfg, err := loadConfiguration(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *logJSON {
		cfg.LogJSON = true
	}
	if *logDebug {
		cfg.LogDebug = true
	}
	if *sealMode != "" {
		cfg.Seal = *sealMode
	}
	if *storeKind != "" {
		cfg.Store = *storeKind
	}
	if *signingKeyHex != "" {
		cfg.Keys.SigningKey = *signingKeyHex
	}
	if *interval != 0 {
		cfg.Oracle.Interval = *interval
	}
	if *batchLimit != 0 {
		cfg.Oracle.BatchLimit = *batchLimit
	}

	if err := run(cfg); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfiguration(configPath string) (*common.Config, error) {
	if configPath != "" {
		return common.LoadConfig(configPath)
	}
	cfg := common.DefaultConfig()
	cfg.HTTPAddr = ":3002"
	return cfg, nil
}

func run(cfg *common.Config) error {
	log := common.NewLogger(cfg)

	if err := common.ValidateStandaloneOracle(cfg); err != nil {
		return err
	}

	key, err := common.LoadOrGenerateSigningKey(cfg.Keys.SigningKey)
	if err != nil {
		return err
	}
	self := ethcrypto.PubkeyToAddress(key.PublicKey)

	admin, err := common.ResolveAddress(cfg.Ledger.Admin, self)
	if err != nil {
		return err
	}
	oracleID, err := common.ResolveAddress(cfg.Ledger.Oracle, self)
	if err != nil {
		return err
	}

	store, closeStore, err := common.NewStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sealer, err := common.NewSealer(cfg)
	if err != nil {
		return err
	}

	led := ledger.New(ledger.Params{
		Admin:        admin,
		Oracle:       oracleID,
		MaxBatchSize: cfg.Ledger.MaxBatchSize,
		Scoring:      cfg.Ledger.Scoring,
	}, store)

	oracle, err := services.NewOracle(services.OracleConfig{
		Ledger:     led,
		Sealer:     sealer,
		Log:        log,
		Identity:   oracleID,
		Interval:   cfg.Oracle.Interval,
		BatchLimit: cfg.Oracle.BatchLimit,
	})
	if err != nil {
		return err
	}

	// Health and metrics only; the oracle has no API surface of its own.
	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.HTTPAddr,
		MetricsAddr:              cfg.MetricsAddr,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("Starting oracle", "address", self.Hex(), "interval", cfg.Oracle.Interval)
	srv.RunInBackground()
	go oracle.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down oracle...")
	cancel()
	srv.Shutdown()
	return nil
}
