// Command gateway runs the CipherTrace analysis gateway.
//
// The gateway exposes the /fhevm REST surface over the encrypted ledger:
// transaction submission (single and batch), analysis requests, result
// retrieval, and decryption. By default it also embeds the completion
// oracle, so a single process serves a full local deployment.
//
// # Configuration File
//
// Create a YAML file with gateway settings:
//
//	http_addr: ":3001"
//	metrics_addr: ":9090"
//	seal: "simulation"       # or "bgv"
//	store: "memory"          # or "postgres"
//	postgres:
//	  host: "localhost"
//	  port: 5432
//	  user: "ciphertrace"
//	  password: "secret"
//	  database: "ciphertrace"
//	keys:
//	  signing_key: ""        # hex ECDSA key, generated if empty
//	ledger:
//	  admin: ""              # defaults to the signing address
//	  oracle: ""             # defaults to the signing address
//	  max_batch_size: 100
//	oracle:
//	  embedded: true
//	  interval: 1s
//
// # Endpoints
//
// All endpoints live under /fhevm; see the services package for the full
// surface. Operational endpoints (/livez, /readyz, /drain, /undrain) and
// the optional metrics listener come from the base server.
//
// # Usage
//
//	go run ./cmd/gateway --config=gateway.yaml
//	go run ./cmd/gateway --addr=:3001 --seal=bgv
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
		addr          = flag.String("addr", "", "HTTP listen address")
		metricsAddr   = flag.String("metrics-addr", "", "Metrics listen address (empty disables)")
		enablePprof   = flag.Bool("pprof", false, "Enable pprof debug endpoints")
		logJSON       = flag.Bool("log-json", false, "Log in JSON format")
		logDebug      = flag.Bool("debug", false, "Enable debug logging")
		sealMode      = flag.String("seal", "", "Payload codec: simulation or bgv")
		storeKind     = flag.String("store", "", "Persistence: memory or postgres")
		signingKeyHex = flag.String("signing-key", "", "ECDSA signing key (hex, generates if empty)")
		adminAddr     = flag.String("admin", "", "Admin address (defaults to signing address)")
		oracleAddr    = flag.String("oracle", "", "Oracle address (defaults to signing address)")
		maxBatch      = flag.Int("max-batch", 0, "Maximum encrypt-batch size")
		noOracle      = flag.Bool("no-oracle", false, "Disable the embedded completion oracle")
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
	if *enablePprof {
		cfg.EnablePprof = true
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
	if *adminAddr != "" {
		cfg.Ledger.Admin = *adminAddr
	}
	if *oracleAddr != "" {
		cfg.Ledger.Oracle = *oracleAddr
	}
	if *maxBatch != 0 {
		cfg.Ledger.MaxBatchSize = *maxBatch
	}
	if *noOracle {
		cfg.Oracle.Embedded = false
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
	return common.DefaultConfig(), nil
}

func run(cfg *common.Config) error {
	log := common.NewLogger(cfg)

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

	gateway, err := services.NewGateway(services.GatewayConfig{
		Ledger:       led,
		Sealer:       sealer,
		Log:          log,
		MaxBatchSize: cfg.Ledger.MaxBatchSize,
		Mode:         cfg.Seal,
	})
	if err != nil {
		return err
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.HTTPAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, gateway)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Oracle.Embedded {
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
		go oracle.Run(ctx)
	}

	log.Info("Starting gateway",
		"address", self.Hex(),
		"seal", cfg.Seal,
		"store", cfg.Store,
		"embeddedOracle", cfg.Oracle.Embedded)
	srv.RunInBackground()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down gateway...")
	cancel()
	srv.Shutdown()
	return nil
}
