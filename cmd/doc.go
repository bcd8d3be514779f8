// Package cmd provides CLI commands for CipherTrace services.
//
// # Commands
//
// gateway: Serves the /fhevm REST surface over the encrypted ledger. By
// default it embeds the completion oracle, so one process is a complete
// local deployment.
//
//	go run ./cmd/gateway --addr=:3001 --seal=simulation
//	go run ./cmd/gateway --config=gateway.yaml
//
// oracle: Standalone completion worker. Scans for pending analysis
// requests and completes them with sealed result handles. Run it against
// a shared Postgres store when the gateway's embedded oracle is disabled.
//
//	go run ./cmd/oracle --store=postgres --interval=2s
//
// demo-cli: CLI for interacting with a deployed gateway.
//
//	go run ./cmd/demo-cli submit --gateway=http://localhost:3001 --amount=12.5
//	go run ./cmd/demo-cli demo --gateway=http://localhost:3001
//
// # Configuration
//
// The service commands support YAML configuration files via the --config
// flag. Command-line flags override config file values.
//
// Example config for the gateway command:
//
//	http_addr: ":3001"
//	metrics_addr: ":9090"
//	seal: "simulation"
//	store: "memory"
//	keys:
//	  signing_key: ""
//	ledger:
//	  max_batch_size: 100
//	oracle:
//	  embedded: true
//	  interval: 1s
package cmd
