// Package deploy reads and writes the JSON deployment artifacts produced by
// contract deployments: per-deployment records and the chain-id keyed
// address book the frontend consumes.
package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Network identifies the chain a deployment targets.
type Network struct {
	ChainID uint64 `json:"chainId"`
	Name    string `json:"name"`
}

// ContractAddresses are the three contract bindings the gateway needs.
type ContractAddresses struct {
	TransactionAnalyzer common.Address `json:"transactionAnalyzer"`
	PrivateAnalyzer     common.Address `json:"privateAnalyzer"`
	FHEVMInterface      common.Address `json:"fhevmInterface"`
}

// Record is one deployment run: who deployed which contracts where.
type Record struct {
	ID        string            `json:"id"`
	Network   Network           `json:"network"`
	Deployer  common.Address    `json:"deployer"`
	Contracts map[string]string `json:"contracts"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewRecord creates a record for the given deployment with a fresh ID and
// the current time.
func NewRecord(network Network, deployer common.Address, addrs ContractAddresses) *Record {
	return &Record{
		ID:       uuid.NewString(),
		Network:  network,
		Deployer: deployer,
		Contracts: map[string]string{
			"TransactionAnalyzer": addrs.TransactionAnalyzer.Hex(),
			"PrivateAnalyzer":     addrs.PrivateAnalyzer.Hex(),
			"FHEVMInterface":      addrs.FHEVMInterface.Hex(),
		},
		Timestamp: time.Now().UTC(),
	}
}

// Addresses reconstructs the typed bindings from the record's contract map.
func (r *Record) Addresses() (ContractAddresses, error) {
	var out ContractAddresses
	fields := []struct {
		name string
		dst  *common.Address
	}{
		{"TransactionAnalyzer", &out.TransactionAnalyzer},
		{"PrivateAnalyzer", &out.PrivateAnalyzer},
		{"FHEVMInterface", &out.FHEVMInterface},
	}
	for _, f := range fields {
		hex, ok := r.Contracts[f.name]
		if !ok {
			return out, fmt.Errorf("deployment record missing contract %s", f.name)
		}
		if !common.IsHexAddress(hex) {
			return out, fmt.Errorf("deployment record has invalid address for %s: %s", f.name, hex)
		}
		*f.dst = common.HexToAddress(hex)
	}
	return out, nil
}

// Write stores the record under dir as <network>-<chainid>.json and returns
// the written path.
func (r *Record) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating deployments dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%d.json", r.Network.Name, r.Network.ChainID))
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding deployment record: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("writing deployment record: %w", err)
	}
	return path, nil
}

// LoadRecord reads a deployment record from path.
func LoadRecord(path string) (*Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading deployment record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decoding deployment record %s: %w", path, err)
	}
	return &r, nil
}

// AddressBook maps chain IDs to contract bindings. This is the artifact the
// frontend loads to pick addresses for the connected network.
type AddressBook map[uint64]ContractAddresses

// WriteAddressBook stores the book as JSON at path.
func WriteAddressBook(book AddressBook, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating address book dir: %w", err)
	}
	raw, err := json.MarshalIndent(book, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding address book: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing address book: %w", err)
	}
	return nil
}

// LoadAddressBook reads the book from path.
func LoadAddressBook(path string) (AddressBook, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading address book: %w", err)
	}
	var book AddressBook
	if err := json.Unmarshal(raw, &book); err != nil {
		return nil, fmt.Errorf("decoding address book %s: %w", path, err)
	}
	return book, nil
}
