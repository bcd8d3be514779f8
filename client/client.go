// Package client is the off-chain adapter for the CipherTrace gateway: it
// submits sealed transactions, requests analyses, polls for completion and
// forwards result handles for decryption.
//
// Unlike the service it talks to, the adapter holds no global state: all
// configuration lives in an explicit Config applied with Configure and
// cleared with Reset.
package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/loserner/CipherTrace/deploy"
	"github.com/loserner/CipherTrace/ledger"
	"github.com/loserner/CipherTrace/services"
)

var (
	// ErrNotConfigured is returned by any call made before Configure.
	ErrNotConfigured = errors.New("adapter not configured")

	// ErrDecryptionFailed is returned when the gateway's decryption oracle
	// is unreachable or rejects the result handle.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Config is everything the adapter needs: where the gateway lives, how to
// sign, and which contracts to bind.
type Config struct {
	// Endpoint is the gateway base URL, e.g. "http://localhost:3001".
	Endpoint string
	// PrivateKey is the hex-encoded signing key.
	PrivateKey string
	// RPCURL is forwarded to the gateway's initialize call.
	RPCURL string
	// Contracts are bound on the gateway during Configure. Optional.
	Contracts *deploy.ContractAddresses
	// PollInterval between completion polls; zero means one second.
	PollInterval time.Duration
	// MaxBatchSize caps batch submissions client-side before any gateway
	// call. Set it to match a gateway running with a non-default limit;
	// zero means ledger.DefaultMaxBatchSize.
	MaxBatchSize int
	// HTTPClient overrides the default 10s-timeout client. Optional.
	HTTPClient *http.Client
}

// AnalysisResult is what polling yields: the request status and, once
// completed, the opaque result handle.
type AnalysisResult struct {
	AnalysisID   common.Hash
	Status       ledger.AnalysisStatus
	ResultHandle string
}

// BatchResult reports one item of a batch submission. Batches are not
// rolled back on partial failure; each item stands alone.
type BatchResult struct {
	Index  int
	DataID common.Hash
	Err    error
}

// Adapter is the client-side handle to a CipherTrace gateway.
type Adapter struct {
	mu         sync.RWMutex
	configured bool
	endpoint   string
	address    common.Address
	poll       time.Duration
	maxBatch   int
	httpClient *http.Client
}

// New creates an unconfigured adapter.
func New() *Adapter {
	return &Adapter{}
}

// Configure applies the configuration, initializes the gateway session and
// binds contract addresses if given. It must complete before any other
// call.
func (a *Adapter) Configure(ctx context.Context, cfg Config) error {
	if cfg.Endpoint == "" || cfg.PrivateKey == "" {
		return fmt.Errorf("%w: endpoint and private key are required", ErrNotConfigured)
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	poll := cfg.PollInterval
	if poll == 0 {
		poll = time.Second
	}

	a.mu.Lock()
	a.configured = true
	a.endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
	a.address = addressOf(key)
	a.poll = poll
	a.maxBatch = cfg.MaxBatchSize
	a.httpClient = httpClient
	a.mu.Unlock()

	rpcURL := cfg.RPCURL
	if rpcURL == "" {
		rpcURL = "http://localhost:8545"
	}
	var initResp services.StatusResponse
	err = a.post(ctx, "/fhevm/initialize",
		&services.InitializeRequest{RPCURL: rpcURL, PrivateKey: cfg.PrivateKey}, &initResp)
	if err != nil {
		a.Reset()
		return fmt.Errorf("initializing gateway: %w", err)
	}

	if cfg.Contracts != nil {
		var contractsResp services.ContractsResponse
		err = a.post(ctx, "/fhevm/contracts", &services.ContractsRequest{
			TransactionAnalyzerAddress: cfg.Contracts.TransactionAnalyzer.Hex(),
			PrivateAnalyzerAddress:     cfg.Contracts.PrivateAnalyzer.Hex(),
			FHEVMInterfaceAddress:      cfg.Contracts.FHEVMInterface.Hex(),
		}, &contractsResp)
		if err != nil {
			a.Reset()
			return fmt.Errorf("binding contracts: %w", err)
		}
	}
	return nil
}

// Reset clears local configuration and session state. Registered handles
// and analyses are untouched; Reset is safe to call repeatedly.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.configured = false
	a.endpoint = ""
	a.address = common.Address{}
	a.maxBatch = 0
	a.httpClient = nil
}

// Address returns the adapter's signing identity.
func (a *Adapter) Address() (common.Address, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.configured {
		return common.Address{}, ErrNotConfigured
	}
	return a.address, nil
}

// Submit seals and registers one transaction, returning its data handle.
func (a *Adapter) Submit(ctx context.Context, tx ledger.TransactionData) (common.Hash, error) {
	var resp services.EncryptResponse
	if err := a.post(ctx, "/fhevm/encrypt", &services.EncryptRequest{TransactionData: &tx}, &resp); err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(resp.DataID), nil
}

// SubmitBatch submits up to the configured batch limit of transactions in
// one call. Minted identifiers come back in input order; per-item failures
// are reported in the result slice, not as a single error.
func (a *Adapter) SubmitBatch(ctx context.Context, txs []ledger.TransactionData) ([]BatchResult, error) {
	if len(txs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ledger.ErrEmptyInput)
	}
	a.mu.RLock()
	limit := a.maxBatch
	a.mu.RUnlock()
	if limit <= 0 {
		limit = ledger.DefaultMaxBatchSize
	}
	// Rejected before any gateway call is made.
	if len(txs) > limit {
		return nil, fmt.Errorf("%w: %d items, limit %d", ledger.ErrBatchTooLarge, len(txs), limit)
	}

	var resp services.EncryptBatchResponse
	if err := a.post(ctx, "/fhevm/encrypt-batch", &services.EncryptBatchRequest{Transactions: txs}, &resp); err != nil {
		return nil, err
	}

	out := make([]BatchResult, len(resp.Results))
	for i, item := range resp.Results {
		out[i].Index = item.Index
		if item.OK {
			out[i].DataID = common.HexToHash(item.DataID)
		} else {
			out[i].Err = errors.New(item.Error)
		}
	}
	return out, nil
}

// AnalyzeRisk requests a risk analysis over the given handles.
func (a *Adapter) AnalyzeRisk(ctx context.Context, ids []common.Hash) (common.Hash, error) {
	return a.analyze(ctx, "/fhevm/analyze-risk", ids)
}

// AnalyzePattern requests a pattern analysis over the given handles. The
// gateway rejects fewer than two.
func (a *Adapter) AnalyzePattern(ctx context.Context, ids []common.Hash) (common.Hash, error) {
	return a.analyze(ctx, "/fhevm/analyze-pattern", ids)
}

func (a *Adapter) analyze(ctx context.Context, path string, ids []common.Hash) (common.Hash, error) {
	req := &services.AnalyzeRequest{EncryptedTransactions: make([]string, len(ids))}
	for i, id := range ids {
		req.EncryptedTransactions[i] = id.Hex()
	}
	var resp services.AnalyzeResponse
	if err := a.post(ctx, path, req, &resp); err != nil {
		return common.Hash{}, err
	}
	return common.HexToHash(resp.AnalysisID), nil
}

// GetResult fetches the current state of an analysis request.
func (a *Adapter) GetResult(ctx context.Context, id common.Hash) (*AnalysisResult, error) {
	var resp services.AnalysisStatusResponse
	if err := a.get(ctx, "/fhevm/analysis/"+id.Hex(), &resp); err != nil {
		return nil, err
	}
	if resp.Analysis == nil {
		return nil, fmt.Errorf("gateway returned no analysis for %s", id.Hex())
	}
	return &AnalysisResult{
		AnalysisID:   id,
		Status:       resp.Analysis.Status,
		ResultHandle: resp.Analysis.ResultHandle,
	}, nil
}

// AwaitResult polls until the analysis completes, the timeout elapses, or
// the context is cancelled. A timeout is not an error: the last observed
// (pending) state is returned so the caller may retry later. Cancellation
// between polls returns the context error.
func (a *Adapter) AwaitResult(ctx context.Context, id common.Hash, timeout time.Duration) (*AnalysisResult, error) {
	a.mu.RLock()
	poll := a.poll
	configured := a.configured
	a.mu.RUnlock()
	if !configured {
		return nil, ErrNotConfigured
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		res, err := a.GetResult(ctx, id)
		if err != nil {
			return nil, err
		}
		if res.Status == ledger.StatusCompleted {
			return res, nil
		}
		if time.Now().After(deadline) {
			return res, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Decrypt forwards an opaque result handle to the gateway's decryption
// oracle and returns the revealed score.
func (a *Adapter) Decrypt(ctx context.Context, resultHandle string) (float64, error) {
	var resp services.DecryptResponse
	err := a.post(ctx, "/fhevm/decrypt", &services.DecryptRequest{EncryptedResult: resultHandle}, &resp)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return resp.DecryptedResult, nil
}

func (a *Adapter) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return a.do(ctx, http.MethodPost, path, bytes.NewReader(raw), out)
}

func (a *Adapter) get(ctx context.Context, path string, out any) error {
	return a.do(ctx, http.MethodGet, path, nil, out)
}

func (a *Adapter) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	a.mu.RLock()
	configured := a.configured
	endpoint := a.endpoint
	httpClient := a.httpClient
	a.mu.RUnlock()
	if !configured {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading gateway response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var fail services.Response
		if json.Unmarshal(raw, &fail) == nil && fail.Message != "" {
			return fmt.Errorf("gateway %s: %s", resp.Status, fail.Message)
		}
		return fmt.Errorf("gateway %s", resp.Status)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decoding gateway response: %w", err)
		}
	}
	return nil
}

func addressOf(key *ecdsa.PrivateKey) common.Address {
	return ethcrypto.PubkeyToAddress(key.PublicKey)
}
