package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/loserner/CipherTrace/deploy"
	"github.com/loserner/CipherTrace/ledger"
	"github.com/loserner/CipherTrace/seal"
)

// ErrNotInitialized is returned by gateway operations attempted before a
// successful initialize call.
var ErrNotInitialized = errors.New("gateway not initialized")

// GatewayConfig wires the gateway's collaborators.
type GatewayConfig struct {
	Ledger *ledger.Ledger
	Sealer seal.Sealer
	Log    *slog.Logger
	// MaxBatchSize caps encrypt-batch; zero means the ledger default.
	MaxBatchSize int
	// Mode is reported in status snapshots ("simulation" or "bgv").
	Mode string
}

// Gateway exposes the /fhevm REST surface over the ledger. Configuration
// state (signer, contract bindings) is mutable at runtime through the
// initialize/contracts/reset endpoints; ledger state is not touched by any
// of those.
type Gateway struct {
	log      *slog.Logger
	ledger   *ledger.Ledger
	sealer   seal.Sealer
	maxBatch int
	mode     string

	mu          sync.RWMutex
	initialized bool
	rpcURL      string
	signer      common.Address
	contracts   *deploy.ContractAddresses

	submissions *vmetrics.Counter
	analyses    *vmetrics.Counter
}

// NewGateway creates a gateway. The ledger and sealer are required.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if cfg.Sealer == nil {
		return nil, errors.New("sealer is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	maxBatch := cfg.MaxBatchSize
	if maxBatch == 0 {
		maxBatch = cfg.Ledger.Params().MaxBatchSize
	}
	mode := cfg.Mode
	if mode == "" {
		mode = "simulation"
	}
	return &Gateway{
		log:         cfg.Log,
		ledger:      cfg.Ledger,
		sealer:      cfg.Sealer,
		maxBatch:    maxBatch,
		mode:        mode,
		submissions: vmetrics.GetOrCreateCounter(`ciphertrace_submissions_total`),
		analyses:    vmetrics.GetOrCreateCounter(`ciphertrace_analysis_requests_total`),
	}, nil
}

// RegisterRoutes mounts the /fhevm surface on the router.
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Route("/fhevm", func(r chi.Router) {
		// Browser clients (the dApp frontend) call this surface directly.
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
		r.Post("/initialize", g.handleInitialize)
		r.Get("/status", g.handleStatus)
		r.Post("/encrypt", g.handleEncrypt)
		r.Post("/encrypt-batch", g.handleEncryptBatch)
		r.Post("/analyze-risk", g.handleAnalyzeRisk)
		r.Post("/analyze-pattern", g.handleAnalyzePattern)
		r.Get("/analysis/{id}", g.handleGetAnalysis)
		r.Post("/decrypt", g.handleDecrypt)
		r.Post("/contracts", g.handleContracts)
		r.Post("/reset", g.handleReset)
		r.Get("/health", g.handleHealth)
		r.Get("/handles/{owner}", g.handleListHandles)
		r.Get("/analyses/{owner}", g.handleListAnalyses)
	})
}

// Signer returns the gateway's current signing identity.
func (g *Gateway) Signer() (common.Address, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.signer, g.initialized
}

func (g *Gateway) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.fail(w, http.StatusBadRequest, fmt.Errorf("parsing request: %w", err))
		return
	}
	if req.RPCURL == "" || req.PrivateKey == "" {
		g.fail(w, http.StatusBadRequest, errors.New("missing required fields: rpcUrl, privateKey"))
		return
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(req.PrivateKey, "0x"))
	if err != nil {
		g.fail(w, http.StatusBadRequest, fmt.Errorf("invalid private key: %w", err))
		return
	}

	g.mu.Lock()
	g.initialized = true
	g.rpcURL = req.RPCURL
	g.signer = ethcrypto.PubkeyToAddress(key.PublicKey)
	g.mu.Unlock()

	g.log.Info("gateway initialized", "signer", g.signer.Hex(), "rpcUrl", req.RPCURL)
	g.writeJSON(w, http.StatusOK, &StatusResponse{
		Response: Response{Success: true, Message: "gateway initialized"},
		Status:   g.snapshot(),
	})
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, &StatusResponse{
		Response: Response{Success: true},
		Status:   g.snapshot(),
	})
}

func (g *Gateway) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	signer, err := g.requireSigner()
	if err != nil {
		g.fail(w, http.StatusServiceUnavailable, err)
		return
	}

	var req EncryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.fail(w, http.StatusBadRequest, fmt.Errorf("parsing request: %w", err))
		return
	}
	if req.TransactionData == nil {
		g.fail(w, http.StatusBadRequest, errors.New("missing transactionData"))
		return
	}

	id, err := g.submit(signer, *req.TransactionData)
	if err != nil {
		g.fail(w, statusFor(err), err)
		return
	}

	g.writeJSON(w, http.StatusOK, &EncryptResponse{
		Response: Response{Success: true, Message: "data sealed and registered"},
		DataID:   id.Hex(),
	})
}

func (g *Gateway) handleEncryptBatch(w http.ResponseWriter, r *http.Request) {
	signer, err := g.requireSigner()
	if err != nil {
		g.fail(w, http.StatusServiceUnavailable, err)
		return
	}

	var req EncryptBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.fail(w, http.StatusBadRequest, fmt.Errorf("parsing request: %w", err))
		return
	}
	if len(req.Transactions) == 0 {
		g.fail(w, http.StatusBadRequest, fmt.Errorf("%w: empty batch", ledger.ErrEmptyInput))
		return
	}
	// Size is checked before any item is submitted.
	if len(req.Transactions) > g.maxBatch {
		g.fail(w, http.StatusBadRequest,
			fmt.Errorf("%w: %d items, limit %d", ledger.ErrBatchTooLarge, len(req.Transactions), g.maxBatch))
		return
	}

	results := make([]BatchItemResult, len(req.Transactions))
	succeeded := 0
	for i, tx := range req.Transactions {
		results[i].Index = i
		id, err := g.submit(signer, tx)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		results[i].OK = true
		results[i].DataID = id.Hex()
		succeeded++
	}

	g.writeJSON(w, http.StatusOK, &EncryptBatchResponse{
		Response: Response{
			Success: succeeded == len(results),
			Message: fmt.Sprintf("sealed %d of %d transactions", succeeded, len(results)),
		},
		Results: results,
	})
}

func (g *Gateway) handleAnalyzeRisk(w http.ResponseWriter, r *http.Request) {
	g.handleAnalyze(w, r, ledger.RiskAnalysis)
}

func (g *Gateway) handleAnalyzePattern(w http.ResponseWriter, r *http.Request) {
	g.handleAnalyze(w, r, ledger.PatternAnalysis)
}

func (g *Gateway) handleAnalyze(w http.ResponseWriter, r *http.Request, kind ledger.AnalysisKind) {
	signer, err := g.requireSigner()
	if err != nil {
		g.fail(w, http.StatusServiceUnavailable, err)
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.fail(w, http.StatusBadRequest, fmt.Errorf("parsing request: %w", err))
		return
	}

	inputs := make([]common.Hash, 0, len(req.EncryptedTransactions))
	for _, raw := range req.EncryptedTransactions {
		inputs = append(inputs, common.HexToHash(raw))
	}

	id, err := g.ledger.RequestAnalysis(kind, inputs, signer)
	if err != nil {
		g.fail(w, statusFor(err), err)
		return
	}
	g.analyses.Inc()

	g.writeJSON(w, http.StatusOK, &AnalyzeResponse{
		Response:   Response{Success: true, Message: fmt.Sprintf("%s analysis requested", kind)},
		AnalysisID: id.Hex(),
		Status:     ledger.StatusPending,
	})
}

func (g *Gateway) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	signer, err := g.requireSigner()
	if err != nil {
		g.fail(w, http.StatusServiceUnavailable, err)
		return
	}

	id := common.HexToHash(chi.URLParam(r, "id"))
	req, err := g.ledger.GetResult(id, signer)
	if err != nil {
		g.fail(w, statusFor(err), err)
		return
	}

	g.writeJSON(w, http.StatusOK, &AnalysisStatusResponse{
		Response: Response{Success: true},
		Analysis: viewOf(req),
	})
}

func (g *Gateway) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	if _, err := g.requireSigner(); err != nil {
		g.fail(w, http.StatusServiceUnavailable, err)
		return
	}

	var req DecryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.fail(w, http.StatusBadRequest, fmt.Errorf("parsing request: %w", err))
		return
	}
	if req.EncryptedResult == "" {
		g.fail(w, http.StatusBadRequest, errors.New("missing encryptedResult"))
		return
	}

	score, err := g.sealer.RevealScore(req.EncryptedResult)
	if err != nil {
		g.fail(w, statusFor(err), err)
		return
	}

	g.writeJSON(w, http.StatusOK, &DecryptResponse{
		Response:        Response{Success: true, Message: "result decrypted"},
		DecryptedResult: score,
	})
}

func (g *Gateway) handleContracts(w http.ResponseWriter, r *http.Request) {
	var req ContractsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.fail(w, http.StatusBadRequest, fmt.Errorf("parsing request: %w", err))
		return
	}
	if req.TransactionAnalyzerAddress == "" || req.PrivateAnalyzerAddress == "" || req.FHEVMInterfaceAddress == "" {
		g.fail(w, http.StatusBadRequest, errors.New(
			"missing contract addresses: transactionAnalyzerAddress, privateAnalyzerAddress, fhevmInterfaceAddress"))
		return
	}
	for _, raw := range []string{req.TransactionAnalyzerAddress, req.PrivateAnalyzerAddress, req.FHEVMInterfaceAddress} {
		if !common.IsHexAddress(raw) {
			g.fail(w, http.StatusBadRequest, fmt.Errorf("invalid contract address: %s", raw))
			return
		}
	}

	contracts := &deploy.ContractAddresses{
		TransactionAnalyzer: common.HexToAddress(req.TransactionAnalyzerAddress),
		PrivateAnalyzer:     common.HexToAddress(req.PrivateAnalyzerAddress),
		FHEVMInterface:      common.HexToAddress(req.FHEVMInterfaceAddress),
	}

	g.mu.Lock()
	g.contracts = contracts
	g.mu.Unlock()

	g.writeJSON(w, http.StatusOK, &ContractsResponse{
		Response:  Response{Success: true, Message: "contract addresses bound"},
		Contracts: contracts,
	})
}

// handleReset clears the gateway's session state. Ledger records are not
// affected.
func (g *Gateway) handleReset(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.initialized = false
	g.rpcURL = ""
	g.signer = common.Address{}
	g.contracts = nil
	g.mu.Unlock()

	g.log.Info("gateway reset")
	g.writeJSON(w, http.StatusOK, &Response{Success: true, Message: "gateway reset"})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := g.snapshot()
	g.writeJSON(w, http.StatusOK, &HealthResponse{
		Response:  Response{Success: true},
		Healthy:   snap.Initialized && snap.HasSigner,
		Status:    snap,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (g *Gateway) handleListHandles(w http.ResponseWriter, r *http.Request) {
	g.handleList(w, r, g.ledger.HandlesByOwner)
}

func (g *Gateway) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	g.handleList(w, r, g.ledger.AnalysesByOwner)
}

func (g *Gateway) handleList(w http.ResponseWriter, r *http.Request,
	list func(owner, caller common.Address, offset, limit int) ([]common.Hash, error)) {

	signer, err := g.requireSigner()
	if err != nil {
		g.fail(w, http.StatusServiceUnavailable, err)
		return
	}

	raw := chi.URLParam(r, "owner")
	if !common.IsHexAddress(raw) {
		g.fail(w, http.StatusBadRequest, fmt.Errorf("invalid owner address: %s", raw))
		return
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 0)

	ids, err := list(common.HexToAddress(raw), signer, offset, limit)
	if err != nil {
		g.fail(w, statusFor(err), err)
		return
	}

	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	g.writeJSON(w, http.StatusOK, &ListResponse{
		Response: Response{Success: true},
		IDs:      out,
	})
}

func (g *Gateway) submit(signer common.Address, tx ledger.TransactionData) (common.Hash, error) {
	if err := ledger.ValidateTransactionData(tx); err != nil {
		return common.Hash{}, err
	}
	ciphertext, err := g.sealer.SealTransaction(tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sealing transaction: %w", err)
	}
	id, err := g.ledger.Submit(signer, ledger.EncryptedPayload{Ciphertext: ciphertext})
	if err != nil {
		return common.Hash{}, err
	}
	g.submissions.Inc()
	return id, nil
}

func (g *Gateway) requireSigner() (common.Address, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.initialized {
		return common.Address{}, ErrNotInitialized
	}
	return g.signer, nil
}

func (g *Gateway) snapshot() StatusSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	counts, err := g.ledger.Counts()
	if err != nil {
		g.log.Error("reading ledger counts", "err", err)
	}

	snap := StatusSnapshot{
		Initialized:  g.initialized,
		HasSigner:    g.initialized,
		HasContracts: g.contracts != nil,
		Contracts:    g.contracts,
		Counts:       counts,
		Mode:         g.mode,
	}
	if g.initialized {
		snap.Signer = g.signer.Hex()
	}
	return snap
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.log.Error("writing response", "err", err)
	}
}

func (g *Gateway) fail(w http.ResponseWriter, status int, err error) {
	g.writeJSON(w, status, &Response{Success: false, Message: err.Error()})
}

// statusFor maps ledger and sealer error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrAlreadyCompleted):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidPayload),
		errors.Is(err, ledger.ErrEmptyInput),
		errors.Is(err, ledger.ErrInsufficientInput),
		errors.Is(err, ledger.ErrBatchTooLarge),
		errors.Is(err, seal.ErrBadHandle):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotInitialized):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func viewOf(r *ledger.AnalysisRequest) *AnalysisView {
	v := &AnalysisView{
		ID:           r.ID.Hex(),
		Kind:         r.Kind,
		Status:       r.Status,
		InputCount:   len(r.InputHandles),
		ResultHandle: r.ResultHandle,
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
	}
	if r.Status == ledger.StatusCompleted {
		v.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	return v
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
