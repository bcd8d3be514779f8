package services

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/loserner/CipherTrace/ledger"
	"github.com/loserner/CipherTrace/testutil"
)

// Well-known development key; its address is the gateway's signer once
// initialized.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testSignerAddress(t *testing.T) common.Address {
	t.Helper()
	key, err := ethcrypto.HexToECDSA(testPrivateKey)
	require.NoError(t, err)
	return ethcrypto.PubkeyToAddress(key.PublicKey)
}

func setupTestGateway(t *testing.T) (*Gateway, *ledger.Ledger, chi.Router) {
	t.Helper()

	led := testutil.NewTestLedger(t)
	gw, err := NewGateway(GatewayConfig{
		Ledger: led,
		Sealer: testutil.NewTestSealer(),
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	gw.RegisterRoutes(r)
	return gw, led, r
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResponse[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func initializeGateway(t *testing.T, router chi.Router) {
	t.Helper()
	w := doJSON(t, router, "POST", "/fhevm/initialize", &InitializeRequest{
		RPCURL:     "http://localhost:8545",
		PrivateKey: testPrivateKey,
	})
	require.Equal(t, http.StatusOK, w.Code)
}

func testTx(amount float64) ledger.TransactionData {
	return testutil.TestTransaction(amount, 0)
}

func encryptOne(t *testing.T, router chi.Router, amount float64) common.Hash {
	t.Helper()
	tx := testTx(amount)
	w := doJSON(t, router, "POST", "/fhevm/encrypt", &EncryptRequest{TransactionData: &tx})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse[EncryptResponse](t, w)
	require.True(t, resp.Success)
	return common.HexToHash(resp.DataID)
}

func TestGateway_Initialize(t *testing.T) {
	_, _, router := setupTestGateway(t)

	w := doJSON(t, router, "POST", "/fhevm/initialize", &InitializeRequest{
		RPCURL:     "http://localhost:8545",
		PrivateKey: testPrivateKey,
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse[StatusResponse](t, w)
	require.True(t, resp.Success)
	require.True(t, resp.Status.Initialized)
	require.Equal(t, testSignerAddress(t).Hex(), resp.Status.Signer)
}

func TestGateway_InitializeValidation(t *testing.T) {
	_, _, router := setupTestGateway(t)

	w := doJSON(t, router, "POST", "/fhevm/initialize", &InitializeRequest{RPCURL: "http://localhost:8545"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, "POST", "/fhevm/initialize", &InitializeRequest{
		RPCURL:     "http://localhost:8545",
		PrivateKey: "not-a-key",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse[Response](t, w)
	require.False(t, resp.Success)
}

func TestGateway_RequiresInitialization(t *testing.T) {
	_, _, router := setupTestGateway(t)

	tx := testTx(1)
	for _, call := range []struct {
		method, path string
		body         any
	}{
		{"POST", "/fhevm/encrypt", &EncryptRequest{TransactionData: &tx}},
		{"POST", "/fhevm/encrypt-batch", &EncryptBatchRequest{Transactions: []ledger.TransactionData{tx}}},
		{"POST", "/fhevm/analyze-risk", &AnalyzeRequest{EncryptedTransactions: []string{"0x01"}}},
		{"GET", "/fhevm/analysis/0x01", nil},
		{"POST", "/fhevm/decrypt", &DecryptRequest{EncryptedResult: "0x01"}},
	} {
		w := doJSON(t, router, call.method, call.path, call.body)
		require.Equal(t, http.StatusServiceUnavailable, w.Code, "%s %s", call.method, call.path)
	}
}

func TestGateway_EncryptAndStatus(t *testing.T) {
	_, led, router := setupTestGateway(t)
	initializeGateway(t, router)

	id := encryptOne(t, router, 12.5)

	// The handle is owned by the gateway's signer.
	h, err := led.Handle(id, testSignerAddress(t))
	require.NoError(t, err)
	require.True(t, h.Active)

	w := doJSON(t, router, "GET", "/fhevm/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decodeResponse[StatusResponse](t, w)
	require.Equal(t, 1, status.Status.Counts.TotalHandles)
	require.Equal(t, 1, status.Status.Counts.ActiveHandles)
}

func TestGateway_EncryptValidation(t *testing.T) {
	_, _, router := setupTestGateway(t)
	initializeGateway(t, router)

	w := doJSON(t, router, "POST", "/fhevm/encrypt", &EncryptRequest{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	bad := ledger.TransactionData{Amount: -1, Timestamp: 1000}
	w = doJSON(t, router, "POST", "/fhevm/encrypt", &EncryptRequest{TransactionData: &bad})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGateway_EncryptBatch(t *testing.T) {
	_, _, router := setupTestGateway(t)
	initializeGateway(t, router)

	txs := make([]ledger.TransactionData, 5)
	for i := range txs {
		txs[i] = testTx(float64(i + 1))
	}

	w := doJSON(t, router, "POST", "/fhevm/encrypt-batch", &EncryptBatchRequest{Transactions: txs})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse[EncryptBatchResponse](t, w)
	require.True(t, resp.Success)
	require.Len(t, resp.Results, 5)
	seen := make(map[string]bool)
	for i, item := range resp.Results {
		require.Equal(t, i, item.Index)
		require.True(t, item.OK)
		require.False(t, seen[item.DataID], "duplicate handle in batch")
		seen[item.DataID] = true
	}
}

func TestGateway_EncryptBatchPartialFailure(t *testing.T) {
	_, led, router := setupTestGateway(t)
	initializeGateway(t, router)

	txs := []ledger.TransactionData{
		testTx(1),
		{Amount: -5, Timestamp: 1000}, // invalid
		testTx(3),
	}

	w := doJSON(t, router, "POST", "/fhevm/encrypt-batch", &EncryptBatchRequest{Transactions: txs})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse[EncryptBatchResponse](t, w)
	require.False(t, resp.Success)
	require.Len(t, resp.Results, 3)
	require.True(t, resp.Results[0].OK)
	require.False(t, resp.Results[1].OK)
	require.NotEmpty(t, resp.Results[1].Error)
	require.True(t, resp.Results[2].OK)

	// Successful items are kept; there is no rollback.
	counts, err := led.Counts()
	require.NoError(t, err)
	require.Equal(t, 2, counts.TotalHandles)
}

func TestGateway_EncryptBatchLimits(t *testing.T) {
	_, led, router := setupTestGateway(t)
	initializeGateway(t, router)

	w := doJSON(t, router, "POST", "/fhevm/encrypt-batch", &EncryptBatchRequest{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// One over the limit is rejected before any item is stored.
	txs := make([]ledger.TransactionData, ledger.DefaultMaxBatchSize+1)
	for i := range txs {
		txs[i] = testTx(1)
	}
	w = doJSON(t, router, "POST", "/fhevm/encrypt-batch", &EncryptBatchRequest{Transactions: txs})
	require.Equal(t, http.StatusBadRequest, w.Code)

	counts, err := led.Counts()
	require.NoError(t, err)
	require.Zero(t, counts.TotalHandles)

	// Exactly the limit is accepted.
	w = doJSON(t, router, "POST", "/fhevm/encrypt-batch", &EncryptBatchRequest{Transactions: txs[:ledger.DefaultMaxBatchSize]})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse[EncryptBatchResponse](t, w)
	require.True(t, resp.Success)
	require.Len(t, resp.Results, ledger.DefaultMaxBatchSize)
}

func TestGateway_AnalyzeRisk(t *testing.T) {
	_, _, router := setupTestGateway(t)
	initializeGateway(t, router)

	ids := []string{
		encryptOne(t, router, 150).Hex(),
		encryptOne(t, router, 2).Hex(),
	}

	w := doJSON(t, router, "POST", "/fhevm/analyze-risk", &AnalyzeRequest{EncryptedTransactions: ids})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse[AnalyzeResponse](t, w)
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.AnalysisID)
	require.Equal(t, ledger.StatusPending, resp.Status)

	// The fresh request is visible and pending.
	w = doJSON(t, router, "GET", "/fhevm/analysis/"+resp.AnalysisID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	poll := decodeResponse[AnalysisStatusResponse](t, w)
	require.NotNil(t, poll.Analysis)
	require.Equal(t, ledger.RiskAnalysis, poll.Analysis.Kind)
	require.Equal(t, ledger.StatusPending, poll.Analysis.Status)
	require.Equal(t, 2, poll.Analysis.InputCount)
	require.Empty(t, poll.Analysis.ResultHandle)
}

func TestGateway_AnalyzeValidation(t *testing.T) {
	_, _, router := setupTestGateway(t)
	initializeGateway(t, router)

	// No inputs.
	w := doJSON(t, router, "POST", "/fhevm/analyze-risk", &AnalyzeRequest{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Pattern analysis needs at least two handles.
	one := encryptOne(t, router, 1)
	w = doJSON(t, router, "POST", "/fhevm/analyze-pattern", &AnalyzeRequest{
		EncryptedTransactions: []string{one.Hex()},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown handle.
	w = doJSON(t, router, "POST", "/fhevm/analyze-risk", &AnalyzeRequest{
		EncryptedTransactions: []string{common.HexToHash("0x99").Hex()},
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGateway_GetAnalysisUnknown(t *testing.T) {
	_, _, router := setupTestGateway(t)
	initializeGateway(t, router)

	w := doJSON(t, router, "GET", "/fhevm/analysis/"+common.HexToHash("0x42").Hex(), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGateway_Decrypt(t *testing.T) {
	_, _, router := setupTestGateway(t)
	initializeGateway(t, router)

	sealer := testutil.NewTestSealer()
	handle, err := sealer.SealScore(27.5)
	require.NoError(t, err)

	w := doJSON(t, router, "POST", "/fhevm/decrypt", &DecryptRequest{EncryptedResult: handle})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse[DecryptResponse](t, w)
	require.True(t, resp.Success)
	require.Equal(t, 27.5, resp.DecryptedResult)

	w = doJSON(t, router, "POST", "/fhevm/decrypt", &DecryptRequest{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, "POST", "/fhevm/decrypt", &DecryptRequest{EncryptedResult: "0xzz"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGateway_Contracts(t *testing.T) {
	_, _, router := setupTestGateway(t)

	w := doJSON(t, router, "POST", "/fhevm/contracts", &ContractsRequest{
		TransactionAnalyzerAddress: "0x1111111111111111111111111111111111111111",
		PrivateAnalyzerAddress:     "0x2222222222222222222222222222222222222222",
		FHEVMInterfaceAddress:      "0x3333333333333333333333333333333333333333",
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse[ContractsResponse](t, w)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Contracts)

	status := decodeResponse[StatusResponse](t, doJSON(t, router, "GET", "/fhevm/status", nil))
	require.True(t, status.Status.HasContracts)
}

func TestGateway_ContractsValidation(t *testing.T) {
	_, _, router := setupTestGateway(t)

	w := doJSON(t, router, "POST", "/fhevm/contracts", &ContractsRequest{
		TransactionAnalyzerAddress: "0x1111111111111111111111111111111111111111",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, "POST", "/fhevm/contracts", &ContractsRequest{
		TransactionAnalyzerAddress: "not-an-address",
		PrivateAnalyzerAddress:     "0x2222222222222222222222222222222222222222",
		FHEVMInterfaceAddress:      "0x3333333333333333333333333333333333333333",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGateway_ResetClearsSessionOnly(t *testing.T) {
	_, led, router := setupTestGateway(t)
	initializeGateway(t, router)
	encryptOne(t, router, 1)

	w := doJSON(t, router, "POST", "/fhevm/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Session state is gone.
	tx := testTx(1)
	w = doJSON(t, router, "POST", "/fhevm/encrypt", &EncryptRequest{TransactionData: &tx})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	// Ledger records survive a reset.
	counts, err := led.Counts()
	require.NoError(t, err)
	require.Equal(t, 1, counts.TotalHandles)
}

func TestGateway_Health(t *testing.T) {
	_, _, router := setupTestGateway(t)

	resp := decodeResponse[HealthResponse](t, doJSON(t, router, "GET", "/fhevm/health", nil))
	require.False(t, resp.Healthy)

	initializeGateway(t, router)

	resp = decodeResponse[HealthResponse](t, doJSON(t, router, "GET", "/fhevm/health", nil))
	require.True(t, resp.Healthy)
	require.NotEmpty(t, resp.Timestamp)
}

func TestGateway_ListHandles(t *testing.T) {
	_, _, router := setupTestGateway(t)
	initializeGateway(t, router)

	var want []string
	for i := 0; i < 3; i++ {
		want = append(want, encryptOne(t, router, float64(i+1)).Hex())
	}

	signer := testSignerAddress(t)
	resp := decodeResponse[ListResponse](t, doJSON(t, router, "GET", "/fhevm/handles/"+signer.Hex(), nil))
	require.True(t, resp.Success)
	require.Equal(t, want, resp.IDs)

	// Pagination.
	resp = decodeResponse[ListResponse](t, doJSON(t, router, "GET", "/fhevm/handles/"+signer.Hex()+"?offset=1&limit=1", nil))
	require.Equal(t, want[1:2], resp.IDs)

	// The gateway signer cannot enumerate someone else's handles.
	w := doJSON(t, router, "GET", "/fhevm/handles/0x4444444444444444444444444444444444444444", nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	// Malformed owner address.
	w = doJSON(t, router, "GET", "/fhevm/handles/nonsense", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGateway_ListAnalyses(t *testing.T) {
	_, _, router := setupTestGateway(t)
	initializeGateway(t, router)

	id := encryptOne(t, router, 1)
	w := doJSON(t, router, "POST", "/fhevm/analyze-risk", &AnalyzeRequest{
		EncryptedTransactions: []string{id.Hex()},
	})
	require.Equal(t, http.StatusOK, w.Code)
	analysis := decodeResponse[AnalyzeResponse](t, w)

	signer := testSignerAddress(t)
	resp := decodeResponse[ListResponse](t, doJSON(t, router, "GET", "/fhevm/analyses/"+signer.Hex(), nil))
	require.Equal(t, []string{analysis.AnalysisID}, resp.IDs)
}
