package client

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/loserner/CipherTrace/ledger"
	"github.com/loserner/CipherTrace/seal"
	"github.com/loserner/CipherTrace/services"
	"github.com/loserner/CipherTrace/testutil"
)

const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type testGateway struct {
	ledger *ledger.Ledger
	sealer seal.Sealer
	server *httptest.Server
}

func setupGatewayServer(t *testing.T) *testGateway {
	t.Helper()

	led := testutil.NewTestLedger(t)
	sealer := testutil.NewTestSealer()

	gw, err := services.NewGateway(services.GatewayConfig{
		Ledger: led,
		Sealer: sealer,
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	gw.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testGateway{ledger: led, sealer: sealer, server: srv}
}

func configuredAdapter(t *testing.T, gw *testGateway) *Adapter {
	t.Helper()
	a := New()
	require.NoError(t, a.Configure(context.Background(), Config{
		Endpoint:     gw.server.URL,
		PrivateKey:   testPrivateKey,
		PollInterval: 10 * time.Millisecond,
	}))
	return a
}

func testTx(amount float64) ledger.TransactionData {
	return testutil.TestTransaction(amount, 0)
}

func TestAdapter_ConfigureValidation(t *testing.T) {
	a := New()

	err := a.Configure(context.Background(), Config{})
	require.ErrorIs(t, err, ErrNotConfigured)

	err = a.Configure(context.Background(), Config{Endpoint: "http://localhost:1", PrivateKey: "nope"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotConfigured)
}

func TestAdapter_ConfigureUnreachableGatewayResets(t *testing.T) {
	a := New()

	// Nothing listens here; Configure must fail and leave the adapter
	// unconfigured.
	err := a.Configure(context.Background(), Config{
		Endpoint:   "http://127.0.0.1:1",
		PrivateKey: testPrivateKey,
	})
	require.Error(t, err)

	_, err = a.Address()
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestAdapter_Address(t *testing.T) {
	gw := setupGatewayServer(t)
	a := configuredAdapter(t, gw)

	key, err := ethcrypto.HexToECDSA(testPrivateKey)
	require.NoError(t, err)

	addr, err := a.Address()
	require.NoError(t, err)
	require.Equal(t, ethcrypto.PubkeyToAddress(key.PublicKey), addr)
}

func TestAdapter_UnconfiguredCallsFail(t *testing.T) {
	a := New()
	ctx := context.Background()

	_, err := a.Submit(ctx, testTx(1))
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = a.AnalyzeRisk(ctx, []common.Hash{{}})
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = a.AwaitResult(ctx, common.Hash{}, time.Second)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestAdapter_SubmitRoundTrip(t *testing.T) {
	gw := setupGatewayServer(t)
	a := configuredAdapter(t, gw)

	id, err := a.Submit(context.Background(), testTx(12.5))
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, id)

	addr, err := a.Address()
	require.NoError(t, err)
	h, err := gw.ledger.Handle(id, addr)
	require.NoError(t, err)
	require.True(t, h.Active)

	tx, err := gw.sealer.RevealTransaction(h.Payload.Ciphertext)
	require.NoError(t, err)
	require.Equal(t, 12.5, tx.Amount)
}

func TestAdapter_SubmitBatch(t *testing.T) {
	gw := setupGatewayServer(t)
	a := configuredAdapter(t, gw)

	txs := []ledger.TransactionData{testTx(1), testTx(2), testTx(3)}
	results, err := a.SubmitBatch(context.Background(), txs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		require.Equal(t, i, r.Index)
		require.NoError(t, r.Err)
		require.NotEqual(t, common.Hash{}, r.DataID)
	}
}

func TestAdapter_SubmitBatchChecksSizeLocally(t *testing.T) {
	// No server needed: both checks happen before any gateway call.
	a := New()
	a.mu.Lock()
	a.configured = true
	a.mu.Unlock()

	_, err := a.SubmitBatch(context.Background(), nil)
	require.ErrorIs(t, err, ledger.ErrEmptyInput)

	txs := make([]ledger.TransactionData, ledger.DefaultMaxBatchSize+1)
	for i := range txs {
		txs[i] = testTx(1)
	}
	_, err = a.SubmitBatch(context.Background(), txs)
	require.ErrorIs(t, err, ledger.ErrBatchTooLarge)
}

func TestAdapter_SubmitBatchHonorsConfiguredLimit(t *testing.T) {
	gw := setupGatewayServer(t)

	a := New()
	require.NoError(t, a.Configure(context.Background(), Config{
		Endpoint:     gw.server.URL,
		PrivateKey:   testPrivateKey,
		MaxBatchSize: 2,
	}))

	// One over the configured limit is rejected before the gateway sees it.
	_, err := a.SubmitBatch(context.Background(), []ledger.TransactionData{testTx(1), testTx(2), testTx(3)})
	require.ErrorIs(t, err, ledger.ErrBatchTooLarge)

	counts, err := gw.ledger.Counts()
	require.NoError(t, err)
	require.Zero(t, counts.TotalHandles)

	// At the limit passes through.
	results, err := a.SubmitBatch(context.Background(), []ledger.TransactionData{testTx(1), testTx(2)})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestAdapter_SubmitBatchReportsPartialFailure(t *testing.T) {
	gw := setupGatewayServer(t)
	a := configuredAdapter(t, gw)

	txs := []ledger.TransactionData{
		testTx(1),
		{Amount: -5, Timestamp: 1000},
		testTx(3),
	}
	results, err := a.SubmitBatch(context.Background(), txs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	require.NoError(t, results[2].Err)
}

func TestAdapter_AnalyzeAndAwait(t *testing.T) {
	gw := setupGatewayServer(t)
	a := configuredAdapter(t, gw)
	ctx := context.Background()

	var ids []common.Hash
	for _, amount := range []float64{150, 148, 151} {
		id, err := a.Submit(ctx, testTx(amount))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	analysisID, err := a.AnalyzeRisk(ctx, ids)
	require.NoError(t, err)

	// Completion worker running alongside the poll loop.
	oracle, err := services.NewOracle(services.OracleConfig{
		Ledger:   gw.ledger,
		Sealer:   gw.sealer,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Identity: testutil.Oracle,
		Interval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	oracleCtx, stopOracle := context.WithCancel(ctx)
	defer stopOracle()
	go oracle.Run(oracleCtx)

	result, err := a.AwaitResult(ctx, analysisID, 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCompleted, result.Status)
	require.NotEmpty(t, result.ResultHandle)

	score, err := a.Decrypt(ctx, result.ResultHandle)
	require.NoError(t, err)
	// All three are recent and large: 20 + 30 each.
	require.InDelta(t, 50, score, 1e-9)
}

func TestAdapter_AwaitResultTimeoutReturnsPending(t *testing.T) {
	gw := setupGatewayServer(t)
	a := configuredAdapter(t, gw)
	ctx := context.Background()

	id, err := a.Submit(ctx, testTx(1))
	require.NoError(t, err)
	analysisID, err := a.AnalyzeRisk(ctx, []common.Hash{id})
	require.NoError(t, err)

	// No oracle runs, so the request never completes. The timeout is not an
	// error; the last pending state comes back.
	result, err := a.AwaitResult(ctx, analysisID, 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusPending, result.Status)
	require.Empty(t, result.ResultHandle)
}

func TestAdapter_AwaitResultCancellation(t *testing.T) {
	gw := setupGatewayServer(t)
	a := configuredAdapter(t, gw)

	id, err := a.Submit(context.Background(), testTx(1))
	require.NoError(t, err)
	analysisID, err := a.AnalyzeRisk(context.Background(), []common.Hash{id})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = a.AwaitResult(ctx, analysisID, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAdapter_GetResultUnknown(t *testing.T) {
	gw := setupGatewayServer(t)
	a := configuredAdapter(t, gw)

	_, err := a.GetResult(context.Background(), common.HexToHash("0x42"))
	require.Error(t, err)
}

func TestAdapter_DecryptBadHandle(t *testing.T) {
	gw := setupGatewayServer(t)
	a := configuredAdapter(t, gw)

	_, err := a.Decrypt(context.Background(), "0xzz")
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestAdapter_Reset(t *testing.T) {
	gw := setupGatewayServer(t)
	a := configuredAdapter(t, gw)

	a.Reset()

	_, err := a.Address()
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = a.Submit(context.Background(), testTx(1))
	require.ErrorIs(t, err, ErrNotConfigured)

	// Reset is idempotent and reconfiguration works.
	a.Reset()
	require.NoError(t, a.Configure(context.Background(), Config{
		Endpoint:   gw.server.URL,
		PrivateKey: testPrivateKey,
	}))
}
