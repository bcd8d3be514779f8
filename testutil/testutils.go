package testutil

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/loserner/CipherTrace/ledger"
	"github.com/loserner/CipherTrace/seal"
)

// Fixed identities shared across the test suites. Admin and Oracle are the
// privileged ledger addresses; Alice and Bob are plain owners.
var (
	Admin  = common.HexToAddress("0x00000000000000000000000000000000000000AD")
	Oracle = common.HexToAddress("0x000000000000000000000000000000000000002C")
	Alice  = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	Bob    = common.HexToAddress("0x00000000000000000000000000000000000000B0")
)

// NewTestLedger creates a ledger over an in-memory store with the fixed
// privileged identities and default scoring.
func NewTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	return ledger.New(ledger.Params{
		Admin:  Admin,
		Oracle: Oracle,
	}, ledger.NewMemoryStore())
}

// NewTestSealer returns the hex simulation sealer used throughout the
// tests; it is deterministic and needs no key material.
func NewTestSealer() seal.Sealer {
	return seal.NewHexSealer()
}

// TestTransaction returns a valid transaction with the given amount,
// stamped at the given offset before now.
func TestTransaction(amount float64, age time.Duration) ledger.TransactionData {
	return ledger.TransactionData{
		Amount:    amount,
		GasUsed:   21000,
		Timestamp: time.Now().Add(-age).UnixMilli(),
	}
}

// BurstTransactions returns n transactions with near-identical amounts
// spaced one minute apart, the shape both analyses flag as suspicious.
func BurstTransactions(n int) []ledger.TransactionData {
	txs := make([]ledger.TransactionData, n)
	for i := range txs {
		txs[i] = TestTransaction(150.0+float64(i)*0.5, time.Duration(n-i)*time.Minute)
	}
	return txs
}

// MustSubmit seals a transaction and registers it as owner, failing the
// test on any error.
func MustSubmit(t *testing.T, led *ledger.Ledger, sealer seal.Sealer, owner common.Address, tx ledger.TransactionData) common.Hash {
	t.Helper()
	handle, err := sealer.SealTransaction(tx)
	require.NoError(t, err)
	id, err := led.Submit(owner, ledger.EncryptedPayload{Ciphertext: handle})
	require.NoError(t, err)
	return id
}

// MustSubmitAll registers every transaction for owner and returns the
// minted IDs in submission order.
func MustSubmitAll(t *testing.T, led *ledger.Ledger, sealer seal.Sealer, owner common.Address, txs []ledger.TransactionData) []common.Hash {
	t.Helper()
	ids := make([]common.Hash, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, MustSubmit(t, led, sealer, owner, tx))
	}
	return ids
}
