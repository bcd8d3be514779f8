package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AnalysisKind selects the computation performed over a set of handles.
type AnalysisKind string

const (
	RiskAnalysis    AnalysisKind = "risk"
	PatternAnalysis AnalysisKind = "pattern"
)

// Valid returns true if the analysis kind is recognized.
func (k AnalysisKind) Valid() bool {
	switch k {
	case RiskAnalysis, PatternAnalysis:
		return true
	}
	return false
}

// AnalysisStatus is the lifecycle state of an analysis request. The only
// transition is Pending to Completed, exactly once.
type AnalysisStatus string

const (
	StatusPending   AnalysisStatus = "pending"
	StatusCompleted AnalysisStatus = "completed"
)

// TransactionData is the plaintext form of a submitted transaction. It only
// exists outside the ledger: the gateway seals it before submission and the
// oracle reveals it for scoring.
type TransactionData struct {
	// Amount is the transferred value in ether.
	Amount float64 `json:"amount"`
	// GasUsed is the gas consumed by the transaction.
	GasUsed uint64 `json:"gasUsed"`
	// Timestamp is the transaction time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// ValidateTransactionData checks the basic range constraints the registry
// requires of a submission before it is sealed. It does not judge the values
// beyond representability.
func ValidateTransactionData(tx TransactionData) error {
	if tx.Amount < 0 {
		return ErrInvalidPayload
	}
	if tx.Timestamp <= 0 {
		return ErrInvalidPayload
	}
	return nil
}

// EncryptedPayload is the sealed, opaque form of a transaction as stored by
// the registry. The registry never inspects the ciphertext.
type EncryptedPayload struct {
	Ciphertext string `json:"ciphertext"`
}

// DataHandle is a registry entry: one sealed payload bound to its owner.
// Entries are never removed; deactivation flips Active and preserves the
// audit history.
type DataHandle struct {
	ID        common.Hash      `json:"id"`
	Owner     common.Address   `json:"owner"`
	Payload   EncryptedPayload `json:"payload"`
	Active    bool             `json:"active"`
	CreatedAt time.Time        `json:"createdAt"`
}

// AnalysisRequest is a ledger entry recording intent to compute over a set
// of data handles. ResultHandle is set when, and only when, the request is
// completed.
type AnalysisRequest struct {
	ID           common.Hash    `json:"id"`
	Owner        common.Address `json:"owner"`
	Kind         AnalysisKind   `json:"kind"`
	InputHandles []common.Hash  `json:"inputHandles"`
	Status       AnalysisStatus `json:"status"`
	ResultHandle string         `json:"resultHandle,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	CompletedAt  time.Time      `json:"completedAt,omitempty"`
}

// Counts is a snapshot of ledger totals, used by the gateway status surface.
type Counts struct {
	ActiveHandles     int `json:"activeHandles"`
	TotalHandles      int `json:"totalHandles"`
	TotalAnalyses     int `json:"totalAnalyses"`
	CompletedAnalyses int `json:"completedAnalyses"`
}
