package ledger

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultMaxBatchSize bounds a single batch submission.
const DefaultMaxBatchSize = 100

// Params fixes the privileged identities and limits of a ledger at
// construction time.
type Params struct {
	// Admin may bypass per-owner checks on any entity.
	Admin common.Address
	// Oracle is the single identity allowed to complete analyses. It may
	// also read entity state, since it performs the computation.
	Oracle common.Address
	// MaxBatchSize caps batch submissions; zero means DefaultMaxBatchSize.
	MaxBatchSize int
	// Scoring holds the analysis thresholds. Zero value means defaults.
	Scoring ScoringConfig
}

// Ledger is the data-handle registry and analysis request ledger. Every
// mutating call is atomic end-to-end: preconditions are checked in full
// under the mutex before any store write.
type Ledger struct {
	params Params
	store  Store

	mu    sync.Mutex
	nonce uint64
}

// New creates a ledger over the given store.
func New(params Params, store Store) *Ledger {
	if params.MaxBatchSize == 0 {
		params.MaxBatchSize = DefaultMaxBatchSize
	}
	if params.Scoring == (ScoringConfig{}) {
		params.Scoring = DefaultScoringConfig()
	}
	return &Ledger{params: params, store: store}
}

// Params returns the ledger's construction parameters.
func (l *Ledger) Params() Params { return l.params }

// Scoring returns the configured scoring thresholds.
func (l *Ledger) Scoring() ScoringConfig { return l.params.Scoring }

// Submit records a sealed payload for the caller and mints its data handle.
func (l *Ledger) Submit(caller common.Address, payload EncryptedPayload) (common.Hash, error) {
	if payload.Ciphertext == "" {
		return common.Hash{}, fmt.Errorf("%w: empty ciphertext", ErrInvalidPayload)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	h := &DataHandle{
		ID:        l.mintID(caller),
		Owner:     caller,
		Payload:   payload,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.store.PutHandle(h); err != nil {
		return common.Hash{}, fmt.Errorf("storing handle: %w", err)
	}
	return h.ID, nil
}

// Handle returns the registry entry for id. Only the owner, the admin, or
// the oracle may read the sealed payload.
func (l *Ledger) Handle(id common.Hash, caller common.Address) (*DataHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, err := l.store.Handle(id)
	if err != nil {
		return nil, fmt.Errorf("loading handle: %w", err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: handle %s", ErrNotFound, id.Hex())
	}
	if !l.mayAccess(caller, h.Owner) {
		// Do not echo payload or owner details back to strangers.
		return nil, fmt.Errorf("%w: caller %s", ErrUnauthorized, caller.Hex())
	}
	return h, nil
}

// Deactivate flips a handle to inactive. The entry is kept for audit and is
// never reactivated. Deactivating an already-inactive handle is a no-op.
func (l *Ledger) Deactivate(id common.Hash, caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, err := l.store.Handle(id)
	if err != nil {
		return fmt.Errorf("loading handle: %w", err)
	}
	if h == nil {
		return fmt.Errorf("%w: handle %s", ErrNotFound, id.Hex())
	}
	if !l.mayAccess(caller, h.Owner) {
		return fmt.Errorf("%w: caller %s", ErrUnauthorized, caller.Hex())
	}
	if !h.Active {
		return nil
	}
	h.Active = false
	if err := l.store.UpdateHandle(h); err != nil {
		return fmt.Errorf("updating handle: %w", err)
	}
	return nil
}

// HandlesByOwner lists the caller's handle identifiers in submission order.
// Enumeration requires caller == owner (or a privileged identity); it never
// reveals other owners' entries.
func (l *Ledger) HandlesByOwner(owner, caller common.Address, offset, limit int) ([]common.Hash, error) {
	if owner != caller && !l.privileged(caller) {
		return nil, fmt.Errorf("%w: caller %s", ErrUnauthorized, caller.Hex())
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.HandlesByOwner(owner, offset, limit)
}

// RequestAnalysis mints a pending analysis request over the given handles.
// Every referenced handle must exist, be active, and belong to the caller;
// any violation fails the request before anything is stored.
func (l *Ledger) RequestAnalysis(kind AnalysisKind, inputs []common.Hash, caller common.Address) (common.Hash, error) {
	if !kind.Valid() {
		return common.Hash{}, fmt.Errorf("%w: unknown analysis kind %q", ErrInvalidPayload, kind)
	}
	if len(inputs) == 0 {
		return common.Hash{}, ErrEmptyInput
	}
	if kind == PatternAnalysis && len(inputs) < 2 {
		return common.Hash{}, fmt.Errorf("%w: pattern analysis needs at least 2 handles", ErrInsufficientInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range inputs {
		h, err := l.store.Handle(id)
		if err != nil {
			return common.Hash{}, fmt.Errorf("loading handle: %w", err)
		}
		if h == nil || !h.Active {
			return common.Hash{}, fmt.Errorf("%w: handle %s", ErrNotFound, id.Hex())
		}
		if h.Owner != caller && !l.privileged(caller) {
			return common.Hash{}, fmt.Errorf("%w: handle %s not owned by caller", ErrUnauthorized, id.Hex())
		}
	}

	r := &AnalysisRequest{
		ID:           l.mintID(caller),
		Owner:        caller,
		Kind:         kind,
		InputHandles: append([]common.Hash(nil), inputs...),
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := l.store.PutRequest(r); err != nil {
		return common.Hash{}, fmt.Errorf("storing analysis request: %w", err)
	}
	return r.ID, nil
}

// CompleteAnalysis attaches the opaque result and flips the request to
// Completed. Only the designated oracle or the admin may complete, and only
// once per request.
func (l *Ledger) CompleteAnalysis(id common.Hash, resultHandle string, caller common.Address) error {
	if resultHandle == "" {
		return fmt.Errorf("%w: empty result handle", ErrInvalidPayload)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.store.Request(id)
	if err != nil {
		return fmt.Errorf("loading analysis request: %w", err)
	}
	if r == nil {
		return fmt.Errorf("%w: analysis %s", ErrNotFound, id.Hex())
	}
	if !l.privileged(caller) {
		return fmt.Errorf("%w: caller %s is not the oracle", ErrUnauthorized, caller.Hex())
	}
	if r.Status == StatusCompleted {
		return fmt.Errorf("%w: analysis %s", ErrAlreadyCompleted, id.Hex())
	}

	r.Status = StatusCompleted
	r.ResultHandle = resultHandle
	r.CompletedAt = time.Now().UTC()
	if err := l.store.UpdateRequest(r); err != nil {
		return fmt.Errorf("updating analysis request: %w", err)
	}
	return nil
}

// GetResult returns the analysis request, including the result handle iff
// completed. Only the request owner or a privileged identity may read it.
func (l *Ledger) GetResult(id common.Hash, caller common.Address) (*AnalysisRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.store.Request(id)
	if err != nil {
		return nil, fmt.Errorf("loading analysis request: %w", err)
	}
	if r == nil {
		return nil, fmt.Errorf("%w: analysis %s", ErrNotFound, id.Hex())
	}
	if !l.mayAccess(caller, r.Owner) {
		return nil, fmt.Errorf("%w: caller %s", ErrUnauthorized, caller.Hex())
	}
	return r, nil
}

// AnalysesByOwner lists the caller's analysis identifiers in request order.
func (l *Ledger) AnalysesByOwner(owner, caller common.Address, offset, limit int) ([]common.Hash, error) {
	if owner != caller && !l.privileged(caller) {
		return nil, fmt.Errorf("%w: caller %s", ErrUnauthorized, caller.Hex())
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.RequestsByOwner(owner, offset, limit)
}

// PendingAnalyses returns up to limit pending request identifiers for the
// completion worker. Restricted to privileged identities.
func (l *Ledger) PendingAnalyses(caller common.Address, limit int) ([]common.Hash, error) {
	if !l.privileged(caller) {
		return nil, fmt.Errorf("%w: caller %s", ErrUnauthorized, caller.Hex())
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.PendingRequests(limit)
}

// Counts returns the status snapshot used by the gateway health surface.
func (l *Ledger) Counts() (Counts, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Counts()
}

func (l *Ledger) privileged(caller common.Address) bool {
	return caller == l.params.Admin || caller == l.params.Oracle
}

func (l *Ledger) mayAccess(caller, owner common.Address) bool {
	return caller == owner || l.privileged(caller)
}

// mintID derives a fresh identifier from the owner, a process-local nonce
// and the current time. Collision-resistant, not unpredictable. Caller holds
// the mutex.
func (l *Ledger) mintID(owner common.Address) common.Hash {
	l.nonce++
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], l.nonce)
	binary.BigEndian.PutUint64(buf[8:], uint64(time.Now().UnixNano()))
	return crypto.Keccak256Hash(owner.Bytes(), buf[:])
}
