package ledger

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Store is the persistence seam behind the ledger. Implementations do not
// enforce access control or lifecycle invariants; the Ledger does, and all
// Store access goes through the Ledger's mutex.
//
// Lookup methods return (nil, nil) for unknown identifiers. Owner enumeration
// is append-ordered with stable offsets; limit <= 0 means no limit.
type Store interface {
	PutHandle(h *DataHandle) error
	Handle(id common.Hash) (*DataHandle, error)
	UpdateHandle(h *DataHandle) error
	HandlesByOwner(owner common.Address, offset, limit int) ([]common.Hash, error)

	PutRequest(r *AnalysisRequest) error
	Request(id common.Hash) (*AnalysisRequest, error)
	UpdateRequest(r *AnalysisRequest) error
	RequestsByOwner(owner common.Address, offset, limit int) ([]common.Hash, error)

	// PendingRequests returns up to limit pending analysis identifiers in
	// creation order, for the completion worker.
	PendingRequests(limit int) ([]common.Hash, error)

	Counts() (Counts, error)
}

// MemoryStore is the in-process Store used by tests and single-node
// deployments. It holds copies of every entity so callers cannot mutate
// stored state through returned pointers.
type MemoryStore struct {
	handles  map[common.Hash]*DataHandle
	requests map[common.Hash]*AnalysisRequest

	handleOrder  []common.Hash
	requestOrder []common.Hash

	ownerHandles  map[common.Address][]common.Hash
	ownerRequests map[common.Address][]common.Hash
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		handles:       make(map[common.Hash]*DataHandle),
		requests:      make(map[common.Hash]*AnalysisRequest),
		ownerHandles:  make(map[common.Address][]common.Hash),
		ownerRequests: make(map[common.Address][]common.Hash),
	}
}

func (s *MemoryStore) PutHandle(h *DataHandle) error {
	cp := *h
	cp.Payload = h.Payload
	s.handles[h.ID] = &cp
	s.handleOrder = append(s.handleOrder, h.ID)
	s.ownerHandles[h.Owner] = append(s.ownerHandles[h.Owner], h.ID)
	return nil
}

func (s *MemoryStore) Handle(id common.Hash) (*DataHandle, error) {
	h, ok := s.handles[id]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (s *MemoryStore) UpdateHandle(h *DataHandle) error {
	cp := *h
	s.handles[h.ID] = &cp
	return nil
}

func (s *MemoryStore) HandlesByOwner(owner common.Address, offset, limit int) ([]common.Hash, error) {
	return page(s.ownerHandles[owner], offset, limit), nil
}

func (s *MemoryStore) PutRequest(r *AnalysisRequest) error {
	s.requests[r.ID] = copyRequest(r)
	s.requestOrder = append(s.requestOrder, r.ID)
	s.ownerRequests[r.Owner] = append(s.ownerRequests[r.Owner], r.ID)
	return nil
}

func (s *MemoryStore) Request(id common.Hash) (*AnalysisRequest, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	return copyRequest(r), nil
}

func (s *MemoryStore) UpdateRequest(r *AnalysisRequest) error {
	s.requests[r.ID] = copyRequest(r)
	return nil
}

func (s *MemoryStore) RequestsByOwner(owner common.Address, offset, limit int) ([]common.Hash, error) {
	return page(s.ownerRequests[owner], offset, limit), nil
}

func (s *MemoryStore) PendingRequests(limit int) ([]common.Hash, error) {
	out := make([]common.Hash, 0)
	for _, id := range s.requestOrder {
		if s.requests[id].Status != StatusPending {
			continue
		}
		out = append(out, id)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Counts() (Counts, error) {
	c := Counts{
		TotalHandles:  len(s.handles),
		TotalAnalyses: len(s.requests),
	}
	for _, h := range s.handles {
		if h.Active {
			c.ActiveHandles++
		}
	}
	for _, r := range s.requests {
		if r.Status == StatusCompleted {
			c.CompletedAnalyses++
		}
	}
	return c, nil
}

// Owners returns every owner with at least one handle, in address order.
// Used only by diagnostics.
func (s *MemoryStore) Owners() []common.Address {
	out := make([]common.Address, 0, len(s.ownerHandles))
	for owner := range s.ownerHandles {
		out = append(out, owner)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

func copyRequest(r *AnalysisRequest) *AnalysisRequest {
	cp := *r
	cp.InputHandles = append([]common.Hash(nil), r.InputHandles...)
	return &cp
}

func page(ids []common.Hash, offset, limit int) []common.Hash {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ids) {
		return []common.Hash{}
	}
	end := len(ids)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]common.Hash(nil), ids[offset:end]...)
}
