package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	vmetrics "github.com/VictoriaMetrics/metrics"
	"github.com/ethereum/go-ethereum/common"

	"github.com/loserner/CipherTrace/ledger"
	"github.com/loserner/CipherTrace/seal"
)

// OracleConfig wires the completion worker.
type OracleConfig struct {
	Ledger *ledger.Ledger
	Sealer seal.Sealer
	Log    *slog.Logger
	// Identity must match the ledger's designated oracle (or admin).
	Identity common.Address
	// Interval between scans; zero means one second.
	Interval time.Duration
	// BatchLimit caps the requests picked up per scan; zero means 32.
	BatchLimit int
}

// Oracle is the computation worker: it scans for pending analysis requests,
// reveals the referenced payloads, computes the score, and completes the
// request with a sealed result handle.
type Oracle struct {
	ledger   *ledger.Ledger
	sealer   seal.Sealer
	log      *slog.Logger
	identity common.Address
	interval time.Duration
	limit    int

	completions *vmetrics.Counter
}

// NewOracle creates the worker.
func NewOracle(cfg OracleConfig) (*Oracle, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if cfg.Sealer == nil {
		return nil, errors.New("sealer is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchLimit == 0 {
		cfg.BatchLimit = 32
	}
	return &Oracle{
		ledger:      cfg.Ledger,
		sealer:      cfg.Sealer,
		log:         cfg.Log,
		identity:    cfg.Identity,
		interval:    cfg.Interval,
		limit:       cfg.BatchLimit,
		completions: vmetrics.GetOrCreateCounter(`ciphertrace_analysis_completions_total`),
	}, nil
}

// Run scans on a ticker until the context is cancelled.
func (o *Oracle) Run(ctx context.Context) {
	o.log.Info("oracle worker started", "identity", o.identity.Hex(), "interval", o.interval)
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info("oracle worker stopped")
			return
		case <-ticker.C:
			if _, err := o.RunOnce(ctx); err != nil {
				o.log.Error("oracle scan failed", "err", err)
			}
		}
	}
}

// RunOnce completes up to the batch limit of pending requests and returns
// how many were completed. A request whose payloads cannot be revealed is
// logged and left pending for a later scan.
func (o *Oracle) RunOnce(ctx context.Context) (int, error) {
	pending, err := o.ledger.PendingAnalyses(o.identity, o.limit)
	if err != nil {
		return 0, fmt.Errorf("listing pending analyses: %w", err)
	}

	completed := 0
	for _, id := range pending {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		if err := o.complete(id); err != nil {
			// Completion races with another worker are benign.
			if errors.Is(err, ledger.ErrAlreadyCompleted) {
				continue
			}
			o.log.Error("completing analysis", "analysisId", id.Hex(), "err", err)
			continue
		}
		completed++
		o.completions.Inc()
	}
	return completed, nil
}

func (o *Oracle) complete(id common.Hash) error {
	req, err := o.ledger.GetResult(id, o.identity)
	if err != nil {
		return fmt.Errorf("loading request: %w", err)
	}

	items := make([]ledger.TransactionData, 0, len(req.InputHandles))
	for _, hid := range req.InputHandles {
		h, err := o.ledger.Handle(hid, o.identity)
		if err != nil {
			return fmt.Errorf("loading input %s: %w", hid.Hex(), err)
		}
		tx, err := o.sealer.RevealTransaction(h.Payload.Ciphertext)
		if err != nil {
			return fmt.Errorf("revealing input %s: %w", hid.Hex(), err)
		}
		items = append(items, tx)
	}

	scoring := o.ledger.Scoring()
	var score float64
	switch req.Kind {
	case ledger.PatternAnalysis:
		score = scoring.PatternScore(items)
	default:
		score = scoring.RiskScore(items, time.Now())
	}

	resultHandle, err := o.sealer.SealScore(score)
	if err != nil {
		return fmt.Errorf("sealing result: %w", err)
	}
	if err := o.ledger.CompleteAnalysis(id, resultHandle, o.identity); err != nil {
		return err
	}

	o.log.Info("analysis completed",
		"analysisId", id.Hex(), "kind", req.Kind, "inputs", len(items))
	return nil
}
