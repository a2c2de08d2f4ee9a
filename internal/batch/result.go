package batch

import (
	"context"
	"sync"

	"selfrise/internal/engine"
	"selfrise/internal/level"
)

// Result is returned to each caller of Coalescer.Grant.
type Result struct {
	// BatchID is empty for grants that went straight to the ledger.
	BatchID string
	Batched bool
	// Optimistic is the level progress assuming the batch commits in full.
	Optimistic level.Progress
	// PendingXP is the batch total when this grant joined.
	PendingXP int64

	once    sync.Once
	done    chan struct{}
	outcome *engine.TransactionResult
	err     error
}

func newResult(batchID string, batched bool) *Result {
	return &Result{BatchID: batchID, Batched: batched, done: make(chan struct{})}
}

func (r *Result) resolve(out *engine.TransactionResult, err error) {
	r.once.Do(func() {
		r.outcome, r.err = out, err
		close(r.done)
	})
}

// Done is closed once the ledger call for this grant has finished.
func (r *Result) Done() <-chan struct{} { return r.done }

// Outcome returns the ledger result, or nil and no error while the batch is
// still open. For batched grants the result covers the whole batch.
func (r *Result) Outcome() (*engine.TransactionResult, error) {
	select {
	case <-r.done:
		return r.outcome, r.err
	default:
		return nil, nil
	}
}

// Wait blocks until the grant commits or ctx ends.
func (r *Result) Wait(ctx context.Context) (*engine.TransactionResult, error) {
	select {
	case <-r.done:
		return r.outcome, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
