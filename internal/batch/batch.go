// Package batch coalesces bursts of small XP grants into one ledger
// transaction. Callers get an optimistic level immediately; the authoritative
// result arrives when the batch commits.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"selfrise/internal/engine"
	"selfrise/internal/level"
)

var ErrClosed = errors.New("batch: coalescer closed")

// Ledger is the part of the XP ledger the coalescer drives.
type Ledger interface {
	Grant(ctx context.Context, req engine.GrantRequest) (*engine.TransactionResult, error)
	TotalXP(ctx context.Context) (int64, error)
}

type Config struct {
	// Window is how long an open batch waits for more grants. Each grant
	// restarts it.
	Window time.Duration `yaml:"window"`
	// MaxDelay bounds how long a batch may stay open in total.
	MaxDelay time.Duration `yaml:"max_delay"`
	// MaxSources flushes a batch once it holds more distinct sources.
	MaxSources int `yaml:"max_sources"`
	// LargeAmount sends grants of at least this much straight to the ledger
	// and flushes a batch whose total reaches it.
	LargeAmount   int64           `yaml:"large_amount"`
	BypassSources []engine.Source `yaml:"bypass_sources"`
}

func DefaultConfig() Config {
	return Config{
		Window:        500 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		MaxSources:    3,
		LargeAmount:   100,
		BypassSources: []engine.Source{engine.SourceAchievementUnlock},
	}
}

// Request is a grant that may be coalesced.
type Request struct {
	engine.GrantRequest
	SkipBatching bool
}

// Commit describes one ledger call made for a batch.
type Commit struct {
	BatchID  string
	Source   engine.Source
	Amount   int64
	BySource map[engine.Source]int64
	Entries  int
	Reason   string // why the batch was flushed
	Result   *engine.TransactionResult
	Err      error
}

type Option func(*Coalescer)

func WithLogger(l *slog.Logger) Option { return func(c *Coalescer) { c.logger = l } }

func WithCurve(curve *level.Curve) Option { return func(c *Coalescer) { c.curve = curve } }

// WithOnCommit registers a callback run after every batch commit.
func WithOnCommit(fn func(Commit)) Option { return func(c *Coalescer) { c.onCommit = fn } }

type Coalescer struct {
	ledger   Ledger
	cfg      Config
	logger   *slog.Logger
	curve    *level.Curve
	onCommit func(Commit)
	now      func() time.Time

	mu     sync.Mutex
	open   *pending
	closed bool
	wg     sync.WaitGroup
}

func New(ledger Ledger, cfg Config, opts ...Option) *Coalescer {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxDelay < cfg.Window {
		cfg.MaxDelay = cfg.Window
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = def.MaxSources
	}
	c := &Coalescer{
		ledger: ledger,
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		curve:  level.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coalescer) Config() Config { return c.cfg }

type pending struct {
	id        string
	openedAt  time.Time
	baseTotal int64
	total     int64
	bySource  map[engine.Source]int64
	order     []engine.Source
	entries   []engine.GrantRequest
	results   []*Result
	timer     *time.Timer
}

func (c *Coalescer) bypass(req Request) bool {
	if req.SkipBatching || req.Amount <= 0 || !req.Source.IsValid() {
		return true
	}
	if c.cfg.LargeAmount > 0 && req.Amount >= c.cfg.LargeAmount {
		return true
	}
	for _, s := range c.cfg.BypassSources {
		if s == req.Source {
			return true
		}
	}
	return false
}

// Grant queues req in the open batch, or sends it straight to the ledger
// when it bypasses batching. A bypassing grant first flushes the open batch
// so grants commit in order.
func (c *Coalescer) Grant(ctx context.Context, req Request) (*Result, error) {
	if c.bypass(req) {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		b := c.detachLocked()
		c.mu.Unlock()
		if b != nil {
			c.commit(ctx, b, "bypass")
		}
		return c.direct(ctx, req.GrantRequest)
	}

	// The base total is read without holding c.mu.
	var (
		base     int64
		haveBase bool
	)
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		if c.open != nil || haveBase {
			break
		}
		c.mu.Unlock()
		total, err := c.ledger.TotalXP(ctx)
		if err != nil {
			return nil, fmt.Errorf("read total xp: %w", err)
		}
		base, haveBase = total, true
	}
	if c.open == nil {
		c.open = &pending{
			id:        uuid.NewString(),
			openedAt:  c.now(),
			baseTotal: base,
			bySource:  map[engine.Source]int64{},
		}
	}
	b := c.open
	if _, seen := b.bySource[req.Source]; !seen {
		b.order = append(b.order, req.Source)
	}
	b.bySource[req.Source] += req.Amount
	b.total += req.Amount
	b.entries = append(b.entries, req.GrantRequest)

	res := newResult(b.id, true)
	res.Optimistic = c.curve.Progress(b.baseTotal + b.total)
	res.PendingXP = b.total
	b.results = append(b.results, res)

	var reason string
	switch {
	case len(b.order) > c.cfg.MaxSources:
		reason = "source-cap"
	case c.cfg.LargeAmount > 0 && b.total >= c.cfg.LargeAmount:
		reason = "large-amount"
	}
	if reason == "" {
		wait := c.cfg.Window
		if left := c.cfg.MaxDelay - c.now().Sub(b.openedAt); left < wait {
			wait = left
		}
		if wait > 0 {
			c.armLocked(b, wait)
			c.mu.Unlock()
			return res, nil
		}
		reason = "max-delay"
	}
	c.detachLocked()
	c.mu.Unlock()
	c.commit(ctx, b, reason)
	return res, nil
}

func (c *Coalescer) armLocked(b *pending, wait time.Duration) {
	if b.timer == nil {
		b.timer = time.AfterFunc(wait, func() { c.expire(b) })
		return
	}
	b.timer.Reset(wait)
}

// expire commits b if it is still the open batch.
func (c *Coalescer) expire(b *pending) {
	c.mu.Lock()
	if c.open != b {
		c.mu.Unlock()
		return
	}
	c.detachLocked()
	c.mu.Unlock()
	c.commit(context.Background(), b, "window")
}

// detachLocked removes the open batch and registers its commit as in flight.
func (c *Coalescer) detachLocked() *pending {
	b := c.open
	if b == nil {
		return nil
	}
	c.open = nil
	if b.timer != nil {
		b.timer.Stop()
	}
	c.wg.Add(1)
	return b
}

func (c *Coalescer) direct(ctx context.Context, req engine.GrantRequest) (*Result, error) {
	out, err := c.ledger.Grant(ctx, req)
	res := newResult("", false)
	if out != nil {
		res.Optimistic = c.curve.Progress(out.TotalXP)
		res.PendingXP = out.XPGained
	}
	res.resolve(out, err)
	return res, err
}

// commit sends b to the ledger as one grant and resolves every caller's result.
func (c *Coalescer) commit(ctx context.Context, b *pending, reason string) {
	defer c.wg.Done()

	req := engine.GrantRequest{
		Amount:           b.total,
		Source:           dominant(b),
		Description:      describe(b),
		SkipLimits:       true,
		SkipNotification: true,
	}
	for _, e := range b.entries {
		req.SkipLimits = req.SkipLimits && e.SkipLimits
		req.SkipNotification = req.SkipNotification && e.SkipNotification
	}
	if len(b.entries) == 1 {
		req.SourceID = b.entries[0].SourceID
	}

	out, err := c.ledger.Grant(context.WithoutCancel(ctx), req)
	for _, r := range b.results {
		r.resolve(out, err)
	}

	if err != nil {
		c.logger.Warn("xp batch not committed",
			"event", "batch_failed",
			"batch_id", b.id,
			"amount", b.total,
			"entries", len(b.entries),
			"error", err,
		)
	} else {
		c.logger.Debug("xp batch committed",
			"event", "batch_committed",
			"batch_id", b.id,
			"source", req.Source,
			"amount", out.XPGained,
			"entries", len(b.entries),
			"reason", reason,
		)
	}

	if c.onCommit != nil {
		bySource := make(map[engine.Source]int64, len(b.bySource))
		for k, v := range b.bySource {
			bySource[k] = v
		}
		c.onCommit(Commit{
			BatchID:  b.id,
			Source:   req.Source,
			Amount:   b.total,
			BySource: bySource,
			Entries:  len(b.entries),
			Reason:   reason,
			Result:   out,
			Err:      err,
		})
	}
}

// Flush commits the open batch now. It returns nil when no batch is open.
func (c *Coalescer) Flush(ctx context.Context) (*engine.TransactionResult, error) {
	c.mu.Lock()
	b := c.detachLocked()
	c.mu.Unlock()
	if b == nil {
		return nil, nil
	}
	c.commit(ctx, b, "flush")
	return b.results[0].Outcome()
}

// Close flushes the open batch, waits for commits in flight and rejects
// further grants.
func (c *Coalescer) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	b := c.detachLocked()
	c.mu.Unlock()

	var err error
	if b != nil {
		c.commit(ctx, b, "close")
		_, err = b.results[0].Outcome()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports the XP waiting in the open batch.
func (c *Coalescer) Pending() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open == nil {
		return 0
	}
	return c.open.total
}

// dominant is the source with the largest share; ties go to the first seen.
func dominant(b *pending) engine.Source {
	var (
		best engine.Source
		top  int64 = -1
	)
	for _, s := range b.order {
		if b.bySource[s] > top {
			best, top = s, b.bySource[s]
		}
	}
	return best
}

func describe(b *pending) string {
	if len(b.entries) == 1 && b.entries[0].Description != "" {
		return b.entries[0].Description
	}
	order := append([]engine.Source(nil), b.order...)
	sort.SliceStable(order, func(i, j int) bool {
		return b.bySource[order[i]] > b.bySource[order[j]]
	})
	parts := make([]string, 0, len(order))
	for _, s := range order {
		parts = append(parts, fmt.Sprintf("%s +%d", s.Label(), b.bySource[s]))
	}
	noun := "grants"
	if len(b.entries) == 1 {
		noun = "grant"
	}
	return fmt.Sprintf("%d XP from %d %s: %s", b.total, len(b.entries), noun, strings.Join(parts, ", "))
}
