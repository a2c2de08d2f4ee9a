// Package engine is the XP ledger: it validates grants and revocations,
// applies limits and multipliers, moves the running total atomically and keeps
// the transaction log, per-source totals and level-up history in step.
package engine

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"selfrise/internal/atomicstore"
	"selfrise/internal/events"
	"selfrise/internal/level"
)

// Storage keys owned by the ledger.
const (
	KeyTotalXP        = "total-xp"
	KeyTransactions   = "xp-transactions"
	KeyBySource       = "xp-by-source"
	KeyDailyTracking  = "daily-xp-tracking"
	KeyLastActivity   = "last-activity-date"
	KeyMultiplier     = "active-xp-multiplier"
	KeyLevelUpHistory = "level-up-history"
)

const (
	DefaultTransactionCap = 1000
	DefaultLevelUpHistory = 100
	DefaultRetryAttempts  = 3
	DefaultRetryDelay     = 25 * time.Millisecond
	DefaultEventBuffer    = 256
	MaxMultiplierFactor   = 10.0
	dateLayout            = "2006-01-02"
)

// Clock supplies wall time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads time.Now.
var SystemClock Clock = systemClock{}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// RetryPolicy bounds the retries around the total XP increment. Each ledger
// attempt is one atomic store call, which makes its own attempts (see
// atomicstore.Options.MaxRetries), so a failing backend sees up to
// Attempts*MaxRetries writes. TransactionResult.Attempts counts those writes.
type RetryPolicy struct {
	Attempts int
	// Delay grows linearly: attempt n waits Delay*(n-1).
	Delay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: DefaultRetryAttempts, Delay: DefaultRetryDelay}
}

type Service struct {
	store     *atomicstore.Store
	curve     *level.Curve
	clock     Clock
	location  *time.Location
	sink      events.Sink
	closeSink func(context.Context) error
	logger    *slog.Logger
	limits    Limits
	retry     RetryPolicy
	newID     func() string

	transactionCap int
	levelUpCap     int
}

type Option func(*Service)

func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

// WithLocation sets the time zone whose midnight starts a new day.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.location = loc } }

func WithSink(sink events.Sink) Option { return func(s *Service) { s.sink = sink } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithLimits(l Limits) Option { return func(s *Service) { s.limits = l } }

func WithRetryPolicy(p RetryPolicy) Option { return func(s *Service) { s.retry = p } }

func WithCurve(c *level.Curve) Option { return func(s *Service) { s.curve = c } }

func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

// WithTransactionCap bounds the transaction log; older entries are evicted.
func WithTransactionCap(n int) Option { return func(s *Service) { s.transactionCap = n } }

func WithLevelUpHistoryCap(n int) Option { return func(s *Service) { s.levelUpCap = n } }

func NewService(store *atomicstore.Store, opts ...Option) *Service {
	s := &Service{
		store:          store,
		curve:          level.Default(),
		clock:          SystemClock,
		location:       time.Local,
		sink:           events.Nop,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		limits:         DefaultLimits(),
		retry:          DefaultRetryPolicy(),
		newID:          uuid.NewString,
		transactionCap: DefaultTransactionCap,
		levelUpCap:     DefaultLevelUpHistory,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retry.Attempts <= 0 {
		s.retry.Attempts = 1
	}
	if s.location == nil {
		s.location = time.Local
	}
	if s.sink == nil {
		s.sink = events.Nop
	}
	s.sink, s.closeSink = events.Detach(s.sink, DefaultEventBuffer, s.sinkPanicked)
	return s
}

// Close waits for queued events to reach the sink. The ledger itself needs
// no cleanup; the store and backend are closed by their owner.
func (s *Service) Close(ctx context.Context) error {
	return s.closeSink(ctx)
}

func (s *Service) Store() *atomicstore.Store { return s.store }
func (s *Service) Curve() *level.Curve       { return s.curve }
func (s *Service) Limits() Limits            { return s.limits }

func (s *Service) dateKey(t time.Time) string {
	return t.In(s.location).Format(dateLayout)
}

// Today returns the current day key in the ledger's time zone.
func (s *Service) Today() string { return s.dateKey(s.clock.Now()) }

// emit hands e to the sink without waiting on it. A panicking observer is
// logged and ignored.
func (s *Service) emit(e events.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.sinkPanicked(e, r)
		}
	}()
	s.sink.Emit(e)
}

func (s *Service) sinkPanicked(e events.Event, r any) {
	s.logger.Error("event sink panicked", "event", "sink_panic", "kind", e.Kind, "panic", r)
}
