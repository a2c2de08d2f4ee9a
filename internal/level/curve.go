package level

import (
	"math"
	"sync"
	"time"
)

const (
	// LevelOneXP and LevelTwoXP are the fixed costs of the first two levels.
	LevelOneXP = 100
	LevelTwoXP = 150

	// BeginnerBaseXP is the cost of level 3; the beginner phase grows from here.
	BeginnerBaseXP = 200.0

	// MaxLevel bounds the curve so cumulative totals stay inside int64.
	MaxLevel = 500

	// SearchCeiling is the first upper bound tried by LevelForTotalXP.
	SearchCeiling = 200

	DefaultCacheTTL  = 5 * time.Minute
	DefaultCacheSize = 200
)

// Phase is one of the consecutive level ranges with its own growth formula.
type Phase struct {
	Name       string
	Start      int
	End        int // inclusive; 0 means open-ended
	Multiplier float64
	LinearCoef float64
}

// Phases lists the level ranges from level 3 upward.
var Phases = []Phase{
	{Name: "Beginner", Start: 3, End: 10, Multiplier: 1.2},
	{Name: "Intermediate", Start: 11, End: 25, Multiplier: 1.15, LinearCoef: 0.10},
	{Name: "Advanced", Start: 26, End: 50, Multiplier: 1.10, LinearCoef: 0.15},
	{Name: "Master", Start: 51, End: 0, Multiplier: 1.05, LinearCoef: 0.05},
}

// PhaseFor returns the phase a level belongs to. Levels below 3 report the
// beginner phase.
func PhaseFor(level int) Phase {
	for _, p := range Phases {
		if p.End == 0 || level <= p.End {
			return p
		}
	}
	return Phases[len(Phases)-1]
}

// Curve computes cumulative XP thresholds and caches them.
// The zero value is not usable; call NewCurve.
type Curve struct {
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	seedsOnce sync.Once
	seeds     []float64 // per phase, the delta of the level before the phase starts

	mu        sync.Mutex
	cache     map[int]int64
	cacheFrom time.Time
}

// CurveOption configures a Curve.
type CurveOption func(*Curve)

// WithCacheTTL sets how long memoised thresholds live before the cache is dropped.
func WithCacheTTL(d time.Duration) CurveOption {
	return func(c *Curve) { c.ttl = d }
}

// WithCacheSize sets the maximum number of memoised levels.
func WithCacheSize(n int) CurveOption {
	return func(c *Curve) { c.maxSize = n }
}

// WithNow overrides the clock used for cache expiry.
func WithNow(now func() time.Time) CurveOption {
	return func(c *Curve) { c.now = now }
}

func NewCurve(opts ...CurveOption) *Curve {
	c := &Curve{
		ttl:     DefaultCacheTTL,
		maxSize: DefaultCacheSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxSize <= 0 {
		c.maxSize = DefaultCacheSize
	}
	c.cache = make(map[int]int64, c.maxSize)
	c.cacheFrom = c.now()
	return c
}

func (c *Curve) initSeeds() {
	c.seedsOnce.Do(func() {
		c.seeds = make([]float64, len(Phases))
		c.seeds[0] = BeginnerBaseXP
		for i := 1; i < len(Phases); i++ {
			prev := Phases[i-1]
			c.seeds[i] = c.phaseDelta(i-1, prev.End)
		}
	})
}

// phaseDelta is the XP needed to go from level-1 to level, inside phase idx.
// Seeds for phases before idx must already be set.
func (c *Curve) phaseDelta(idx int, level int) float64 {
	p := Phases[idx]
	offset := float64(level - p.Start)
	if idx == 0 {
		return c.seeds[0] * math.Pow(p.Multiplier, offset)
	}
	return c.seeds[idx] * math.Pow(p.Multiplier, offset) * (1 + p.LinearCoef*offset)
}

// LevelDelta returns the XP needed to go from level-1 to level.
func (c *Curve) LevelDelta(level int) float64 {
	switch {
	case level <= 0:
		return 0
	case level == 1:
		return LevelOneXP
	case level == 2:
		return LevelTwoXP
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	c.initSeeds()
	for i, p := range Phases {
		if p.End == 0 || level <= p.End {
			return c.phaseDelta(i, level)
		}
	}
	return 0
}

// XPRequiredForLevel returns the cumulative XP needed to be at level.
func (c *Curve) XPRequiredForLevel(level int) int64 {
	if level <= 0 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	if level == 1 {
		return LevelOneXP
	}
	if level == 2 {
		return LevelOneXP + LevelTwoXP
	}

	if v, ok := c.cached(level); ok {
		return v
	}

	sum := float64(LevelOneXP + LevelTwoXP)
	for l := 3; l <= level; l++ {
		sum += c.LevelDelta(l)
	}
	// Nudge before flooring so 239.99999999999997 counts as 240.
	v := int64(math.Floor(sum + 1e-9))
	c.store(level, v)
	return v
}

func (c *Curve) cached(level int) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	v, ok := c.cache[level]
	return v, ok
}

func (c *Curve) store(level int, v int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	if len(c.cache) >= c.maxSize {
		c.resetLocked()
	}
	c.cache[level] = v
}

func (c *Curve) expireLocked() {
	if c.ttl > 0 && c.now().Sub(c.cacheFrom) > c.ttl {
		c.resetLocked()
	}
}

func (c *Curve) resetLocked() {
	c.cache = make(map[int]int64, c.maxSize)
	c.cacheFrom = c.now()
}

// CacheLen reports how many thresholds are memoised.
func (c *Curve) CacheLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// LevelForTotalXP returns the highest level L such that totalXP >= XPRequiredForLevel(L).
func (c *Curve) LevelForTotalXP(totalXP int64) int {
	if totalXP <= 0 {
		return 0
	}
	if totalXP < c.XPRequiredForLevel(1) {
		return 0
	}
	if totalXP < c.XPRequiredForLevel(2) {
		return 1
	}

	low := 2
	high := SearchCeiling
	if c.XPRequiredForLevel(high) <= totalXP {
		low = high
		high = MaxLevel
		if c.XPRequiredForLevel(high) <= totalXP {
			return MaxLevel
		}
	}

	// Invariant: XPRequiredForLevel(low) <= totalXP < XPRequiredForLevel(high).
	for low+1 < high {
		mid := low + (high-low)/2
		if c.XPRequiredForLevel(mid) <= totalXP {
			low = mid
		} else {
			high = mid
		}
	}
	return low
}

// Progress describes where a total sits between two level thresholds.
type Progress struct {
	Level                     int     `json:"level"`
	XPToNextLevel             int64   `json:"xpToNextLevel"`
	ProgressPercent           float64 `json:"xpProgressPercent"`
	XPInCurrentLevel          int64   `json:"xpInCurrentLevel"`
	XPRequiredForCurrentLevel int64   `json:"xpRequiredForCurrentLevel"`
	XPRequiredForNextLevel    int64   `json:"xpRequiredForNextLevel"`
}

func (c *Curve) Progress(totalXP int64) Progress {
	if totalXP < 0 {
		totalXP = 0
	}
	lvl := c.LevelForTotalXP(totalXP)
	cur := c.XPRequiredForLevel(lvl)
	next := c.XPRequiredForLevel(lvl + 1)

	p := Progress{
		Level:                     lvl,
		XPRequiredForCurrentLevel: cur,
		XPRequiredForNextLevel:    next,
		XPInCurrentLevel:          totalXP - cur,
		XPToNextLevel:             next - totalXP,
	}
	if p.XPToNextLevel < 0 {
		p.XPToNextLevel = 0
	}

	span := next - cur
	if span <= 0 {
		p.ProgressPercent = 100
		return p
	}
	pct := float64(p.XPInCurrentLevel) / float64(span) * 100
	p.ProgressPercent = math.Max(0, math.Min(100, pct))
	return p
}
