package engine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount     = errors.New("xp amount must be positive")
	ErrUnknownSource     = errors.New("unknown xp source")
	ErrStorage           = errors.New("xp total could not be updated")
	ErrInvalidMultiplier = errors.New("invalid xp multiplier")
)

type LimitKind string

const (
	LimitSourceDaily LimitKind = "source-daily-cap"
	LimitGlobalDaily LimitKind = "global-daily-cap"
	LimitTooSoon     LimitKind = "min-interval"
)

// LimitError indicates a grant was refused by an anti-abuse rule.
type LimitError struct {
	Kind   LimitKind
	Source Source
	Limit  int64
	Used   int64
	// RetryAfter is set for min-interval rejections.
	RetryAfter string
}

func (e LimitError) Error() string {
	switch e.Kind {
	case LimitSourceDaily:
		return fmt.Sprintf("daily limit for %s reached (%d/%d XP)", e.Source, e.Used, e.Limit)
	case LimitGlobalDaily:
		return fmt.Sprintf("daily XP limit reached (%d/%d XP)", e.Used, e.Limit)
	case LimitTooSoon:
		if e.RetryAfter != "" {
			return fmt.Sprintf("%s granted too recently; try again in %s", e.Source, e.RetryAfter)
		}
		return fmt.Sprintf("%s granted too recently", e.Source)
	default:
		return fmt.Sprintf("xp limit %s", e.Kind)
	}
}
