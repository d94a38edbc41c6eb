package location

import (
	"context"
	"errors"
	"time"
)

// Position is a single device fix.
type Position struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AccuracyM  float64   `json:"accuracy"`
	CapturedAt time.Time `json:"captured_at"`
}

// Acquisition failures form a closed set; callers branch on these to drive
// their own retry policy. The acquirer itself never retries.
var (
	ErrUnsupported         = errors.New("location: no position source available")
	ErrPermissionDenied    = errors.New("location: permission denied")
	ErrPositionUnavailable = errors.New("location: position unavailable")
	ErrTimeout             = errors.New("location: acquisition timed out")
	ErrUnknown             = errors.New("location: unknown acquisition failure")
)

// Source produces the current device position. Implementations must honor
// ctx cancellation and return one of the closed error set above (or a raw
// error, which the acquirer maps to ErrUnknown).
type Source interface {
	Current(ctx context.Context, highAccuracy bool) (Position, error)
}

// Options controls a single acquisition attempt.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxAge       time.Duration // oldest acceptable cached fix; 0 means any age
}

// Acquirer obtains exactly one position from a source, bounded by a
// mandatory timeout. It holds no state between calls.
type Acquirer struct {
	source Source
	opts   Options
}

// NewAcquirer builds an acquirer. A nil source yields ErrUnsupported on use.
func NewAcquirer(source Source, opts Options) *Acquirer {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Acquirer{source: source, opts: opts}
}

// Acquire performs a single attempt. The context deadline doubles as the
// release guarantee: when the caller abandons the flow, the underlying
// source call is cancelled with it.
func (a *Acquirer) Acquire(ctx context.Context) (Position, error) {
	if a == nil || a.source == nil {
		return Position{}, ErrUnsupported
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	pos, err := a.source.Current(ctx, a.opts.HighAccuracy)
	if err != nil {
		return Position{}, mapErr(ctx, err)
	}
	if a.opts.MaxAge > 0 && !pos.CapturedAt.IsZero() && time.Since(pos.CapturedAt) > a.opts.MaxAge {
		return Position{}, ErrPositionUnavailable
	}
	if pos.AccuracyM < 0 {
		return Position{}, ErrPositionUnavailable
	}
	return pos, nil
}

func mapErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrUnsupported),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrPositionUnavailable),
		errors.Is(err, ErrTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return err
	default:
		return ErrUnknown
	}
}
