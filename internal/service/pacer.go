package service

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out sends. A single Pacer may be shared by the dispatcher
// and the follow-up scheduler so the combined rate stays bounded.
type Pacer interface {
	Wait(ctx context.Context) error
}

// RatePacer is a token bucket with burst 1: the first Wait returns
// immediately, each later one waits until interval has passed.
type RatePacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a pacer; a non-positive interval disables pacing.
func NewPacer(interval time.Duration) *RatePacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RatePacer{limiter: rate.NewLimiter(limit, 1)}
}

func (p *RatePacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Chain waits on each pacer in order. A run uses it to honour its own
// delay and a shared rate limit together.
type Chain []Pacer

func (c Chain) Wait(ctx context.Context) error {
	for _, p := range c {
		if err := p.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
