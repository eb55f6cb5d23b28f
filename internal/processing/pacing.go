package processing

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer spaces out consecutive upstream requests of one caller. It is a
// cooperative delay, not a lock: concurrent callers each pace themselves.
type Pacer struct {
	delay  time.Duration
	jitter time.Duration
}

// NewPacer waits delay after every request, plus up to jitter extra
func NewPacer(delay, jitter time.Duration) *Pacer {
	return &Pacer{delay: delay, jitter: jitter}
}

// Wait blocks for the pacing delay or until ctx is done.
// A cancelled wait is noticed by the caller's next ctx check.
func (p *Pacer) Wait(ctx context.Context) {
	if p == nil {
		return
	}
	d := p.delay
	if p.jitter > 0 {
		d += rand.N(p.jitter)
	}
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
