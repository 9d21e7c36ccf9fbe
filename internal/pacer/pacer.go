// Package pacer implements a token-bucket byte-rate limiter for the
// data-loading Work Queue (spec.md §6: "isRateLimiterEnabled governs
// the data-loading queue's admission rate").
package pacer

import (
	"context"
	"sync"
	"time"

	"github.com/kean-go/imagepipeline/internal/common"
)

const refillInterval = 100 * time.Millisecond

// Pacer gates how many bytes may be requested per unit time. A nil
// *Pacer is valid and never paces (used when isRateLimiterEnabled is
// false), so call sites can treat pacing as always-on without a
// separate enabled check.
type Pacer struct {
	mu          sync.Mutex
	tokens      int64
	bytesPerSec int64
	burst       int64
	lastRefill  time.Time

	observedRate common.CountPerSecond

	stop chan struct{}
}

// New creates a Pacer allowing bytesPerSec sustained throughput, with
// burst additional bytes available immediately; a burst of zero or
// less falls back to bytesPerSec. It starts a single
// owner goroutine that refills tokens on a ticker, grounded on the
// teacher's pacer's single-owner-goroutine shape (read during survey,
// not reused directly: the teacher's version paces HTTP request
// bodies via an azcore policy, which this module has no equivalent
// of).
func New(bytesPerSec, burst int64) *Pacer {
	if burst <= 0 {
		burst = bytesPerSec
	}
	p := &Pacer{
		tokens:       burst,
		bytesPerSec:  bytesPerSec,
		burst:        burst,
		lastRefill:   time.Now(),
		observedRate: common.NewCountPerSecond(),
		stop:         make(chan struct{}),
	}
	go p.refillLoop()
	return p
}

// ObservedBytesPerSecond reports the actual throughput RequestBytes has
// granted so far, as opposed to bytesPerSec which is only the
// configured ceiling. Safe to call on a nil Pacer.
func (p *Pacer) ObservedBytesPerSecond() float64 {
	if p == nil {
		return 0
	}
	return p.observedRate.LatestRate()
}

// RequestBytes blocks until n bytes' worth of tokens are available (or
// ctx is cancelled), then debits them. Called by the data-load stage
// once for each chunk it receives, before the chunk is buffered.
func (p *Pacer) RequestBytes(ctx context.Context, n int64) error {
	if p == nil {
		return nil
	}
	for {
		p.mu.Lock()
		if p.tokens >= n {
			p.tokens -= n
			p.mu.Unlock()
			p.observedRate.Add(uint64(n))
			return nil
		}
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(refillInterval):
		}
	}
}

func (p *Pacer) refillLoop() {
	ticker := time.NewTicker(refillInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case now := <-ticker.C:
			p.mu.Lock()
			elapsed := now.Sub(p.lastRefill).Seconds()
			p.lastRefill = now
			p.tokens += int64(elapsed * float64(p.bytesPerSec))
			if p.tokens > p.burst {
				p.tokens = p.burst
			}
			p.mu.Unlock()
		}
	}
}

// Close stops the refill goroutine. Safe to call on a nil Pacer.
func (p *Pacer) Close() {
	if p == nil {
		return
	}
	close(p.stop)
}
