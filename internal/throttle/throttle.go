// Package throttle implements a byte-stream wrapper that caps throughput
// to a configurable bytes/s rate and reports an instantaneous
// sliding-window speed.
//
// A 1000ms "accumulator reset every second" sliding window maps directly
// onto a token bucket: golang.org/x/time/rate.Limiter's burst is the window
// capacity and its refill rate is max_bps, so a window reset is just the
// bucket draining and refilling. rate.Limiter additionally gives
// cancellable waits (WaitN(ctx, n)) and live rate changes (SetLimit) for
// free, both of which a hand-rolled accumulator would need to reimplement.
package throttle

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SpeedObserver receives instantaneous bytes/s samples.
type SpeedObserver func(bytesPerSecond float64)

// Reader wraps src and limits throughput to maxBPS bytes/s. maxBPS == 0
// means unlimited.
type Reader struct {
	src    io.Reader
	onRate SpeedObserver

	mu       sync.Mutex
	limiter  *rate.Limiter
	maxBPS   int64
	windowAt time.Time
	windowN  int64
}

// New wraps src with a limiter allowing maxBPS bytes/s (0 = unlimited). The
// burst equals maxBPS, giving a full one-second window of credit.
func New(src io.Reader, maxBPS int64, onRate SpeedObserver) *Reader {
	r := &Reader{
		src:      src,
		onRate:   onRate,
		maxBPS:   maxBPS,
		windowAt: time.Now(),
	}
	if maxBPS > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(maxBPS), int(clampBurst(maxBPS)))
	}
	return r
}

func clampBurst(maxBPS int64) int64 {
	if maxBPS > int64(^uint32(0)>>1) {
		return int64(^uint32(0) >> 1)
	}
	return maxBPS
}

// SetMaxBPS changes the rate live; 0 disables throttling. The sliding
// window resets on change.
func (r *Reader) SetMaxBPS(maxBPS int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxBPS = maxBPS
	r.windowAt = time.Now()
	r.windowN = 0
	if maxBPS <= 0 {
		r.limiter = nil
		return
	}
	if r.limiter == nil {
		r.limiter = rate.NewLimiter(rate.Limit(maxBPS), int(clampBurst(maxBPS)))
		return
	}
	r.limiter.SetLimit(rate.Limit(maxBPS))
	r.limiter.SetBurst(int(clampBurst(maxBPS)))
}

// Read reads from the wrapped source, blocking as needed to respect the
// configured rate cap, then reports the rolling window's instantaneous
// speed to onRate. A cancelled ctx (see ReadContext) returns early with
// (0, ctx.Err()) instead of waiting out an unbounded sleep.
func (r *Reader) Read(p []byte) (int, error) {
	return r.ReadContext(context.Background(), p)
}

// ReadContext is Read with an explicit cancellation source for the
// rate-limit wait, so a caller can abort a throttled sleep instead of
// blocking until the limiter releases it.
func (r *Reader) ReadContext(ctx context.Context, p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n <= 0 {
		return n, err
	}

	r.mu.Lock()
	limiter := r.limiter
	if time.Since(r.windowAt) > time.Second {
		r.windowAt = time.Now()
		r.windowN = 0
	}
	r.windowN += int64(n)
	windowN := r.windowN
	windowAt := r.windowAt
	r.mu.Unlock()

	if limiter != nil {
		// WaitN rejects a request larger than the burst, so a read bigger
		// than one window's credit waits in burst-sized steps.
		for remaining := n; remaining > 0; {
			step := min(remaining, limiter.Burst())
			if werr := limiter.WaitN(ctx, step); werr != nil {
				return n, werr
			}
			remaining -= step
		}
	}

	elapsed := time.Since(windowAt)
	if elapsed <= 0 {
		elapsed = time.Nanosecond
	}
	if r.onRate != nil {
		r.onRate(float64(windowN) / elapsed.Seconds())
	}

	return n, err
}

