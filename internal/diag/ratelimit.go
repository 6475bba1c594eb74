package diag

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vklog/vklogd/pkg/log"
)

// Channel names one of the three independent rate-limited log
// channels named in spec §4.8.
type Channel int

const (
	ChanProduce Channel = iota
	ChanBus
	ChanDelivery
	channelCount
)

var channelNames = [channelCount]string{
	ChanProduce:  "produce errors",
	ChanBus:      "bus errors",
	ChanDelivery: "delivery errors",
}

type counter struct {
	total      atomic.Uint64
	suppressed atomic.Uint64
}

// RateLimiter throttles how many times each channel logs within a
// rollover period; the first N events per period pass through, the
// remainder are silently counted and summarized when the period
// rolls over (mirroring the reference rate_limit/rate_limiters_rollover
// pair, which gates on a plain per-period counter rather than a token
// bucket).
type RateLimiter struct {
	mu        sync.Mutex
	perPeriod uint64
	counters  [channelCount]*counter
}

// NewRateLimiter returns a limiter that allows perPeriod events per
// channel per rollover period.
func NewRateLimiter(perPeriod uint64) *RateLimiter {
	rl := &RateLimiter{perPeriod: perPeriod}
	for i := range rl.counters {
		rl.counters[i] = &counter{}
	}
	return rl
}

// Allow reports whether the caller should log this event on ch. It
// always increments the channel's total; once the period's budget is
// exhausted it increments suppressed instead and returns false.
func (rl *RateLimiter) Allow(ch Channel) bool {
	c := rl.counters[ch]
	if c.total.Add(1) > rl.perPeriod {
		c.suppressed.Add(1)
		return false
	}
	return true
}

// Rollover logs a summary of any suppressed events per channel and
// resets every channel's counters, to be called once per wall-clock
// period (spec §4.8).
func (rl *RateLimiter) Rollover() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ch, c := range rl.counters {
		suppressed := c.suppressed.Swap(0)
		total := c.total.Swap(0)
		if suppressed > 0 {
			log.Warnf("suppressed %d (out of %d) %s", suppressed, total, channelNames[ch])
		}
	}
}

// RunRollover ticks Rollover every period until stop is closed.
func (rl *RateLimiter) RunRollover(period time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			rl.Rollover()
		case <-stop:
			return
		}
	}
}
