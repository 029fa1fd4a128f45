package drive

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Backoff configuration for risk-control retries.
const (
	MaxRiskRetries = 4
	InitialBackoff = 2 * time.Second
	MaxBackoff     = 60 * time.Second
	backoffJitter  = 650 * time.Millisecond
)

type endpoint string

const (
	endpointDirGetID     endpoint = "dir_getid"
	endpointListFiles    endpoint = "fs_files"
	endpointMakeDir      endpoint = "fs_mkdir"
	endpointShareList    endpoint = "share_list"
	endpointShareReceive endpoint = "share_receive"
	endpointAccountInfo  endpoint = "account_info"
)

// Per-endpoint pacing. Intervals are tuned to what the remote tolerates
// before risk control engages; jitter keeps bursts from forming a
// detectable fixed cadence.
var endpointLimits = map[endpoint]limit{
	endpointDirGetID:     {interval: 500 * time.Millisecond, jitter: 250 * time.Millisecond},
	endpointListFiles:    {interval: time.Second, jitter: 350 * time.Millisecond},
	endpointMakeDir:      {interval: 1250 * time.Millisecond, jitter: 350 * time.Millisecond},
	endpointShareList:    {interval: 833 * time.Millisecond, jitter: 300 * time.Millisecond},
	endpointShareReceive: {interval: 1428 * time.Millisecond, jitter: 450 * time.Millisecond},
	endpointAccountInfo:  {interval: 2 * time.Second, jitter: 200 * time.Millisecond},
}

type limit struct {
	interval time.Duration
	jitter   time.Duration
}

type limiter struct {
	mu    sync.Mutex
	limit limit
	next  time.Time
}

func (l *limiter) wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	delay := l.next.Sub(now)
	if delay < 0 {
		delay = 0
	}
	pause := l.limit.interval
	if l.limit.jitter > 0 {
		pause += time.Duration(rand.Int63n(int64(l.limit.jitter)))
	}
	l.next = now.Add(delay + pause)
	l.mu.Unlock()

	return SleepWithContext(ctx, delay)
}

// limiterSet paces each logical endpoint independently and counts calls for
// post-run diagnostics.
type limiterSet struct {
	mu       sync.Mutex
	limiters map[endpoint]*limiter
	counts   map[endpoint]int64
}

func newLimiterSet() *limiterSet {
	set := &limiterSet{
		limiters: make(map[endpoint]*limiter, len(endpointLimits)),
		counts:   make(map[endpoint]int64, len(endpointLimits)),
	}
	for ep, lim := range endpointLimits {
		set.limiters[ep] = &limiter{limit: lim}
	}
	return set
}

func (s *limiterSet) wait(ctx context.Context, ep endpoint) error {
	s.mu.Lock()
	lim, ok := s.limiters[ep]
	if !ok {
		lim = &limiter{limit: limit{interval: time.Second}}
		s.limiters[ep] = lim
	}
	s.counts[ep]++
	s.mu.Unlock()

	return lim.wait(ctx)
}

// Stats returns per-endpoint call counts since the last reset.
func (s *limiterSet) Stats() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.counts))
	for ep, n := range s.counts {
		out[string(ep)] = n
	}
	return out
}

// Reset clears the call counters, typically at the start of a sync run.
func (s *limiterSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[endpoint]int64, len(endpointLimits))
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
