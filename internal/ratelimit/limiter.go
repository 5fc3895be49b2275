package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Opts configures a Limiter. Zero values fall back to the remote API's
// published budget: 10 requests per second, 5000 per day.
type Opts struct {
	PerSecond int           // capacity of the burst window
	PerDay    int           // capacity of the daily window
	Window    time.Duration // burst window length
	Day       time.Duration // daily window length
}

// Limiter enforces the remote API's dual request budget. Acquire blocks the
// caller until both the burst and the daily window have headroom, then
// consumes one unit from each. Waiters are served strictly in arrival order;
// no lock is held across a sleep.
//
// Budgets are not persisted: a restart grants full capacity even if the
// server-side daily quota is already partly consumed.
type Limiter struct {
	perSecond int
	perDay    int
	window    time.Duration
	day       time.Duration

	mu       sync.Mutex
	tail     chan struct{}
	anchored bool
	secStart time.Time
	secUsed  int
	dayStart time.Time
	dayUsed  int

	now func() time.Time
	log *zap.Logger
}

// Stats is a point-in-time view of both budgets, for status reporting.
type Stats struct {
	SecondUsed  int       `json:"second_used"`
	SecondCap   int       `json:"second_cap"`
	DayUsed     int       `json:"day_used"`
	DayCap      int       `json:"day_cap"`
	DayResetsAt time.Time `json:"day_resets_at,omitzero"`
}

func New(o Opts, log *zap.Logger) *Limiter {
	if o.PerSecond <= 0 {
		o.PerSecond = 10
	}
	if o.PerDay <= 0 {
		o.PerDay = 5000
	}
	if o.Window <= 0 {
		o.Window = time.Second
	}
	if o.Day <= 0 {
		o.Day = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	released := make(chan struct{})
	close(released)
	return &Limiter{
		perSecond: o.PerSecond,
		perDay:    o.PerDay,
		window:    o.Window,
		day:       o.Day,
		tail:      released,
		now:       time.Now,
		log:       log,
	}
}

// Acquire blocks until one unit of both budgets is available, or until ctx
// is done. Daily exhaustion suspends the caller until the next daily
// boundary; it is never an error.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	prev := l.tail
	own := make(chan struct{})
	l.tail = own
	l.mu.Unlock()

	select {
	case <-prev:
	case <-ctx.Done():
		// Keep the hand-off chain intact for waiters queued behind us.
		go func() {
			<-prev
			close(own)
		}()
		return ctx.Err()
	}

	for {
		l.mu.Lock()
		now := l.now()
		l.roll(now)
		if l.secUsed < l.perSecond && l.dayUsed < l.perDay {
			l.secUsed++
			l.dayUsed++
			l.mu.Unlock()
			close(own)
			return nil
		}
		var wake time.Time
		if l.dayUsed >= l.perDay {
			wake = l.dayStart.Add(l.day)
			l.log.Warn("daily request budget exhausted, suspending",
				zap.Time("resumes", wake),
				zap.Int("day_cap", l.perDay))
		} else {
			wake = l.secStart.Add(l.window)
		}
		l.mu.Unlock()

		timer := time.NewTimer(wake.Sub(now))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			close(own)
			return ctx.Err()
		}
	}
}

// roll advances both windows to cover now. The burst window aligns to
// wall-clock boundaries; the daily window stays anchored to first use.
func (l *Limiter) roll(now time.Time) {
	if !l.anchored {
		l.anchored = true
		l.secStart = now.Truncate(l.window)
		l.dayStart = now
		return
	}
	if !now.Before(l.secStart.Add(l.window)) {
		l.secStart = now.Truncate(l.window)
		l.secUsed = 0
	}
	for !now.Before(l.dayStart.Add(l.day)) {
		l.dayStart = l.dayStart.Add(l.day)
		l.dayUsed = 0
	}
}

// Stats reports current budget consumption. It never anchors the daily
// window; that happens on first Acquire.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.anchored {
		l.roll(l.now())
	}
	s := Stats{
		SecondUsed: l.secUsed,
		SecondCap:  l.perSecond,
		DayUsed:    l.dayUsed,
		DayCap:     l.perDay,
	}
	if l.anchored {
		s.DayResetsAt = l.dayStart.Add(l.day)
	}
	return s
}
