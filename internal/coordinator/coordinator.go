package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jmehdipour/simbase-hub/internal/metrics"
	"github.com/jmehdipour/simbase-hub/internal/model"
	"github.com/jmehdipour/simbase-hub/internal/registry"
	"github.com/jmehdipour/simbase-hub/internal/util"
)

// State is the observable phase of the poll loop.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateReconciling
	StateAggregating
	StatePublished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateReconciling:
		return "reconciling"
	case StateAggregating:
		return "aggregating"
	case StatePublished:
		return "published"
	default:
		return "unknown"
	}
}

// Fetcher is the slice of the API client the poll loop needs.
type Fetcher interface {
	ListSims(ctx context.Context) ([]model.SimRecord, error)
	ListUsage(ctx context.Context) (map[string]model.UsageRecord, error)
	GetAccountBalance(ctx context.Context) (*float64, string, error)
}

type Opts struct {
	Interval time.Duration // poll interval, default 5m
}

// Coordinator drives the fetch-reconcile-aggregate-publish loop. Exactly one
// cycle runs at a time: scheduler ticks that land mid-cycle are skipped,
// manual refreshes coalesce into a single pending run served right after the
// current cycle finishes.
type Coordinator struct {
	interval time.Duration
	client   Fetcher
	reg      *registry.Registry
	log      *zap.Logger

	state    atomic.Int32
	cycles   atomic.Int64
	failures atomic.Int64

	tickCh    chan struct{}
	refreshCh chan struct{}

	cron     *cron.Cron
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Status is a point-in-time view of the loop, for status reporting.
type Status struct {
	State           string    `json:"state"`
	IntervalSeconds int       `json:"interval_seconds"`
	Cycles          int64     `json:"cycles"`
	Failures        int64     `json:"failures"`
	LastCycleID     string    `json:"last_cycle_id,omitempty"`
	LastSuccess     time.Time `json:"last_success,omitzero"`
}

func New(o Opts, client Fetcher, reg *registry.Registry, log *zap.Logger) *Coordinator {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		interval:  o.Interval,
		client:    client,
		reg:       reg,
		log:       log,
		tickCh:    make(chan struct{}),
		refreshCh: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start launches the scheduler and the run loop, then requests an immediate
// first cycle. It does not block; Stop tears everything down.
func (c *Coordinator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.cron.AddFunc(fmt.Sprintf("@every %s", c.interval), c.tick); err != nil {
		cancel()
		return fmt.Errorf("schedule poll interval: %w", err)
	}

	go c.run(runCtx)
	c.cron.Start()
	c.Refresh()

	c.log.Info("coordinator started", zap.Duration("interval", c.interval))
	return nil
}

// Stop halts the scheduler and waits for the run loop to exit. An in-flight
// cycle is cancelled and abandoned without a partial publish; observers keep
// the last complete result.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		if c.cron != nil {
			<-c.cron.Stop().Done()
		}
		if c.cancel != nil {
			c.cancel()
		}
		<-c.done
		c.log.Info("coordinator stopped")
	})
}

// Refresh requests an immediate cycle, ahead of the schedule. Requests made
// while a cycle runs coalesce into one pending run; the caller never waits.
func (c *Coordinator) Refresh() {
	select {
	case c.refreshCh <- struct{}{}:
	default:
	}
}

// State returns the loop's current phase.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Status reports loop counters and the latest published cycle.
func (c *Coordinator) Status() Status {
	s := Status{
		State:           c.State().String(),
		IntervalSeconds: int(c.interval.Seconds()),
		Cycles:          c.cycles.Load(),
		Failures:        c.failures.Load(),
	}
	if pr := c.reg.Latest(); pr != nil {
		s.LastCycleID = pr.CycleID
		s.LastSuccess = pr.Timestamp
	}
	return s
}

// tick forwards a scheduler firing to the run loop. When a cycle is in
// flight nobody is receiving, so the tick is skipped rather than queued.
func (c *Coordinator) tick() {
	select {
	case c.tickCh <- struct{}{}:
	default:
		metrics.PollCyclesTotal.WithLabelValues("skipped").Inc()
		c.log.Debug("poll tick skipped, cycle in flight")
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.tickCh:
			c.cycle(ctx)
		case <-c.refreshCh:
			c.cycle(ctx)
		}
	}
}

// RunOnce executes a single poll cycle synchronously, outside the scheduler.
// The result is published to the registry as usual and returned.
func (c *Coordinator) RunOnce(ctx context.Context) (*model.PollResult, error) {
	return c.cycle(ctx)
}

// cycle executes one complete poll pass. A listing failure keeps the
// previous result in place; only a fully built result is ever published.
func (c *Coordinator) cycle(ctx context.Context) (*model.PollResult, error) {
	start := time.Now()
	c.setState(StateFetching)
	defer c.setState(StateIdle)

	sims, err := c.client.ListSims(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.failures.Add(1)
		metrics.PollCyclesTotal.WithLabelValues("failed").Inc()
		c.log.Error("sim fetch failed, keeping previous snapshot", zap.Error(err))
		return nil, err
	}

	c.enrichUsage(ctx, sims)
	balance, currency := c.fetchBalance(ctx)

	c.setState(StateReconciling)
	var prevIDs []string
	if prev := c.reg.Latest(); prev != nil {
		prevIDs = prev.ICCIDs()
	}
	currIDs := make([]string, len(sims))
	for i, s := range sims {
		currIDs[i] = s.ICCID
	}
	added, removed := Diff(prevIDs, currIDs)

	c.setState(StateAggregating)
	snap := Aggregate(sims, balance, currency, c.log)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pr := model.NewPollResult(util.New(), time.Now(), sims, snap, added, removed)
	c.reg.Publish(pr)
	c.setState(StatePublished)

	c.cycles.Add(1)
	metrics.PollCyclesTotal.WithLabelValues("published").Inc()
	metrics.FleetSims.WithLabelValues("active").Set(float64(snap.ActiveSims))
	metrics.FleetSims.WithLabelValues("inactive").Set(float64(snap.InactiveSims))
	c.log.Info("poll cycle published",
		zap.String("cycle_id", pr.CycleID),
		zap.Int("sims", len(sims)),
		zap.Int("added", len(added)),
		zap.Int("removed", len(removed)),
		zap.Duration("took", time.Since(start)))
	return pr, nil
}

// enrichUsage overlays usage-endpoint figures onto records whose simcard
// payload carried none. Failure here never fails the cycle.
func (c *Coordinator) enrichUsage(ctx context.Context, sims []model.SimRecord) {
	usage, err := c.client.ListUsage(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("usage fetch failed, skipping enrichment", zap.Error(err))
		}
		return
	}
	for i := range sims {
		u, ok := usage[sims[i].ICCID]
		if !ok {
			continue
		}
		if sims[i].DataUsageBytes == 0 && u.DataBytes > 0 {
			sims[i].DataUsageBytes = u.DataBytes
			sims[i].DataUsageMB = model.MBFromBytes(u.DataBytes)
		}
		if sims[i].SmsSent == 0 {
			sims[i].SmsSent = u.SmsSent
		}
		if sims[i].SmsReceived == 0 {
			sims[i].SmsReceived = u.SmsReceived
		}
	}
}

// fetchBalance maps any balance failure to unavailable; only the listing
// call decides a cycle's fate.
func (c *Coordinator) fetchBalance(ctx context.Context) (*float64, string) {
	balance, currency, err := c.client.GetAccountBalance(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("balance fetch failed, reporting unavailable", zap.Error(err))
		}
		return nil, ""
	}
	return balance, currency
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}
