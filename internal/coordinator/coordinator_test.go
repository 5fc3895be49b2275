package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/simbase-hub/internal/model"
	"github.com/jmehdipour/simbase-hub/internal/registry"
)

type stubClient struct {
	mu        sync.Mutex
	listCalls int
	listFn    func(call int) ([]model.SimRecord, error)
	listDelay time.Duration

	usage    map[string]model.UsageRecord
	usageErr error

	balance  *float64
	currency string
	balErr   error
}

func (s *stubClient) ListSims(ctx context.Context) ([]model.SimRecord, error) {
	s.mu.Lock()
	s.listCalls++
	call := s.listCalls
	delay := s.listDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.listFn(call)
}

func (s *stubClient) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *stubClient) ListUsage(context.Context) (map[string]model.UsageRecord, error) {
	return s.usage, s.usageErr
}

func (s *stubClient) GetAccountBalance(context.Context) (*float64, string, error) {
	return s.balance, s.currency, s.balErr
}

func sims(iccids ...string) []model.SimRecord {
	out := make([]model.SimRecord, 0, len(iccids))
	for _, id := range iccids {
		out = append(out, model.SimRecord{ICCID: id, Status: model.StatusEnabled, DataUsageMB: 1, SmsSent: 1, SmsReceived: 1})
	}
	return out
}

// harness runs the loop without the scheduler so tests drive ticks directly.
func harness(t *testing.T, client Fetcher) (*Coordinator, *registry.Registry, <-chan *model.PollResult, context.CancelFunc) {
	t.Helper()
	reg := registry.New()
	published := make(chan *model.PollResult, 16)
	reg.Subscribe(func(pr *model.PollResult) { published <- pr })

	c := New(Opts{Interval: time.Minute}, client, reg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go c.run(ctx)
	t.Cleanup(cancel)
	return c, reg, published, cancel
}

func waitPublish(t *testing.T, ch <-chan *model.PollResult) *model.PollResult {
	t.Helper()
	select {
	case pr := <-ch:
		return pr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a publish")
		return nil
	}
}

func TestCyclePublishesCompleteResult(t *testing.T) {
	bal := 9.99
	client := &stubClient{
		listFn: func(int) ([]model.SimRecord, error) {
			return sims("89880002", "89880001"), nil
		},
		balance:  &bal,
		currency: "USD",
	}
	c, reg, published, _ := harness(t, client)

	c.Refresh()
	pr := waitPublish(t, published)

	require.Len(t, pr.Sims, 2)
	assert.Equal(t, []string{"89880001", "89880002"}, pr.ICCIDs())
	assert.Equal(t, []string{"89880001", "89880002"}, pr.Added)
	assert.Empty(t, pr.Removed)
	assert.NotEmpty(t, pr.CycleID)
	assert.Equal(t, 2, pr.Account.TotalSims)
	assert.Equal(t, 2, pr.Account.ActiveSims)
	assert.Equal(t, 4, pr.Account.SmsTotal)
	require.NotNil(t, pr.Account.Balance)
	assert.Equal(t, 9.99, *pr.Account.Balance)

	assert.Same(t, pr, reg.Latest())
	assert.Equal(t, int64(1), c.Status().Cycles)
}

func TestFetchFailureRetainsPreviousResult(t *testing.T) {
	client := &stubClient{
		listFn: func(call int) ([]model.SimRecord, error) {
			if call == 1 {
				return sims("89880001"), nil
			}
			return nil, errors.New("remote down")
		},
	}
	c, reg, published, _ := harness(t, client)

	c.Refresh()
	first := waitPublish(t, published)

	c.Refresh()
	require.Eventually(t, func() bool {
		return c.Status().Failures == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Same(t, first, reg.Latest(), "stale-but-valid result must survive a failed cycle")
	assert.Equal(t, int64(1), c.Status().Cycles)
	select {
	case <-published:
		t.Fatal("failed cycle must not publish")
	default:
	}
}

func TestIdenticalCyclesYieldEmptyDiff(t *testing.T) {
	client := &stubClient{
		listFn: func(int) ([]model.SimRecord, error) {
			return sims("89880001", "89880002"), nil
		},
	}
	c, _, published, _ := harness(t, client)

	c.Refresh()
	first := waitPublish(t, published)
	c.Refresh()
	second := waitPublish(t, published)

	assert.Empty(t, second.Added)
	assert.Empty(t, second.Removed)
	assert.Equal(t, first.Account, second.Account)
	assert.True(t, second.Timestamp.After(first.Timestamp) || second.Timestamp.Equal(first.Timestamp))
}

func TestReconcileAcrossCycles(t *testing.T) {
	client := &stubClient{
		listFn: func(call int) ([]model.SimRecord, error) {
			if call == 1 {
				return sims("A", "B", "C"), nil
			}
			return sims("B", "C", "D"), nil
		},
	}
	c, _, published, _ := harness(t, client)

	c.Refresh()
	waitPublish(t, published)
	c.Refresh()
	second := waitPublish(t, published)

	assert.Equal(t, []string{"D"}, second.Added)
	assert.Equal(t, []string{"A"}, second.Removed)
}

func TestTickDuringCycleIsSkipped(t *testing.T) {
	client := &stubClient{
		listDelay: 150 * time.Millisecond,
		listFn: func(int) ([]model.SimRecord, error) {
			return sims("89880001"), nil
		},
	}
	c, _, published, _ := harness(t, client)

	c.Refresh()
	time.Sleep(30 * time.Millisecond) // cycle now mid-fetch
	c.tick()                          // lands while busy: skipped
	waitPublish(t, published)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, client.calls(), "skipped tick must not start a second fetch")

	c.tick() // loop is idle again
	waitPublish(t, published)
	assert.Equal(t, 2, client.calls())
}

func TestRefreshesCoalesceWhileBusy(t *testing.T) {
	client := &stubClient{
		listDelay: 100 * time.Millisecond,
		listFn: func(int) ([]model.SimRecord, error) {
			return sims("89880001"), nil
		},
	}
	c, _, published, _ := harness(t, client)

	c.Refresh()
	time.Sleep(20 * time.Millisecond)
	c.Refresh() // queues as the single pending refresh
	c.Refresh() // coalesces away
	c.Refresh()

	waitPublish(t, published)
	waitPublish(t, published)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, client.calls())
}

func TestShutdownAbandonsInFlightCycle(t *testing.T) {
	client := &stubClient{
		listDelay: 300 * time.Millisecond,
		listFn: func(int) ([]model.SimRecord, error) {
			return sims("89880001"), nil
		},
	}
	c, reg, _, cancel := harness(t, client)

	c.Refresh()
	time.Sleep(30 * time.Millisecond)
	cancel()
	<-c.done

	assert.Nil(t, reg.Latest(), "cancelled cycle must not publish")
	assert.Equal(t, int64(0), c.Status().Failures, "shutdown is not a cycle failure")
}

func TestUsageEnrichmentFillsMissingFigures(t *testing.T) {
	client := &stubClient{
		listFn: func(int) ([]model.SimRecord, error) {
			return []model.SimRecord{{ICCID: "89880001", Status: model.StatusEnabled}}, nil
		},
		usage: map[string]model.UsageRecord{
			"89880001": {ICCID: "89880001", DataBytes: 3145728, SmsSent: 2, SmsReceived: 5},
		},
	}
	c, _, published, _ := harness(t, client)

	c.Refresh()
	pr := waitPublish(t, published)

	rec, ok := pr.Sim("89880001")
	require.True(t, ok)
	assert.Equal(t, int64(3145728), rec.DataUsageBytes)
	assert.Equal(t, 3.0, rec.DataUsageMB)
	assert.Equal(t, 2, rec.SmsSent)
	assert.Equal(t, 5, rec.SmsReceived)
	assert.Equal(t, 7, pr.Account.SmsTotal)
}

func TestUsageFailureDoesNotFailCycle(t *testing.T) {
	client := &stubClient{
		listFn: func(int) ([]model.SimRecord, error) {
			return sims("89880001"), nil
		},
		usageErr: errors.New("usage endpoint down"),
		balErr:   errors.New("balance endpoint down"),
	}
	c, _, published, _ := harness(t, client)

	c.Refresh()
	pr := waitPublish(t, published)

	assert.Nil(t, pr.Account.Balance)
	assert.Equal(t, 1, pr.Account.TotalSims)
	assert.Equal(t, int64(0), c.Status().Failures)
}

func TestStartRunsInitialCycleAndStops(t *testing.T) {
	client := &stubClient{
		listFn: func(int) ([]model.SimRecord, error) {
			return sims("89880001"), nil
		},
	}
	reg := registry.New()
	published := make(chan *model.PollResult, 4)
	reg.Subscribe(func(pr *model.PollResult) { published <- pr })

	c := New(Opts{Interval: time.Minute}, client, reg, nil)
	require.NoError(t, c.Start(context.Background()))

	pr := waitPublish(t, published)
	assert.Len(t, pr.Sims, 1)

	c.Stop()
	assert.Equal(t, StateIdle, c.State())

	// No further cycles after Stop.
	time.Sleep(50 * time.Millisecond)
	select {
	case <-published:
		t.Fatal("publish after Stop")
	default:
	}
}
