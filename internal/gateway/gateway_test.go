package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/simbase-hub/internal/model"
	"github.com/jmehdipour/simbase-hub/internal/registry"
)

const (
	iccidEnabled  = "89882390000000000001"
	iccidDisabled = "89882390000000000002"
	iccidInactive = "89882390000000000003"
	iccidActive   = "89882390000000000004"
)

type stubCommander struct {
	mu      sync.Mutex
	actives []string
	sms     []string
	reads   []string
	updates []string

	failFor     map[string]error
	smsErr      error
	msgs        []model.SmsMessage
	events      []model.Event
	eventCursor string
}

func (s *stubCommander) SetSimActive(_ context.Context, iccid string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		s.actives = append(s.actives, iccid+":on")
	} else {
		s.actives = append(s.actives, iccid+":off")
	}
	return s.failFor[iccid]
}

func (s *stubCommander) SendSms(_ context.Context, iccid, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sms = append(s.sms, iccid+":"+message)
	return s.smsErr
}

func (s *stubCommander) ReadSms(_ context.Context, iccid string) ([]model.SmsMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, iccid)
	return s.msgs, nil
}

func (s *stubCommander) UpdateSim(_ context.Context, iccid string, upd model.SimUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := ""
	if upd.Name != nil {
		name = *upd.Name
	}
	s.updates = append(s.updates, iccid+":"+name)
	return s.failFor[iccid]
}

func (s *stubCommander) GetEvents(context.Context, string, string) ([]model.Event, string, error) {
	return s.events, s.eventCursor, nil
}

func (s *stubCommander) activations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.actives))
	copy(out, s.actives)
	return out
}

type stubRefresher struct{ n atomic.Int64 }

func (r *stubRefresher) Refresh() { r.n.Add(1) }

func fleetRegistry() *registry.Registry {
	reg := registry.New()
	sims := []model.SimRecord{
		{ICCID: iccidEnabled, Status: model.StatusEnabled},
		{ICCID: iccidDisabled, Status: model.StatusDisabled},
		{ICCID: iccidInactive, Status: model.StatusInactive},
		{ICCID: iccidActive, Status: model.StatusActive},
	}
	reg.Publish(model.NewPollResult("cycle-1", time.Now(), sims, model.AccountSnapshot{TotalSims: 4}, nil, nil))
	return reg
}

func newGateway(client *stubCommander, reg *registry.Registry) (*Gateway, *stubRefresher) {
	ref := &stubRefresher{}
	return New(Opts{Workers: 2}, client, reg, ref, nil), ref
}

func TestActivateRejectsMalformedICCID(t *testing.T) {
	client := &stubCommander{}
	g, ref := newGateway(client, fleetRegistry())

	for _, bad := range []string{"", "1234", "8988239000000000000x", strings.Repeat("9", 23)} {
		err := g.Activate(context.Background(), bad)
		assert.ErrorIs(t, err, ErrInvalidICCID, "input %q", bad)
	}
	assert.Empty(t, client.activations())
	assert.Equal(t, int64(0), ref.n.Load())
}

func TestActivateUnknownSim(t *testing.T) {
	client := &stubCommander{}
	g, ref := newGateway(client, fleetRegistry())

	err := g.Activate(context.Background(), "89889999000000000099")
	assert.ErrorIs(t, err, ErrUnknownSim)
	assert.Empty(t, client.activations())
	assert.Equal(t, int64(0), ref.n.Load())
}

func TestCommandsNeedASnapshotFirst(t *testing.T) {
	client := &stubCommander{}
	g, _ := newGateway(client, registry.New())

	assert.ErrorIs(t, g.Activate(context.Background(), iccidDisabled), ErrNoSnapshot)
	assert.ErrorIs(t, g.SendSms(context.Background(), iccidEnabled, "hi"), ErrNoSnapshot)
	_, err := g.ActivateAll(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestActivateNormalizesAndRefreshes(t *testing.T) {
	client := &stubCommander{}
	g, ref := newGateway(client, fleetRegistry())

	err := g.Activate(context.Background(), " 8988-2390-0000-0000-0002 ")
	require.NoError(t, err)
	assert.Equal(t, []string{iccidDisabled + ":on"}, client.activations())
	assert.Equal(t, int64(1), ref.n.Load())
}

func TestDeactivateFailurePropagatesWithoutRefresh(t *testing.T) {
	client := &stubCommander{failFor: map[string]error{iccidEnabled: errors.New("remote said no")}}
	g, ref := newGateway(client, fleetRegistry())

	err := g.Deactivate(context.Background(), iccidEnabled)
	require.Error(t, err)
	assert.Equal(t, int64(0), ref.n.Load())
}

func TestSendSmsBounds(t *testing.T) {
	client := &stubCommander{}
	g, ref := newGateway(client, fleetRegistry())

	assert.ErrorIs(t, g.SendSms(context.Background(), iccidEnabled, "   "), ErrInvalidSms)
	assert.ErrorIs(t, g.SendSms(context.Background(), iccidEnabled, strings.Repeat("x", 161)), ErrInvalidSms)

	require.NoError(t, g.SendSms(context.Background(), iccidEnabled, strings.Repeat("x", 160)))
	require.NoError(t, g.SendSms(context.Background(), iccidEnabled, "  trimmed  "))

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.sms, 2)
	assert.Equal(t, iccidEnabled+":trimmed", client.sms[1])
	assert.Equal(t, int64(0), ref.n.Load(), "sending sms must not trigger a refresh")
}

func TestReadSms(t *testing.T) {
	want := []model.SmsMessage{{ID: "m1", ICCID: iccidEnabled, Message: "pong"}}
	client := &stubCommander{msgs: want}
	g, _ := newGateway(client, fleetRegistry())

	got, err := g.ReadSms(context.Background(), iccidEnabled)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUpdateSimValidatesLikeOtherCommands(t *testing.T) {
	client := &stubCommander{}
	g, ref := newGateway(client, fleetRegistry())

	name := "gate-7"
	err := g.UpdateSim(context.Background(), "not-an-iccid", model.SimUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrInvalidICCID)

	err = g.UpdateSim(context.Background(), "89889999000000000099", model.SimUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrUnknownSim)

	err = g.UpdateSim(context.Background(), iccidEnabled, model.SimUpdate{})
	assert.ErrorIs(t, err, ErrEmptyUpdate)

	require.NoError(t, g.UpdateSim(context.Background(), " 8988-2390-0000-0000-0001 ", model.SimUpdate{Name: &name}))
	client.mu.Lock()
	assert.Equal(t, []string{iccidEnabled + ":gate-7"}, client.updates)
	client.mu.Unlock()
	assert.Equal(t, int64(0), ref.n.Load(), "metadata change must not trigger a refresh")
}

func TestEventsPassThrough(t *testing.T) {
	want := []model.Event{{ID: "e1", Type: "sim.activated", ICCID: iccidEnabled}}
	client := &stubCommander{events: want, eventCursor: "e-next"}
	g, _ := newGateway(client, fleetRegistry())

	got, next, err := g.Events(context.Background(), "2026-08-01T00:00:00Z", "")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "e-next", next)
}

func TestActivateAllTargetsInactiveOnly(t *testing.T) {
	client := &stubCommander{}
	g, ref := newGateway(client, fleetRegistry())

	res, err := g.ActivateAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "activate_all", res.Command)
	assert.Equal(t, 2, res.Attempted)
	assert.Equal(t, 2, res.Succeeded)
	assert.Empty(t, res.Failures)

	got := client.activations()
	assert.ElementsMatch(t, []string{iccidDisabled + ":on", iccidInactive + ":on"}, got)
	assert.Equal(t, int64(1), ref.n.Load())
}

func TestDeactivateAllTargetsActiveOnly(t *testing.T) {
	client := &stubCommander{}
	g, _ := newGateway(client, fleetRegistry())

	res, err := g.DeactivateAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Attempted)
	assert.ElementsMatch(t, []string{iccidEnabled + ":off", iccidActive + ":off"}, client.activations())
}

func TestSweepCollectsFailuresAndKeepsGoing(t *testing.T) {
	client := &stubCommander{failFor: map[string]error{iccidDisabled: errors.New("quota exceeded")}}
	g, ref := newGateway(client, fleetRegistry())

	res, err := g.ActivateAll(context.Background())
	require.NoError(t, err, "a failing ICCID is reported, not raised")

	assert.Equal(t, 2, res.Attempted)
	assert.Equal(t, 1, res.Succeeded)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, iccidDisabled, res.Failures[0].ICCID)
	assert.Contains(t, res.Failures[0].Error, "quota exceeded")

	assert.Len(t, client.activations(), 2, "every eligible SIM must be attempted")
	assert.Equal(t, int64(1), ref.n.Load(), "partial success still refreshes")
}

func TestSweepWithAllFailuresSkipsRefresh(t *testing.T) {
	client := &stubCommander{failFor: map[string]error{
		iccidDisabled: errors.New("down"),
		iccidInactive: errors.New("down"),
	}}
	g, ref := newGateway(client, fleetRegistry())

	res, err := g.ActivateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Succeeded)
	assert.Len(t, res.Failures, 2)
	assert.Equal(t, int64(0), ref.n.Load())
}

func TestSweepWithNothingEligible(t *testing.T) {
	reg := registry.New()
	sims := []model.SimRecord{{ICCID: iccidEnabled, Status: model.StatusEnabled}}
	reg.Publish(model.NewPollResult("cycle-1", time.Now(), sims, model.AccountSnapshot{}, nil, nil))

	client := &stubCommander{}
	g, ref := newGateway(client, reg)

	res, err := g.ActivateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempted)
	assert.Empty(t, client.activations())
	assert.Equal(t, int64(0), ref.n.Load())
}
