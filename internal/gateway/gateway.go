package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/jmehdipour/simbase-hub/internal/metrics"
	"github.com/jmehdipour/simbase-hub/internal/model"
	"github.com/jmehdipour/simbase-hub/internal/registry"
	"github.com/jmehdipour/simbase-hub/internal/util"
)

const maxSmsRunes = 160

var (
	ErrInvalidICCID = errors.New("invalid iccid")
	ErrInvalidSms   = errors.New("sms message must be 1-160 characters")
	ErrEmptyUpdate  = errors.New("update carries no fields")
	ErrUnknownSim   = errors.New("sim not found in the fleet")
	ErrNoSnapshot   = errors.New("no poll result available yet")
)

// Commander is the slice of the Simbase client that commands go through.
type Commander interface {
	SetSimActive(ctx context.Context, iccid string, active bool) error
	SendSms(ctx context.Context, iccid, message string) error
	ReadSms(ctx context.Context, iccid string) ([]model.SmsMessage, error)
	UpdateSim(ctx context.Context, iccid string, upd model.SimUpdate) error
	GetEvents(ctx context.Context, since, cursor string) ([]model.Event, string, error)
}

// Refresher is notified after a command changed remote activation state.
type Refresher interface {
	Refresh()
}

// BulkFailure records one ICCID that could not be commanded.
type BulkFailure struct {
	ICCID string `json:"iccid"`
	Error string `json:"error"`
}

// BulkResult sums up a fleet-wide activation sweep.
type BulkResult struct {
	Command   string        `json:"command"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failures  []BulkFailure `json:"failures,omitempty"`
}

type Opts struct {
	// Workers bounds the fan-out of bulk sweeps. Defaults to 4; the shared
	// rate limiter is what actually paces the calls.
	Workers int
}

// Gateway validates commands against the latest poll result before letting
// them reach the remote, and nudges the coordinator once activation state
// changed.
type Gateway struct {
	client    Commander
	reg       *registry.Registry
	refresher Refresher
	workers   int
	log       *zap.Logger
}

func New(o Opts, client Commander, reg *registry.Registry, refresher Refresher, log *zap.Logger) *Gateway {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		client:    client,
		reg:       reg,
		refresher: refresher,
		workers:   o.Workers,
		log:       log,
	}
}

// resolve normalizes the ICCID and checks it against the latest poll result.
func (g *Gateway) resolve(iccid string) (string, error) {
	id := util.NormalizeICCID(iccid)
	if !util.ValidICCID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidICCID, iccid)
	}
	latest := g.reg.Latest()
	if latest == nil {
		return "", ErrNoSnapshot
	}
	if _, ok := latest.Sim(id); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSim, id)
	}
	return id, nil
}

func (g *Gateway) setActive(ctx context.Context, iccid string, active bool) error {
	command := "deactivate_sim"
	if active {
		command = "activate_sim"
	}

	id, err := g.resolve(iccid)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues(command, "failure").Inc()
		return err
	}

	if err := g.client.SetSimActive(ctx, id, active); err != nil {
		metrics.CommandsTotal.WithLabelValues(command, "failure").Inc()
		return err
	}
	metrics.CommandsTotal.WithLabelValues(command, "success").Inc()

	g.log.Info("sim activation changed", zap.String("iccid", id), zap.Bool("active", active))
	g.refresher.Refresh()
	return nil
}

// Activate turns the SIM on. The call returns once the remote acknowledged;
// the fleet snapshot catches up on the refresh that is kicked off here.
func (g *Gateway) Activate(ctx context.Context, iccid string) error {
	return g.setActive(ctx, iccid, true)
}

// Deactivate turns the SIM off.
func (g *Gateway) Deactivate(ctx context.Context, iccid string) error {
	return g.setActive(ctx, iccid, false)
}

// SendSms delivers one MT message to the SIM.
func (g *Gateway) SendSms(ctx context.Context, iccid, message string) error {
	id, err := g.resolve(iccid)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("send_sms", "failure").Inc()
		return err
	}

	message = strings.TrimSpace(message)
	if n := utf8.RuneCountInString(message); n < 1 || n > maxSmsRunes {
		metrics.CommandsTotal.WithLabelValues("send_sms", "failure").Inc()
		return ErrInvalidSms
	}

	if err := g.client.SendSms(ctx, id, message); err != nil {
		metrics.CommandsTotal.WithLabelValues("send_sms", "failure").Inc()
		return err
	}
	metrics.CommandsTotal.WithLabelValues("send_sms", "success").Inc()
	return nil
}

// ReadSms lists the messages stored for the SIM.
func (g *Gateway) ReadSms(ctx context.Context, iccid string) ([]model.SmsMessage, error) {
	id, err := g.resolve(iccid)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("read_sms", "failure").Inc()
		return nil, err
	}

	msgs, err := g.client.ReadSms(ctx, id)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("read_sms", "failure").Inc()
		return nil, err
	}
	metrics.CommandsTotal.WithLabelValues("read_sms", "success").Inc()
	return msgs, nil
}

// UpdateSim patches the SIM's name or tags. Metadata does not touch
// activation state, so no refresh is requested; the snapshot converges on
// the next cycle.
func (g *Gateway) UpdateSim(ctx context.Context, iccid string, upd model.SimUpdate) error {
	id, err := g.resolve(iccid)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("update_sim", "failure").Inc()
		return err
	}

	if upd.Name == nil && upd.Tags == nil {
		metrics.CommandsTotal.WithLabelValues("update_sim", "failure").Inc()
		return ErrEmptyUpdate
	}

	if err := g.client.UpdateSim(ctx, id, upd); err != nil {
		metrics.CommandsTotal.WithLabelValues("update_sim", "failure").Inc()
		return err
	}
	metrics.CommandsTotal.WithLabelValues("update_sim", "success").Inc()
	g.log.Info("sim metadata updated", zap.String("iccid", id))
	return nil
}

// Events passes one page of the remote event feed through. Unlike the
// snapshot reads, every call here spends request budget.
func (g *Gateway) Events(ctx context.Context, since, cursor string) ([]model.Event, string, error) {
	events, next, err := g.client.GetEvents(ctx, since, cursor)
	if err != nil {
		metrics.CommandsTotal.WithLabelValues("get_events", "failure").Inc()
		return nil, "", err
	}
	metrics.CommandsTotal.WithLabelValues("get_events", "success").Inc()
	return events, next, nil
}

// ActivateAll activates every SIM the last poll classified inactive.
func (g *Gateway) ActivateAll(ctx context.Context) (BulkResult, error) {
	return g.sweep(ctx, true)
}

// DeactivateAll deactivates every SIM the last poll classified active.
func (g *Gateway) DeactivateAll(ctx context.Context) (BulkResult, error) {
	return g.sweep(ctx, false)
}

func eligible(status model.SimStatus, activate bool) bool {
	if activate {
		return status == model.StatusDisabled || status == model.StatusInactive
	}
	return status.IsActive()
}

// sweep fans the activation command out over every eligible SIM. A failing
// ICCID is recorded and the sweep keeps going; the caller gets the full
// per-ICCID account of what happened.
func (g *Gateway) sweep(ctx context.Context, activate bool) (BulkResult, error) {
	command := "deactivate_sim"
	result := BulkResult{Command: "deactivate_all"}
	if activate {
		command = "activate_sim"
		result.Command = "activate_all"
	}

	latest := g.reg.Latest()
	if latest == nil {
		return result, ErrNoSnapshot
	}

	var targets []string
	for _, rec := range latest.Sims {
		if eligible(rec.Status, activate) {
			targets = append(targets, rec.ICCID)
		}
	}
	result.Attempted = len(targets)
	if len(targets) == 0 {
		return result, nil
	}

	errs := make([]error, len(targets))

	pool := pond.NewPool(g.workers)
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, iccid := range targets {
		i, iccid := i, iccid
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				errs[i] = err
				return
			}
			errs[i] = g.client.SetSimActive(groupCtx, iccid, activate)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		g.log.Warn("bulk sweep worker group", zap.String("command", result.Command), zap.Error(err))
	}
	pool.StopAndWait()

	for i, err := range errs {
		if err != nil {
			metrics.CommandsTotal.WithLabelValues(command, "failure").Inc()
			result.Failures = append(result.Failures, BulkFailure{ICCID: targets[i], Error: err.Error()})
			continue
		}
		metrics.CommandsTotal.WithLabelValues(command, "success").Inc()
		result.Succeeded++
	}

	g.log.Info("bulk sweep finished",
		zap.String("command", result.Command),
		zap.Int("attempted", result.Attempted),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", len(result.Failures)),
	)
	if result.Succeeded > 0 {
		g.refresher.Refresh()
	}
	return result, nil
}
