// Package sensor turns poll results into the per-SIM and account-level value
// maps the HTTP API serves. Aggregation always computes every figure; this
// layer only decides which of them get emitted.
package sensor

import (
	"go.uber.org/zap"

	"github.com/jmehdipour/simbase-hub/internal/model"
)

// Description maps one sensor key to the value it reads off a SIM record.
type Description struct {
	Key   string
	Unit  string
	Value func(model.SimRecord) any
}

// BinaryDescription is the on/off flavour.
type BinaryDescription struct {
	Key  string
	IsOn func(model.SimRecord) bool
}

func strOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Descriptions lists every per-SIM sensor the API can emit. Keys the account
// does not populate (no IMEI on file, no static IP) read as null rather than
// disappearing from the map.
var Descriptions = []Description{
	{Key: "data_usage", Unit: "MB", Value: func(r model.SimRecord) any { return r.DataUsageMB }},
	{Key: "status", Value: func(r model.SimRecord) any { return r.Status.String() }},
	{Key: "plan", Value: func(r model.SimRecord) any { return strOrNil(r.CoveragePlan) }},
	{Key: "monthly_cost", Unit: "USD", Value: func(r model.SimRecord) any { return r.MonthlyCostUSD }},
	{Key: "sms_count", Unit: "messages", Value: func(r model.SimRecord) any { return r.SmsTotal() }},
	{Key: "sms_sent", Unit: "messages", Value: func(r model.SimRecord) any { return r.SmsSent }},
	{Key: "sms_received", Unit: "messages", Value: func(r model.SimRecord) any { return r.SmsReceived }},
	{Key: "hardware", Value: func(r model.SimRecord) any { return strOrNil(r.HardwareModel) }},
	{Key: "iccid", Value: func(r model.SimRecord) any { return r.ICCID }},
	{Key: "imei", Value: func(r model.SimRecord) any { return strOrNil(r.IMEI) }},
	{Key: "msisdn", Value: func(r model.SimRecord) any { return strOrNil(r.MSISDN) }},
	{Key: "ip_address", Value: func(r model.SimRecord) any { return strOrNil(r.StaticIP) }},
}

// BinaryDescriptions lists the on/off sensors.
var BinaryDescriptions = []BinaryDescription{
	{Key: "online", IsOn: model.SimRecord.Online},
}

// DefaultKeys is what a fresh install emits per SIM.
func DefaultKeys() []string { return []string{"data_usage", "status", "plan", "monthly_cost"} }

// DefaultBinaryKeys is the default binary set.
func DefaultBinaryKeys() []string { return []string{"online"} }

// Selection is the configured subset of sensors to emit. Zero value emits
// nothing, so build it through NewSelection.
type Selection struct {
	sensors          map[string]bool
	binary           map[string]bool
	ActivationSwitch bool
}

// NewSelection resolves configured keys against the known descriptions.
// Unknown keys are dropped with a warning instead of failing startup.
func NewSelection(sensors, binary []string, activationSwitch bool, log *zap.Logger) Selection {
	if log == nil {
		log = zap.NewNop()
	}

	known := make(map[string]bool, len(Descriptions))
	for _, d := range Descriptions {
		known[d.Key] = true
	}
	knownBinary := make(map[string]bool, len(BinaryDescriptions))
	for _, d := range BinaryDescriptions {
		knownBinary[d.Key] = true
	}

	sel := Selection{
		sensors:          make(map[string]bool, len(sensors)),
		binary:           make(map[string]bool, len(binary)),
		ActivationSwitch: activationSwitch,
	}
	for _, k := range sensors {
		if !known[k] {
			log.Warn("ignoring unknown sensor key", zap.String("key", k))
			continue
		}
		sel.sensors[k] = true
	}
	for _, k := range binary {
		if !knownBinary[k] {
			log.Warn("ignoring unknown binary sensor key", zap.String("key", k))
			continue
		}
		sel.binary[k] = true
	}
	return sel
}

// SimView renders one SIM through the selection. The activation switch state
// rides along only when the switch is enabled.
func (s Selection) SimView(rec model.SimRecord) map[string]any {
	out := make(map[string]any, len(s.sensors)+len(s.binary)+1)
	for _, d := range Descriptions {
		if s.sensors[d.Key] {
			out[d.Key] = d.Value(rec)
		}
	}
	for _, d := range BinaryDescriptions {
		if s.binary[d.Key] {
			out[d.Key] = d.IsOn(rec)
		}
	}
	if s.ActivationSwitch {
		out["activation"] = rec.Status.IsActive()
	}
	return out
}

// AccountView renders the account snapshot. Account sensors are not subject
// to the per-SIM selection; every key is always present.
func AccountView(a model.AccountSnapshot) map[string]any {
	out := map[string]any{
		"total_sims":         a.TotalSims,
		"active_sims":        a.ActiveSims,
		"inactive_sims":      a.InactiveSims,
		"total_data_usage":   a.DataUsageMB,
		"total_cost":         a.TotalCostUSD,
		"total_sms":          a.SmsTotal,
		"total_sms_sent":     a.SmsSent,
		"total_sms_received": a.SmsReceived,
		"balance":            nil,
	}
	if a.BalanceAvailable() {
		out["balance"] = *a.Balance
		out["currency"] = a.Currency
	}
	return out
}
