package model

import (
	"sort"
	"time"
)

// AccountSnapshot is recomputed from the full SimRecord sequence every cycle.
// It is never patched field by field; a cycle either produces a complete
// snapshot or none at all.
type AccountSnapshot struct {
	Balance      *float64 `json:"balance,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	TotalSims    int      `json:"total_sims"`
	ActiveSims   int      `json:"active_sims"`
	InactiveSims int      `json:"inactive_sims"`
	DataUsageMB  float64  `json:"data_usage_mb"`
	TotalCostUSD float64  `json:"total_cost_usd"`
	SmsSent      int      `json:"sms_sent"`
	SmsReceived  int      `json:"sms_received"`
	SmsTotal     int      `json:"sms_total"`
}

// BalanceAvailable reports whether the account tier exposes a balance.
func (a AccountSnapshot) BalanceAvailable() bool { return a.Balance != nil }

// PollResult is the immutable product of one completed poll cycle. The
// registry holds exactly one at a time; readers share it, so nothing may
// mutate it after construction.
type PollResult struct {
	CycleID   string          `json:"cycle_id"`
	Timestamp time.Time       `json:"timestamp"`
	Sims      []SimRecord     `json:"sims"`
	Account   AccountSnapshot `json:"account"`
	Added     []string        `json:"added"`
	Removed   []string        `json:"removed"`

	byICCID map[string]int
}

// NewPollResult fixes the record order (ascending ICCID) and builds the
// lookup index. The sims slice is owned by the result from here on.
func NewPollResult(cycleID string, ts time.Time, sims []SimRecord, account AccountSnapshot, added, removed []string) *PollResult {
	sort.Slice(sims, func(i, j int) bool { return sims[i].ICCID < sims[j].ICCID })
	idx := make(map[string]int, len(sims))
	for i, s := range sims {
		idx[s.ICCID] = i
	}
	return &PollResult{
		CycleID:   cycleID,
		Timestamp: ts,
		Sims:      sims,
		Account:   account,
		Added:     added,
		Removed:   removed,
		byICCID:   idx,
	}
}

// Sim returns the record for iccid, or false when the latest cycle did not
// include it.
func (p *PollResult) Sim(iccid string) (SimRecord, bool) {
	i, ok := p.byICCID[iccid]
	if !ok {
		return SimRecord{}, false
	}
	return p.Sims[i], true
}

// ICCIDs returns the ascending identity set of the result.
func (p *PollResult) ICCIDs() []string {
	out := make([]string, len(p.Sims))
	for i, s := range p.Sims {
		out[i] = s.ICCID
	}
	return out
}
