package coordinator

import (
	"math"

	"go.uber.org/zap"

	"github.com/jmehdipour/simbase-hub/internal/model"
)

// Aggregate derives the account-wide snapshot from the record sequence.
// Every field is recomputed from scratch; the result depends only on the
// records, not their order. A status outside the known set classifies as
// inactive and is logged with the offending value. Balance and currency
// pass through untouched, nil meaning unavailable.
func Aggregate(sims []model.SimRecord, balance *float64, currency string, log *zap.Logger) model.AccountSnapshot {
	snap := model.AccountSnapshot{
		Balance:   balance,
		Currency:  currency,
		TotalSims: len(sims),
	}
	for _, s := range sims {
		if !s.Status.Recognized() {
			log.Warn("unrecognized sim status, classifying inactive",
				zap.String("iccid", s.ICCID),
				zap.String("status", s.Status.String()))
		}
		if s.Status.IsActive() {
			snap.ActiveSims++
		} else {
			snap.InactiveSims++
		}
		snap.DataUsageMB += s.DataUsageMB
		snap.TotalCostUSD += s.MonthlyCostUSD
		snap.SmsSent += s.SmsSent
		snap.SmsReceived += s.SmsReceived
	}
	snap.DataUsageMB = round2(snap.DataUsageMB)
	snap.TotalCostUSD = round2(snap.TotalCostUSD)
	snap.SmsTotal = snap.SmsSent + snap.SmsReceived
	return snap
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
