package model

import (
	"math"
	"strings"
)

// SimStatus is the remote-reported lifecycle state of a SIM card.
type SimStatus string

const (
	StatusEnabled  SimStatus = "enabled"
	StatusDisabled SimStatus = "disabled"
	StatusActive   SimStatus = "active"
	StatusInactive SimStatus = "inactive"
)

// ParseSimStatus normalizes a remote state string. Unknown values are kept
// as-is so they can be reported; Recognized tells them apart.
func ParseSimStatus(s string) SimStatus {
	return SimStatus(strings.ToLower(strings.TrimSpace(s)))
}

func (s SimStatus) Recognized() bool {
	switch s {
	case StatusEnabled, StatusDisabled, StatusActive, StatusInactive:
		return true
	default:
		return false
	}
}

// IsActive reports whether the status classifies as active. Everything else,
// including unrecognized statuses, classifies as inactive.
func (s SimStatus) IsActive() bool {
	return s == StatusEnabled || s == StatusActive
}

func (s SimStatus) String() string { return string(s) }

// SimRecord is one SIM as observed in a poll cycle. Identity is the ICCID.
// Records are replaced wholesale each cycle, never patched in place.
type SimRecord struct {
	ICCID          string    `json:"iccid"`
	Name           string    `json:"name,omitempty"`
	Status         SimStatus `json:"status"`
	DataUsageMB    float64   `json:"data_usage_mb"`
	DataUsageBytes int64     `json:"data_usage_bytes"`
	MonthlyCostUSD float64   `json:"monthly_cost_usd"`
	SmsSent        int       `json:"sms_sent"`
	SmsReceived    int       `json:"sms_received"`
	CoveragePlan   string    `json:"coverage_plan,omitempty"`
	HardwareModel  string    `json:"hardware_model,omitempty"`
	IMEI           string    `json:"imei,omitempty"`
	MSISDN         string    `json:"msisdn,omitempty"`
	StaticIP       string    `json:"static_ip,omitempty"`
}

// SmsTotal is derived; the remote never reports it directly.
func (r SimRecord) SmsTotal() int { return r.SmsSent + r.SmsReceived }

// Online mirrors the binary sensor: true iff the SIM is active-classified.
func (r SimRecord) Online() bool { return r.Status.IsActive() }

// SimUpdate carries the remotely mutable SIM metadata. A nil field is left
// untouched by the update.
type SimUpdate struct {
	Name *string
	Tags []string
}

// UsageRecord is the per-SIM slice of the usage endpoint, merged into
// SimRecords when the simcard payload itself lacks usage figures.
type UsageRecord struct {
	ICCID       string
	DataBytes   int64
	SmsSent     int
	SmsReceived int
}

// MBFromBytes converts a byte count to megabytes rounded to two decimals,
// the unit the data-usage sensor reports.
func MBFromBytes(b int64) float64 {
	return math.Round(float64(b)/(1024*1024)*100) / 100
}
