package model

import "strings"

type SmsDirection string

const (
	SmsDirectionMO SmsDirection = "mo"
	SmsDirectionMT SmsDirection = "mt"
)

func (d SmsDirection) String() string { return string(d) }

// ParseSmsDirection normalizes input; empty => mt (the remote stores
// received messages without a direction marker on some plans).
// Returns (value, true) if valid; otherwise (mt, false).
func ParseSmsDirection(s string) (SmsDirection, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mo", "sent":
		return SmsDirectionMO, true
	case "", "mt", "received":
		return SmsDirectionMT, true
	default:
		return SmsDirectionMT, false
	}
}

func (d SmsDirection) Valid() bool {
	return d == SmsDirectionMO || d == SmsDirectionMT
}

// SmsMessage is one stored SMS on a SIM, as reported by the remote.
type SmsMessage struct {
	ID        string       `json:"id,omitempty"`
	ICCID     string       `json:"iccid"`
	Direction SmsDirection `json:"direction"`
	Message   string       `json:"message"`
	Timestamp string       `json:"timestamp,omitempty"`
}
