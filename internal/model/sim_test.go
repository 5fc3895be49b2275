package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSimStatus(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		want       SimStatus
		recognized bool
		active     bool
	}{
		{name: "enabled", in: "ENABLED", want: StatusEnabled, recognized: true, active: true},
		{name: "active", in: "active", want: StatusActive, recognized: true, active: true},
		{name: "disabled", in: " Disabled ", want: StatusDisabled, recognized: true, active: false},
		{name: "inactive", in: "inactive", want: StatusInactive, recognized: true, active: false},
		{name: "unknown value kept", in: "Suspended", want: SimStatus("suspended"), recognized: false, active: false},
		{name: "empty", in: "", want: SimStatus(""), recognized: false, active: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSimStatus(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.recognized, got.Recognized())
			assert.Equal(t, tt.active, got.IsActive())
		})
	}
}

func TestSimRecordDerivedFields(t *testing.T) {
	r := SimRecord{ICCID: "8988228066612345678", Status: StatusEnabled, SmsSent: 3, SmsReceived: 5}

	assert.Equal(t, 8, r.SmsTotal())
	assert.True(t, r.Online())

	r.Status = ParseSimStatus("terminated")
	assert.False(t, r.Online())
}

func TestParseSmsDirection(t *testing.T) {
	d, ok := ParseSmsDirection("SENT")
	assert.Equal(t, SmsDirectionMO, d)
	assert.True(t, ok)

	d, ok = ParseSmsDirection("")
	assert.Equal(t, SmsDirectionMT, d)
	assert.True(t, ok)

	d, ok = ParseSmsDirection("sideways")
	assert.Equal(t, SmsDirectionMT, d)
	assert.False(t, ok)
	assert.True(t, d.Valid())
}
