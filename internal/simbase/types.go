package simbase

import (
	"bytes"
	"encoding/json"

	"github.com/jmehdipour/simbase-hub/internal/model"
)

// listEnvelope tolerates the remote's loose list schema: a bare array, or an
// object carrying the array under one of several keys, with pagination
// markers in either snake or camel case.
type listEnvelope[T any] struct {
	Items   []T
	HasMore bool
	Cursor  string
}

func (e *listEnvelope[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, &e.Items)
	}

	var obj struct {
		Data       []T    `json:"data"`
		Simcards   []T    `json:"simcards"`
		Items      []T    `json:"items"`
		Results    []T    `json:"results"`
		HasMore    bool   `json:"has_more"`
		HasMoreCC  bool   `json:"hasMore"`
		Cursor     string `json:"cursor"`
		NextCursor string `json:"next_cursor"`
		NextCC     string `json:"nextCursor"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	switch {
	case obj.Data != nil:
		e.Items = obj.Data
	case obj.Simcards != nil:
		e.Items = obj.Simcards
	case obj.Items != nil:
		e.Items = obj.Items
	case obj.Results != nil:
		e.Items = obj.Results
	}
	e.HasMore = obj.HasMore || obj.HasMoreCC
	e.Cursor = firstNonEmpty(obj.Cursor, obj.NextCursor, obj.NextCC)
	return nil
}

type usageJSON struct {
	Data  int64 `json:"data"` // bytes this billing month
	SmsMO int   `json:"sms_mo"`
	SmsMT int   `json:"sms_mt"`
}

type costsJSON struct {
	Total float64 `json:"total"`
}

type simJSON struct {
	ICCID     string     `json:"iccid"`
	ID        string     `json:"id"`
	State     string     `json:"state"`
	Status    string     `json:"status"`
	Name      string     `json:"name"`
	Label     string     `json:"label"`
	Coverage  string     `json:"coverage"`
	Hardware  string     `json:"hardware"`
	IMEI      string     `json:"imei"`
	MSISDN    string     `json:"msisdn"`
	PublicIP  string     `json:"public_ip"`
	PrivateIP string     `json:"private_network_ip"`
	Usage     *usageJSON `json:"current_month_usage"`
	Costs     *costsJSON `json:"current_month_costs"`
}

func (s simJSON) toRecord() model.SimRecord {
	rec := model.SimRecord{
		ICCID:         firstNonEmpty(s.ICCID, s.ID),
		Name:          firstNonEmpty(s.Name, s.Label),
		Status:        model.ParseSimStatus(firstNonEmpty(s.State, s.Status)),
		CoveragePlan:  s.Coverage,
		HardwareModel: s.Hardware,
		IMEI:          s.IMEI,
		MSISDN:        s.MSISDN,
		StaticIP:      firstNonEmpty(s.PublicIP, s.PrivateIP),
	}
	if s.Usage != nil {
		rec.DataUsageBytes = s.Usage.Data
		rec.DataUsageMB = model.MBFromBytes(s.Usage.Data)
		rec.SmsSent = s.Usage.SmsMO
		rec.SmsReceived = s.Usage.SmsMT
	}
	if s.Costs != nil {
		rec.MonthlyCostUSD = s.Costs.Total
	}
	return rec
}

// usageRowJSON is one row of the usage endpoint. Figures appear either flat
// or nested under current_month_usage depending on plan generation.
type usageRowJSON struct {
	ICCID  string     `json:"iccid"`
	Data   int64      `json:"data"`
	SmsMO  int        `json:"sms_mo"`
	SmsMT  int        `json:"sms_mt"`
	Nested *usageJSON `json:"current_month_usage"`
}

func (u usageRowJSON) toRecord() model.UsageRecord {
	rec := model.UsageRecord{
		ICCID:       u.ICCID,
		DataBytes:   u.Data,
		SmsSent:     u.SmsMO,
		SmsReceived: u.SmsMT,
	}
	if u.Nested != nil {
		if rec.DataBytes == 0 {
			rec.DataBytes = u.Nested.Data
		}
		if rec.SmsSent == 0 {
			rec.SmsSent = u.Nested.SmsMO
		}
		if rec.SmsReceived == 0 {
			rec.SmsReceived = u.Nested.SmsMT
		}
	}
	return rec
}

type smsJSON struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Message   string `json:"message"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	CreatedAt string `json:"created_at"`
}

func (m smsJSON) toMessage(iccid string) model.SmsMessage {
	dir, _ := model.ParseSmsDirection(m.Direction)
	return model.SmsMessage{
		ID:        m.ID,
		ICCID:     iccid,
		Direction: dir,
		Message:   firstNonEmpty(m.Message, m.Text),
		Timestamp: firstNonEmpty(m.Timestamp, m.CreatedAt),
	}
}

type eventJSON struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Event       string `json:"event"`
	ICCID       string `json:"iccid"`
	Description string `json:"description"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	CreatedAt   string `json:"created_at"`
}

func (e eventJSON) toEvent() model.Event {
	return model.Event{
		ID:          e.ID,
		Type:        firstNonEmpty(e.Type, e.Event),
		ICCID:       e.ICCID,
		Description: firstNonEmpty(e.Description, e.Message),
		Timestamp:   firstNonEmpty(e.Timestamp, e.CreatedAt),
	}
}

type balanceJSON struct {
	Balance  *float64 `json:"balance"`
	Currency string   `json:"currency"`
}

type accountJSON struct {
	Balance  *float64 `json:"balance"`
	Currency string   `json:"currency"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
