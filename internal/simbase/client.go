package simbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jmehdipour/simbase-hub/internal/metrics"
	"github.com/jmehdipour/simbase-hub/internal/model"
)

const DefaultBaseURL = "https://api.simbase.com/v2"

// Limiter gates every outbound request.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Opts configures the client. Zero values fall back to production defaults.
type Opts struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	PageSize   int
	MaxPages   int
	Retry      RetryConfig
	HTTPClient *http.Client // optional; tests inject a stub transport
}

// Client is a typed wrapper over the Simbase v2 REST API. One logical
// operation maps to one rate-limited HTTP call, except listing, which
// drains every cursor page sequentially.
type Client struct {
	baseURL  string
	apiKey   string
	hc       *http.Client
	limiter  Limiter
	pageSize int
	maxPages int
	retry    RetryConfig
	log      *zap.Logger
}

func New(o Opts, limiter Limiter, log *zap.Logger) *Client {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 50
	}
	if o.Retry.Attempts <= 0 {
		o.Retry = defaultRetry()
	}
	if o.Retry.Multiplier <= 0 {
		o.Retry.Multiplier = 2.0
	}
	if log == nil {
		log = zap.NewNop()
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	}
	return &Client{
		baseURL:  o.BaseURL,
		apiKey:   o.APIKey,
		hc:       hc,
		limiter:  limiter,
		pageSize: o.PageSize,
		maxPages: o.MaxPages,
		retry:    o.Retry,
		log:      log,
	}
}

// ListSims drains the full SIM inventory. Records come back sorted by ICCID;
// a duplicate ICCID within the listing collapses to its last occurrence.
func (c *Client) ListSims(ctx context.Context) ([]model.SimRecord, error) {
	var (
		out    []model.SimRecord
		cursor string
		seen   = make(map[string]int)
	)
	for page := 1; ; page++ {
		if page > c.maxPages {
			return nil, fmt.Errorf("%w: gave up after %d pages", ErrTooManyPages, c.maxPages)
		}
		q := url.Values{"limit": []string{strconv.Itoa(c.pageSize)}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var resp listEnvelope[simJSON]
		if err := c.do(ctx, "list_sims", "", http.MethodGet, "/simcards", q, nil, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			rec := item.toRecord()
			if rec.ICCID == "" {
				c.log.Debug("skipping simcard without iccid")
				continue
			}
			if i, dup := seen[rec.ICCID]; dup {
				out[i] = rec
				continue
			}
			seen[rec.ICCID] = len(out)
			out = append(out, rec)
		}
		if !resp.HasMore || resp.Cursor == "" {
			break
		}
		cursor = resp.Cursor
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ICCID < out[j].ICCID })
	c.log.Debug("sim inventory fetched", zap.Int("count", len(out)))
	return out, nil
}

// ListUsage fetches the per-SIM usage figures, keyed by ICCID. Callers use
// it to enrich records whose simcard payload lacks usage blocks.
func (c *Client) ListUsage(ctx context.Context) (map[string]model.UsageRecord, error) {
	out := make(map[string]model.UsageRecord)
	var cursor string
	for page := 1; ; page++ {
		if page > c.maxPages {
			return nil, fmt.Errorf("%w: gave up after %d pages", ErrTooManyPages, c.maxPages)
		}
		q := url.Values{"limit": []string{strconv.Itoa(c.pageSize)}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var resp listEnvelope[usageRowJSON]
		if err := c.do(ctx, "list_usage", "", http.MethodGet, "/usage/simcards", q, nil, &resp); err != nil {
			return nil, err
		}
		for _, row := range resp.Items {
			rec := row.toRecord()
			if rec.ICCID == "" {
				continue
			}
			out[rec.ICCID] = rec
		}
		if !resp.HasMore || resp.Cursor == "" {
			break
		}
		cursor = resp.Cursor
	}
	return out, nil
}

// GetAccountBalance returns the account balance, or (nil, "", nil) when the
// account tier does not expose one. A 403/404 is unavailability, not an
// error; on unavailability the account document is tried as a fallback.
func (c *Client) GetAccountBalance(ctx context.Context) (*float64, string, error) {
	var resp balanceJSON
	err := c.do(ctx, "get_balance", "", http.MethodGet, "/account/balance", nil, nil, &resp)
	if err == nil {
		if resp.Balance == nil {
			return nil, "", nil
		}
		return resp.Balance, firstNonEmpty(resp.Currency, "USD"), nil
	}
	if !isUnavailable(err) {
		return nil, "", err
	}

	var acct accountJSON
	if err := c.do(ctx, "get_account", "", http.MethodGet, "/account", nil, nil, &acct); err != nil {
		if isUnavailable(err) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if acct.Balance == nil {
		return nil, "", nil
	}
	return acct.Balance, firstNonEmpty(acct.Currency, "USD"), nil
}

// SetSimActive flips a SIM's activation state.
func (c *Client) SetSimActive(ctx context.Context, iccid string, active bool) error {
	action := "deactivate"
	if active {
		action = "activate"
	}
	path := "/simcards/" + url.PathEscape(iccid) + "/" + action
	return c.do(ctx, action+"_sim", iccid, http.MethodPost, path, nil, nil, nil)
}

// SendSms delivers one message to a SIM.
func (c *Client) SendSms(ctx context.Context, iccid, message string) error {
	path := "/simcards/" + url.PathEscape(iccid) + "/sms"
	body := map[string]string{"message": message}
	return c.do(ctx, "send_sms", iccid, http.MethodPost, path, nil, body, nil)
}

// ReadSms returns the messages stored on a SIM.
func (c *Client) ReadSms(ctx context.Context, iccid string) ([]model.SmsMessage, error) {
	path := "/simcards/" + url.PathEscape(iccid) + "/sms"
	var resp listEnvelope[smsJSON]
	if err := c.do(ctx, "read_sms", iccid, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.SmsMessage, 0, len(resp.Items))
	for _, m := range resp.Items {
		out = append(out, m.toMessage(iccid))
	}
	return out, nil
}

// GetEvents returns one page of the account event feed plus the cursor for
// the next page, empty once the feed is drained. since narrows the feed to
// events after the given marker.
func (c *Client) GetEvents(ctx context.Context, since, cursor string) ([]model.Event, string, error) {
	q := url.Values{}
	if since != "" {
		q.Set("since", since)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp listEnvelope[eventJSON]
	if err := c.do(ctx, "get_events", "", http.MethodGet, "/events", q, nil, &resp); err != nil {
		return nil, "", err
	}
	out := make([]model.Event, 0, len(resp.Items))
	for _, e := range resp.Items {
		out = append(out, e.toEvent())
	}
	if !resp.HasMore {
		return out, "", nil
	}
	return out, resp.Cursor, nil
}

// UpdateSim patches a SIM's name or tags. Unset fields are not sent, so the
// remote leaves them alone.
func (c *Client) UpdateSim(ctx context.Context, iccid string, upd model.SimUpdate) error {
	body := map[string]any{}
	if upd.Name != nil {
		body["name"] = *upd.Name
	}
	if upd.Tags != nil {
		body["tags"] = upd.Tags
	}
	path := "/simcards/" + url.PathEscape(iccid)
	return c.do(ctx, "update_sim", iccid, http.MethodPatch, path, nil, body, nil)
}

// GetSim fetches a single SIM by ICCID.
func (c *Client) GetSim(ctx context.Context, iccid string) (model.SimRecord, error) {
	var resp simJSON
	path := "/simcards/" + url.PathEscape(iccid)
	if err := c.do(ctx, "get_sim", iccid, http.MethodGet, path, nil, nil, &resp); err != nil {
		return model.SimRecord{}, err
	}
	return resp.toRecord(), nil
}

// ValidateKey probes the API with a single-page listing. It reports false
// only on an authentication rejection; other failures do not prove the key
// bad and come back as the error.
func (c *Client) ValidateKey(ctx context.Context) (bool, error) {
	q := url.Values{"limit": []string{"1"}}
	var resp listEnvelope[simJSON]
	err := c.do(ctx, "validate_key", "", http.MethodGet, "/simcards", q, nil, &resp)
	if errors.Is(err, ErrAuth) {
		return false, nil
	}
	if err != nil {
		return true, err
	}
	return true, nil
}

// do runs one logical operation with retry, attaching op and ICCID to any
// remote failure and counting the outcome.
func (c *Client) do(ctx context.Context, op, iccid, method, path string, query url.Values, body, out any) error {
	err := withRetry(ctx, c.retry, c.log, op, func() error {
		return c.doOnce(ctx, method, path, query, body, out)
	})
	if err != nil {
		var ae *APIError
		if errors.As(err, &ae) {
			ae.Op = op
			ae.ICCID = iccid
		}
		metrics.APIRequestsTotal.WithLabelValues(op, "error").Inc()
		return err
	}
	metrics.APIRequestsTotal.WithLabelValues(op, "ok").Inc()
	return nil
}

// doOnce performs exactly one rate-limited HTTP round trip.
func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrAuth
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
