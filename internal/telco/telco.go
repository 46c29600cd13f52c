// Package telco implements the REST client for the external voice/SMS
// provider. The provider owns true call and message state; everything here
// is a thin, E.164-normalizing wrapper around its HTTP API.
package telco

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// inboundPageSize is the page size requested on every inbound message query.
const inboundPageSize = 100

// API abstracts the provider operations used by the call coordinator and
// the message poller, enabling test mocks.
type API interface {
	// CreateCall places an outbound call to the given number and returns
	// the provider's call control ID.
	CreateCall(ctx context.Context, to string) (string, error)

	// CallStatus reports the provider's current view of a call.
	CallStatus(ctx context.Context, callID string) (CallStatus, error)

	// Hangup asks the provider to tear down an active call.
	Hangup(ctx context.Context, callID string) error

	// SendMessage sends an outbound SMS and returns the provider message ID.
	SendMessage(ctx context.Context, to, text string) (string, error)

	// ListInbound fetches inbound messages addressed to the configured
	// source number.
	ListInbound(ctx context.Context) ([]InboundMessage, error)
}

// CallStatus is the provider's view of a single call.
type CallStatus struct {
	Status       string `json:"status"`
	DurationSecs int    `json:"duration_secs"`
}

// Ended reports whether the provider considers the call over.
func (s CallStatus) Ended() bool {
	return s.Status == "completed" || s.Status == "hangup"
}

// InboundMessage is a single inbound SMS as returned by the provider.
type InboundMessage struct {
	ID     string    `json:"id"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// APIError is a non-2xx response from the provider. Callers treat these as
// terminal for the attempt; they are never retried automatically.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telco: provider returned %d: %s", e.StatusCode, e.Body)
}

// Client is the production API implementation.
type Client struct {
	baseURL      string
	apiKey       string
	profileID    string
	sourceNumber string
	httpClient   *http.Client
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	BaseURL            string
	APIKey             string
	MessagingProfileID string
	SourceNumber       string
	HTTPClient         *http.Client // optional; defaults to a 15s-timeout client
}

// NewClient creates a provider Client.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("telco: base URL is required")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("telco: API key is required")
	}
	if opts.SourceNumber == "" {
		return nil, fmt.Errorf("telco: source number is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		apiKey:       opts.APIKey,
		profileID:    opts.MessagingProfileID,
		sourceNumber: FormatE164(opts.SourceNumber),
		httpClient:   hc,
	}, nil
}

// FormatE164 normalizes a phone number to E.164. Numbers already carrying
// a leading + pass through unchanged; 10-digit US numbers get a +1 prefix;
// 11-digit numbers with a leading 1 get a + prefix.
func FormatE164(number string) string {
	trimmed := strings.TrimSpace(number)
	if strings.HasPrefix(trimmed, "+") {
		return trimmed
	}
	var b strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	default:
		return "+" + digits
	}
}

type createCallRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
}

type createCallResponse struct {
	CallControlID string `json:"call_control_id"`
}

// CreateCall places an outbound call.
func (c *Client) CreateCall(ctx context.Context, to string) (string, error) {
	body := createCallRequest{To: FormatE164(to), From: c.sourceNumber}
	var resp createCallResponse
	if err := c.do(ctx, http.MethodPost, "/calls", body, &resp); err != nil {
		return "", fmt.Errorf("telco: create call: %w", err)
	}
	if resp.CallControlID == "" {
		return "", fmt.Errorf("telco: create call: provider returned no call_control_id")
	}
	return resp.CallControlID, nil
}

// CallStatus queries the provider for the current state of a call.
func (c *Client) CallStatus(ctx context.Context, callID string) (CallStatus, error) {
	var resp CallStatus
	path := "/calls/" + url.PathEscape(callID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return CallStatus{}, fmt.Errorf("telco: call status: %w", err)
	}
	return resp, nil
}

// Hangup requests provider-side teardown of a call.
func (c *Client) Hangup(ctx context.Context, callID string) error {
	path := "/calls/" + url.PathEscape(callID) + "/actions/hangup"
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, nil); err != nil {
		return fmt.Errorf("telco: hangup: %w", err)
	}
	return nil
}

type sendMessageRequest struct {
	From               string `json:"from"`
	To                 string `json:"to"`
	Text               string `json:"text"`
	MessagingProfileID string `json:"messaging_profile_id"`
}

type sendMessageResponse struct {
	ID string `json:"id"`
}

// SendMessage sends an outbound SMS.
func (c *Client) SendMessage(ctx context.Context, to, text string) (string, error) {
	body := sendMessageRequest{
		From:               c.sourceNumber,
		To:                 FormatE164(to),
		Text:               text,
		MessagingProfileID: c.profileID,
	}
	var resp sendMessageResponse
	if err := c.do(ctx, http.MethodPost, "/messages", body, &resp); err != nil {
		return "", fmt.Errorf("telco: send message: %w", err)
	}
	return resp.ID, nil
}

// ListInbound fetches inbound messages addressed to the source number.
// Filtering against the poll cursor happens caller-side; the provider API
// only filters by direction and recipient.
func (c *Client) ListInbound(ctx context.Context) ([]InboundMessage, error) {
	q := url.Values{}
	q.Set("filter[direction]", "inbound")
	q.Add("filter[to][]", c.sourceNumber)
	q.Set("page[size]", fmt.Sprintf("%d", inboundPageSize))

	var resp []InboundMessage
	if err := c.do(ctx, http.MethodGet, "/messages?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("telco: list inbound: %w", err)
	}
	return resp, nil
}

// do performs one provider request. Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if dst != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
