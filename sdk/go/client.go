package bountywizardsdk

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

// Client is a minimal Bounty Wizard HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no bearer token is set. Servers accept it
	// only when legacy actor headers are enabled.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// FieldError is one field-level violation.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Progress mirrors the server's step progress.
type Progress struct {
	CurrentStep    int             `json:"current_step"`
	CompletedSteps map[string]bool `json:"completed_steps"`
}

// State is a wizard session snapshot.
type State struct {
	SessionID  string         `json:"session_id"`
	Draft      map[string]any `json:"draft"`
	Progress   Progress       `json:"progress"`
	View       string         `json:"view"`
	Navigable  []int          `json:"navigable_steps"`
	Submitting bool           `json:"submitting"`
}

// Session is a created wizard session.
type Session struct {
	ID    string `json:"id"`
	State State  `json:"state"`
}

// Field assigns Value to Path. A nil Value clears the field.
type Field struct {
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// Validation is the outcome of validating one step.
type Validation struct {
	Step   int          `json:"step"`
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors"`
}

// Submission is a stored bounty.
type Submission struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"session_id"`
	ActorID        string         `json:"actor_id"`
	Title          string         `json:"title"`
	Type           string         `json:"type"`
	RewardCurrency string         `json:"reward_currency"`
	RewardAmount   float64        `json:"reward_amount"`
	Bounty         map[string]any `json:"bounty"`
	CreatedAt      string         `json:"created_at"`
}

// Result is the result screen content.
type Result struct {
	View       string `json:"view"`
	Redirected bool   `json:"redirected"`
	JSON       string `json:"json"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// PaginatedSubmissions wraps list responses with cursors.
type PaginatedSubmissions struct {
	Items      []Submission `json:"items"`
	NextCursor string       `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// FieldErrors extracts field violations from a validation_failed error.
func (e *APIError) FieldErrors() []FieldError {
	raw, ok := e.Details["errors"]
	if !ok {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var out []FieldError
	_ = json.Unmarshal(b, &out)
	return out
}

// DevLogin exchanges an actor id for a bearer token and stores it on the client.
func (c *Client) DevLogin(ctx context.Context, actorID string, ttl time.Duration) (string, error) {
	body := map[string]any{"actor_id": actorID}
	if ttl > 0 {
		body["ttl_seconds"] = int(ttl.Seconds())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", nil, body, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

// CreateSession starts a new wizard session.
func (c *Client) CreateSession(ctx context.Context) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "wizard/sessions", nil, nil, &resp)
	return resp, err
}

// GetSession returns the current state of a session.
func (c *Client) GetSession(ctx context.Context, id string) (State, error) {
	var resp State
	err := c.do(ctx, http.MethodGet, c.sessionPath(id, ""), nil, nil, &resp)
	return resp, err
}

// DeleteSession discards a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.sessionPath(id, ""), nil, nil, nil)
}

// ResetSession clears the draft and progress of a session.
func (c *Client) ResetSession(ctx context.Context, id string) (State, error) {
	var resp State
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "reset"), nil, nil, &resp)
	return resp, err
}

// SetFields applies fields in order.
func (c *Client) SetFields(ctx context.Context, id string, fields ...Field) (State, error) {
	var resp State
	err := c.do(ctx, http.MethodPatch, c.sessionPath(id, "fields"), nil, map[string]any{"fields": fields}, &resp)
	return resp, err
}

// Field reads one path from the draft.
func (c *Client) Field(ctx context.Context, id, path string) (any, bool, error) {
	var resp struct {
		Present bool `json:"present"`
		Value   any  `json:"value"`
	}
	q := url.Values{"path": []string{path}}
	err := c.do(ctx, http.MethodGet, c.sessionPath(id, "fields"), q, nil, &resp)
	return resp.Value, resp.Present, err
}

// ToggleSDG adds tag to the SDG list, or removes it when present.
func (c *Client) ToggleSDG(ctx context.Context, id, tag string) ([]string, error) {
	var resp struct {
		SDGs []string `json:"sdgs"`
	}
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "sdgs/toggle"), nil, map[string]any{"tag": tag}, &resp)
	return resp.SDGs, err
}

// ValidateStep reports every violation of step without changing the session.
func (c *Client) ValidateStep(ctx context.Context, id string, step int) (Validation, error) {
	var resp struct {
		Validation Validation `json:"validation"`
	}
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, fmt.Sprintf("steps/%d/validate", step)), nil, nil, &resp)
	return resp.Validation, err
}

// MarkStepCompleted sets the completion flag of step.
func (c *Client) MarkStepCompleted(ctx context.Context, id string, step int, completed bool) (State, error) {
	var resp State
	err := c.do(ctx, http.MethodPut, c.sessionPath(id, fmt.Sprintf("steps/%d/completed", step)), nil, map[string]any{"completed": completed}, &resp)
	return resp, err
}

// Advance validates the current step and moves on. A failed validation returns an
// *APIError whose FieldErrors lists the violations.
func (c *Client) Advance(ctx context.Context, id string) (string, error) {
	var resp struct {
		View string `json:"view"`
	}
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "advance"), nil, nil, &resp)
	return resp.View, err
}

// Back moves one view back.
func (c *Client) Back(ctx context.Context, id string) (string, error) {
	var resp struct {
		View string `json:"view"`
	}
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "back"), nil, nil, &resp)
	return resp.View, err
}

// Navigate jumps to target and reports whether the server redirected.
func (c *Client) Navigate(ctx context.Context, id, target string) (string, bool, error) {
	var resp struct {
		View       string `json:"view"`
		Redirected bool   `json:"redirected"`
	}
	err := c.do(ctx, http.MethodPost, c.sessionPath(id, "navigate"), nil, map[string]any{"target": target}, &resp)
	return resp.View, resp.Redirected, err
}

// Submit sends the completed bounty. A non-empty idempotencyKey makes retries safe.
func (c *Client) Submit(ctx context.Context, id, idempotencyKey string) (Submission, error) {
	var resp struct {
		Submission Submission `json:"submission"`
	}
	headers := http.Header{}
	if idempotencyKey != "" {
		headers.Set("Idempotency-Key", idempotencyKey)
	}
	err := c.doWithHeaders(ctx, http.MethodPost, c.sessionPath(id, "submit"), nil, nil, headers, &resp)
	return resp.Submission, err
}

// Result returns the result screen.
func (c *Client) Result(ctx context.Context, id string) (Result, error) {
	var resp Result
	err := c.do(ctx, http.MethodGet, c.sessionPath(id, "result"), nil, nil, &resp)
	return resp, err
}

// Bounties lists submitted bounties of the caller.
func (c *Client) Bounties(ctx context.Context, limit int, cursor string) (PaginatedSubmissions, error) {
	var resp PaginatedSubmissions
	err := c.do(ctx, http.MethodGet, "bounties", pageQuery(limit, cursor), nil, &resp)
	return resp, err
}

// Bounty fetches one submitted bounty.
func (c *Client) Bounty(ctx context.Context, id string) (Submission, error) {
	var resp Submission
	err := c.do(ctx, http.MethodGet, "bounties/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, "events", pageQuery(limit, cursor), nil, &resp)
	return resp, err
}

func pageQuery(limit int, cursor string) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return q
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body any, out any) error {
	return c.doWithHeaders(ctx, method, endpoint, query, body, nil, out)
}

func (c *Client) doWithHeaders(ctx context.Context, method, endpoint string, query url.Values, body any, headers http.Header, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header[k] = v
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) sessionPath(id, p string) string {
	out := "wizard/sessions/" + url.PathEscape(id)
	if p != "" {
		out += "/" + strings.TrimLeft(p, "/")
	}
	return out
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if bp := strings.Trim(c.BasePath, "/"); bp != "" {
		base += "/" + bp
	}
	return base
}
