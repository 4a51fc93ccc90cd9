package hirelinesdk

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

// Client is a minimal Hireline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Application represents the API application model.
type Application struct {
	ID                 string   `json:"id"`
	JobID              string   `json:"job_id"`
	CandidateID        string   `json:"candidate_id"`
	Status             string   `json:"status"`
	MatchScore         *float64 `json:"match_score,omitempty"`
	ViewedByEmployerAt *string  `json:"viewed_by_employer_at,omitempty"`
	CreatedAt          string   `json:"created_at"`
}

// HistoryEntry represents one status ledger row.
type HistoryEntry struct {
	ID            int64   `json:"id"`
	ApplicationID string  `json:"application_id"`
	FromStatus    *string `json:"from_status,omitempty"`
	ToStatus      string  `json:"to_status"`
	Note          string  `json:"note,omitempty"`
	ChangedBy     string  `json:"changed_by"`
	CreatedAt     string  `json:"created_at"`
}

// Activity represents one activity log entry.
type Activity struct {
	ID            int64          `json:"id"`
	Type          string         `json:"type"`
	Actor         string         `json:"actor"`
	EmployerID    string         `json:"employer_id"`
	CandidateID   string         `json:"candidate_id"`
	JobID         string         `json:"job_id"`
	ApplicationID string         `json:"application_id,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

// Conversation represents a messaging thread.
type Conversation struct {
	ID          string `json:"id"`
	JobID       string `json:"job_id"`
	EmployerID  string `json:"employer_id"`
	CandidateID string `json:"candidate_id"`
	CreatedAt   string `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SubmitApplication submits a candidate's application to a job.
func (c *Client) SubmitApplication(ctx context.Context, jobID, candidateID string, matchScore *float64) (Application, error) {
	body := map[string]any{"candidate_id": candidateID}
	if matchScore != nil {
		body["match_score"] = *matchScore
	}
	var resp Application
	endpoint := fmt.Sprintf("v1/jobs/%s/applications", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// UpdateOptions carries a partial application update.
type UpdateOptions struct {
	ToStatus   string
	Note       string
	MarkViewed bool
}

// UpdateApplication records a view, a status change, or both.
func (c *Client) UpdateApplication(ctx context.Context, id string, opts UpdateOptions) (Application, error) {
	body := map[string]any{}
	if opts.ToStatus != "" {
		body["to_status"] = opts.ToStatus
	}
	if opts.Note != "" {
		body["note"] = opts.Note
	}
	if opts.MarkViewed {
		body["mark_viewed"] = true
	}
	var resp Application
	endpoint := fmt.Sprintf("v1/applications/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// GetApplication fetches an application.
func (c *Client) GetApplication(ctx context.Context, id string) (Application, error) {
	var resp struct {
		Application Application `json:"application"`
	}
	endpoint := fmt.Sprintf("v1/applications/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Application, err
}

// History returns the status ledger for an application, most recent first.
func (c *Client) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	var resp []HistoryEntry
	endpoint := fmt.Sprintf("v1/applications/%s/history", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Activity returns recent activity entries.
func (c *Client) Activity(ctx context.Context, applicationID string, limit int) ([]Activity, error) {
	endpoint := "v1/activity"
	params := url.Values{}
	if applicationID != "" {
		params.Set("application_id", applicationID)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp []Activity
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// StartConversation finds or creates the thread for a job and candidate.
func (c *Client) StartConversation(ctx context.Context, jobID, employerID, candidateID string) (Conversation, error) {
	body := map[string]any{
		"job_id":       jobID,
		"candidate_id": candidateID,
	}
	if employerID != "" {
		body["employer_id"] = employerID
	}
	var resp Conversation
	err := c.do(ctx, http.MethodPost, "v1/conversations", body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
