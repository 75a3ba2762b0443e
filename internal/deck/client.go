// Package deck is the HTTP client for the slide-deck generation service.
// The service is opaque: a start call returns a job id, a status call is
// polled to a terminal state, and a capture call archives the finished deck.
package deck

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

	"pressline/internal/orchestrator"
)

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, Timeout: 15 * time.Second}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deck api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) Start(ctx context.Context, orgID, opportunityID string) (string, error) {
	body := map[string]any{
		"organization_id": orgID,
		"opportunity_id":  opportunityID,
	}
	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := c.do(ctx, http.MethodPost, "v1/decks", body, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("deck service returned no job id")
	}
	return resp.JobID, nil
}

func (c *Client) Poll(ctx context.Context, jobID string) (orchestrator.DeckStatus, error) {
	var resp struct {
		Status string `json:"status"`
		URL    string `json:"url"`
	}
	endpoint := fmt.Sprintf("v1/decks/%s", url.PathEscape(jobID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return orchestrator.DeckStatus{}, err
	}
	return orchestrator.DeckStatus{Status: resp.Status, URL: resp.URL}, nil
}

func (c *Client) Capture(ctx context.Context, jobID, orgID, opportunityID, folder, title string) error {
	body := map[string]any{
		"organization_id": orgID,
		"opportunity_id":  opportunityID,
		"folder":          folder,
		"title":           title,
	}
	endpoint := fmt.Sprintf("v1/decks/%s/capture", url.PathEscape(jobID))
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
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
	if c.APIKey != "" {
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
