package presslinesdk

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

// Client is a minimal Pressline HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// StakeholderCampaign mirrors one stakeholder/lever pairing in a plan.
type StakeholderCampaign struct {
	StakeholderName     string               `json:"stakeholder_name"`
	StakeholderPriority int                  `json:"stakeholder_priority,omitempty"`
	LeverName           string               `json:"lever_name"`
	LeverPriority       int                  `json:"lever_priority,omitempty"`
	ContentItems        []ContentRequirement `json:"content_items"`
}

// ContentRequirement is one planned content deliverable.
type ContentRequirement struct {
	Type        string   `json:"type"`
	Stakeholder string   `json:"stakeholder"`
	Purpose     string   `json:"purpose,omitempty"`
	KeyPoints   []string `json:"key_points,omitempty"`
	Urgency     string   `json:"urgency,omitempty"`
}

// Opportunity represents the API opportunity model.
type Opportunity struct {
	ID              string                `json:"id"`
	OrgID           string                `json:"org_id"`
	Title           string                `json:"title"`
	Status          string                `json:"status"`
	Executed        bool                  `json:"executed"`
	PresentationURL *string               `json:"presentation_url,omitempty"`
	Objective       string                `json:"objective,omitempty"`
	KeyMessages     []string              `json:"key_messages,omitempty"`
	Timeline        string                `json:"timeline,omitempty"`
	ExecutionPlan   []StakeholderCampaign `json:"execution_plan,omitempty"`
	CreatedAt       string                `json:"created_at"`
	UpdatedAt       string                `json:"updated_at"`
}

// Asset represents a generated campaign asset.
type Asset struct {
	ID            string `json:"id"`
	OpportunityID string `json:"opportunity_id"`
	Type          string `json:"type"`
	Lane          string `json:"lane"`
	Stakeholder   string `json:"stakeholder,omitempty"`
	Title         string `json:"title"`
	Body          string `json:"body,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// Run represents one execution run.
type Run struct {
	ID              string  `json:"id"`
	OpportunityID   string  `json:"opportunity_id"`
	Success         bool    `json:"success"`
	AssetCount      int     `json:"asset_count"`
	PresentationURL *string `json:"presentation_url,omitempty"`
	Error           string  `json:"error,omitempty"`
	StartedAt       string  `json:"started_at"`
	FinishedAt      string  `json:"finished_at"`
}

// Execution is the response to an execute request.
type Execution struct {
	RunID         string  `json:"run_id"`
	OpportunityID string  `json:"opportunity_id"`
	Phase         string  `json:"phase"`
	Percent       float64 `json:"percent"`
}

// Progress reports the state of a run.
type Progress struct {
	Running bool    `json:"running"`
	Phase   string  `json:"phase"`
	Percent float64 `json:"percent"`
	Result  *struct {
		Success         bool    `json:"success"`
		AssetCount      int     `json:"asset_count"`
		PresentationURL *string `json:"presentation_url,omitempty"`
		Error           string  `json:"error,omitempty"`
	} `json:"result,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Payload    string `json:"payload_json"`
}

// EventPage wraps event listings with a cursor.
type EventPage struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateOpportunity creates an opportunity.
func (c *Client) CreateOpportunity(ctx context.Context, opp Opportunity) (Opportunity, error) {
	var resp Opportunity
	err := c.do(ctx, http.MethodPost, "opportunities", opp, &resp)
	return resp, err
}

// Opportunity fetches one opportunity by id.
func (c *Client) Opportunity(ctx context.Context, id string) (Opportunity, error) {
	var resp Opportunity
	err := c.do(ctx, http.MethodGet, "opportunities/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Opportunities lists opportunities, optionally filtered by status.
func (c *Client) Opportunities(ctx context.Context, status string) ([]Opportunity, error) {
	endpoint := "opportunities"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []Opportunity `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Execute starts a campaign run for an opportunity.
func (c *Client) Execute(ctx context.Context, id string) (Execution, error) {
	var resp Execution
	err := c.do(ctx, http.MethodPost, "opportunities/"+url.PathEscape(id)+"/execute", nil, &resp)
	return resp, err
}

// Progress reports a run's progress.
func (c *Client) Progress(ctx context.Context, id string) (Progress, error) {
	var resp Progress
	err := c.do(ctx, http.MethodGet, "opportunities/"+url.PathEscape(id)+"/progress", nil, &resp)
	return resp, err
}

// Assets lists the generated assets for an opportunity.
func (c *Client) Assets(ctx context.Context, id string) ([]Asset, error) {
	var resp struct {
		Items []Asset `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "opportunities/"+url.PathEscape(id)+"/assets", nil, &resp)
	return resp.Items, err
}

// Runs lists the execution runs for an opportunity.
func (c *Client) Runs(ctx context.Context, id string) ([]Run, error) {
	var resp struct {
		Items []Run `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "opportunities/"+url.PathEscape(id)+"/runs", nil, &resp)
	return resp.Items, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (EventPage, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp EventPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/v0/" + strings.TrimLeft(endpoint, "/")
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
