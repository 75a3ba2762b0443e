package deck

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartPollCapture(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/decks":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "org-1", body["organization_id"])
			json.NewEncoder(w).Encode(map[string]string{"job_id": "job-9"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/decks/job-9":
			json.NewEncoder(w).Encode(map[string]string{"status": "completed", "url": "https://decks/d9"})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/decks/job-9/capture":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	jobID, err := c.Start(ctx, "org-1", "opp-1")
	require.NoError(t, err)
	assert.Equal(t, "job-9", jobID)

	status, err := c.Poll(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, "https://decks/d9", status.URL)

	require.NoError(t, c.Capture(ctx, jobID, "org-1", "opp-1", "Campaigns", "Launch"))
	assert.Equal(t, "Campaigns", captured["folder"])
	assert.Equal(t, "Launch", captured["title"])
}

func TestStartRequiresJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Start(context.Background(), "org-1", "opp-1")
	assert.Error(t, err)
}

func TestNon2xxIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "job not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Poll(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
