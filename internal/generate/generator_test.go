package generate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pressline/internal/config"
	"pressline/internal/domain"
	"pressline/internal/orchestrator"
)

type memAssets struct {
	mu     sync.Mutex
	assets []domain.GeneratedAsset
	err    error
}

func (m *memAssets) InsertAsset(ctx context.Context, a domain.GeneratedAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.assets = append(m.assets, a)
	return nil
}

func (m *memAssets) visible() []domain.GeneratedAsset {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GeneratedAsset
	for _, a := range m.assets {
		if !a.Internal {
			out = append(out, a)
		}
	}
	return out
}

func testRequest() orchestrator.DispatchRequest {
	return orchestrator.DispatchRequest{
		Opportunity: domain.Opportunity{
			ID: "opp-1", OrgID: "org-1", Title: "Launch",
			Objective:   "Land the launch story",
			KeyMessages: []string{"fast", "safe"},
		},
		Owned: []domain.ContentRequirement{
			{Type: "blog_post", Stakeholder: "Customers"},
			{Type: "email_campaign", Stakeholder: "Customers"},
		},
		Media: []domain.ContentRequirement{
			{Type: "press_release", Stakeholder: "Press"},
		},
	}
}

func newTestGenerator(store *memAssets, text TextFunc) *Generator {
	return &Generator{
		Cfg:    config.Default("org-1"),
		Assets: store,
		Text:   text,
		Log:    zap.NewNop(),
		Now:    func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestDispatchGeneratesAndPersists(t *testing.T) {
	store := &memAssets{}
	g := newTestGenerator(store, func(ctx context.Context, model, prompt string) (string, error) {
		assert.Equal(t, "gemini-2.5-flash", model)
		return "generated body", nil
	})

	res, err := g.Dispatch(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, res.AssetCount)
	assert.Empty(t, res.Failed)

	visible := store.visible()
	require.Len(t, visible, 3)
	lanes := map[string]int{}
	for _, a := range visible {
		lanes[a.Lane]++
		assert.Equal(t, "generated body", a.Body)
		assert.Equal(t, "opp-1", a.OpportunityID)
		assert.NotEmpty(t, a.ID)
	}
	assert.Equal(t, 2, lanes[domain.LaneOwned])
	assert.Equal(t, 1, lanes[domain.LaneMedia])
}

func TestDispatchArchivesPlanOverviewAsInternal(t *testing.T) {
	store := &memAssets{}
	g := newTestGenerator(store, func(ctx context.Context, model, prompt string) (string, error) {
		return "body", nil
	})

	_, err := g.Dispatch(context.Background(), testRequest())
	require.NoError(t, err)

	var overview *domain.GeneratedAsset
	for i, a := range store.assets {
		if a.Internal {
			overview = &store.assets[i]
		}
	}
	require.NotNil(t, overview)
	assert.Equal(t, "plan_overview", overview.Type)
	assert.Contains(t, overview.Body, "press_release")
	// internal artifacts never count toward the campaign
	assert.Len(t, store.visible(), 3)
}

func TestDispatchPartialFailureIsSurfacedNotFatal(t *testing.T) {
	store := &memAssets{}
	g := newTestGenerator(store, func(ctx context.Context, model, prompt string) (string, error) {
		if strings.Contains(prompt, "press release") {
			return "", errors.New("model overloaded")
		}
		return "body", nil
	})

	res, err := g.Dispatch(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, res.AssetCount)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[0], "press_release")
}

func TestDispatchAllFailedIsError(t *testing.T) {
	store := &memAssets{}
	g := newTestGenerator(store, func(ctx context.Context, model, prompt string) (string, error) {
		return "", errors.New("model overloaded")
	})

	_, err := g.Dispatch(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no assets")
}

func TestDispatchEmptyBatch(t *testing.T) {
	store := &memAssets{}
	g := newTestGenerator(store, func(ctx context.Context, model, prompt string) (string, error) {
		t.Fatal("model should not be called")
		return "", nil
	})

	res, err := g.Dispatch(context.Background(), orchestrator.DispatchRequest{
		Opportunity: domain.Opportunity{ID: "opp-1", OrgID: "org-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.AssetCount)
	assert.Empty(t, store.assets)
}

func TestPromptCarriesStrategicContext(t *testing.T) {
	req := testRequest()
	prompt := buildPrompt(req.Opportunity, domain.ContentRequirement{
		Type: "press_release", Stakeholder: "Press", Purpose: "announce", KeyPoints: []string{"funding round"}, Urgency: "high",
	}, domain.LaneMedia)

	assert.Contains(t, prompt, "Launch")
	assert.Contains(t, prompt, "Land the launch story")
	assert.Contains(t, prompt, "press release")
	assert.Contains(t, prompt, "Press")
	assert.Contains(t, prompt, "funding round")
	assert.Contains(t, prompt, "high")
}
