package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pressline/internal/db"
	"pressline/internal/domain"
	"pressline/internal/events"
	"pressline/internal/migrate"
	"pressline/internal/repo"
)

type testEnv struct {
	Repo   repo.Repo
	Events events.Writer
	Ctx    context.Context
	Now    string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := repo.Repo{DB: conn}
	ev := events.Writer{DB: conn, Now: func() time.Time { return fixed }}
	ctx := context.Background()
	now := fixed.Format(time.RFC3339)
	if err := r.EnsureOrg(ctx, nil, "org-1", "Test Org", now); err != nil {
		t.Fatalf("ensure org: %v", err)
	}
	return testEnv{Repo: r, Events: ev, Ctx: ctx, Now: now}
}

func sampleOpportunity(id string) domain.Opportunity {
	return domain.Opportunity{
		ID: id, OrgID: "org-1", Title: "Launch", Status: domain.StatusActive,
		Objective:   "Own the story",
		KeyMessages: []string{"fast", "safe"},
		ExecutionPlan: []domain.StakeholderCampaign{
			{StakeholderName: "Press", LeverName: "coverage", ContentItems: []domain.ContentRequirement{
				{Type: "press_release", Stakeholder: "Press", KeyPoints: []string{"funding"}},
			}},
		},
		CreatedAt: "2026-01-01T00:00:00Z",
		UpdatedAt: "2026-01-01T00:00:00Z",
	}
}

func TestOpportunityRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	opp := sampleOpportunity("opp-1")
	if err := env.Repo.InsertOpportunity(env.Ctx, opp); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := env.Repo.GetOpportunity(env.Ctx, "opp-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Launch" || len(got.KeyMessages) != 2 || len(got.ExecutionPlan) != 1 {
		t.Fatalf("unexpected opportunity: %+v", got)
	}
	if got.ExecutionPlan[0].ContentItems[0].KeyPoints[0] != "funding" {
		t.Fatalf("plan did not round trip: %+v", got.ExecutionPlan)
	}
	if got.PresentationURL != nil || got.Executed {
		t.Fatalf("fresh opportunity should not be executed: %+v", got)
	}

	if _, err := env.Repo.GetOpportunity(env.Ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOpportunitiesFilters(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"opp-1", "opp-2"} {
		if err := env.Repo.InsertOpportunity(env.Ctx, sampleOpportunity(id)); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	if err := env.Repo.SetOpportunityStatus(env.Ctx, "opp-2", domain.StatusExecuting, env.Now); err != nil {
		t.Fatalf("set status: %v", err)
	}

	active, err := env.Repo.ListOpportunities(env.Ctx, repo.OpportunityFilters{OrgID: "org-1", Status: domain.StatusActive})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 || active[0].ID != "opp-1" {
		t.Fatalf("unexpected active list: %+v", active)
	}

	all, err := env.Repo.ListOpportunities(env.Ctx, repo.OpportunityFilters{OrgID: "org-1"})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2, got %d", len(all))
	}
}

func TestFinalizeOpportunity(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Repo.InsertOpportunity(env.Ctx, sampleOpportunity("opp-1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	tx, err := env.Repo.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	url := "https://decks/d1"
	if err := env.Repo.FinalizeOpportunity(env.Ctx, tx, "opp-1", &url, env.Now); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, err := env.Repo.GetOpportunity(env.Ctx, "opp-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusExecuted || !got.Executed {
		t.Fatalf("expected executed, got %+v", got)
	}
	if got.PresentationURL == nil || *got.PresentationURL != url {
		t.Fatalf("expected presentation url, got %+v", got.PresentationURL)
	}
}

func TestResetExecuting(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Repo.InsertOpportunity(env.Ctx, sampleOpportunity("opp-1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := env.Repo.SetOpportunityStatus(env.Ctx, "opp-1", domain.StatusExecuting, env.Now); err != nil {
		t.Fatalf("set status: %v", err)
	}
	n, err := env.Repo.ResetExecuting(env.Ctx, env.Now)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reset, got %d", n)
	}
	got, _ := env.Repo.GetOpportunity(env.Ctx, "opp-1")
	if got.Status != domain.StatusActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
}

func TestAssetsExcludeInternal(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Repo.InsertOpportunity(env.Ctx, sampleOpportunity("opp-1")); err != nil {
		t.Fatalf("insert opportunity: %v", err)
	}
	assets := []domain.GeneratedAsset{
		{ID: "a-1", OrgID: "org-1", OpportunityID: "opp-1", Type: "press_release", Lane: domain.LaneMedia, Stakeholder: "Press", Title: "PR", Body: "text", CreatedAt: env.Now},
		{ID: "a-2", OrgID: "org-1", OpportunityID: "opp-1", Type: "blog_post", Lane: domain.LaneOwned, Title: "Blog", Body: "text", CreatedAt: env.Now},
		{ID: "a-3", OrgID: "org-1", OpportunityID: "opp-1", Type: "plan_overview", Lane: domain.LaneOwned, Title: "Overview", Internal: true, CreatedAt: env.Now},
	}
	for _, a := range assets {
		if err := env.Repo.InsertAsset(env.Ctx, a); err != nil {
			t.Fatalf("insert asset %s: %v", a.ID, err)
		}
	}

	visible, err := env.Repo.ListAssets(env.Ctx, "org-1", "opp-1")
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	if len(visible) != 2 {
		t.Fatalf("expected 2 visible assets, got %d", len(visible))
	}
	for _, a := range visible {
		if a.Internal {
			t.Fatalf("internal asset leaked into listing: %+v", a)
		}
	}

	count, err := env.Repo.CountAssets(env.Ctx, "org-1", "opp-1")
	if err != nil {
		t.Fatalf("count assets: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}
}

func TestRunsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Repo.InsertOpportunity(env.Ctx, sampleOpportunity("opp-1")); err != nil {
		t.Fatalf("insert opportunity: %v", err)
	}
	url := "https://decks/d1"
	runs := []domain.ExecutionRun{
		{ID: "r-1", OpportunityID: "opp-1", Success: false, Error: "dispatch failed", StartedAt: "2026-01-01T00:00:00Z", FinishedAt: "2026-01-01T00:01:00Z"},
		{ID: "r-2", OpportunityID: "opp-1", Success: true, AssetCount: 5, PresentationURL: &url, StartedAt: "2026-01-01T01:00:00Z", FinishedAt: "2026-01-01T01:05:00Z"},
	}
	for _, run := range runs {
		if err := env.Repo.InsertRun(env.Ctx, run); err != nil {
			t.Fatalf("insert run %s: %v", run.ID, err)
		}
	}

	got, err := env.Repo.ListRuns(env.Ctx, "opp-1")
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(got))
	}
	if got[0].ID != "r-2" {
		t.Fatalf("expected most recent run first, got %s", got[0].ID)
	}
	if got[0].PresentationURL == nil || *got[0].PresentationURL != url {
		t.Fatalf("presentation url did not round trip: %+v", got[0])
	}
	if got[1].Error != "dispatch failed" {
		t.Fatalf("error did not round trip: %+v", got[1])
	}
}

func TestEventQueries(t *testing.T) {
	env := newTestEnv(t)
	for i, evtType := range []string{"run.started", "run.finished", "opportunity.executed"} {
		payload := events.EventPayload{"seq": i}
		if err := env.Events.Record(env.Ctx, evtType, "org-1", "opportunity", "opp-1", "tester", payload); err != nil {
			t.Fatalf("record %s: %v", evtType, err)
		}
	}

	latest, err := env.Repo.LatestEvents(env.Ctx, 10, "org-1", "", "", "")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 3 || latest[0].Type != "opportunity.executed" {
		t.Fatalf("unexpected latest events: %+v", latest)
	}

	filtered, err := env.Repo.LatestEvents(env.Ctx, 10, "org-1", "run.started", "", "")
	if err != nil {
		t.Fatalf("filtered: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected 1 filtered event, got %d", len(filtered))
	}

	lastID, err := env.Repo.LatestEventID(env.Ctx, "org-1")
	if err != nil {
		t.Fatalf("latest id: %v", err)
	}
	after, err := env.Repo.EventsAfter(env.Ctx, 10, lastID-1, "org-1")
	if err != nil {
		t.Fatalf("after: %v", err)
	}
	if len(after) != 1 || after[0].ID != lastID {
		t.Fatalf("unexpected events after cursor: %+v", after)
	}
}
