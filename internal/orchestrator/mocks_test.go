package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"pressline/internal/domain"
)

// memStore is an in-memory OpportunityStore + AssetStore.
type memStore struct {
	mu          sync.Mutex
	opp         domain.Opportunity
	assetCount  int
	statusLog   []string
	finalizeErr error
	finalized   int
	finalURL    *string
	runs        []domain.ExecutionRun
	listErr     error
}

func newMemStore(opp domain.Opportunity) *memStore {
	return &memStore{opp: opp}
}

func (s *memStore) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.opp.ID {
		return domain.Opportunity{}, fmt.Errorf("opportunity %s: not found", id)
	}
	return s.opp, nil
}

func (s *memStore) SetOpportunityStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opp.Status = status
	s.statusLog = append(s.statusLog, status)
	return nil
}

func (s *memStore) FinalizeOpportunity(ctx context.Context, id string, presentationURL *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalizeErr != nil {
		return s.finalizeErr
	}
	s.finalized++
	s.opp.Status = domain.StatusExecuted
	s.opp.Executed = true
	s.opp.PresentationURL = presentationURL
	s.finalURL = presentationURL
	return nil
}

func (s *memStore) RecordRun(ctx context.Context, run domain.ExecutionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *memStore) ListAssets(ctx context.Context, orgID, opportunityID string) ([]domain.GeneratedAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	assets := make([]domain.GeneratedAsset, s.assetCount)
	for i := range assets {
		assets[i] = domain.GeneratedAsset{ID: fmt.Sprintf("asset-%d", i), OrgID: orgID, OpportunityID: opportunityID}
	}
	return assets, nil
}

func (s *memStore) CountAssets(ctx context.Context, orgID, opportunityID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assetCount, nil
}

func (s *memStore) setAssets(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assetCount = n
}

func (s *memStore) status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opp.Status
}

func (s *memStore) lastRun() (domain.ExecutionRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) == 0 {
		return domain.ExecutionRun{}, false
	}
	return s.runs[len(s.runs)-1], true
}

// mockGen counts dispatches and delegates to an optional hook.
type mockGen struct {
	mu       sync.Mutex
	calls    int
	dispatch func(ctx context.Context, req DispatchRequest) (DispatchResult, error)
}

func (g *mockGen) Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	g.mu.Lock()
	g.calls++
	fn := g.dispatch
	g.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return DispatchResult{AssetCount: len(req.Owned) + len(req.Media)}, nil
}

func (g *mockGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// mockDeck replays a scripted sequence of poll statuses.
type mockDeck struct {
	mu       sync.Mutex
	startErr error
	statuses []DeckStatus
	pollErrs []error
	polls    int
	captures int
}

func (d *mockDeck) Start(ctx context.Context, orgID, opportunityID string) (string, error) {
	if d.startErr != nil {
		return "", d.startErr
	}
	return "job-1", nil
}

func (d *mockDeck) Poll(ctx context.Context, jobID string) (DeckStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.polls
	d.polls++
	if i < len(d.pollErrs) && d.pollErrs[i] != nil {
		return DeckStatus{}, d.pollErrs[i]
	}
	if len(d.statuses) == 0 {
		return DeckStatus{Status: "pending"}, nil
	}
	if i >= len(d.statuses) {
		return d.statuses[len(d.statuses)-1], nil
	}
	return d.statuses[i], nil
}

func (d *mockDeck) Capture(ctx context.Context, jobID, orgID, opportunityID, folder, title string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.captures++
	return nil
}

func (d *mockDeck) captureCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.captures
}
