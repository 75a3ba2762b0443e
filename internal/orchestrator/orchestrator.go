// Package orchestrator turns an approved opportunity into an executed
// campaign: it partitions the plan, dispatches bulk generation, reconciles
// progress against the asset store, polls the slide-deck job, and performs
// the single authoritative finalization write.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pressline/internal/config"
	"pressline/internal/domain"
	"pressline/internal/events"
	"pressline/internal/planner"
	"pressline/internal/progress"
)

var (
	// ErrAlreadyExecuting means a run is in flight for this opportunity.
	// The existing run is returned alongside so callers can attach to it.
	ErrAlreadyExecuting = errors.New("execution already in flight for this opportunity")

	// ErrNotExecutable means the opportunity's status does not admit a run.
	ErrNotExecutable = errors.New("opportunity is not in an executable status")
)

// DispatchRequest carries the partitioned requirements for one bulk
// generation call.
type DispatchRequest struct {
	Opportunity domain.Opportunity
	Owned       []domain.ContentRequirement
	Media       []domain.ContentRequirement
}

// DispatchResult reports what the generation collaborator produced. Failed
// lists per-item failures; they are surfaced, not retried.
type DispatchResult struct {
	AssetCount int
	Failed     []string
}

// ContentGenerator is the bulk content generation collaborator.
type ContentGenerator interface {
	Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error)
}

// AssetStore is the read-only view of persisted campaign assets.
type AssetStore interface {
	ListAssets(ctx context.Context, orgID, opportunityID string) ([]domain.GeneratedAsset, error)
	CountAssets(ctx context.Context, orgID, opportunityID string) (int, error)
}

// OpportunityStore persists opportunity state and run records. Finalize is
// the single authoritative completion write.
type OpportunityStore interface {
	GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error)
	SetOpportunityStatus(ctx context.Context, id, status string) error
	FinalizeOpportunity(ctx context.Context, id string, presentationURL *string) error
	RecordRun(ctx context.Context, run domain.ExecutionRun) error
}

// DeckStatus is one observation of the slide-deck job.
type DeckStatus struct {
	Status string // pending, completed, error
	URL    string
}

// DeckService is the slide-deck generation collaborator.
type DeckService interface {
	Start(ctx context.Context, orgID, opportunityID string) (jobID string, err error)
	Poll(ctx context.Context, jobID string) (DeckStatus, error)
	Capture(ctx context.Context, jobID, orgID, opportunityID, folder, title string) error
}

// Auditor records run milestones in the event log.
type Auditor interface {
	Record(ctx context.Context, evtType, orgID, entityKind, entityID, actorID string, payload events.EventPayload) error
}

// Result is the terminal outcome of one run.
type Result struct {
	Success         bool    `json:"success"`
	AssetCount      int     `json:"asset_count"`
	PresentationURL *string `json:"presentation_url,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// Run is a handle to one in-flight or finished execution. A view that
// disappears and reappears mid-run re-attaches to the same handle.
type Run struct {
	ID            string
	OpportunityID string
	tracker       *progress.Tracker

	mu     sync.Mutex
	result Result
	done   chan struct{}
}

func (r *Run) Progress() progress.Snapshot {
	return r.tracker.Snapshot()
}

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Result returns the terminal outcome, and false while the run is in flight.
func (r *Run) Result() (Result, bool) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the run finishes or ctx is cancelled.
func (r *Run) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		res, _ := r.Result()
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (r *Run) finish(res Result) {
	r.mu.Lock()
	r.result = res
	r.mu.Unlock()
	close(r.done)
}

// Deps are the collaborators a Coordinator sequences. Deck and Audit may be
// nil; a campaign can execute without a deck service, and milestones are
// best-effort.
type Deps struct {
	Cfg     *config.Config
	Opps    OpportunityStore
	Assets  AssetStore
	Gen     ContentGenerator
	Deck    DeckService
	Audit   Auditor
	Log     *zap.Logger
	Now     func() time.Time
	ActorID string

	// Sleep overrides the deck-poll delay. Tests inject one that returns
	// immediately.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Coordinator owns the per-opportunity single-flight guard and the lifecycle
// of every run. Runs execute on the coordinator's own context so they are
// not tied to the HTTP request or CLI invocation that started them.
type Coordinator struct {
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[string]*Run
	wg      sync.WaitGroup
}

func New(deps Deps) *Coordinator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.ActorID == "" {
		deps.ActorID = "orchestrator"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{deps: deps, ctx: ctx, cancel: cancel, running: map[string]*Run{}}
}

// Shutdown cancels every in-flight run and waits for them to unwind.
func (c *Coordinator) Shutdown() {
	c.cancel()
	c.wg.Wait()
}

// Attach returns the in-flight run for an opportunity, if any.
func (c *Coordinator) Attach(opportunityID string) (*Run, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.running[opportunityID]
	return r, ok
}

// Execute validates preconditions synchronously, then runs the campaign in
// the background and returns a handle immediately. Precondition failures
// mutate nothing. Invoking Execute twice for the same opportunity returns
// the first run's handle with ErrAlreadyExecuting.
func (c *Coordinator) Execute(ctx context.Context, opportunityID string) (*Run, error) {
	opp, err := c.deps.Opps.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, err
	}
	if opp.Status == domain.StatusExecuting {
		if r, ok := c.Attach(opportunityID); ok {
			return r, ErrAlreadyExecuting
		}
		return nil, ErrAlreadyExecuting
	}
	if opp.Status != domain.StatusActive {
		return nil, fmt.Errorf("%w: status is %s", ErrNotExecutable, opp.Status)
	}
	plan, err := planner.Build(c.deps.Cfg, opp, c.deps.Log)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if r, ok := c.running[opportunityID]; ok {
		c.mu.Unlock()
		return r, ErrAlreadyExecuting
	}
	run := &Run{
		ID:            uuid.NewString(),
		OpportunityID: opportunityID,
		tracker:       progress.NewTracker("planning", 0),
		done:          make(chan struct{}),
	}
	c.running[opportunityID] = run
	c.mu.Unlock()

	if err := c.deps.Opps.SetOpportunityStatus(ctx, opportunityID, domain.StatusExecuting); err != nil {
		c.release(opportunityID)
		return nil, fmt.Errorf("mark executing: %w", err)
	}
	c.audit("run.started", opp, events.EventPayload{"run_id": run.ID, "planned": plan.Total(), "skipped": len(plan.Skipped)})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release(opportunityID)
		c.execute(c.ctx, run, opp, plan)
	}()
	return run, nil
}

func (c *Coordinator) release(opportunityID string) {
	c.mu.Lock()
	delete(c.running, opportunityID)
	c.mu.Unlock()
}

func (c *Coordinator) audit(evtType string, opp domain.Opportunity, payload events.EventPayload) {
	if c.deps.Audit == nil {
		return
	}
	if err := c.deps.Audit.Record(c.ctx, evtType, opp.OrgID, "opportunity", opp.ID, c.deps.ActorID, payload); err != nil {
		c.deps.Log.Warn("event record failed", zap.String("type", evtType), zap.Error(err))
	}
}

// execute drives one run to a terminal state. Every exit path settles the
// run handle and cancels any polling it started.
func (c *Coordinator) execute(ctx context.Context, run *Run, opp domain.Opportunity, plan planner.Plan) {
	log := c.deps.Log.With(zap.String("opportunity", opp.ID), zap.String("run", run.ID))
	started := c.deps.Now().UTC()
	pcfg := c.deps.Cfg.Execution.Progress
	run.tracker.Set("planning campaign", pcfg.PlanningFloor)

	dispatched, err := c.dispatch(ctx, run, opp, plan, log)
	if err != nil {
		c.fail(ctx, run, opp, started, fmt.Errorf("dispatch generation: %w", err), log)
		return
	}
	if len(dispatched.Failed) > 0 {
		log.Warn("some content items failed to generate", zap.Strings("failed", dispatched.Failed))
	}

	url := c.awaitPresentation(ctx, run, opp, log)

	// Reconciling: one authoritative read so the final count reflects ground
	// truth, not the last polled estimate.
	run.tracker.Set("reconciling results", 99)
	assets, err := c.deps.Assets.ListAssets(ctx, opp.OrgID, opp.ID)
	if err != nil {
		c.fail(ctx, run, opp, started, fmt.Errorf("reconcile assets: %w", err), log)
		return
	}
	count := len(assets)

	if err := c.deps.Opps.FinalizeOpportunity(ctx, opp.ID, url); err != nil {
		c.fail(ctx, run, opp, started, fmt.Errorf("finalize opportunity: %w", err), log)
		return
	}

	res := Result{Success: true, AssetCount: count, PresentationURL: url}
	c.record(ctx, run, opp, started, res, log)
	c.audit("run.finished", opp, events.EventPayload{"run_id": run.ID, "asset_count": count, "presentation": url != nil})
	run.tracker.Set("done", 100)
	log.Info("campaign executed", zap.Int("assets", count), zap.Bool("deck", url != nil))
	run.finish(res)
}

// dispatch runs the bulk generation call with the progress reconciler
// observing alongside. The reconciler is cancelled as soon as the call
// settles. If enough assets already exist from a prior interrupted run, the
// generation call is skipped rather than regenerating.
func (c *Coordinator) dispatch(ctx context.Context, run *Run, opp domain.Opportunity, plan planner.Plan, log *zap.Logger) (DispatchResult, error) {
	existing, err := c.deps.Assets.CountAssets(ctx, opp.OrgID, opp.ID)
	if err != nil {
		return DispatchResult{}, err
	}
	if existing >= plan.Total() {
		log.Info("skipping generation, assets already present",
			zap.Int("existing", existing), zap.Int("planned", plan.Total()))
		run.tracker.Set("generating campaign assets", c.deps.Cfg.Execution.Progress.ObservedCeiling)
		return DispatchResult{AssetCount: existing}, nil
	}

	recCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	rec := &progress.Reconciler{
		Counter:       c.deps.Assets,
		Tracker:       run.tracker,
		Cfg:           c.deps.Cfg.Execution.Progress,
		OrgID:         opp.OrgID,
		OpportunityID: opp.ID,
		Phase:         "generating campaign assets",
		Total:         plan.Total(),
		Log:           log,
	}
	var g errgroup.Group
	g.Go(func() error {
		rec.Run(recCtx)
		return nil
	})
	res, dispatchErr := c.deps.Gen.Dispatch(ctx, DispatchRequest{Opportunity: opp, Owned: plan.Owned, Media: plan.Media})
	cancel()
	_ = g.Wait()
	if dispatchErr != nil {
		return DispatchResult{}, dispatchErr
	}
	return res, nil
}

// fail restores the opportunity so the run can be retried, records the run,
// and settles the handle. A restore failure is logged; the opportunity may
// be left marked executing, which the next process start clears.
func (c *Coordinator) fail(ctx context.Context, run *Run, opp domain.Opportunity, started time.Time, cause error, log *zap.Logger) {
	log.Error("campaign execution failed", zap.Error(cause))
	if err := c.deps.Opps.SetOpportunityStatus(ctx, opp.ID, domain.StatusActive); err != nil {
		log.Error("restore opportunity status failed", zap.Error(err))
	}
	res := Result{Success: false, Error: cause.Error()}
	c.record(ctx, run, opp, started, res, log)
	c.audit("run.failed", opp, events.EventPayload{"run_id": run.ID, "error": cause.Error()})
	run.finish(res)
}

func (c *Coordinator) record(ctx context.Context, run *Run, opp domain.Opportunity, started time.Time, res Result, log *zap.Logger) {
	rec := domain.ExecutionRun{
		ID:              run.ID,
		OpportunityID:   opp.ID,
		Success:         res.Success,
		AssetCount:      res.AssetCount,
		PresentationURL: res.PresentationURL,
		Error:           res.Error,
		StartedAt:       started.Format(time.RFC3339),
		FinishedAt:      c.deps.Now().UTC().Format(time.RFC3339),
	}
	if err := c.deps.Opps.RecordRun(ctx, rec); err != nil {
		log.Warn("record run failed", zap.Error(err))
	}
}
