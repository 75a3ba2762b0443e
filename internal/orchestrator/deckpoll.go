package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pressline/internal/domain"
)

// awaitPresentation drives the slide-deck job to a terminal state under the
// configured attempt budget. Everything here is non-fatal: a start failure,
// a job error, or an exhausted budget all yield a nil URL and the campaign
// proceeds without a deck.
func (c *Coordinator) awaitPresentation(ctx context.Context, run *Run, opp domain.Opportunity, log *zap.Logger) *string {
	dcfg := c.deps.Cfg.Execution.Deck
	run.tracker.Set("preparing presentation", dcfg.BandStart)
	if c.deps.Deck == nil {
		return nil
	}

	jobID, err := c.deps.Deck.Start(ctx, opp.OrgID, opp.ID)
	if err != nil {
		log.Warn("presentation job start failed, continuing without deck", zap.Error(err))
		return nil
	}
	log.Info("presentation job started", zap.String("job", jobID))

	band := dcfg.BandEnd - dcfg.BandStart
	delay := time.Duration(dcfg.PollDelaySeconds) * time.Second
	for attempt := 1; attempt <= dcfg.MaxAttempts; attempt++ {
		if err := c.deps.Sleep(ctx, delay); err != nil {
			return nil
		}
		run.tracker.Set("generating presentation", dcfg.BandStart+band*float64(attempt)/float64(dcfg.MaxAttempts))

		status, err := c.deps.Deck.Poll(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// transient poll failures just consume an attempt
			log.Debug("presentation poll failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		switch status.Status {
		case "completed":
			c.capture(ctx, jobID, opp, log)
			if status.URL == "" {
				return nil
			}
			url := status.URL
			return &url
		case "error":
			log.Warn("presentation job reported error, continuing without deck", zap.String("job", jobID))
			return nil
		}
	}
	log.Warn("presentation job still pending after attempt budget, continuing without deck",
		zap.String("job", jobID), zap.Int("attempts", dcfg.MaxAttempts))
	return nil
}

// capture archives the finished deck into the org's durable folder. Called
// exactly once, and only after completion is observed.
func (c *Coordinator) capture(ctx context.Context, jobID string, opp domain.Opportunity, log *zap.Logger) {
	err := c.deps.Deck.Capture(ctx, jobID, opp.OrgID, opp.ID, c.deps.Cfg.Deck.Folder, opp.Title)
	if err != nil {
		log.Warn("presentation capture failed", zap.Error(err))
	}
}
