package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pressline/internal/domain"
	"pressline/internal/events"
	"pressline/internal/repo"
)

// Store adapts the SQLite repo and event log to the orchestrator's
// collaborator interfaces.
type Store struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

func (s Store) now() string {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func (s Store) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	return s.Repo.GetOpportunity(ctx, id)
}

func (s Store) SetOpportunityStatus(ctx context.Context, id, status string) error {
	return s.Repo.SetOpportunityStatus(ctx, id, status, s.now())
}

// FinalizeOpportunity performs the authoritative completion write and its
// audit event in one transaction.
func (s Store) FinalizeOpportunity(ctx context.Context, id string, presentationURL *string) error {
	opp, err := s.Repo.GetOpportunity(ctx, id)
	if err != nil {
		return err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.Repo.FinalizeOpportunity(ctx, tx, id, presentationURL, s.now()); err != nil {
		return err
	}
	payload := events.EventPayload{"presentation": presentationURL != nil}
	if err := s.Events.Append(ctx, tx, "opportunity.executed", opp.OrgID, "opportunity", id, "orchestrator", payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (s Store) RecordRun(ctx context.Context, run domain.ExecutionRun) error {
	return s.Repo.InsertRun(ctx, run)
}

func (s Store) ListAssets(ctx context.Context, orgID, opportunityID string) ([]domain.GeneratedAsset, error) {
	return s.Repo.ListAssets(ctx, orgID, opportunityID)
}

func (s Store) CountAssets(ctx context.Context, orgID, opportunityID string) (int, error) {
	return s.Repo.CountAssets(ctx, orgID, opportunityID)
}

// IsNotFound reports whether err is the repo's missing-record sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
