package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pressline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// EnsureOrg inserts the org row if it does not exist yet.
func (r Repo) EnsureOrg(ctx context.Context, tx *sql.Tx, id, name, now string) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT OR IGNORE INTO orgs(id,name,created_at) VALUES (?,?,?)`, id, name, now)
	return err
}

func (r Repo) InsertOpportunity(ctx context.Context, o domain.Opportunity) error {
	planJSON, err := marshalNullable(o.ExecutionPlan)
	if err != nil {
		return fmt.Errorf("marshal execution plan: %w", err)
	}
	msgJSON, err := marshalNullable(o.KeyMessages)
	if err != nil {
		return fmt.Errorf("marshal key messages: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO opportunities(id,org_id,title,status,executed,presentation_url,objective,key_messages_json,timeline,execution_plan_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.OrgID, o.Title, o.Status, boolToInt(o.Executed), nullableStringPtr(o.PresentationURL),
		nullable(o.Objective), msgJSON, nullable(o.Timeline), planJSON, o.CreatedAt, o.UpdatedAt)
	return err
}

const opportunityColumns = `id,org_id,title,status,executed,presentation_url,objective,key_messages_json,timeline,execution_plan_json,created_at,updated_at`

func scanOpportunity(scan func(dest ...any) error) (domain.Opportunity, error) {
	var o domain.Opportunity
	var executed int
	var presentationURL, objective, msgJSON, timeline, planJSON sql.NullString
	err := scan(&o.ID, &o.OrgID, &o.Title, &o.Status, &executed, &presentationURL,
		&objective, &msgJSON, &timeline, &planJSON, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	o.Executed = executed != 0
	if presentationURL.Valid {
		o.PresentationURL = &presentationURL.String
	}
	if objective.Valid {
		o.Objective = objective.String
	}
	if timeline.Valid {
		o.Timeline = timeline.String
	}
	if msgJSON.Valid && msgJSON.String != "" {
		if err := json.Unmarshal([]byte(msgJSON.String), &o.KeyMessages); err != nil {
			return o, fmt.Errorf("unmarshal key messages: %w", err)
		}
	}
	if planJSON.Valid && planJSON.String != "" {
		if err := json.Unmarshal([]byte(planJSON.String), &o.ExecutionPlan); err != nil {
			return o, fmt.Errorf("unmarshal execution plan: %w", err)
		}
	}
	return o, nil
}

func (r Repo) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id=?`, id)
	return scanOpportunity(row.Scan)
}

type OpportunityFilters struct {
	OrgID  string
	Status string
	Limit  int
}

func (r Repo) ListOpportunities(ctx context.Context, f OpportunityFilters) ([]domain.Opportunity, error) {
	var clauses []string
	var args []any
	if f.OrgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, f.OrgID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + opportunityColumns + ` FROM opportunities ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// SetOpportunityStatus updates only the status column. Used to mark a run in
// flight and to restore an opportunity after a failed run.
func (r Repo) SetOpportunityStatus(ctx context.Context, id, status, now string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE opportunities SET status=?, updated_at=? WHERE id=?`, status, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FinalizeOpportunity is the single authoritative completion write: status,
// executed flag, and presentation URL land together.
func (r Repo) FinalizeOpportunity(ctx context.Context, tx *sql.Tx, id string, presentationURL *string, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE opportunities SET status=?, executed=1, presentation_url=?, updated_at=? WHERE id=?`,
		domain.StatusExecuted, nullableStringPtr(presentationURL), now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetExecuting restores any opportunity left marked executing by an
// interrupted process. The in-memory single-flight guard does not survive a
// restart, so a lingering executing status is always stale at startup.
func (r Repo) ResetExecuting(ctx context.Context, now string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE opportunities SET status=?, updated_at=? WHERE status=?`,
		domain.StatusActive, now, domain.StatusExecuting)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) InsertAsset(ctx context.Context, a domain.GeneratedAsset) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO assets(id,org_id,opportunity_id,type,lane,stakeholder,title,body,internal,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.OrgID, a.OpportunityID, a.Type, a.Lane, nullable(a.Stakeholder), a.Title, nullable(a.Body), boolToInt(a.Internal), a.CreatedAt)
	return err
}

// ListAssets returns the campaign-visible assets for an opportunity,
// excluding internal planning artifacts.
func (r Repo) ListAssets(ctx context.Context, orgID, opportunityID string) ([]domain.GeneratedAsset, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,org_id,opportunity_id,type,lane,stakeholder,title,body,internal,created_at
FROM assets WHERE org_id=? AND opportunity_id=? AND internal=0 ORDER BY created_at ASC, id ASC`, orgID, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.GeneratedAsset
	for rows.Next() {
		var a domain.GeneratedAsset
		var stakeholder, body sql.NullString
		var internal int
		if err := rows.Scan(&a.ID, &a.OrgID, &a.OpportunityID, &a.Type, &a.Lane, &stakeholder, &a.Title, &body, &internal, &a.CreatedAt); err != nil {
			return nil, err
		}
		if stakeholder.Valid {
			a.Stakeholder = stakeholder.String
		}
		if body.Valid {
			a.Body = body.String
		}
		a.Internal = internal != 0
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountAssets counts campaign-visible assets, excluding internal planning
// artifacts. This is the progress reconciler's observation read.
func (r Repo) CountAssets(ctx context.Context, orgID, opportunityID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM assets WHERE org_id=? AND opportunity_id=? AND internal=0`,
		orgID, opportunityID).Scan(&n)
	return n, err
}

func (r Repo) InsertRun(ctx context.Context, run domain.ExecutionRun) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO runs(id,opportunity_id,success,asset_count,presentation_url,error,started_at,finished_at)
VALUES (?,?,?,?,?,?,?,?)`,
		run.ID, run.OpportunityID, boolToInt(run.Success), run.AssetCount, nullableStringPtr(run.PresentationURL), nullable(run.Error), run.StartedAt, run.FinishedAt)
	return err
}

func (r Repo) ListRuns(ctx context.Context, opportunityID string) ([]domain.ExecutionRun, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,opportunity_id,success,asset_count,presentation_url,error,started_at,finished_at
FROM runs WHERE opportunity_id=? ORDER BY started_at DESC, id DESC`, opportunityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ExecutionRun
	for rows.Next() {
		var run domain.ExecutionRun
		var success int
		var url, errMsg sql.NullString
		if err := rows.Scan(&run.ID, &run.OpportunityID, &success, &run.AssetCount, &url, &errMsg, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, err
		}
		run.Success = success != 0
		if url.Valid {
			run.PresentationURL = &url.String
		}
		if errMsg.Valid {
			run.Error = errMsg.String
		}
		res = append(res, run)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, orgID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, orgID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, orgID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if orgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, orgID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,org_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, orgID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if orgID != "" {
		clauses = append(clauses, "org_id=?")
		args = append(args, orgID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,org_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// LatestEventID returns the most recent event ID for an org.
func (r Repo) LatestEventID(ctx context.Context, orgID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE org_id=?`, orgID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var orgID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &orgID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if orgID.Valid {
			e.OrgID = orgID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func marshalNullable(v any) (any, error) {
	switch val := v.(type) {
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	case []domain.StakeholderCampaign:
		if len(val) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
