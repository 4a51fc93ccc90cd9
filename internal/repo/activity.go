package repo

import (
	"context"
	"database/sql"
	"strings"

	"hireline/internal/domain"
)

// ActivityFilter narrows ListActivity. Zero values mean no filter.
type ActivityFilter struct {
	ApplicationID string
	CandidateID   string
	EmployerID    string
	JobID         string
	Type          string
	Limit         int
	// BeforeID pages backwards through the log; 0 starts from the newest.
	BeforeID int64
}

func (r Repo) ListActivity(ctx context.Context, f ActivityFilter) ([]domain.ActivityEntry, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if f.ApplicationID != "" {
		clauses = append(clauses, "application_id=?")
		args = append(args, f.ApplicationID)
	}
	if f.CandidateID != "" {
		clauses = append(clauses, "candidate_id=?")
		args = append(args, f.CandidateID)
	}
	if f.EmployerID != "" {
		clauses = append(clauses, "employer_id=?")
		args = append(args, f.EmployerID)
	}
	if f.JobID != "" {
		clauses = append(clauses, "job_id=?")
		args = append(args, f.JobID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.BeforeID > 0 {
		clauses = append(clauses, "id < ?")
		args = append(args, f.BeforeID)
	}
	query := `SELECT id,type,actor_id,employer_id,candidate_id,job_id,application_id,details_json,created_at
FROM activity_log WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActivityEntry
	for rows.Next() {
		e, err := scanActivityEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ActivityAfter returns entries with id greater than afterID in insertion
// order. The webhook dispatcher uses this to tail the log.
func (r Repo) ActivityAfter(ctx context.Context, afterID int64, limit int) ([]domain.ActivityEntry, error) {
	query := `SELECT id,type,actor_id,employer_id,candidate_id,job_id,application_id,details_json,created_at
FROM activity_log WHERE id > ? ORDER BY id ASC`
	args := []any{afterID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActivityEntry
	for rows.Next() {
		e, err := scanActivityEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestActivityID returns the highest activity id, or 0 for an empty log.
func (r Repo) LatestActivityID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM activity_log`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func scanActivityEntry(scan func(dest ...any) error) (domain.ActivityEntry, error) {
	var e domain.ActivityEntry
	var actorID, applicationID sql.NullString
	err := scan(&e.ID, &e.Type, &actorID, &e.EmployerID, &e.CandidateID, &e.JobID, &applicationID, &e.Details, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if actorID.Valid {
		e.Actor = domain.UserActor(actorID.String)
	} else {
		e.Actor = domain.SystemActor()
	}
	if applicationID.Valid {
		e.ApplicationID = applicationID.String
	}
	return e, nil
}
