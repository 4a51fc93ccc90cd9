package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"hireline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertEmployer(ctx context.Context, e domain.Employer) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO employers(id,name,created_at) VALUES (?,?,?)`,
		e.ID, e.Name, e.CreatedAt)
	return err
}

func (r Repo) GetEmployer(ctx context.Context, id string) (domain.Employer, error) {
	var e domain.Employer
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM employers WHERE id=?`, id).
		Scan(&e.ID, &e.Name, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

func (r Repo) ListEmployers(ctx context.Context) ([]domain.Employer, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM employers ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Employer
	for rows.Next() {
		var e domain.Employer
		if err := rows.Scan(&e.ID, &e.Name, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertCandidate(ctx context.Context, c domain.Candidate) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO candidates(id,name,headline,created_at) VALUES (?,?,?,?)`,
		c.ID, c.Name, nullable(c.Headline), c.CreatedAt)
	return err
}

func (r Repo) GetCandidate(ctx context.Context, id string) (domain.Candidate, error) {
	var c domain.Candidate
	var headline sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,headline,created_at FROM candidates WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &headline, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if headline.Valid {
		c.Headline = headline.String
	}
	return c, err
}

func (r Repo) ListCandidates(ctx context.Context) ([]domain.Candidate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(headline,'') AS headline,created_at FROM candidates ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		if err := rows.Scan(&c.ID, &c.Name, &c.Headline, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertJob(ctx context.Context, j domain.Job) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO jobs(id,employer_id,title,status,created_at) VALUES (?,?,?,?,?)`,
		j.ID, j.EmployerID, j.Title, j.Status, j.CreatedAt)
	return err
}

func scanJob(row *sql.Row) (domain.Job, error) {
	var j domain.Job
	err := row.Scan(&j.ID, &j.EmployerID, &j.Title, &j.Status, &j.CreatedAt)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	return j, err
}

func (r Repo) GetJob(ctx context.Context, id string) (domain.Job, error) {
	return scanJob(r.DB.QueryRowContext(ctx, `SELECT id,employer_id,title,status,created_at FROM jobs WHERE id=?`, id))
}

func (r Repo) GetJobTx(ctx context.Context, tx *sql.Tx, id string) (domain.Job, error) {
	return scanJob(tx.QueryRowContext(ctx, `SELECT id,employer_id,title,status,created_at FROM jobs WHERE id=?`, id))
}

func (r Repo) ListJobs(ctx context.Context, employerID string) ([]domain.Job, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if employerID != "" {
		clauses = append(clauses, "employer_id=?")
		args = append(args, employerID)
	}
	query := `SELECT id,employer_id,title,status,created_at FROM jobs WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Job
	for rows.Next() {
		var j domain.Job
		if err := rows.Scan(&j.ID, &j.EmployerID, &j.Title, &j.Status, &j.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}

func (r Repo) InsertApplicationTx(ctx context.Context, tx *sql.Tx, a domain.Application) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO applications(id,job_id,candidate_id,status,match_score,viewed_by_employer_at,created_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.JobID, a.CandidateID, string(a.Status), nullableFloatPtr(a.MatchScore), nullableStringPtr(a.ViewedByEmployerAt), a.CreatedAt)
	return err
}

func scanApplication(scan func(dest ...any) error) (domain.Application, error) {
	var a domain.Application
	var status string
	var score sql.NullFloat64
	var viewed sql.NullString
	err := scan(&a.ID, &a.JobID, &a.CandidateID, &status, &score, &viewed, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Status = domain.Status(status)
	if score.Valid {
		v := score.Float64
		a.MatchScore = &v
	}
	if viewed.Valid {
		v := viewed.String
		a.ViewedByEmployerAt = &v
	}
	return a, nil
}

const applicationColumns = `id,job_id,candidate_id,status,match_score,viewed_by_employer_at,created_at`

func (r Repo) GetApplication(ctx context.Context, id string) (domain.Application, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id=?`, id)
	return scanApplication(row.Scan)
}

func (r Repo) GetApplicationTx(ctx context.Context, tx *sql.Tx, id string) (domain.Application, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id=?`, id)
	return scanApplication(row.Scan)
}

// ApplicationFilter narrows ListApplications. Zero values mean no filter.
type ApplicationFilter struct {
	JobID       string
	CandidateID string
	Status      string
	Limit       int
	// Cursor pair from the last row of the previous page.
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListApplications(ctx context.Context, f ApplicationFilter) ([]domain.Application, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if f.JobID != "" {
		clauses = append(clauses, "job_id=?")
		args = append(args, f.JobID)
	}
	if f.CandidateID != "" {
		clauses = append(clauses, "candidate_id=?")
		args = append(args, f.CandidateID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Application
	for rows.Next() {
		a, err := scanApplication(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// UpdateApplicationStatusTx flips the status only if the row still holds the
// status the caller observed. A zero row count means someone got there first.
func (r Repo) UpdateApplicationStatusTx(ctx context.Context, tx *sql.Tx, id string, from, to domain.Status) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE applications SET status=? WHERE id=? AND status=?`, string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r Repo) SetApplicationViewedTx(ctx context.Context, tx *sql.Tx, id, viewedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE applications SET viewed_by_employer_at=? WHERE id=?`, viewedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
