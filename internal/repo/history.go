package repo

import (
	"context"
	"database/sql"

	"hireline/internal/domain"
)

// InsertStatusHistoryTx appends one ledger entry. Rows are never updated or
// deleted; the table is the authoritative record of every status change.
func (r Repo) InsertStatusHistoryTx(ctx context.Context, tx *sql.Tx, e domain.StatusHistoryEntry) error {
	var from any
	if e.FromStatus != nil {
		from = string(*e.FromStatus)
	}
	var changedBy any
	if id, ok := e.ChangedBy.UserID(); ok {
		changedBy = id
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO status_history(application_id,from_status,to_status,note,changed_by,created_at) VALUES (?,?,?,?,?,?)`,
		e.ApplicationID, from, string(e.ToStatus), nullable(e.Note), changedBy, e.CreatedAt)
	return err
}

// ListStatusHistory returns ledger entries newest first. Insertion order is
// the tiebreak for entries sharing a timestamp.
func (r Repo) ListStatusHistory(ctx context.Context, applicationID string) ([]domain.StatusHistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,application_id,from_status,to_status,COALESCE(note,''),changed_by,created_at
FROM status_history WHERE application_id=? ORDER BY created_at DESC, id DESC`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusHistoryEntry
	for rows.Next() {
		e, err := scanHistoryEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestStatusHistory returns the most recent ledger entry for an application.
func (r Repo) LatestStatusHistory(ctx context.Context, applicationID string) (domain.StatusHistoryEntry, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,application_id,from_status,to_status,COALESCE(note,''),changed_by,created_at
FROM status_history WHERE application_id=? ORDER BY created_at DESC, id DESC LIMIT 1`, applicationID)
	return scanHistoryEntry(row.Scan)
}

func scanHistoryEntry(scan func(dest ...any) error) (domain.StatusHistoryEntry, error) {
	var e domain.StatusHistoryEntry
	var from, changedBy sql.NullString
	err := scan(&e.ID, &e.ApplicationID, &from, &e.ToStatus, &e.Note, &changedBy, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if from.Valid {
		s := domain.Status(from.String)
		e.FromStatus = &s
	}
	if changedBy.Valid {
		e.ChangedBy = domain.UserActor(changedBy.String)
	} else {
		e.ChangedBy = domain.SystemActor()
	}
	return e, nil
}
