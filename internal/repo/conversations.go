package repo

import (
	"context"
	"database/sql"

	"hireline/internal/domain"
)

func scanConversation(row *sql.Row) (domain.Conversation, error) {
	var c domain.Conversation
	err := row.Scan(&c.ID, &c.JobID, &c.EmployerID, &c.CandidateID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	return scanConversation(r.DB.QueryRowContext(ctx, `SELECT id,job_id,employer_id,candidate_id,created_at FROM conversations WHERE id=?`, id))
}

// FindConversation looks up the conversation for a (job, employer, candidate)
// triple. The triple carries a unique constraint so at most one row exists.
func (r Repo) FindConversation(ctx context.Context, jobID, employerID, candidateID string) (domain.Conversation, error) {
	return scanConversation(r.DB.QueryRowContext(ctx,
		`SELECT id,job_id,employer_id,candidate_id,created_at FROM conversations WHERE job_id=? AND employer_id=? AND candidate_id=?`,
		jobID, employerID, candidateID))
}

// InsertConversationIgnore inserts unless the triple already exists. Losing a
// race is not an error; callers re-select to get the surviving row.
func (r Repo) InsertConversationIgnore(ctx context.Context, c domain.Conversation) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO conversations(id,job_id,employer_id,candidate_id,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.JobID, c.EmployerID, c.CandidateID, c.CreatedAt)
	return err
}

func (r Repo) ListConversations(ctx context.Context, candidateID, employerID string) ([]domain.Conversation, error) {
	query := `SELECT id,job_id,employer_id,candidate_id,created_at FROM conversations`
	var (
		clauses []string
		args    []any
	)
	if candidateID != "" {
		clauses = append(clauses, "candidate_id=?")
		args = append(args, candidateID)
	}
	if employerID != "" {
		clauses = append(clauses, "employer_id=?")
		args = append(args, employerID)
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.JobID, &c.EmployerID, &c.CandidateID, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,conversation_id,sender_id,receiver_id,body,created_at,read_at
FROM messages WHERE conversation_id=? ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		var m domain.Message
		var readAt sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Body, &m.CreatedAt, &readAt); err != nil {
			return nil, err
		}
		if readAt.Valid {
			v := readAt.String
			m.ReadAt = &v
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
