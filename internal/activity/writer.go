package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"hireline/internal/domain"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

// Ref names the entities an activity entry is attached to.
type Ref struct {
	EmployerID    string
	CandidateID   string
	JobID         string
	ApplicationID string
}

// Append writes one activity entry inside the caller's transaction so the
// entry commits or rolls back together with the state change it records.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, entryType string, actor domain.Actor, ref Ref, payload Payload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal activity payload: %w", err)
	}
	var actorID any
	if id, ok := actor.UserID(); ok {
		actorID = id
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO activity_log(type,actor_id,employer_id,candidate_id,job_id,application_id,details_json,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		entryType, actorID, ref.EmployerID, ref.CandidateID, ref.JobID, nullable(ref.ApplicationID), string(data), ts)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
