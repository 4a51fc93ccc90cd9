package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hireline/internal/activity"
	"hireline/internal/config"
	"hireline/internal/domain"
	"hireline/internal/repo"
)

// Engine owns every application lifecycle mutation. Each mutating method runs
// in one transaction: the state change, its ledger entry, and its activity
// entry commit together or not at all.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Activity ActivityWriter
	Config   *config.Config
	Now      func() time.Time
}

// ActivityWriter appends one activity entry inside the caller's transaction.
// Satisfied by activity.Writer.
type ActivityWriter interface {
	Append(ctx context.Context, tx *sql.Tx, entryType string, actor domain.Actor, ref activity.Ref, payload activity.Payload) error
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return NewWithClock(db, cfg, time.Now)
}

// NewWithClock builds an engine whose timestamps, including those on
// activity entries, come from the given clock.
func NewWithClock(db *sql.DB, cfg *config.Config, now func() time.Time) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Activity: activity.Writer{DB: db, Now: now},
		Config:   cfg,
		Now:      now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// transitions is the adjacency table for the status machine. A pair absent
// here is invalid; terminal statuses have no row.
var transitions = map[domain.Status][]domain.Status{
	domain.StatusApplied:     {domain.StatusReviewed, domain.StatusShortlisted, domain.StatusInterview, domain.StatusRejected},
	domain.StatusReviewed:    {domain.StatusShortlisted, domain.StatusInterview, domain.StatusRejected},
	domain.StatusShortlisted: {domain.StatusInterview, domain.StatusOffer, domain.StatusRejected},
	domain.StatusInterview:   {domain.StatusOffer, domain.StatusRejected},
	domain.StatusOffer:       {domain.StatusHired, domain.StatusRejected},
}

// AllowedTransitions returns the statuses reachable from the given one.
func AllowedTransitions(from domain.Status) []domain.Status {
	return transitions[from]
}

func ensureTransition(from, to domain.Status) error {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return InvalidTransitionError{From: from, To: to}
}

// CreateEmployer registers a new employer.
func (e Engine) CreateEmployer(ctx context.Context, name string) (domain.Employer, error) {
	if name == "" {
		return domain.Employer{}, errors.New("name is required")
	}
	emp := domain.Employer{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertEmployer(ctx, emp); err != nil {
		return domain.Employer{}, fmt.Errorf("insert employer: %w", err)
	}
	return emp, nil
}

// CreateCandidate registers a candidate with an optional profile. The
// candidate row and all profile rows land in one transaction.
func (e Engine) CreateCandidate(ctx context.Context, name, headline string, profile domain.Profile) (domain.Candidate, error) {
	if name == "" {
		return domain.Candidate{}, errors.New("name is required")
	}
	c := domain.Candidate{
		ID:        uuid.NewString(),
		Name:      name,
		Headline:  headline,
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Candidate{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO candidates(id,name,headline,created_at) VALUES (?,?,?,?)`,
		c.ID, c.Name, nullable(c.Headline), c.CreatedAt); err != nil {
		return domain.Candidate{}, fmt.Errorf("insert candidate: %w", err)
	}
	if err := e.Repo.InsertProfileTx(ctx, tx, c.ID, profile); err != nil {
		return domain.Candidate{}, fmt.Errorf("insert profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Candidate{}, err
	}
	return c, nil
}

// CreateJob posts a job for an employer.
func (e Engine) CreateJob(ctx context.Context, employerID, title string) (domain.Job, error) {
	if title == "" {
		return domain.Job{}, errors.New("title is required")
	}
	if _, err := e.Repo.GetEmployer(ctx, employerID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Job{}, InvalidReferenceError{Kind: "employer", ID: employerID}
		}
		return domain.Job{}, err
	}
	j := domain.Job{
		ID:         uuid.NewString(),
		EmployerID: employerID,
		Title:      title,
		Status:     "open",
		CreatedAt:  e.timestamp(),
	}
	if err := e.Repo.InsertJob(ctx, j); err != nil {
		return domain.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return j, nil
}

// SubmitOptions are parameters for submitting an application.
type SubmitOptions struct {
	JobID       string
	CandidateID string
	MatchScore  *float64
	Actor       domain.Actor
}

// SubmitApplication creates an application in APPLIED, writes the initial
// ledger entry (no prior status) and the submission activity entry.
func (e Engine) SubmitApplication(ctx context.Context, opts SubmitOptions) (domain.Application, error) {
	if opts.JobID == "" {
		return domain.Application{}, errors.New("job_id is required")
	}
	if opts.CandidateID == "" {
		return domain.Application{}, errors.New("candidate_id is required")
	}
	if _, err := e.Repo.GetCandidate(ctx, opts.CandidateID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Application{}, InvalidReferenceError{Kind: "candidate", ID: opts.CandidateID}
		}
		return domain.Application{}, err
	}

	now := e.timestamp()
	a := domain.Application{
		ID:          uuid.NewString(),
		JobID:       opts.JobID,
		CandidateID: opts.CandidateID,
		Status:      domain.StatusApplied,
		MatchScore:  opts.MatchScore,
		CreatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	job, err := e.Repo.GetJobTx(ctx, tx, opts.JobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Application{}, InvalidReferenceError{Kind: "job", ID: opts.JobID}
		}
		return domain.Application{}, err
	}
	if err := e.Repo.InsertApplicationTx(ctx, tx, a); err != nil {
		return domain.Application{}, fmt.Errorf("insert application: %w", err)
	}
	if err := e.Repo.InsertStatusHistoryTx(ctx, tx, domain.StatusHistoryEntry{
		ApplicationID: a.ID,
		ToStatus:      domain.StatusApplied,
		ChangedBy:     opts.Actor,
		CreatedAt:     now,
	}); err != nil {
		return domain.Application{}, fmt.Errorf("insert history: %w", err)
	}
	if err := e.Activity.Append(ctx, tx, domain.ActivityApplicationSubmitted, opts.Actor, activity.Ref{
		EmployerID:    job.EmployerID,
		CandidateID:   a.CandidateID,
		JobID:         a.JobID,
		ApplicationID: a.ID,
	}, activity.Payload{"status": string(a.Status)}); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	return a, nil
}

// RecordView stamps the application as seen by the employer and appends a
// VIEWED activity entry. Every call appends; the stream counts views.
func (e Engine) RecordView(ctx context.Context, applicationID string, actor domain.Actor) (domain.Application, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	a, job, err := e.loadApplicationTx(ctx, tx, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	now := e.timestamp()
	if err := e.Repo.SetApplicationViewedTx(ctx, tx, a.ID, now); err != nil {
		return domain.Application{}, err
	}
	a.ViewedByEmployerAt = &now
	if err := e.appendViewedTx(ctx, tx, a, job, actor); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	return a, nil
}

func (e Engine) appendViewedTx(ctx context.Context, tx *sql.Tx, a domain.Application, job domain.Job, actor domain.Actor) error {
	return e.Activity.Append(ctx, tx, domain.ActivityApplicationViewed, actor, activity.Ref{
		EmployerID:    job.EmployerID,
		CandidateID:   a.CandidateID,
		JobID:         a.JobID,
		ApplicationID: a.ID,
	}, nil)
}

// loadApplicationTx reads the application and its job inside the transaction.
// A missing job behind a stored application is corruption, not a 404.
func (e Engine) loadApplicationTx(ctx context.Context, tx *sql.Tx, applicationID string) (domain.Application, domain.Job, error) {
	a, err := e.Repo.GetApplicationTx(ctx, tx, applicationID)
	if err != nil {
		return domain.Application{}, domain.Job{}, err
	}
	job, err := e.Repo.GetJobTx(ctx, tx, a.JobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Application{}, domain.Job{}, DanglingReferenceError{Kind: "job", ID: a.JobID}
		}
		return domain.Application{}, domain.Job{}, err
	}
	return a, job, nil
}

// TransitionOptions are parameters for a status change.
type TransitionOptions struct {
	ApplicationID string
	ToStatus      domain.Status
	Note          string
	Actor         domain.Actor
	// MarkViewed also stamps the view timestamp in the same transaction,
	// for employers acting straight from their inbox.
	MarkViewed bool
}

// Transition moves an application along the status machine. The status
// update is conditional on the status read at the start of the transaction;
// a lost race returns ErrConcurrentModification and changes nothing.
func (e Engine) Transition(ctx context.Context, opts TransitionOptions) (domain.Application, error) {
	to, err := domain.ParseStatus(string(opts.ToStatus))
	if err != nil {
		return domain.Application{}, err
	}
	opts.ToStatus = to

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Application{}, err
	}
	defer tx.Rollback()

	a, job, err := e.loadApplicationTx(ctx, tx, opts.ApplicationID)
	if err != nil {
		return domain.Application{}, err
	}
	from := a.Status
	if err := ensureTransition(from, opts.ToStatus); err != nil {
		return domain.Application{}, err
	}

	ok, err := e.Repo.UpdateApplicationStatusTx(ctx, tx, a.ID, from, opts.ToStatus)
	if err != nil {
		return domain.Application{}, err
	}
	if !ok {
		return domain.Application{}, ErrConcurrentModification
	}

	now := e.timestamp()
	if opts.MarkViewed {
		if err := e.Repo.SetApplicationViewedTx(ctx, tx, a.ID, now); err != nil {
			return domain.Application{}, err
		}
		a.ViewedByEmployerAt = &now
		if err := e.appendViewedTx(ctx, tx, a, job, opts.Actor); err != nil {
			return domain.Application{}, err
		}
	}

	if err := e.Repo.InsertStatusHistoryTx(ctx, tx, domain.StatusHistoryEntry{
		ApplicationID: a.ID,
		FromStatus:    &from,
		ToStatus:      opts.ToStatus,
		Note:          opts.Note,
		ChangedBy:     opts.Actor,
		CreatedAt:     now,
	}); err != nil {
		return domain.Application{}, fmt.Errorf("insert history: %w", err)
	}
	if err := e.Activity.Append(ctx, tx, domain.ActivityApplicationStatusChanged, opts.Actor, activity.Ref{
		EmployerID:    job.EmployerID,
		CandidateID:   a.CandidateID,
		JobID:         a.JobID,
		ApplicationID: a.ID,
	}, activity.Payload{"from": string(from), "to": string(opts.ToStatus), "note": opts.Note}); err != nil {
		return domain.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Application{}, err
	}
	a.Status = opts.ToStatus
	return a, nil
}

// ApplyOptions carries a partial update. Nil fields are untouched.
type ApplyOptions struct {
	ApplicationID string
	Status        *string
	Viewed        *bool
	Note          string
	Actor         domain.Actor
}

// Apply dispatches a partial update to the right operation. A request with
// nothing to change is valid and returns the current row unchanged.
func (e Engine) Apply(ctx context.Context, opts ApplyOptions) (domain.Application, error) {
	markViewed := opts.Viewed != nil && *opts.Viewed
	if opts.Status != nil {
		to, err := domain.ParseStatus(*opts.Status)
		if err != nil {
			return domain.Application{}, err
		}
		return e.Transition(ctx, TransitionOptions{
			ApplicationID: opts.ApplicationID,
			ToStatus:      to,
			Note:          opts.Note,
			Actor:         opts.Actor,
			MarkViewed:    markViewed,
		})
	}
	if markViewed {
		return e.RecordView(ctx, opts.ApplicationID, opts.Actor)
	}
	return e.Repo.GetApplication(ctx, opts.ApplicationID)
}

// StartConversation finds or creates the conversation for a (job, employer,
// candidate) triple. Concurrent calls converge on one row; the unique index
// on the triple is the arbiter.
func (e Engine) StartConversation(ctx context.Context, jobID, employerID, candidateID string) (domain.Conversation, error) {
	job, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Conversation{}, InvalidReferenceError{Kind: "job", ID: jobID}
		}
		return domain.Conversation{}, err
	}
	if employerID == "" {
		employerID = job.EmployerID
	}
	if _, err := e.Repo.GetEmployer(ctx, employerID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Conversation{}, InvalidReferenceError{Kind: "employer", ID: employerID}
		}
		return domain.Conversation{}, err
	}
	if _, err := e.Repo.GetCandidate(ctx, candidateID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Conversation{}, InvalidReferenceError{Kind: "candidate", ID: candidateID}
		}
		return domain.Conversation{}, err
	}

	if c, err := e.Repo.FindConversation(ctx, jobID, employerID, candidateID); err == nil {
		return c, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Conversation{}, err
	}

	c := domain.Conversation{
		ID:          uuid.NewString(),
		JobID:       jobID,
		EmployerID:  employerID,
		CandidateID: candidateID,
		CreatedAt:   e.timestamp(),
	}
	if err := e.Repo.InsertConversationIgnore(ctx, c); err != nil {
		return domain.Conversation{}, err
	}
	// Re-select: if a concurrent insert won, return its row.
	return e.Repo.FindConversation(ctx, jobID, employerID, candidateID)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
