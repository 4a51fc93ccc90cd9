package engine_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"hireline/internal/activity"
	"hireline/internal/config"
	"hireline/internal/db"
	"hireline/internal/domain"
	"hireline/internal/engine"
	"hireline/internal/migrate"
	"hireline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context

	Employer  domain.Employer
	Candidate domain.Candidate
	Job       domain.Job
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	eng := engine.NewWithClock(conn, config.Default(), clock)
	ctx := context.Background()

	emp, err := eng.CreateEmployer(ctx, "Acme")
	if err != nil {
		t.Fatalf("create employer: %v", err)
	}
	cand, err := eng.CreateCandidate(ctx, "Jordan Li", "backend engineer", domain.Profile{})
	if err != nil {
		t.Fatalf("create candidate: %v", err)
	}
	job, err := eng.CreateJob(ctx, emp.ID, "Go Developer")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return &testEnv{Engine: eng, Ctx: ctx, Employer: emp, Candidate: cand, Job: job}
}

func (env *testEnv) submit(t *testing.T) domain.Application {
	t.Helper()
	a, err := env.Engine.SubmitApplication(env.Ctx, engine.SubmitOptions{
		JobID:       env.Job.ID,
		CandidateID: env.Candidate.ID,
		Actor:       domain.UserActor(env.Candidate.ID),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return a
}

func TestSubmitApplication(t *testing.T) {
	env := newTestEnv(t)
	a := env.submit(t)

	if a.Status != domain.StatusApplied {
		t.Fatalf("status = %s, want APPLIED", a.Status)
	}
	history, err := env.Engine.Repo.ListStatusHistory(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	if history[0].FromStatus != nil {
		t.Fatalf("initial entry has from_status %v", *history[0].FromStatus)
	}
	if history[0].ToStatus != domain.StatusApplied {
		t.Fatalf("initial entry to_status = %s", history[0].ToStatus)
	}
	acts, err := env.Engine.Repo.ListActivity(env.Ctx, repo.ActivityFilter{ApplicationID: a.ID})
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(acts) != 1 || acts[0].Type != domain.ActivityApplicationSubmitted {
		t.Fatalf("activity = %+v, want one APPLICATION_SUBMITTED", acts)
	}
	if acts[0].EmployerID != env.Employer.ID {
		t.Fatalf("activity employer = %s, want %s", acts[0].EmployerID, env.Employer.ID)
	}
}

func TestTransitionHappyPath(t *testing.T) {
	env := newTestEnv(t)
	a := env.submit(t)
	actor := domain.UserActor("recruiter-1")

	path := []domain.Status{
		domain.StatusReviewed,
		domain.StatusShortlisted,
		domain.StatusOffer,
		domain.StatusHired,
	}
	for _, to := range path {
		var err error
		a, err = env.Engine.Transition(env.Ctx, engine.TransitionOptions{
			ApplicationID: a.ID,
			ToStatus:      to,
			Actor:         actor,
		})
		if err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
		if a.Status != to {
			t.Fatalf("status = %s, want %s", a.Status, to)
		}
	}

	history, err := env.Engine.Repo.ListStatusHistory(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != len(path)+1 {
		t.Fatalf("history entries = %d, want %d", len(history), len(path)+1)
	}
	// Replaying the ledger oldest-first must reconstruct the final status,
	// each entry chaining off the previous one.
	var prev *domain.Status
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		if prev == nil {
			if e.FromStatus != nil {
				t.Fatalf("first entry has from_status %v", *e.FromStatus)
			}
		} else if e.FromStatus == nil || *e.FromStatus != *prev {
			t.Fatalf("entry %d from_status = %v, want %v", i, e.FromStatus, *prev)
		}
		to := e.ToStatus
		prev = &to
	}
	if *prev != domain.StatusHired {
		t.Fatalf("replay ends at %s, want HIRED", *prev)
	}
}

func TestTransitionNoteAndActorPersisted(t *testing.T) {
	env := newTestEnv(t)
	a := env.submit(t)

	_, err := env.Engine.Transition(env.Ctx, engine.TransitionOptions{
		ApplicationID: a.ID,
		ToStatus:      domain.StatusShortlisted,
		Note:          "strong portfolio",
		Actor:         domain.UserActor("recruiter-1"),
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	latest, err := env.Engine.Repo.LatestStatusHistory(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("latest history: %v", err)
	}
	if latest.Note != "strong portfolio" {
		t.Fatalf("note = %q", latest.Note)
	}
	if id, ok := latest.ChangedBy.UserID(); !ok || id != "recruiter-1" {
		t.Fatalf("changed_by = %s", latest.ChangedBy)
	}

	// A system-driven change persists a NULL actor and reads back as system.
	_, err = env.Engine.Transition(env.Ctx, engine.TransitionOptions{
		ApplicationID: a.ID,
		ToStatus:      domain.StatusInterview,
		Actor:         domain.SystemActor(),
	})
	if err != nil {
		t.Fatalf("system transition: %v", err)
	}
	latest, err = env.Engine.Repo.LatestStatusHistory(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("latest history: %v", err)
	}
	if !latest.ChangedBy.IsSystem() {
		t.Fatalf("changed_by = %s, want system", latest.ChangedBy)
	}
}

func TestInvalidTransitions(t *testing.T) {
	env := newTestEnv(t)
	a := env.submit(t)

	_, err := env.Engine.Transition(env.Ctx, engine.TransitionOptions{
		ApplicationID: a.ID,
		ToStatus:      domain.StatusHired,
	})
	var ite engine.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("APPLIED->HIRED err = %v, want InvalidTransitionError", err)
	}
	if ite.From != domain.StatusApplied || ite.To != domain.StatusHired {
		t.Fatalf("error pair = %s->%s", ite.From, ite.To)
	}

	if _, err = env.Engine.Transition(env.Ctx, engine.TransitionOptions{
		ApplicationID: a.ID, ToStatus: domain.StatusRejected,
	}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	// Terminal statuses offer no exits.
	_, err = env.Engine.Transition(env.Ctx, engine.TransitionOptions{
		ApplicationID: a.ID, ToStatus: domain.StatusReviewed,
	})
	if !errors.As(err, &ite) {
		t.Fatalf("REJECTED->REVIEWED err = %v, want InvalidTransitionError", err)
	}

	// A failed transition must leave no trace in the ledger.
	history, err := env.Engine.Repo.ListStatusHistory(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history entries = %d, want 2", len(history))
	}
}

func TestUnknownStatusRejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.submit(t)

	frozen := "FROZEN"
	_, err := env.Engine.Apply(env.Ctx, engine.ApplyOptions{ApplicationID: a.ID, Status: &frozen})
	var use domain.UnknownStatusError
	if !errors.As(err, &use) {
		t.Fatalf("err = %v, want UnknownStatusError", err)
	}

	// Lowercase input is normalized, not rejected.
	lower := "reviewed"
	got, err := env.Engine.Apply(env.Ctx, engine.ApplyOptions{ApplicationID: a.ID, Status: &lower})
	if err != nil {
		t.Fatalf("lowercase status: %v", err)
	}
	if got.Status != domain.StatusReviewed {
		t.Fatalf("status = %s, want REVIEWED", got.Status)
	}
}

func TestConditionalStatusUpdateGuard(t *testing.T) {
	env := newTestEnv(t)
	a := env.submit(t)

	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	// The observed status is stale; the conditional update must not fire.
	ok, err := env.Engine.Repo.UpdateApplicationStatusTx(env.Ctx, tx, a.ID, domain.StatusReviewed, domain.StatusShortlisted)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if ok {
		t.Fatal("stale update reported success")
	}
}

func TestRecordViewAppends(t *testing.T) {
	env := newTestEnv(t)
	a := env.submit(t)
	actor := domain.UserActor("recruiter-1")

	for i := 0; i < 3; i++ {
		var err error
		a, err = env.Engine.RecordView(env.Ctx, a.ID, actor)
		if err != nil {
			t.Fatalf("record view %d: %v", i, err)
		}
	}
	if a.ViewedByEmployerAt == nil {
		t.Fatal("viewed_by_employer_at not set")
	}
	acts, err := env.Engine.Repo.ListActivity(env.Ctx, repo.ActivityFilter{
		ApplicationID: a.ID,
		Type:          domain.ActivityApplicationViewed,
	})
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(acts) != 3 {
		t.Fatalf("VIEWED entries = %d, want 3", len(acts))
	}
}

func TestTransitionMarkViewed(t *testing.T) {
	env := newTestEnv(t)
	a := env.submit(t)

	a, err := env.Engine.Transition(env.Ctx, engine.TransitionOptions{
		ApplicationID: a.ID,
		ToStatus:      domain.StatusReviewed,
		Actor:         domain.UserActor("recruiter-1"),
		MarkViewed:    true,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if a.ViewedByEmployerAt == nil {
		t.Fatal("viewed_by_employer_at not set")
	}
	acts, err := env.Engine.Repo.ListActivity(env.Ctx, repo.ActivityFilter{ApplicationID: a.ID})
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	var viewed, changed int
	for _, e := range acts {
		switch e.Type {
		case domain.ActivityApplicationViewed:
			viewed++
		case domain.ActivityApplicationStatusChanged:
			changed++
		}
	}
	if viewed != 1 || changed != 1 {
		t.Fatalf("viewed=%d changed=%d, want 1/1", viewed, changed)
	}
}

func TestApplyNoOpIsValid(t *testing.T) {
	env := newTestEnv(t)
	a := env.submit(t)

	got, err := env.Engine.Apply(env.Ctx, engine.ApplyOptions{ApplicationID: a.ID})
	if err != nil {
		t.Fatalf("no-op apply: %v", err)
	}
	if got.Status != domain.StatusApplied || got.ViewedByEmployerAt != nil {
		t.Fatalf("no-op changed the row: %+v", got)
	}
	history, err := env.Engine.Repo.ListStatusHistory(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
}

func TestSubmitToMissingJobRollsBack(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.SubmitApplication(env.Ctx, engine.SubmitOptions{
		JobID:       "job-missing",
		CandidateID: env.Candidate.ID,
	})
	var ire engine.InvalidReferenceError
	if !errors.As(err, &ire) {
		t.Fatalf("err = %v, want InvalidReferenceError", err)
	}
	if ire.Kind != "job" {
		t.Fatalf("kind = %s, want job", ire.Kind)
	}
	apps, err := env.Engine.Repo.ListApplications(env.Ctx, repo.ApplicationFilter{CandidateID: env.Candidate.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(apps) != 0 {
		t.Fatalf("applications = %d, want 0", len(apps))
	}
	acts, err := env.Engine.Repo.ListActivity(env.Ctx, repo.ActivityFilter{CandidateID: env.Candidate.ID})
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(acts) != 0 {
		t.Fatalf("activity entries = %d, want 0", len(acts))
	}
}

// refusingActivity rejects appends of one entry type and delegates the rest.
type refusingActivity struct {
	inner  engine.ActivityWriter
	refuse string
}

func (w refusingActivity) Append(ctx context.Context, tx *sql.Tx, entryType string, actor domain.Actor, ref activity.Ref, payload activity.Payload) error {
	if entryType == w.refuse {
		return errors.New("activity log unavailable")
	}
	return w.inner.Append(ctx, tx, entryType, actor, ref, payload)
}

func TestTransitionRollsBackOnActivityFailure(t *testing.T) {
	env := newTestEnv(t)
	a := env.submit(t)

	env.Engine.Activity = refusingActivity{
		inner:  env.Engine.Activity,
		refuse: domain.ActivityApplicationStatusChanged,
	}
	_, err := env.Engine.Transition(env.Ctx, engine.TransitionOptions{
		ApplicationID: a.ID,
		ToStatus:      domain.StatusReviewed,
		Note:          "looks promising",
		Actor:         domain.UserActor("recruiter-1"),
		MarkViewed:    true,
	})
	if err == nil {
		t.Fatal("transition succeeded with a failing activity append")
	}

	// The conditional status update, the view stamp and the VIEWED entry had
	// all executed inside the transaction; every one of them must roll back.
	got, err := env.Engine.Repo.GetApplication(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusApplied {
		t.Fatalf("status = %s, want APPLIED", got.Status)
	}
	if got.ViewedByEmployerAt != nil {
		t.Fatalf("viewed_by_employer_at = %v, want unset", *got.ViewedByEmployerAt)
	}
	history, err := env.Engine.Repo.ListStatusHistory(env.Ctx, a.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	acts, err := env.Engine.Repo.ListActivity(env.Ctx, repo.ActivityFilter{ApplicationID: a.ID})
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(acts) != 1 || acts[0].Type != domain.ActivityApplicationSubmitted {
		t.Fatalf("activity = %+v, want only the submission entry", acts)
	}
}

func TestActivityUsesEngineClock(t *testing.T) {
	env := newTestEnv(t)
	a := env.submit(t)

	acts, err := env.Engine.Repo.ListActivity(env.Ctx, repo.ActivityFilter{ApplicationID: a.ID})
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(acts) != 1 {
		t.Fatalf("activity entries = %d, want 1", len(acts))
	}
	ts, err := time.Parse(time.RFC3339, acts[0].CreatedAt)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if ts.Before(base) || ts.After(base.Add(time.Hour)) {
		t.Fatalf("activity created_at = %s, not from the injected clock", acts[0].CreatedAt)
	}
}

func TestStartConversationFindOrCreate(t *testing.T) {
	env := newTestEnv(t)

	first, err := env.Engine.StartConversation(env.Ctx, env.Job.ID, env.Employer.ID, env.Candidate.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := env.Engine.StartConversation(env.Ctx, env.Job.ID, env.Employer.ID, env.Candidate.ID)
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		if again.ID != first.ID {
			t.Fatalf("conversation id changed: %s vs %s", again.ID, first.ID)
		}
	}
	convs, err := env.Engine.Repo.ListConversations(env.Ctx, env.Candidate.ID, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("conversations = %d, want 1", len(convs))
	}

	_, err = env.Engine.StartConversation(env.Ctx, env.Job.ID, env.Employer.ID, "cand-missing")
	var ire engine.InvalidReferenceError
	if !errors.As(err, &ire) {
		t.Fatalf("err = %v, want InvalidReferenceError", err)
	}
}

func TestStartConversationConcurrent(t *testing.T) {
	env := newTestEnv(t)

	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := env.Engine.StartConversation(env.Ctx, env.Job.ID, "", env.Candidate.ID)
			ids[i], errs[i] = c.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got %s, caller 0 got %s", i, ids[i], ids[0])
		}
	}
	convs, err := env.Engine.Repo.ListConversations(env.Ctx, env.Candidate.ID, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("conversations = %d, want 1", len(convs))
	}
}

func TestDuplicateApplicationRejected(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t)

	_, err := env.Engine.SubmitApplication(env.Ctx, engine.SubmitOptions{
		JobID:       env.Job.ID,
		CandidateID: env.Candidate.ID,
	})
	if err == nil {
		t.Fatal("second submission for the same job accepted")
	}
}
