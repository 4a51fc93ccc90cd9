package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"hireline/internal/config"
	"hireline/internal/domain"
	"hireline/internal/engine"
)

const (
	defaultNotifyInterval = 2 * time.Second
	defaultNotifyTimeout  = 5 * time.Second
	defaultNotifyBatch    = 100
)

// notifyDispatcher tails the activity log and delivers entries to configured
// webhooks. Delivery is best-effort and never touches the engine's
// transactions; a failed delivery retries from the same cursor next tick.
type notifyDispatcher struct {
	engine   engine.Engine
	webhooks []config.WebhookConfig
	client   *http.Client
	mu       sync.Mutex
	cursors  map[int]int64
}

// StartNotifyDispatcher launches the background delivery loop if any
// webhooks are configured. The loop stops when ctx is cancelled.
func StartNotifyDispatcher(ctx context.Context, e engine.Engine) {
	if e.Config == nil || len(e.Config.Webhooks) == 0 {
		return
	}
	d := &notifyDispatcher{
		engine:   e,
		webhooks: e.Config.Webhooks,
		client:   &http.Client{Timeout: defaultNotifyTimeout},
		cursors:  make(map[int]int64),
	}
	go d.run(ctx)
}

func (d *notifyDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(defaultNotifyInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *notifyDispatcher) dispatchAll() {
	for i, hook := range d.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchHook(i, hook)
	}
}

func (d *notifyDispatcher) dispatchHook(idx int, hook config.WebhookConfig) {
	ctx := context.Background()
	cursor := d.cursor(idx)
	entries, err := d.engine.Repo.ActivityAfter(ctx, cursor, defaultNotifyBatch)
	if err != nil {
		log.Printf("notify: fetch activity failed: %v", err)
		return
	}
	filter := newTypeFilter(hook.Events)
	for _, entry := range entries {
		if !filter.match(entry.Type) {
			d.setCursor(idx, entry.ID)
			continue
		}
		if err := d.post(ctx, hook, entry); err != nil {
			log.Printf("notify: deliver to %s failed: %v", hook.URL, err)
			return
		}
		d.setCursor(idx, entry.ID)
	}
}

// cursor starts a new hook at the tail of the log; only entries written
// after startup are delivered.
func (d *notifyDispatcher) cursor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.engine.Repo.LatestActivityID(context.Background())
	if err != nil {
		log.Printf("notify: init cursor failed: %v", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *notifyDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type notifyEvent struct {
	ID            int64           `json:"id"`
	Type          string          `json:"type"`
	Actor         string          `json:"actor"`
	EmployerID    string          `json:"employer_id"`
	CandidateID   string          `json:"candidate_id"`
	JobID         string          `json:"job_id"`
	ApplicationID string          `json:"application_id,omitempty"`
	Details       json.RawMessage `json:"details"`
	CreatedAt     string          `json:"created_at"`
}

func (d *notifyDispatcher) post(ctx context.Context, hook config.WebhookConfig, entry domain.ActivityEntry) error {
	details := json.RawMessage([]byte("{}"))
	if entry.Details != "" && json.Valid([]byte(entry.Details)) {
		details = json.RawMessage([]byte(entry.Details))
	}
	body := notifyEvent{
		ID:            entry.ID,
		Type:          entry.Type,
		Actor:         entry.Actor.String(),
		EmployerID:    entry.EmployerID,
		CandidateID:   entry.CandidateID,
		JobID:         entry.JobID,
		ApplicationID: entry.ApplicationID,
		Details:       details,
		CreatedAt:     entry.CreatedAt,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	timeout := defaultNotifyTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hireline-Event", entry.Type)
	req.Header.Set("X-Hireline-Delivery", fmt.Sprintf("%d", entry.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Hireline-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type typeFilter struct {
	all bool
	set map[string]struct{}
}

func newTypeFilter(types []string) typeFilter {
	if len(types) == 0 {
		return typeFilter{all: true}
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		key := strings.TrimSpace(t)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return typeFilter{all: true}
	}
	return typeFilter{set: set}
}

func (f typeFilter) match(t string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[t]
	return ok
}
