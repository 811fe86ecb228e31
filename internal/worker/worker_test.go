package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"cvbuilder/internal/analytics"
	"cvbuilder/internal/config"
	"cvbuilder/internal/database"
	"cvbuilder/internal/subscription"
	"cvbuilder/internal/tasks"
	"cvbuilder/internal/testutil"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestAnalyticsTaskStoresEvent(t *testing.T) {
	db := testutil.NewDB(t)
	h := NewAnalyticsTaskHandler(analytics.NewStore(db), discardLogger)

	task, err := tasks.NewAnalyticsRecordTask(tasks.AnalyticsRecordPayload{
		DocumentType: database.DocumentTypeCV,
		DocumentID:   3,
		UserID:       9,
		Action:       database.ActionDownload,
		Metadata:     map[string]any{"template": "modern"},
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}

	var row database.AnalyticsEvent
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if row.DocumentID != 3 || row.UserID != 9 || row.Action != database.ActionDownload {
		t.Fatalf("unexpected row %+v", row)
	}
	var meta map[string]any
	if err := json.Unmarshal(row.Metadata, &meta); err != nil || meta["template"] != "modern" {
		t.Fatalf("unexpected metadata %s (%v)", row.Metadata, err)
	}
}

func TestAnalyticsTaskSkipsRetryForBadInput(t *testing.T) {
	h := NewAnalyticsTaskHandler(analytics.NewStore(testutil.NewDB(t)), discardLogger)

	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeAnalyticsRecord, []byte("{not json")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for malformed payload, got %v", err)
	}

	task, _ := tasks.NewAnalyticsRecordTask(tasks.AnalyticsRecordPayload{DocumentType: "Invoice", DocumentID: 1, Action: database.ActionView})
	err = h.ProcessTask(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) || !errors.Is(err, analytics.ErrInvalidEvent) {
		t.Fatalf("expected SkipRetry for invalid event, got %v", err)
	}
}

type failingAppender struct{ err error }

func (f failingAppender) Append(context.Context, analytics.Event) error { return f.err }

func TestAnalyticsTaskRetriesStoreFailures(t *testing.T) {
	h := NewAnalyticsTaskHandler(failingAppender{err: errors.New("connection reset")}, discardLogger)
	task, _ := tasks.NewAnalyticsRecordTask(tasks.AnalyticsRecordPayload{DocumentType: database.DocumentTypeCV, DocumentID: 1, Action: database.ActionView})

	err := h.ProcessTask(context.Background(), task)
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestSweepTaskExpiresOverdue(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "sweep@example.com", database.RoleUser)
	now := time.Now().UTC()
	row := database.Subscription{
		UserID:    user.ID, Plan: database.PlanMonthly, Type: database.TypeCV,
		StartDate: now.AddDate(0, 0, -31), EndDate: now.Add(-time.Hour), Amount: 1,
		Status:    database.SubscriptionActive, PaymentReference: "late",
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	subs := subscription.NewService(db, subscription.NewCatalog(config.PlanPrices{}, "NGN"))
	task, _ := tasks.NewSubscriptionSweepTask("test")
	if err := NewSweepTaskHandler(subs, discardLogger).ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}

	var reloaded database.Subscription
	if err := db.First(&reloaded, row.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != database.SubscriptionExpired {
		t.Fatalf("expected expired, got %s", reloaded.Status)
	}
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	r.opts = append(r.opts, opts)
	if r.err != nil {
		return nil, r.err
	}
	return &asynq.TaskInfo{ID: "1", Type: task.Type()}, nil
}

func TestEnqueueSweepIsUnique(t *testing.T) {
	client := &recordingEnqueuer{}
	if err := EnqueueSweep(context.Background(), client, "cron"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(client.tasks) != 1 || client.tasks[0].Type() != tasks.TypeSubscriptionSweep {
		t.Fatalf("unexpected tasks %v", client.tasks)
	}
	unique := false
	for _, opt := range client.opts[0] {
		if opt.Type() == asynq.UniqueOpt {
			unique = true
		}
	}
	if !unique {
		t.Fatalf("sweep task must be enqueued with asynq.Unique")
	}

	client.err = asynq.ErrDuplicateTask
	if err := EnqueueSweep(context.Background(), client, "cron"); err != nil {
		t.Fatalf("duplicate enqueue should be ignored, got %v", err)
	}
}

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	if _, err := NewScheduler("every now and then", &recordingEnqueuer{}, discardLogger); err == nil {
		t.Fatalf("expected schedule parse error")
	}
	c, err := NewScheduler("*/15 * * * *", &recordingEnqueuer{}, discardLogger)
	if err != nil {
		t.Fatalf("valid schedule: %v", err)
	}
	if len(c.Entries()) != 1 {
		t.Fatalf("expected one cron entry, got %d", len(c.Entries()))
	}
}
