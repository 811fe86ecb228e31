package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"cvbuilder/internal/tasks"
)

// Event 是一次文档行为。
type Event struct {
	DocumentType string
	DocumentID   uint
	UserID       uint
	Action       string
	Metadata     map[string]any
	Timestamp    time.Time
}

// Recorder 以"发出即忘"的方式记录事件：不阻塞调用方，也不返回错误。
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// Nop 丢弃所有事件。
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// Enqueuer 由 *asynq.Client 实现。
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

const defaultDispatchTimeout = 3 * time.Second

// QueueRecorder 把事件投递到 asynq，由 worker 落库。
type QueueRecorder struct {
	client  Enqueuer
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueueRecorder 构造基于任务队列的记录器。
func NewQueueRecorder(client Enqueuer, logger *slog.Logger) *QueueRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueRecorder{client: client, logger: logger, timeout: defaultDispatchTimeout}
}

// Record 在独立 goroutine 中入队，失败只记录日志。
func (r *QueueRecorder) Record(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	log := r.logger.With(
		slog.String("action", ev.Action),
		slog.String("document_type", ev.DocumentType),
		slog.Uint64("document_id", uint64(ev.DocumentID)),
	)

	task, err := tasks.NewAnalyticsRecordTask(tasks.AnalyticsRecordPayload{
		DocumentType: ev.DocumentType,
		DocumentID:   ev.DocumentID,
		UserID:       ev.UserID,
		Action:       ev.Action,
		Metadata:     ev.Metadata,
		Timestamp:    ev.Timestamp,
	})
	if err != nil {
		log.Warn("build analytics task failed", slog.Any("error", err))
		return
	}

	// Close 之后不再派发，Add 与 Wait 不会并发。
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		log.Debug("analytics recorder closed, event dropped")
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	// 请求结束后 ctx 会被取消，这里只继承其中的值。
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	go func() {
		defer r.wg.Done()
		defer cancel()
		if _, err := r.client.EnqueueContext(dispatchCtx, task, asynq.MaxRetry(3)); err != nil {
			log.Warn("enqueue analytics event failed", slog.Any("error", err))
		}
	}()
}

// Close 停止接收新事件并等待已发出的投递完成，用于优雅退出。可重复调用。
func (r *QueueRecorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wg.Wait()
}
