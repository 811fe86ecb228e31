package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"cvbuilder/internal/tasks"
)

// sweepUniqueTTL 内同一载荷只会入队一次，多副本的调度器不会重复清扫。
const sweepUniqueTTL = 10 * time.Minute

// taskEnqueuer 由 *asynq.Client 实现。
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueSweep 投递一次过期清扫任务。重复投递返回 nil。
func EnqueueSweep(ctx context.Context, client taskEnqueuer, trigger string) error {
	task, err := tasks.NewSubscriptionSweepTask(trigger)
	if err != nil {
		return err
	}
	_, err = client.EnqueueContext(ctx, task, asynq.Unique(sweepUniqueTTL), asynq.MaxRetry(3))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// NewScheduler 按 schedule 定时投递清扫任务，调用方负责 Start 与 Stop。
func NewScheduler(schedule string, client taskEnqueuer, logger *slog.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := EnqueueSweep(ctx, client, "cron"); err != nil {
			logger.Error("enqueue subscription sweep failed", slog.Any("error", err))
			return
		}
		logger.Info("subscription sweep enqueued")
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
