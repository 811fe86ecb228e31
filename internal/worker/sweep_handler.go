package worker

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"cvbuilder/internal/metrics"
)

// subscriptionExpirer 由 *subscription.Service 实现。
type subscriptionExpirer interface {
	ExpireOverdue(ctx context.Context) (int64, error)
}

// SweepTaskHandler 执行过期订阅清扫。
type SweepTaskHandler struct {
	subs   subscriptionExpirer
	logger *slog.Logger
}

func NewSweepTaskHandler(subs subscriptionExpirer, logger *slog.Logger) *SweepTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepTaskHandler{subs: subs, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *SweepTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	n, err := h.subs.ExpireOverdue(ctx)
	if err != nil {
		h.logger.Error("subscription sweep failed", slog.Any("error", err))
		return err
	}
	metrics.SubscriptionsExpired(n)
	h.logger.Info("subscription sweep finished", slog.Int64("expired", n))
	return nil
}
