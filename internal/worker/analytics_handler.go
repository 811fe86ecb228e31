package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"cvbuilder/internal/analytics"
	"cvbuilder/internal/tasks"
)

// eventAppender 由 *analytics.Store 实现。
type eventAppender interface {
	Append(ctx context.Context, ev analytics.Event) error
}

// AnalyticsTaskHandler 把队列中的分析事件写入数据库。
type AnalyticsTaskHandler struct {
	store  eventAppender
	logger *slog.Logger
}

// NewAnalyticsTaskHandler 创建任务处理器。
func NewAnalyticsTaskHandler(store eventAppender, logger *slog.Logger) *AnalyticsTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyticsTaskHandler{store: store, logger: logger}
}

// ProcessTask 实现 asynq.Handler。无法解析或字段非法的事件不再重试。
func (h *AnalyticsTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.AnalyticsRecordPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal analytics payload failed", slog.Any("error", err))
		return fmt.Errorf("unmarshal analytics payload: %v: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(
		slog.String("document_type", payload.DocumentType),
		slog.Uint64("document_id", uint64(payload.DocumentID)),
		slog.String("action", payload.Action),
	)

	err := h.store.Append(ctx, analytics.Event{
		DocumentType: payload.DocumentType,
		DocumentID:   payload.DocumentID,
		UserID:       payload.UserID,
		Action:       payload.Action,
		Metadata:     payload.Metadata,
		Timestamp:    payload.Timestamp,
	})
	switch {
	case err == nil:
		log.Debug("analytics event stored")
		return nil
	case errors.Is(err, analytics.ErrInvalidEvent):
		log.Warn("dropping invalid analytics event", slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		log.Error("store analytics event failed", slog.Any("error", err))
		return err
	}
}
