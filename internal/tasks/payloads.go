package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeAnalyticsRecord   = "analytics:record"
	TypeSubscriptionSweep = "subscription:sweep"
)

// AnalyticsRecordPayload 描述一条待写入的分析事件。
type AnalyticsRecordPayload struct {
	DocumentType string         `json:"document_type"`
	DocumentID   uint           `json:"document_id"`
	UserID       uint           `json:"user_id"`
	Action       string         `json:"action"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// NewAnalyticsRecordTask 构造一个分析事件写入任务。
func NewAnalyticsRecordTask(payload AnalyticsRecordPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAnalyticsRecord, data), nil
}

// SubscriptionSweepPayload 只记录触发来源；载荷保持稳定以便 asynq.Unique 去重。
type SubscriptionSweepPayload struct {
	Trigger string `json:"trigger"`
}

// NewSubscriptionSweepTask 构造一个过期订阅清理任务。
func NewSubscriptionSweepTask(trigger string) (*asynq.Task, error) {
	data, err := json.Marshal(SubscriptionSweepPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSubscriptionSweep, data), nil
}
