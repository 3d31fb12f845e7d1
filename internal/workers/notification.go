package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apexbridge-tech/bugspotter/internal/logger"
	"github.com/apexbridge-tech/bugspotter/internal/notify"
	"github.com/apexbridge-tech/bugspotter/internal/queue"
)

// NotificationPayload is queue.Job.Payload for the notifications queue.
type NotificationPayload struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"projectId"`
	ReportID  string          `json:"reportId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NotificationWorker hands queued events off to the configured sink,
// keeping the publish off the request path that enqueued them.
type NotificationWorker struct {
	sink notify.Sink
}

// NewNotificationWorker builds the notification worker.
func NewNotificationWorker(sink notify.Sink) *NotificationWorker {
	return &NotificationWorker{sink: sink}
}

// Handle implements queue.Handler.
func (w *NotificationWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload NotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.NewPermanentError(fmt.Errorf("notification worker: decode payload: %w", err))
	}

	err := w.sink.Publish(ctx, notify.Event{
		Type:      payload.Type,
		ProjectID: payload.ProjectID,
		ReportID:  payload.ReportID,
		Timestamp: time.Now().UTC(),
		Data:      payload.Data,
	})
	if err != nil {
		return fmt.Errorf("notification worker: publish: %w", err)
	}

	logger.Queue().Debug().Str("eventType", payload.Type).Str("reportId", payload.ReportID).Msg("notification delivered")
	return nil
}
