package notify

import (
	"context"

	"github.com/apexbridge-tech/bugspotter/internal/logger"
)

// LogSink writes events to the structured log instead of an external
// transport. It's the default when no NATS URL is configured, and keeps
// the notifications queue functional in single-node/dev deployments.
type LogSink struct{}

// NewLogSink builds a log-only sink.
func NewLogSink() *LogSink { return &LogSink{} }

// Publish logs the event at info level. Never fails.
func (s *LogSink) Publish(ctx context.Context, event Event) error {
	logger.Queue().Info().
		Str("eventType", event.Type).
		Str("projectId", event.ProjectID).
		Str("reportId", event.ReportID).
		Msg("notification event")
	return nil
}
