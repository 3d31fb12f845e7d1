package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/apexbridge-tech/bugspotter/internal/logger"
)

// subjectPrefix namespaces every event this instance publishes, so a
// shared NATS cluster can carry more than one BugSpotter instance's
// traffic without subject collisions.
const subjectPrefix = "bugspotter.notify."

// NATSSink publishes events to NATS as fire-and-forget messages. It never
// subscribes; consumption belongs to whatever external system is wired to
// the subject, which is deliberately outside this repository's scope.
type NATSSink struct {
	conn *nats.Conn
}

// NewNATSSink connects to the given NATS URL and returns a publish-only
// sink. The connection is configured to retry indefinitely in the
// background so a transient broker outage doesn't take the sink down.
func NewNATSSink(url string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("bugspotter-notify"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Queue().Warn().Err(err).Msg("notify: nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Queue().Info().Str("url", nc.ConnectedUrl()).Msg("notify: nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: connect nats: %w", err)
	}
	return &NATSSink{conn: conn}, nil
}

// Publish marshals the event and publishes it to subjectPrefix+event.Type.
func (s *NATSSink) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}
	if err := s.conn.Publish(subjectPrefix+event.Type, data); err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (s *NATSSink) Close() {
	s.conn.Drain()
}
