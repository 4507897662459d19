package observe

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/opsmesh/conductor/internal/logging"
)

// NATSSink publishes events to a NATS subject. Publishes are
// fire-and-forget; delivery failures are logged at debug level and
// otherwise ignored.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	logger  *logging.Logger
}

// NewNATSSink connects to the NATS server at url and publishes events to
// subject. The connection reconnects indefinitely in the background.
func NewNATSSink(url, subject string, logger *logging.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, err
	}
	return &NATSSink{
		conn:    conn,
		subject: subject,
		logger:  logger.WithComponent("events"),
	}, nil
}

// Publish serializes the event and publishes it. Errors never propagate.
func (s *NATSSink) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		s.logger.Debug("event publish dropped", map[string]interface{}{
			"subject": s.subject,
			"error":   err.Error(),
		})
	}
}

// Close drains the connection.
func (s *NATSSink) Close() {
	s.conn.Close()
}
