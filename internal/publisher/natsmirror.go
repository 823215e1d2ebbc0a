package publisher

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSMirror republishes every Summary onto a JetStream subject, generalized
// from a plain []byte JetStream publisher into one that marshals Summary
// itself. It is an optional secondary sink: the subscriber channel fan-out
// remains the system of record, this just mirrors it for consumers that
// prefer a message bus over a direct RPC subscription.
type NATSMirror struct {
	js      nats.JetStreamContext
	subject string
}

// NewNATSMirror wraps an already-connected JetStream context.
func NewNATSMirror(js nats.JetStreamContext, subject string) *NATSMirror {
	return &NATSMirror{js: js, subject: subject}
}

func (m *NATSMirror) publish(s *Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("publisher: marshal summary for nats mirror: %w", err)
	}
	_, err = m.js.Publish(m.subject, data)
	return err
}
