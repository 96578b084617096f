package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

const defaultSubject = "permits.audit"

// Publisher is the subset of *nats.Conn used by NATSSink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each entry as JSON so downstream systems can archive it.
type NATSSink struct {
	pub     Publisher
	subject string
}

// ConnectNATS dials url and returns a sink publishing on subject.
func ConnectNATS(url, subject string) (*NATSSink, *nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("permitctl-audit"))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to NATS %s: %w", url, err)
	}
	return NewNATSSink(nc, subject), nc, nil
}

func NewNATSSink(pub Publisher, subject string) *NATSSink {
	if subject == "" {
		subject = defaultSubject
	}
	return &NATSSink{pub: pub, subject: subject}
}

func (s *NATSSink) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	if err := e.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}
	if err := s.pub.Publish(s.subject, b); err != nil {
		return fmt.Errorf("publishing audit entry %s: %w", e.ID, err)
	}
	return nil
}
