package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject reports are published to.
const DefaultSubject = "conformity.reports"

// Message is the envelope published after each run. It wraps the
// stable report body with the run identity that rendering omits.
type Message struct {
	RunID       string     `json:"run_id"`
	GeneratedAt time.Time  `json:"generated_at"`
	Root        string     `json:"root"`
	Passed      bool       `json:"passed"`
	Report      jsonReport `json:"report"`
}

// Publisher sends run reports to NATS. A nil Publisher is a no-op, so
// callers can wire publishing unconditionally.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to the NATS server at url. An empty subject
// selects DefaultSubject.
func NewPublisher(url, subject string) (*Publisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url,
		nats.Name("conformity"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

// Publish sends the report envelope and waits for the server to
// acknowledge the flush.
func (p *Publisher) Publish(ctx context.Context, r *Report) error {
	if p == nil || p.nc == nil {
		return nil
	}

	msg := Message{
		RunID:       r.RunID,
		GeneratedAt: r.GeneratedAt,
		Root:        r.Root,
		Passed:      r.Passed(),
		Report:      jsonView(r),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal report message: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush report: %w", err)
	}
	return nil
}

// Close drains the connection. Safe on a nil Publisher.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	p.nc.Close()
}
