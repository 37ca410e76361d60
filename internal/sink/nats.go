package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/veloclimat/veloclimat/internal/pipeline"
)

// DefaultSubject is the subject run events are published on.
const DefaultSubject = "veloclimat.runs.completed"

// NATSConfig holds the event publisher configuration.
type NATSConfig struct {
	URL string `yaml:"url"`

	// Subject defaults to DefaultSubject.
	Subject string `yaml:"subject"`

	// ConnectTimeout bounds the initial connection.
	// Default: 5 seconds
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Enabled reports whether a server is configured.
func (c NATSConfig) Enabled() bool {
	return c.URL != ""
}

// Publisher is the part of *nats.Conn used to emit events.
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// RunEvent is the payload of a run event.
type RunEvent struct {
	Type      string              `json:"type"`
	EmittedAt time.Time           `json:"emitted_at"`
	Run       *pipeline.RunResult `json:"run"`
}

// EventPublisher publishes one event per finished run.
type EventPublisher struct {
	conn    Publisher
	subject string
	logger  zerolog.Logger
	close   func() error
}

// ConnectNATS connects to the server in cfg.
func ConnectNATS(cfg NATSConfig, logger zerolog.Logger) (*EventPublisher, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("veloclimat"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	p := NewEventPublisher(nc, cfg.Subject, logger)
	p.close = nc.Drain
	return p, nil
}

// NewEventPublisher wraps an established connection.
func NewEventPublisher(conn Publisher, subject string, logger zerolog.Logger) *EventPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &EventPublisher{conn: conn, subject: subject, logger: logger}
}

// Name identifies the sink.
func (p *EventPublisher) Name() string {
	return "nats"
}

// Publish emits the run summary and waits for the server to acknowledge
// the flush.
func (p *EventPublisher) Publish(ctx context.Context, report *pipeline.Report) error {
	data, err := json.Marshal(RunEvent{
		Type:      "run." + report.Run.Status,
		EmittedAt: time.Now().UTC(),
		Run:       report.Run,
	})
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush run event: %w", err)
	}

	p.logger.Debug().Str("subject", p.subject).Str("run_id", report.Run.ID).Msg("run event published")
	return nil
}

// Close drains the connection when it was opened by ConnectNATS.
func (p *EventPublisher) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}
