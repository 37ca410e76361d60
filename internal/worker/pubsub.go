package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/veloclimat/veloclimat/internal/errs"
	"github.com/veloclimat/veloclimat/internal/pipeline"
)

// Job types accepted on the run request subscription.
const (
	JobTypeRun         = "interpolation_run"
	JobTypeHealthCheck = "health_check"
)

// TriggerPubSub prefixes the trigger of runs requested over Pub/Sub.
const TriggerPubSub = "pubsub"

// PubSubHandler turns Pub/Sub run requests into runs.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	runner           Runner
	timeout          time.Duration
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Runner           Runner
	RunTimeout       time.Duration
	Logger           zerolog.Logger
}

// RunMessage is a run request.
type RunMessage struct {
	JobType string `json:"job_type"`
	Trigger string `json:"trigger,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// A run holds the whole network in memory; take one request at a time.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = time.Hour

	h := newHandler(cfg)
	h.client = client
	h.subscriber = subscriber
	return h, nil
}

func newHandler(cfg PubSubConfig) *PubSubHandler {
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().RunTimeout
	}
	return &PubSubHandler{
		subscriptionName: cfg.SubscriptionName,
		runner:           cfg.Runner,
		timeout:          timeout,
		logger:           cfg.Logger,
	}
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := h.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()

		if h.process(logger.WithContext(ctx), msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// process handles one message body and reports whether it should be acked.
// Requests that would fail the same way on redelivery are acked.
func (h *PubSubHandler) process(ctx context.Context, data []byte) bool {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &h.logger
	}

	var msg RunMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		return true
	}

	switch msg.JobType {
	case JobTypeHealthCheck:
		logger.Debug().Msg("health check received")
		return true
	case JobTypeRun:
	default:
		logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return true
	}

	trigger := TriggerPubSub
	if msg.Trigger != "" {
		trigger += ":" + msg.Trigger
	}

	runCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	result, err := h.runner.Run(runCtx, trigger)
	if err == nil {
		logger.Info().
			Str("run_id", result.ID).
			Dur("duration", time.Since(start)).
			Msg("requested run completed")
		return true
	}

	if errors.Is(err, pipeline.ErrRunInProgress) {
		logger.Info().Msg("run request dropped, another run is in progress")
		return true
	}

	logger.Error().Err(err).Str("trigger", trigger).Msg("requested run failed")
	return !retryable(err)
}

// retryable reports whether a failed run may succeed on redelivery.
func retryable(err error) bool {
	switch errs.KindOf(err) {
	case errs.ErrInvalidParameter, errs.ErrInsufficientInput, errs.ErrDegenerateGeometry:
		return false
	default:
		return true
	}
}
