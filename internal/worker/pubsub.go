package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/breatheroute/privacydesk/internal/resilience"
)

// Job types accepted on the trigger subscription.
const (
	JobSweep       = "gdpr_sweep"
	JobHealthCheck = "health_check"
)

// ErrUnknownJob is returned for a job type the worker does not run.
var ErrUnknownJob = errors.New("unknown job type")

// JobMessage is the payload of a trigger message.
type JobMessage struct {
	JobType string `json:"job_type"`
}

// JobHandler runs triggered jobs independently of the transport.
type JobHandler struct {
	sweep  *SweepJob
	health *resilience.Registry
	logger zerolog.Logger
}

// NewJobHandler creates a new JobHandler. health may be nil.
func NewJobHandler(sweep *SweepJob, health *resilience.Registry, logger zerolog.Logger) *JobHandler {
	return &JobHandler{sweep: sweep, health: health, logger: logger}
}

// Handle runs one job.
func (h *JobHandler) Handle(ctx context.Context, job JobMessage) error {
	switch job.JobType {
	case JobSweep:
		result, err := h.sweep.Run(ctx)
		if err != nil {
			return err
		}
		if result.Failed > 0 && result.Succeeded == 0 {
			return fmt.Errorf("all %d scheduled hooks failed", result.Failed)
		}
		return nil
	case JobHealthCheck:
		return h.healthCheck()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, job.JobType)
	}
}

// healthCheck fails when any guarded collaborator has an open breaker.
func (h *JobHandler) healthCheck() error {
	if h.health == nil {
		return nil
	}
	var open []string
	for _, dep := range h.health.GetAllHealth() {
		if !dep.IsHealthy() && !dep.IsDegraded() {
			open = append(open, dep.Name)
		}
	}
	if len(open) > 0 {
		return fmt.Errorf("circuit open for %v", open)
	}
	h.logger.Debug().Msg("health check passed")
	return nil
}

// PubSubHandler receives trigger messages from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	jobs             *JobHandler
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Jobs             *JobHandler
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	// Sweeps serialize on the schedule, so a single message at a time.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 5 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		jobs:             cfg.Jobs,
		logger:           cfg.Logger,
	}, nil
}

// Start processes messages until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := h.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()
		if Process(ctx, h.jobs, msg.Data, logger) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// Process decodes and runs one message, reporting whether it should be
// acknowledged. Malformed and unknown messages are acknowledged so they are
// not redelivered; failed jobs are not.
func Process(ctx context.Context, jobs *JobHandler, data []byte, logger zerolog.Logger) bool {
	start := time.Now()

	var job JobMessage
	if err := json.Unmarshal(data, &job); err != nil {
		logger.Error().Err(err).Msg("dropping malformed message")
		return true
	}

	err := jobs.Handle(ctx, job)
	switch {
	case errors.Is(err, ErrUnknownJob):
		logger.Warn().Str("job_type", job.JobType).Msg("dropping unknown job")
		return true
	case err != nil:
		logger.Error().Err(err).Str("job_type", job.JobType).Msg("job failed")
		return false
	}

	logger.Info().
		Str("job_type", job.JobType).
		Dur("duration", time.Since(start)).
		Msg("job completed successfully")
	return true
}
