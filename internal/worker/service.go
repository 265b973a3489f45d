package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/chainsight-ai/chainsight-backend/internal/pipeline"
	pkgerrors "github.com/chainsight-ai/chainsight-backend/pkg/errors"
	"github.com/chainsight-ai/chainsight-backend/pkg/logger"
)

const runConsumerName = "analytics-run"

// RunRequested is the message payload that triggers one analytics run.
type RunRequested struct {
	RunID       string    `json:"run_id" validate:"required,uuid"`
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// Runner executes one analytics run.
type Runner interface {
	Run(ctx context.Context, runID uuid.UUID) (pipeline.Summary, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, runID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, runID uuid.UUID) error
}

// Service consumes run requests from Pub/Sub while honoring Redis idempotency.
// A malformed request is acked and dropped; a failed run is nacked for
// redelivery after its idempotency mark is released.
type Service struct {
	subscription *gcppubsub.Subscriber
	runner       Runner
	manager      idempotencyChecker
	logg         *logger.Logger
	validate     *validator.Validate
}

// NewService creates a run-request worker.
func NewService(subscription *gcppubsub.Subscriber, runner Runner, manager idempotencyChecker, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("runs subscription is required")
	}
	if runner == nil {
		return nil, errors.New("pipeline runner is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	return &Service{
		subscription: subscription,
		runner:       runner,
		manager:      manager,
		logg:         logg,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

type processResult struct {
	nack bool
}

// Run starts consuming run requests until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	logCtx := s.logg.WithField(ctx, "message_id", msg.ID)

	request, err := s.decodeRequest(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "invalid run request")
		return processResult{}
	}

	runID, err := uuid.Parse(request.RunID)
	if err != nil {
		s.logg.Warn(logCtx, "invalid run id")
		return processResult{}
	}
	logCtx = s.logg.WithRunID(logCtx, runID.String())

	already, err := s.manager.CheckAndMarkProcessed(logCtx, runConsumerName, runID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		s.logg.Info(logCtx, "run already processed")
		return processResult{}
	}

	if _, err := s.runner.Run(logCtx, runID); err != nil {
		s.logg.Error(s.logg.WithField(logCtx, "dump", pkgerrors.Dump(err)), "analytics run failed", err)
		_ = s.manager.Delete(logCtx, runConsumerName, runID)
		return processResult{nack: true}
	}

	s.logg.Info(logCtx, "run request handled")
	return processResult{}
}

func (s *Service) decodeRequest(msg *gcppubsub.Message) (*RunRequested, error) {
	var request RunRequested
	if err := json.Unmarshal(msg.Data, &request); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(&request); err != nil {
		return nil, err
	}
	return &request, nil
}
