package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"FinPrep/internal/domain/models"
	domrepo "FinPrep/internal/domain/repository"
	pkgkafka "FinPrep/pkg/kafka"
	applogger "FinPrep/pkg/logger"
	"FinPrep/pkg/queue"
)

// JobTypePrepare is the queue message type of a prepare job.
const JobTypePrepare = "prepare"

// JobsHandler runs a prepare job per message and publishes the arrays. It
// consumes both the Kafka jobs topic and the Redis job queue.
type JobsHandler struct {
	topic    string
	pipeline *PipelineUseCase
	validate *validator.Validate
	l        *applogger.Logger
	m        domrepo.Metrics
}

func NewJobsHandler(topic string, pipeline *PipelineUseCase, l *applogger.Logger, m domrepo.Metrics) *JobsHandler {
	if l == nil {
		l = applogger.Nop()
	}
	if m == nil {
		m = domrepo.NoopMetrics{}
	}
	return &JobsHandler{topic: topic, pipeline: pipeline, validate: validator.New(), l: l, m: m}
}

func (h *JobsHandler) Topic() string { return h.topic }

func (h *JobsHandler) Type() string { return JobTypePrepare }

// Handle expects a PrepareRequest JSON document. Malformed jobs are not retried.
func (h *JobsHandler) Handle(ctx context.Context, b []byte) error {
	var req models.PrepareRequest
	if err := defaults.Set(&req); err != nil {
		return fmt.Errorf("job defaults: %w", err)
	}
	if err := json.Unmarshal(b, &req); err != nil {
		h.m.RecordError("job_unmarshal")
		return fmt.Errorf("decode job: %v: %w", err, pkgkafka.ErrNonRetryable)
	}
	if err := h.validate.StructCtx(ctx, &req); err != nil {
		h.m.RecordError("job_invalid")
		return fmt.Errorf("validate job: %v: %w", err, pkgkafka.ErrNonRetryable)
	}
	params, err := PrepareParamsFrom(req)
	if err != nil {
		h.m.RecordError("job_invalid")
		return fmt.Errorf("%v: %w", err, pkgkafka.ErrNonRetryable)
	}
	params.Publish = true

	res, err := h.pipeline.Prepare(ctx, params)
	if err != nil {
		if permanent(err) {
			return fmt.Errorf("prepare job: %v: %w", err, pkgkafka.ErrNonRetryable)
		}
		return fmt.Errorf("prepare job: %w", err)
	}
	h.l.Info("job done",
		applogger.String("key", pkgkafka.MessageKey(ctx)),
		applogger.String("run_id", res.RunID),
		applogger.Int("rows", res.Rows))
	return nil
}

// Retryable reports whether a failed job may succeed on another attempt.
func Retryable(err error) bool {
	return !errors.Is(err, pkgkafka.ErrNonRetryable)
}

// permanent reports errors that a retry of the same job cannot fix.
func permanent(err error) bool {
	for _, target := range []error{
		models.ErrUnsupportedFrequency,
		models.ErrUnknownIndicator,
		models.ErrEmptyGrid,
		models.ErrInsufficientCoverage,
		ErrInvalidParams,
		ErrPublishDisabled,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var (
	_ pkgkafka.MessageHandler = (*JobsHandler)(nil)
	_ queue.Job               = (*JobsHandler)(nil)
)
