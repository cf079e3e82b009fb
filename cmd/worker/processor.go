package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/idempotency"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

const messageKeyPrefix = "worker#"

type transitioner interface {
	Transition(ctx context.Context, cmd orders.TransitionCommand) (orders.Order, error)
}

type messageGuard interface {
	Begin(ctx context.Context, key, fingerprint string) (idempotency.Outcome, *idempotency.Record, error)
	Complete(ctx context.Context, key, orderID string, responseStatus int, responseBody string) error
	Fail(ctx context.Context, key, note string) error
}

// errRetry marks a failure SQS should redeliver.
var errRetry = errors.New("retry later")

// Processor applies transition requests from SQS through the order engine.
type Processor struct {
	engine transitioner
	guard  messageGuard
	logger *zap.Logger
}

// NewProcessor creates a worker processor. guard may be nil, in which case
// redeliveries rely on the engine's same-status no-op alone.
func NewProcessor(engine transitioner, guard messageGuard, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{engine: engine, guard: guard, logger: logger}
}

// Handle processes a batch and reports the messages to redeliver. Permanent
// failures are logged and dropped so they do not block the queue.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	p.logger.Info("batch processed",
		zap.Int("messages", len(ev.Records)),
		zap.Int("retries", len(resp.BatchItemFailures)),
	)
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	logger := p.logger.With(zap.String("sqs_message_id", rec.MessageId))

	var msg WorkerMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		logger.Error("dropping malformed message", zap.Error(err))
		return nil
	}
	if msg.MessageID == "" {
		msg.MessageID = rec.MessageId
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID = uuid.NewString()
	}
	logger = logger.With(
		zap.String("message_id", msg.MessageID),
		zap.String("order_id", msg.OrderID),
		zap.String("target", msg.TargetStatus),
		zap.String("correlation_id", msg.CorrelationID),
	)

	key := messageKeyPrefix + msg.MessageID
	if p.guard != nil && msg.MessageID != "" {
		outcome, _, err := p.guard.Begin(ctx, key, idempotency.Fingerprint([]byte(rec.Body)))
		if err != nil {
			logger.Warn("idempotency check failed", zap.Error(err))
			return fmt.Errorf("%w: %v", errRetry, err)
		}
		switch outcome {
		case idempotency.Replay:
			logger.Info("message already processed")
			return nil
		case idempotency.InProgress:
			logger.Info("message is being processed elsewhere")
			return errRetry
		case idempotency.Mismatch:
			logger.Error("dropping message reusing an id with a different body")
			return nil
		}
	} else {
		key = ""
	}

	order, err := p.engine.Transition(ctx, msg.command())
	if err != nil {
		kind := orders.KindOf(err)
		if permanent(kind) {
			logger.Warn("dropping transition", zap.String("kind", string(kind)), zap.Error(err))
			p.complete(ctx, logger, key, msg.OrderID, http.StatusUnprocessableEntity, map[string]string{
				"error":   string(kind),
				"message": orders.MessageOf(err),
			})
			return nil
		}
		logger.Warn("transition will be retried", zap.String("kind", string(kind)), zap.Error(err))
		if key != "" {
			if ferr := p.guard.Fail(ctx, key, err.Error()); ferr != nil {
				logger.Warn("idempotency fail not recorded", zap.Error(ferr))
			}
		}
		return fmt.Errorf("%w: %v", errRetry, err)
	}

	logger.Info("transition applied", zap.String("status", string(order.Status)), zap.Int64("version", order.Version))
	p.complete(ctx, logger, key, order.ID, http.StatusOK, map[string]any{
		"order_id": order.ID,
		"status":   order.Status,
		"version":  order.Version,
	})
	return nil
}

func (p *Processor) complete(ctx context.Context, logger *zap.Logger, key, orderID string, status int, body any) {
	if key == "" {
		return
	}
	payload, err := json.Marshal(body)
	if err != nil {
		logger.Warn("idempotency response not encoded", zap.Error(err))
	}
	if err := p.guard.Complete(ctx, key, orderID, status, string(payload)); err != nil {
		logger.Warn("idempotency completion not recorded", zap.Error(err))
	}
}

// permanent reports whether retrying a failure of kind can never succeed.
func permanent(kind orders.Kind) bool {
	switch kind {
	case orders.KindInvalidTransition, orders.KindMissingContext, orders.KindNotFound, orders.KindInvalidInput:
		return true
	}
	return false
}
