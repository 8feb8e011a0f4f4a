package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
	"github.com/vhorak/payflow/internal/domain/saga"
	"github.com/vhorak/payflow/internal/eventstore"
	"github.com/vhorak/payflow/pkg/retry"
)

// NotifyCommand asks for a best-effort settlement notification.
type NotifyCommand struct {
	PaymentID      payment.PaymentID
	CorrelationID  uuid.UUID
	IdempotencyKey string
	Channel        string
}

// NotifyHandler delivers the notification and records PaymentNotified.
// Delivery failures are logged and reported as succeeded: notification sits
// outside the saga's correctness boundary.
type NotifyHandler struct {
	mutator
	notifier NotificationPort
}

// NewNotifyHandler creates a NotifyHandler.
func NewNotifyHandler(store eventstore.Store, notifier NotificationPort, retryCfg retry.Config, logger zerolog.Logger) *NotifyHandler {
	return &NotifyHandler{
		mutator:  mutator{store: store, retryCfg: retryCfg, logger: logger},
		notifier: notifier,
	}
}

// Execute notifies about a settled payment.
func (h *NotifyHandler) Execute(ctx context.Context, cmd NotifyCommand) (Result, error) {
	p, err := eventstore.LoadPayment(ctx, h.store, cmd.PaymentID)
	if err != nil {
		return Result{}, err
	}
	if p == nil {
		return Result{CorrelationID: cmd.CorrelationID, Outcome: saga.OutcomeNotFound, Reason: errors.ErrPaymentNotFound.Error()}, nil
	}
	if p.Notified() {
		return duplicate(cmd.CorrelationID, p), nil
	}

	channel := cmd.Channel
	if channel == "" {
		channel = "default"
	}
	if err := h.notifier.Notify(ctx, p.ID(), channel); err != nil {
		h.logger.Warn().Err(err).Str("payment_id", cmd.PaymentID.String()).Msg("notification delivery failed")
		return Result{CorrelationID: cmd.CorrelationID, Outcome: saga.OutcomeSucceeded, State: p.State(), Reason: "notification skipped: " + err.Error()}, nil
	}

	updated, err := h.update(ctx, cmd.PaymentID, func(p *payment.Payment) error {
		if p.Notified() {
			return nil
		}
		return p.MarkNotified(channel)
	})
	if err != nil {
		return classify(cmd.CorrelationID, err)
	}
	return success(cmd.CorrelationID, updated), nil
}
