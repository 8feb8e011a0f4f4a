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

// ScreenCommand asks for compliance screening of a requested payment.
type ScreenCommand struct {
	PaymentID      payment.PaymentID
	CorrelationID  uuid.UUID
	IdempotencyKey string
}

// ScreenHandler runs the compliance screening port and records the
// corresponding aggregate event: AMLPassed for the accept and monitor bands,
// PaymentFlagged for the review band, nothing for the block band (the saga's
// compensation path declines the payment).
type ScreenHandler struct {
	mutator
	compliance ComplianceScreeningPort
	policy     saga.RiskPolicy
}

// NewScreenHandler creates a ScreenHandler.
func NewScreenHandler(store eventstore.Store, compliance ComplianceScreeningPort, policy saga.RiskPolicy, retryCfg retry.Config, logger zerolog.Logger) *ScreenHandler {
	return &ScreenHandler{
		mutator:    mutator{store: store, retryCfg: retryCfg, logger: logger},
		compliance: compliance,
		policy:     policy,
	}
}

// ScreenResult extends the handler result with the verdict the saga routes
// on.
type ScreenResult struct {
	Result
	RiskScore float64
	Flags     []string
}

// Execute screens the payment. A payment already past screening (reserved or
// beyond) returns a duplicate-success so re-delivered commands do no work.
func (h *ScreenHandler) Execute(ctx context.Context, cmd ScreenCommand) (ScreenResult, error) {
	p, err := eventstore.LoadPayment(ctx, h.store, cmd.PaymentID)
	if err != nil {
		return ScreenResult{}, err
	}
	if p == nil {
		return ScreenResult{Result: Result{CorrelationID: cmd.CorrelationID, Outcome: saga.OutcomeNotFound, Reason: errors.ErrPaymentNotFound.Error()}}, nil
	}
	if p.State() != payment.StateRequested {
		// Re-delivered command: report the score already recorded so the
		// saga re-bands the same verdict instead of a zero score.
		return ScreenResult{Result: duplicate(cmd.CorrelationID, p), RiskScore: p.RiskScore()}, nil
	}

	verdict, err := h.compliance.Screen(ctx, ScreeningRequest{
		PaymentID: p.ID(),
		Payer:     p.PayerAccountID(),
		Payee:     p.PayeeAccountID(),
		Amount:    p.Amount(),
		Reference: p.Reference(),
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("payment_id", cmd.PaymentID.String()).Msg("compliance screening call failed")
		return ScreenResult{Result: Result{CorrelationID: cmd.CorrelationID, Outcome: saga.OutcomeFailed, Reason: err.Error()}}, nil
	}

	updated, err := h.update(ctx, cmd.PaymentID, func(p *payment.Payment) error {
		if p.State() != payment.StateRequested {
			return nil
		}
		switch h.policy.Band(verdict.RiskScore) {
		case saga.BandAccept, saga.BandMonitor:
			return p.MarkAMLPassed(verdict.RuleSetVersion, verdict.RiskScore)
		case saga.BandReview:
			return p.Flag(flagReason(verdict), "review", verdict.RiskScore)
		default:
			// Block band: the decline is applied by the compensation path.
			return nil
		}
	})
	if err != nil {
		res, cErr := classify(cmd.CorrelationID, err)
		return ScreenResult{Result: res}, cErr
	}

	return ScreenResult{
		Result:    success(cmd.CorrelationID, updated),
		RiskScore: verdict.RiskScore,
		Flags:     verdict.Flags,
	}, nil
}

func flagReason(v *ScreeningResult) string {
	if len(v.Flags) > 0 {
		return v.Flags[0]
	}
	return "risk score in review band"
}
