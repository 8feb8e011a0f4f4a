// Package orchestrator drives payment workflows: it creates the aggregate
// and saga in lock-step, executes step commands through the command
// handlers, advances the saga state machine, and runs compensation when a
// step fails.
package orchestrator

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	apppayment "github.com/vhorak/payflow/internal/application/payment"
	"github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
	"github.com/vhorak/payflow/internal/domain/saga"
	"github.com/vhorak/payflow/internal/eventstore"
	"github.com/vhorak/payflow/pkg/compensate"
	"github.com/vhorak/payflow/pkg/retry"
)

// Handlers bundles the per-step command handlers the orchestrator executes.
type Handlers struct {
	Screen  *apppayment.ScreenHandler
	Reserve *apppayment.ReserveFundsHandler
	Journal *apppayment.JournalHandler
	Settle  *apppayment.SettleHandler
	Notify  *apppayment.NotifyHandler
	Cancel  *apppayment.CancelHandler
}

// Orchestrator is the process manager for payment workflows.
type Orchestrator struct {
	sagas     Repository
	store     eventstore.Store
	publisher CommandPublisher
	handlers  Handlers
	funds     apppayment.FundsReservationPort
	ledger    apppayment.LedgerPort
	policy    saga.RiskPolicy
	timeouts  saga.Timeouts
	retryCfg  retry.Config
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates an Orchestrator.
func New(
	sagas Repository,
	store eventstore.Store,
	publisher CommandPublisher,
	handlers Handlers,
	funds apppayment.FundsReservationPort,
	ledger apppayment.LedgerPort,
	policy saga.RiskPolicy,
	timeouts saga.Timeouts,
	retryCfg retry.Config,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		sagas:     sagas,
		store:     store,
		publisher: publisher,
		handlers:  handlers,
		funds:     funds,
		ledger:    ledger,
		policy:    policy,
		timeouts:  timeouts,
		retryCfg:  retryCfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source, for tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// InitiateRequest is the asynchronous payment-initiation input.
type InitiateRequest struct {
	Amount         payment.Money
	PayerAccountID payment.AccountID
	PayeeAccountID payment.AccountID
	Reference      string
	IdempotencyKey string
}

// InitiateResult is returned to the caller: a correlation id to poll plus
// the accepted payment id. Duplicate reports an idempotent replay.
type InitiateResult struct {
	CorrelationID uuid.UUID
	PaymentID     payment.PaymentID
	Status        saga.Status
	Duplicate     bool
}

// Initiate accepts a payment instruction, creates the aggregate and the saga
// in lock-step, and issues the first step command. A second initiation with
// the same idempotency key returns the existing saga's correlation id
// without starting new work.
func (o *Orchestrator) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.IdempotencyKey == "" {
		return nil, errors.NewValidationError("idempotency_key", "cannot be empty")
	}

	existing, err := o.sagas.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &InitiateResult{
			CorrelationID: existing.CorrelationID,
			PaymentID:     existing.PaymentID,
			Status:        existing.Status,
			Duplicate:     true,
		}, nil
	}

	p, err := payment.Create(payment.NewPaymentID(), req.Amount, req.PayerAccountID, req.PayeeAccountID, req.Reference)
	if err != nil {
		return nil, err
	}

	now := o.now()
	inst := saga.NewInstance(uuid.New(), req.IdempotencyKey, p.ID(), now, o.timeouts.Step)

	if err := o.sagas.Create(ctx, &inst); err != nil {
		if stderrors.Is(err, errors.ErrDuplicateIdempotencyKey) {
			// Lost the race against a concurrent initiation with the same
			// key: that saga wins, return it.
			winner, lookupErr := o.sagas.GetByIdempotencyKey(ctx, req.IdempotencyKey)
			if lookupErr == nil && winner != nil {
				return &InitiateResult{
					CorrelationID: winner.CorrelationID,
					PaymentID:     winner.PaymentID,
					Status:        winner.Status,
					Duplicate:     true,
				}, nil
			}
		}
		return nil, err
	}

	if err := eventstore.SavePayment(ctx, o.store, p); err != nil {
		return nil, err
	}

	cmd := saga.Command{
		Kind:           saga.CmdScreenCompliance,
		CorrelationID:  inst.CorrelationID,
		PaymentID:      p.ID(),
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := o.publisher.Publish(ctx, cmd); err != nil {
		return nil, err
	}

	o.logger.Info().
		Str("correlation_id", inst.CorrelationID.String()).
		Str("payment_id", p.ID().String()).
		Str("amount", req.Amount.String()).
		Msg("payment workflow initiated")

	return &InitiateResult{
		CorrelationID: inst.CorrelationID,
		PaymentID:     p.ID(),
		Status:        inst.Status,
	}, nil
}

// HandleCommand executes one step command for one workflow instance. It is
// safe under re-delivery: handlers detect already-applied state changes and
// terminal sagas drop further commands.
func (o *Orchestrator) HandleCommand(ctx context.Context, cmd saga.Command) error {
	now := o.now()
	if !cmd.NotBefore.IsZero() && now.Before(cmd.NotBefore) {
		// Scheduled for later; hand it back to the transport.
		return o.publisher.Publish(ctx, cmd)
	}

	inst, err := o.sagas.GetByCorrelationID(ctx, cmd.CorrelationID)
	if err != nil {
		return err
	}
	if inst == nil {
		o.logger.Warn().Str("correlation_id", cmd.CorrelationID.String()).Msg("command for unknown saga dropped")
		return nil
	}
	if inst.Status.IsTerminal() {
		return nil
	}

	if cmd.Kind == saga.CmdCompensate {
		if inst.Status != saga.StatusCompensating {
			o.logger.Warn().
				Str("correlation_id", cmd.CorrelationID.String()).
				Str("status", string(inst.Status)).
				Msg("compensate command for non-compensating saga dropped")
			return nil
		}
		return o.runCompensation(ctx, inst, cmd.Reason)
	}
	if inst.Status != saga.StatusRunning {
		// Once compensation starts, only the compensate command is valid.
		return nil
	}
	if kind, ok := stepCommandKind(inst.CurrentStep); !ok || kind != cmd.Kind {
		o.logger.Warn().
			Str("correlation_id", cmd.CorrelationID.String()).
			Str("kind", string(cmd.Kind)).
			Str("current_step", string(inst.CurrentStep)).
			Msg("stale command for another step dropped")
		return nil
	}

	res, err := o.executeStep(ctx, inst, cmd)
	if err != nil {
		return err
	}
	return o.advance(ctx, inst, res)
}

// stepCommandKind maps a step to the command kind that executes it. The
// manual-review step has no command; it resumes through an external decision
// or the review deadline.
func stepCommandKind(step saga.Step) (saga.CommandKind, bool) {
	switch step {
	case saga.StepComplianceScreening:
		return saga.CmdScreenCompliance, true
	case saga.StepReserveFunds:
		return saga.CmdReserveFunds, true
	case saga.StepJournal:
		return saga.CmdJournal, true
	case saga.StepSettle:
		return saga.CmdSettle, true
	case saga.StepNotify:
		return saga.CmdNotify, true
	default:
		return "", false
	}
}

func (o *Orchestrator) executeStep(ctx context.Context, inst *saga.Instance, cmd saga.Command) (saga.StepResult, error) {
	switch cmd.Kind {
	case saga.CmdScreenCompliance:
		res, err := o.handlers.Screen.Execute(ctx, apppayment.ScreenCommand{
			PaymentID:      cmd.PaymentID,
			CorrelationID:  cmd.CorrelationID,
			IdempotencyKey: cmd.IdempotencyKey,
		})
		if err != nil {
			return saga.StepResult{}, err
		}
		return saga.StepResult{
			Step:      saga.StepComplianceScreening,
			Outcome:   res.Outcome,
			RiskScore: res.RiskScore,
			Reason:    res.Reason,
		}, nil

	case saga.CmdReserveFunds:
		res, err := o.handlers.Reserve.Execute(ctx, apppayment.ReserveFundsCommand{
			PaymentID:      cmd.PaymentID,
			CorrelationID:  cmd.CorrelationID,
			IdempotencyKey: cmd.IdempotencyKey,
		})
		if err != nil {
			return saga.StepResult{}, err
		}
		return saga.StepResult{
			Step:          saga.StepReserveFunds,
			Outcome:       res.Outcome,
			ReservationID: res.ReservationID,
			Reason:        res.Reason,
		}, nil

	case saga.CmdJournal:
		res, err := o.handlers.Journal.Execute(ctx, apppayment.JournalCommand{
			PaymentID:      cmd.PaymentID,
			CorrelationID:  cmd.CorrelationID,
			IdempotencyKey: cmd.IdempotencyKey,
		})
		if err != nil {
			return saga.StepResult{}, err
		}
		return saga.StepResult{Step: saga.StepJournal, Outcome: res.Outcome, Reason: res.Reason}, nil

	case saga.CmdSettle:
		res, err := o.handlers.Settle.Execute(ctx, apppayment.SettleCommand{
			PaymentID:      cmd.PaymentID,
			CorrelationID:  cmd.CorrelationID,
			IdempotencyKey: cmd.IdempotencyKey,
		})
		if err != nil {
			return saga.StepResult{}, err
		}
		return saga.StepResult{Step: saga.StepSettle, Outcome: res.Outcome, Reason: res.Reason}, nil

	case saga.CmdNotify:
		res, err := o.handlers.Notify.Execute(ctx, apppayment.NotifyCommand{
			PaymentID:      cmd.PaymentID,
			CorrelationID:  cmd.CorrelationID,
			IdempotencyKey: cmd.IdempotencyKey,
		})
		if err != nil {
			return saga.StepResult{}, err
		}
		return saga.StepResult{Step: saga.StepNotify, Outcome: res.Outcome, Reason: res.Reason}, nil

	default:
		return saga.StepResult{}, errors.NewDomainError("unknown_command", "unknown saga command "+string(cmd.Kind), nil)
	}
}

// advance feeds a step result into the state machine, persists the saga
// before any next command is published, and then issues the commands.
func (o *Orchestrator) advance(ctx context.Context, inst *saga.Instance, res saga.StepResult) error {
	next, cmds := saga.Next(*inst, res, o.policy, o.timeouts, o.now())
	if err := o.sagas.Update(ctx, &next); err != nil {
		return err
	}

	o.logger.Debug().
		Str("correlation_id", next.CorrelationID.String()).
		Str("step", string(res.Step)).
		Str("outcome", string(res.Outcome)).
		Str("status", string(next.Status)).
		Msg("saga advanced")

	for _, cmd := range cmds {
		if err := o.publisher.Publish(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// ApplyReviewDecision resumes a saga suspended on manual review. Approval
// releases the flagged payment and continues with funds reservation; denial
// runs the compensation path.
func (o *Orchestrator) ApplyReviewDecision(ctx context.Context, correlationID uuid.UUID, approved bool, decidedBy string) error {
	inst, err := o.sagas.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return err
	}
	if inst == nil {
		return errors.ErrSagaNotFound
	}
	if inst.Status.IsTerminal() {
		return errors.ErrSagaTerminal
	}
	if inst.CurrentStep != saga.StepManualReview {
		return errors.ErrSagaNotInReview
	}

	var res saga.StepResult
	if approved {
		if _, err := o.updatePayment(ctx, inst.PaymentID, func(p *payment.Payment) error {
			if p.State() != payment.StateFlagged {
				return nil
			}
			return p.MarkAMLPassed("manual-review", inst.RiskScore)
		}); err != nil {
			return err
		}
		res = saga.StepResult{Step: saga.StepManualReview, Outcome: saga.OutcomeSucceeded}
	} else {
		res = saga.StepResult{
			Step:    saga.StepManualReview,
			Outcome: saga.OutcomeRejected,
			Reason:  "manual review declined by " + decidedBy,
		}
	}

	o.logger.Info().
		Str("correlation_id", correlationID.String()).
		Bool("approved", approved).
		Str("decided_by", decidedBy).
		Msg("manual review decision applied")

	return o.advance(ctx, inst, res)
}

// SweepTimeouts treats every expired suspension deadline as a failure of the
// current step and lets the state machine route into compensation. It also
// re-drives compensating sagas whose compensate command was lost, so a crash
// between the status update and the compensation run cannot strand a hold.
func (o *Orchestrator) SweepTimeouts(ctx context.Context, limit int) error {
	now := o.now()
	expired, err := o.sagas.ListExpired(ctx, now, limit)
	if err != nil {
		return err
	}

	var errs []error
	for _, inst := range expired {
		if !inst.Expired(now) {
			continue
		}
		o.logger.Warn().
			Str("correlation_id", inst.CorrelationID.String()).
			Str("step", string(inst.CurrentStep)).
			Msg("saga deadline expired")
		if err := o.advance(ctx, inst, inst.TimeoutResult()); err != nil {
			errs = append(errs, err)
		}
	}

	stalled, err := o.sagas.ListStalledCompensations(ctx, now.Add(-o.timeouts.Step), limit)
	if err != nil {
		errs = append(errs, err)
		return stderrors.Join(errs...)
	}
	for _, inst := range stalled {
		o.logger.Warn().
			Str("correlation_id", inst.CorrelationID.String()).
			Msg("stalled compensation, re-issuing compensate command")
		if err := o.publisher.Publish(ctx, saga.Command{
			Kind:           saga.CmdCompensate,
			CorrelationID:  inst.CorrelationID,
			PaymentID:      inst.PaymentID,
			IdempotencyKey: inst.IdempotencyKey,
			Reason:         inst.FailureReason,
		}); err != nil {
			errs = append(errs, err)
			continue
		}
		inst.UpdatedAt = now
		if err := o.sagas.Update(ctx, inst); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Cancel declines a payment on behalf of a caller and, when a workflow is
// still in flight, routes it into compensation so any reservation or journal
// is undone.
func (o *Orchestrator) Cancel(ctx context.Context, paymentID payment.PaymentID, cancelledBy string, force bool) (apppayment.Result, error) {
	inst, err := o.sagas.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return apppayment.Result{}, err
	}

	var correlationID uuid.UUID
	if inst != nil {
		correlationID = inst.CorrelationID
	}
	res, err := o.handlers.Cancel.Execute(ctx, apppayment.CancelCommand{
		PaymentID:     paymentID,
		CorrelationID: correlationID,
		CancelledBy:   cancelledBy,
		Force:         force,
	})
	if err != nil {
		return apppayment.Result{}, err
	}
	if res.Outcome != saga.OutcomeSucceeded {
		return res, nil
	}

	if inst != nil && !inst.Status.IsTerminal() {
		stepRes := saga.StepResult{
			Step:    inst.CurrentStep,
			Outcome: saga.OutcomeRejected,
			Reason:  "cancelled by " + cancelledBy,
		}
		if err := o.advance(ctx, inst, stepRes); err != nil {
			return res, err
		}
	}
	return res, nil
}

// StatusView is the caller-facing saga status.
type StatusView struct {
	CorrelationID uuid.UUID
	PaymentID     payment.PaymentID
	CurrentStep   saga.Step
	Status        saga.Status
	EnhancedAudit bool
	FailureReason string
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// StatusByCorrelationID returns the saga's current step and status.
func (o *Orchestrator) StatusByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*StatusView, error) {
	inst, err := o.sagas.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, errors.ErrSagaNotFound
	}
	return &StatusView{
		CorrelationID: inst.CorrelationID,
		PaymentID:     inst.PaymentID,
		CurrentStep:   inst.CurrentStep,
		Status:        inst.Status,
		EnhancedAudit: inst.EnhancedAudit,
		FailureReason: inst.FailureReason,
		StartedAt:     inst.StartedAt,
		CompletedAt:   inst.CompletedAt,
	}, nil
}

// runCompensation undoes whatever already succeeded, in reverse order:
// journal reversal first, then reservation release, then the terminal
// aggregate event. The saga is marked Failed only after compensation
// succeeds, so a crash mid-compensation is retried on re-delivery.
func (o *Orchestrator) runCompensation(ctx context.Context, inst *saga.Instance, reason string) error {
	stack := compensate.New("payment-" + inst.CorrelationID.String())

	if inst.ReservationID != nil {
		reservationID := *inst.ReservationID
		stack.Push(compensate.Action{
			Name: "release-reservation",
			Undo: func(ctx context.Context) error {
				return o.funds.Release(ctx, reservationID)
			},
		})
	}
	if inst.Journaled {
		stack.Push(compensate.Action{
			Name: "reverse-journal",
			Undo: func(ctx context.Context) error {
				_, err := o.ledger.Reverse(ctx, inst.PaymentID)
				return err
			},
		})
	}

	if err := stack.Run(ctx); err != nil {
		o.logger.Error().Err(err).
			Str("correlation_id", inst.CorrelationID.String()).
			Msg("compensation failed, will retry on re-delivery")
		return err
	}

	disposition := inst.CompensationDisposition()
	if _, err := o.updatePayment(ctx, inst.PaymentID, func(p *payment.Payment) error {
		if p.State().IsTerminal() {
			return nil
		}
		if disposition == payment.StateDeclined {
			return p.Decline(reason)
		}
		return p.Fail(reason)
	}); err != nil && !stderrors.Is(err, errors.ErrPaymentNotFound) {
		return err
	}

	now := o.now()
	inst.Status = saga.StatusFailed
	inst.FailureReason = reason
	inst.UpdatedAt = now
	inst.CompletedAt = &now
	if err := o.sagas.Update(ctx, inst); err != nil {
		return err
	}

	o.logger.Info().
		Str("correlation_id", inst.CorrelationID.String()).
		Str("disposition", string(disposition)).
		Str("reason", reason).
		Msg("saga compensated and terminated")
	return nil
}

// updatePayment is the orchestrator's load→modify→append path with bounded
// retry on concurrency conflicts.
func (o *Orchestrator) updatePayment(ctx context.Context, id payment.PaymentID, fn func(p *payment.Payment) error) (*payment.Payment, error) {
	var p *payment.Payment
	err := retry.DoOn(ctx, o.retryCfg, func() error {
		loaded, err := eventstore.LoadPayment(ctx, o.store, id)
		if err != nil {
			return err
		}
		if loaded == nil {
			return errors.ErrPaymentNotFound
		}
		if err := fn(loaded); err != nil {
			return err
		}
		if err := eventstore.SavePayment(ctx, o.store, loaded); err != nil {
			return err
		}
		p = loaded
		return nil
	}, errors.ErrConcurrencyConflict)
	if err != nil {
		return nil, err
	}
	return p, nil
}
