// Package saga holds the process-manager state machine that drives a payment
// through compliance screening, funds reservation, journaling, settlement and
// notification, with compensation on failure.
//
// The transition logic is pure: Next maps (instance, step result) to
// (new instance, commands to issue) and performs no I/O. The orchestrator in
// the application layer executes the commands and persists the instance.
package saga

import (
	"time"

	"github.com/google/uuid"
	"github.com/vhorak/payflow/internal/domain/payment"
)

// Step identifies the workflow step a saga is currently executing or
// suspended on.
type Step string

const (
	StepComplianceScreening Step = "compliance_screening"
	StepManualReview        Step = "manual_review"
	StepReserveFunds        Step = "reserve_funds"
	StepJournal             Step = "journal"
	StepSettle              Step = "settle"
	StepNotify              Step = "notify"
)

// Status is the saga lifecycle status. Completed and Failed are terminal.
type Status string

const (
	StatusRunning      Status = "running"
	StatusCompensating Status = "compensating"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// IsTerminal reports whether the saga has finished, successfully or not.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Outcome classifies a step result the way command handlers report it.
type Outcome string

const (
	// OutcomeSucceeded means the step performed its state change.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeDuplicate means the aggregate was already in the target state;
	// a re-delivered command performed no work.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeRejected means a business rule refused the step.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means a technical failure exhausted its retries.
	OutcomeFailed Outcome = "failed"
	// OutcomeNotFound means the payment aggregate does not exist.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeTimedOut means the step deadline expired while suspended.
	OutcomeTimedOut Outcome = "timed_out"
)

// Instance is the persisted state of one workflow, keyed by correlation id
// and guarded by the caller-supplied idempotency key. It is mutated only by
// the Next transition function and by the orchestrator's terminal
// bookkeeping.
type Instance struct {
	SagaID         uuid.UUID
	CorrelationID  uuid.UUID
	IdempotencyKey string
	PaymentID      payment.PaymentID

	CurrentStep Step
	Status      Status
	FailedStep  Step

	EnhancedAudit bool
	RiskScore     float64

	ReservationID *payment.ReservationID
	Journaled     bool

	FailureReason string
	StartedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time

	StepDeadline   *time.Time
	ReviewDeadline *time.Time
}

// NewInstance creates a running saga at the compliance screening step.
func NewInstance(correlationID uuid.UUID, idempotencyKey string, paymentID payment.PaymentID, now time.Time, stepTimeout time.Duration) Instance {
	deadline := now.Add(stepTimeout)
	return Instance{
		SagaID:         uuid.New(),
		CorrelationID:  correlationID,
		IdempotencyKey: idempotencyKey,
		PaymentID:      paymentID,
		CurrentStep:    StepComplianceScreening,
		Status:         StatusRunning,
		StartedAt:      now,
		UpdatedAt:      now,
		StepDeadline:   &deadline,
	}
}

// StepResult is what a command handler (or the timeout sweeper) reports back
// to the saga for its current step.
type StepResult struct {
	Step          Step
	Outcome       Outcome
	RiskScore     float64
	ReservationID *payment.ReservationID
	Reason        string
}

// CommandKind enumerates the commands a saga can issue.
type CommandKind string

const (
	CmdScreenCompliance CommandKind = "screen_compliance"
	CmdReserveFunds     CommandKind = "reserve_funds"
	CmdJournal          CommandKind = "journal"
	CmdSettle           CommandKind = "settle"
	CmdNotify           CommandKind = "notify"
	CmdCompensate       CommandKind = "compensate"
)

// Command is a message instructing a worker to execute one step for one
// workflow instance. The correlation id and idempotency key travel on every
// command so re-delivery stays idempotent.
type Command struct {
	Kind           CommandKind       `json:"kind"`
	CorrelationID  uuid.UUID         `json:"correlation_id"`
	PaymentID      payment.PaymentID `json:"payment_id"`
	IdempotencyKey string            `json:"idempotency_key"`
	Reason         string            `json:"reason,omitempty"`
	NotBefore      time.Time         `json:"not_before,omitempty"`
}

// RiskPolicy holds the risk-band thresholds for routing after compliance
// screening. Scores are in [0, 1].
type RiskPolicy struct {
	// AcceptBelow: scores below proceed without further attention.
	AcceptBelow float64
	// MonitorBelow: scores in [AcceptBelow, MonitorBelow) proceed with
	// enhanced audit.
	MonitorBelow float64
	// BlockAt: scores in [MonitorBelow, BlockAt) go to manual review;
	// scores at or above BlockAt are declined outright.
	BlockAt float64
}

// Band is the routing band a risk score falls into.
type Band string

const (
	BandAccept  Band = "accept"
	BandMonitor Band = "monitor"
	BandReview  Band = "review"
	BandBlock   Band = "block"
)

// Band classifies a risk score against the policy thresholds.
func (p RiskPolicy) Band(score float64) Band {
	switch {
	case score < p.AcceptBelow:
		return BandAccept
	case score < p.MonitorBelow:
		return BandMonitor
	case score < p.BlockAt:
		return BandReview
	default:
		return BandBlock
	}
}

// Timeouts holds the saga's suspension deadlines.
type Timeouts struct {
	// Step bounds any single asynchronous step.
	Step time.Duration
	// Review bounds a manual-review hold; expiry declines the payment
	// administratively.
	Review time.Duration
	// SettlementDelay postpones the settle command after journaling.
	SettlementDelay time.Duration
}

// Next advances the saga given the result of its current step. It returns
// the updated instance and the commands to issue. It never performs I/O.
func Next(in Instance, res StepResult, pol RiskPolicy, t Timeouts, now time.Time) (Instance, []Command) {
	if in.Status.IsTerminal() {
		return in, nil
	}
	// A result for a step the saga is no longer on is a stale re-delivery;
	// applying it would advance the wrong step.
	if res.Step != in.CurrentStep {
		return in, nil
	}
	in.UpdatedAt = now

	// A missing aggregate is terminal for the whole saga: there is nothing
	// to compensate against.
	if res.Outcome == OutcomeNotFound {
		return terminal(in, StatusFailed, res.Step, "payment not found", now), nil
	}

	switch res.Step {
	case StepComplianceScreening:
		return nextAfterScreening(in, res, pol, t, now)

	case StepManualReview:
		switch res.Outcome {
		case OutcomeSucceeded, OutcomeDuplicate:
			return advance(in, StepReserveFunds, CmdReserveFunds, t, now)
		default:
			reason := res.Reason
			if reason == "" {
				reason = "manual review declined"
			}
			return compensate(in, res.Step, reason, now)
		}

	case StepReserveFunds:
		switch res.Outcome {
		case OutcomeSucceeded, OutcomeDuplicate:
			if res.ReservationID != nil {
				in.ReservationID = res.ReservationID
			}
			next, cmds := advance(in, StepJournal, CmdJournal, t, now)
			return next, cmds
		default:
			return compensate(in, res.Step, res.Reason, now)
		}

	case StepJournal:
		switch res.Outcome {
		case OutcomeSucceeded, OutcomeDuplicate:
			in.Journaled = true
			next, cmds := advance(in, StepSettle, CmdSettle, t, now)
			if t.SettlementDelay > 0 && len(cmds) == 1 {
				cmds[0].NotBefore = now.Add(t.SettlementDelay)
				deadline := now.Add(t.SettlementDelay + t.Step)
				next.StepDeadline = &deadline
			}
			return next, cmds
		default:
			return compensate(in, res.Step, res.Reason, now)
		}

	case StepSettle:
		switch res.Outcome {
		case OutcomeSucceeded, OutcomeDuplicate:
			return advance(in, StepNotify, CmdNotify, t, now)
		default:
			return compensate(in, res.Step, res.Reason, now)
		}

	case StepNotify:
		// Notification is best-effort and outside the saga's correctness
		// boundary: any outcome completes the workflow.
		return terminal(in, StatusCompleted, "", "", now), nil
	}

	return in, nil
}

func nextAfterScreening(in Instance, res StepResult, pol RiskPolicy, t Timeouts, now time.Time) (Instance, []Command) {
	if res.Outcome != OutcomeSucceeded && res.Outcome != OutcomeDuplicate {
		reason := res.Reason
		if reason == "" {
			reason = "compliance screening failed"
		}
		return compensate(in, res.Step, reason, now)
	}

	// A duplicate outcome means the screening already happened; trust the
	// recorded score over a zero re-delivery default.
	score := res.RiskScore
	if res.Outcome == OutcomeDuplicate && score == 0 {
		score = in.RiskScore
	}
	in.RiskScore = score
	switch pol.Band(score) {
	case BandAccept:
		return advance(in, StepReserveFunds, CmdReserveFunds, t, now)

	case BandMonitor:
		in.EnhancedAudit = true
		return advance(in, StepReserveFunds, CmdReserveFunds, t, now)

	case BandReview:
		// Suspend on manual review; no command is issued until an external
		// decision arrives or the review deadline expires.
		in.CurrentStep = StepManualReview
		in.StepDeadline = nil
		deadline := now.Add(t.Review)
		in.ReviewDeadline = &deadline
		return in, nil

	default:
		return compensate(in, res.Step, "risk score at or above block threshold", now)
	}
}

func advance(in Instance, step Step, kind CommandKind, t Timeouts, now time.Time) (Instance, []Command) {
	in.CurrentStep = step
	in.ReviewDeadline = nil
	deadline := now.Add(t.Step)
	in.StepDeadline = &deadline
	return in, []Command{{
		Kind:           kind,
		CorrelationID:  in.CorrelationID,
		PaymentID:      in.PaymentID,
		IdempotencyKey: in.IdempotencyKey,
	}}
}

func compensate(in Instance, failedStep Step, reason string, now time.Time) (Instance, []Command) {
	in.Status = StatusCompensating
	in.FailedStep = failedStep
	in.FailureReason = reason
	in.StepDeadline = nil
	in.ReviewDeadline = nil
	return in, []Command{{
		Kind:           CmdCompensate,
		CorrelationID:  in.CorrelationID,
		PaymentID:      in.PaymentID,
		IdempotencyKey: in.IdempotencyKey,
		Reason:         reason,
	}}
}

func terminal(in Instance, status Status, failedStep Step, reason string, now time.Time) Instance {
	in.Status = status
	if failedStep != "" {
		in.FailedStep = failedStep
	}
	if reason != "" {
		in.FailureReason = reason
	}
	in.StepDeadline = nil
	in.ReviewDeadline = nil
	done := now
	in.CompletedAt = &done
	return in
}

// Expired reports whether the saga's active deadline has passed. It applies
// to running sagas only.
func (in Instance) Expired(now time.Time) bool {
	if in.Status != StatusRunning {
		return false
	}
	if in.CurrentStep == StepManualReview {
		return in.ReviewDeadline != nil && now.After(*in.ReviewDeadline)
	}
	return in.StepDeadline != nil && now.After(*in.StepDeadline)
}

// TimeoutResult builds the step result the sweeper feeds into Next when a
// deadline expires.
func (in Instance) TimeoutResult() StepResult {
	reason := "step deadline expired"
	if in.CurrentStep == StepManualReview {
		reason = "manual review hold expired"
	}
	return StepResult{Step: in.CurrentStep, Outcome: OutcomeTimedOut, Reason: reason}
}

// CompensationDisposition reports which terminal aggregate operation the
// compensator should apply: failures at or before funds reservation are
// business declines, later failures are technical.
func (in Instance) CompensationDisposition() payment.State {
	switch in.FailedStep {
	case StepComplianceScreening, StepManualReview, StepReserveFunds:
		return payment.StateDeclined
	default:
		return payment.StateFailed
	}
}
