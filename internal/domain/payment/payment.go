package payment

import (
	"time"

	"github.com/vhorak/payflow/internal/domain/errors"
)

// State represents the payment position in the lifecycle state machine.
type State string

const (
	StateRequested State = "requested"
	StateFlagged   State = "flagged"
	StateReleased  State = "released"
	StateReserved  State = "reserved"
	StateJournaled State = "journaled"
	StateSettled   State = "settled"
	StateDeclined  State = "declined"
	StateFailed    State = "failed"
)

// IsTerminal reports whether no further transition is possible, with the
// exception of the Fail escape hatch.
func (s State) IsTerminal() bool {
	return s == StateSettled || s == StateDeclined || s == StateFailed
}

// Payment is an event-sourced aggregate representing one funds-transfer
// instruction through its full lifecycle. State is derived entirely from the
// event stream: operations validate a precondition and raise an event, and
// apply is the single path that mutates fields.
type Payment struct {
	id             PaymentID
	amount         Money
	payerAccountID AccountID
	payeeAccountID AccountID
	reference      string
	state          State
	riskScore      float64
	reservationID  *ReservationID
	reconciliation bool
	notified       bool
	requestedAt    time.Time
	updatedAt      time.Time

	version     int
	uncommitted []Event
}

// Create starts a new payment and raises PaymentRequested.
func Create(id PaymentID, amount Money, payer, payee AccountID, reference string) (*Payment, error) {
	if err := amount.EnsurePositive(); err != nil {
		return nil, err
	}
	if payer == payee {
		return nil, errors.NewDomainError("invalid_payment", "payer and payee accounts must differ", errors.ErrInvalidPayment)
	}
	if id.IsZero() || payer.IsZero() || payee.IsZero() {
		return nil, errors.ErrInvalidInput
	}

	p := &Payment{}
	p.raise(PaymentRequested{
		PaymentID:      id,
		Amount:         amount,
		PayerAccountID: payer,
		PayeeAccountID: payee,
		Reference:      reference,
		At:             time.Now().UTC(),
	})
	return p, nil
}

// Replay reconstructs the aggregate by folding its ordered event history.
// The fold is deterministic and side-effect free; the resulting aggregate
// has no uncommitted events.
func Replay(events []Event) (*Payment, error) {
	if len(events) == 0 {
		return nil, errors.ErrPaymentNotFound
	}
	p := &Payment{}
	for _, e := range events {
		p.apply(e)
		p.version++
	}
	return p, nil
}

// --- Accessors ---

func (p *Payment) ID() PaymentID             { return p.id }
func (p *Payment) Amount() Money             { return p.amount }
func (p *Payment) PayerAccountID() AccountID { return p.payerAccountID }
func (p *Payment) PayeeAccountID() AccountID { return p.payeeAccountID }
func (p *Payment) Reference() string         { return p.reference }
func (p *Payment) State() State              { return p.state }
func (p *Payment) RequestedAt() time.Time    { return p.requestedAt }
func (p *Payment) UpdatedAt() time.Time      { return p.updatedAt }

// ReservationID returns the reservation held for this payment, or nil.
func (p *Payment) ReservationID() *ReservationID {
	if p.reservationID == nil {
		return nil
	}
	id := *p.reservationID
	return &id
}

// RiskScore returns the score recorded by the last screening event, flagged
// or passed. Zero means the payment has not been screened.
func (p *Payment) RiskScore() float64 { return p.riskScore }

// ReconciliationFlagged reports whether a partial settlement was flagged for
// downstream accounting reconciliation.
func (p *Payment) ReconciliationFlagged() bool { return p.reconciliation }

// Notified reports whether a notification has been recorded.
func (p *Payment) Notified() bool { return p.notified }

// Version is the total number of events applied to the aggregate, committed
// or not.
func (p *Payment) Version() int { return p.version }

// CommittedVersion is the stream version the aggregate was loaded at; it is
// the expected version for the next append.
func (p *Payment) CommittedVersion() int { return p.version - len(p.uncommitted) }

// UncommittedEvents returns the events raised since the last save.
func (p *Payment) UncommittedEvents() []Event {
	out := make([]Event, len(p.uncommitted))
	copy(out, p.uncommitted)
	return out
}

// MarkCommitted clears the uncommitted list after a successful append.
func (p *Payment) MarkCommitted() { p.uncommitted = nil }

// --- Operations ---

// Flag places the payment on a compliance hold.
func (p *Payment) Flag(reason, severity string, riskScore float64) error {
	if err := p.ensureState("Flag", StateRequested); err != nil {
		return err
	}
	p.raise(PaymentFlagged{PaymentID: p.id, Reason: reason, Severity: severity, RiskScore: riskScore, At: time.Now().UTC()})
	return nil
}

// MarkAMLPassed records a passed screening. A flagged payment is released;
// otherwise the state is unchanged and ReserveFunds is the transition into
// Reserved.
func (p *Payment) MarkAMLPassed(ruleSetVersion string, riskScore float64) error {
	if err := p.ensureState("MarkAMLPassed", StateRequested, StateFlagged, StateReleased); err != nil {
		return err
	}
	p.raise(AMLPassed{PaymentID: p.id, RuleSetVersion: ruleSetVersion, RiskScore: riskScore, At: time.Now().UTC()})
	return nil
}

// ReserveFunds records a hold placed on the payer account.
func (p *Payment) ReserveFunds(reservationID ReservationID) error {
	if err := p.ensureState("ReserveFunds", StateRequested, StateReleased); err != nil {
		return err
	}
	p.raise(FundsReserved{PaymentID: p.id, ReservationID: reservationID, At: time.Now().UTC()})
	return nil
}

// FailReservation records a failed reservation attempt without changing
// state; the orchestrator decides between retry and decline.
func (p *Payment) FailReservation(reason string) error {
	if err := p.ensureState("FailReservation", StateRequested, StateReleased); err != nil {
		return err
	}
	p.raise(FundsReservationFailed{PaymentID: p.id, Reason: reason, At: time.Now().UTC()})
	return nil
}

// Journal records the matched debit/credit entries for the payment.
func (p *Payment) Journal(entries []LedgerEntry) error {
	if err := p.ensureState("Journal", StateReserved); err != nil {
		return err
	}
	if err := ValidateEntries(entries); err != nil {
		return err
	}
	p.raise(PaymentJournaled{PaymentID: p.id, Entries: entries, At: time.Now().UTC()})
	return nil
}

// Settle records final settlement. The settled amount must not exceed the
// payment amount; a strictly smaller amount is accepted and flagged for
// reconciliation.
func (p *Payment) Settle(channel, externalRef string, amount Money) error {
	if err := p.ensureState("Settle", StateJournaled); err != nil {
		return err
	}
	if err := amount.EnsurePositive(); err != nil {
		return err
	}
	if amount.GreaterThan(p.amount) || amount.Currency != p.amount.Currency {
		return errors.ErrSettlementExceedsReserved
	}
	p.raise(PaymentSettled{
		PaymentID:             p.id,
		Channel:               channel,
		ExternalRef:           externalRef,
		Amount:                amount,
		ReconciliationFlagged: amount.LessThan(p.amount),
		At:                    time.Now().UTC(),
	})
	return nil
}

// Cancel declines the payment on behalf of a caller. A settled payment can
// only be cancelled with the force flag by an authorized caller; forced
// cancellation is refused only once the payment is already Declined or
// Failed.
func (p *Payment) Cancel(by string, force bool) error {
	if force {
		if p.state == StateDeclined || p.state == StateFailed {
			return errors.NewStateTransitionError("Cancel", string(p.state))
		}
	} else {
		if p.state == StateSettled {
			return errors.ErrCannotCancelSettledPayment
		}
		if err := p.ensureState("Cancel", StateRequested, StateFlagged, StateReleased); err != nil {
			return err
		}
	}
	p.raise(PaymentCancelled{PaymentID: p.id, CancelledBy: by, Forced: force, At: time.Now().UTC()})
	return nil
}

// Decline rejects the payment for a business reason.
func (p *Payment) Decline(reason string) error {
	if err := p.ensureState("Decline", StateRequested, StateFlagged, StateReleased, StateReserved); err != nil {
		return err
	}
	p.raise(PaymentDeclined{PaymentID: p.id, Reason: reason, At: time.Now().UTC()})
	return nil
}

// Fail marks the payment failed. It is the escape hatch for settlement-time
// failures and is legal from any state.
func (p *Payment) Fail(reason string) error {
	p.raise(PaymentFailed{PaymentID: p.id, Reason: reason, At: time.Now().UTC()})
	return nil
}

// MarkNotified records a best-effort notification after settlement.
func (p *Payment) MarkNotified(channel string) error {
	if err := p.ensureState("MarkNotified", StateSettled); err != nil {
		return err
	}
	p.raise(PaymentNotified{PaymentID: p.id, Channel: channel, At: time.Now().UTC()})
	return nil
}

// --- Event sourcing machinery ---

func (p *Payment) ensureState(operation string, allowed ...State) error {
	for _, s := range allowed {
		if p.state == s {
			return nil
		}
	}
	return errors.NewStateTransitionError(operation, string(p.state))
}

// raise applies the event and records it as uncommitted. No event is raised
// without its guard passing, and no guard check lacks a corresponding event.
func (p *Payment) raise(e Event) {
	p.apply(e)
	p.version++
	p.uncommitted = append(p.uncommitted, e)
}

// apply is the single mutation path. Events are facts: apply never
// validates, it only folds the event into the aggregate fields.
func (p *Payment) apply(e Event) {
	switch ev := e.(type) {
	case PaymentRequested:
		p.id = ev.PaymentID
		p.amount = ev.Amount
		p.payerAccountID = ev.PayerAccountID
		p.payeeAccountID = ev.PayeeAccountID
		p.reference = ev.Reference
		p.state = StateRequested
		p.requestedAt = ev.At
	case PaymentFlagged:
		p.state = StateFlagged
		p.riskScore = ev.RiskScore
	case AMLPassed:
		if p.state == StateFlagged {
			p.state = StateReleased
		} else {
			p.riskScore = ev.RiskScore
		}
	case FundsReserved:
		id := ev.ReservationID
		p.reservationID = &id
		p.state = StateReserved
	case FundsReservationFailed:
		// State unchanged; the fact is recorded for audit.
	case PaymentJournaled:
		p.state = StateJournaled
	case PaymentSettled:
		p.state = StateSettled
		p.reconciliation = ev.ReconciliationFlagged
	case PaymentCancelled:
		p.state = StateDeclined
	case PaymentDeclined:
		p.state = StateDeclined
	case PaymentFailed:
		p.state = StateFailed
	case PaymentNotified:
		p.notified = true
	}
	p.updatedAt = e.OccurredAt()
}
