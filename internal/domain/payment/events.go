package payment

import "time"

// Event type names as persisted in the event store.
const (
	EventTypeRequested         = "payment.requested"
	EventTypeFlagged           = "payment.flagged"
	EventTypeAMLPassed         = "payment.aml_passed"
	EventTypeFundsReserved     = "payment.funds_reserved"
	EventTypeReservationFailed = "payment.funds_reservation_failed"
	EventTypeJournaled         = "payment.journaled"
	EventTypeSettled           = "payment.settled"
	EventTypeCancelled         = "payment.cancelled"
	EventTypeDeclined          = "payment.declined"
	EventTypeFailed            = "payment.failed"
	EventTypeNotified          = "payment.notified"
)

// Event is an immutable fact about a payment. The concrete set of events is
// closed: the aggregate's apply switch enumerates every type, and the codec
// rejects anything else.
type Event interface {
	EventType() string
	AggregateID() PaymentID
	OccurredAt() time.Time
}

// PaymentRequested starts the stream for a new payment instruction.
type PaymentRequested struct {
	PaymentID      PaymentID `json:"payment_id"`
	Amount         Money     `json:"amount"`
	PayerAccountID AccountID `json:"payer_account_id"`
	PayeeAccountID AccountID `json:"payee_account_id"`
	Reference      string    `json:"reference"`
	At             time.Time `json:"at"`
}

// PaymentFlagged records a compliance hold pending manual review. The risk
// score that triggered the hold travels on the event so a replayed aggregate
// still knows its screening verdict.
type PaymentFlagged struct {
	PaymentID PaymentID `json:"payment_id"`
	Reason    string    `json:"reason"`
	Severity  string    `json:"severity"`
	RiskScore float64   `json:"risk_score"`
	At        time.Time `json:"at"`
}

// AMLPassed records a passed compliance screening. A flagged payment is
// released; an unflagged one keeps its state until funds are reserved.
type AMLPassed struct {
	PaymentID      PaymentID `json:"payment_id"`
	RuleSetVersion string    `json:"rule_set_version"`
	RiskScore      float64   `json:"risk_score"`
	At             time.Time `json:"at"`
}

// FundsReserved records a hold placed on the payer account.
type FundsReserved struct {
	PaymentID     PaymentID     `json:"payment_id"`
	ReservationID ReservationID `json:"reservation_id"`
	At            time.Time     `json:"at"`
}

// FundsReservationFailed records a failed reservation attempt. The state is
// unchanged; the orchestrator decides between retry and decline.
type FundsReservationFailed struct {
	PaymentID PaymentID `json:"payment_id"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// PaymentJournaled records the matched debit/credit entries for the payment.
type PaymentJournaled struct {
	PaymentID PaymentID     `json:"payment_id"`
	Entries   []LedgerEntry `json:"entries"`
	At        time.Time     `json:"at"`
}

// PaymentSettled records final settlement. ReconciliationFlagged marks a
// partial settlement for downstream accounting follow-up.
type PaymentSettled struct {
	PaymentID             PaymentID `json:"payment_id"`
	Channel               string    `json:"channel"`
	ExternalRef           string    `json:"external_ref"`
	Amount                Money     `json:"amount"`
	ReconciliationFlagged bool      `json:"reconciliation_flagged"`
	At                    time.Time `json:"at"`
}

// PaymentCancelled records a caller-initiated cancellation.
type PaymentCancelled struct {
	PaymentID   PaymentID `json:"payment_id"`
	CancelledBy string    `json:"cancelled_by"`
	Forced      bool      `json:"forced"`
	At          time.Time `json:"at"`
}

// PaymentDeclined records a business decision to reject the payment.
type PaymentDeclined struct {
	PaymentID PaymentID `json:"payment_id"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// PaymentFailed records a technical failure, typically at settlement time
// after compensation has run.
type PaymentFailed struct {
	PaymentID PaymentID `json:"payment_id"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// PaymentNotified records a best-effort notification delivery.
type PaymentNotified struct {
	PaymentID PaymentID `json:"payment_id"`
	Channel   string    `json:"channel"`
	At        time.Time `json:"at"`
}

func (e PaymentRequested) EventType() string       { return EventTypeRequested }
func (e PaymentFlagged) EventType() string         { return EventTypeFlagged }
func (e AMLPassed) EventType() string              { return EventTypeAMLPassed }
func (e FundsReserved) EventType() string          { return EventTypeFundsReserved }
func (e FundsReservationFailed) EventType() string { return EventTypeReservationFailed }
func (e PaymentJournaled) EventType() string       { return EventTypeJournaled }
func (e PaymentSettled) EventType() string         { return EventTypeSettled }
func (e PaymentCancelled) EventType() string       { return EventTypeCancelled }
func (e PaymentDeclined) EventType() string        { return EventTypeDeclined }
func (e PaymentFailed) EventType() string          { return EventTypeFailed }
func (e PaymentNotified) EventType() string        { return EventTypeNotified }

func (e PaymentRequested) AggregateID() PaymentID       { return e.PaymentID }
func (e PaymentFlagged) AggregateID() PaymentID         { return e.PaymentID }
func (e AMLPassed) AggregateID() PaymentID              { return e.PaymentID }
func (e FundsReserved) AggregateID() PaymentID          { return e.PaymentID }
func (e FundsReservationFailed) AggregateID() PaymentID { return e.PaymentID }
func (e PaymentJournaled) AggregateID() PaymentID       { return e.PaymentID }
func (e PaymentSettled) AggregateID() PaymentID         { return e.PaymentID }
func (e PaymentCancelled) AggregateID() PaymentID       { return e.PaymentID }
func (e PaymentDeclined) AggregateID() PaymentID        { return e.PaymentID }
func (e PaymentFailed) AggregateID() PaymentID          { return e.PaymentID }
func (e PaymentNotified) AggregateID() PaymentID        { return e.PaymentID }

func (e PaymentRequested) OccurredAt() time.Time       { return e.At }
func (e PaymentFlagged) OccurredAt() time.Time         { return e.At }
func (e AMLPassed) OccurredAt() time.Time              { return e.At }
func (e FundsReserved) OccurredAt() time.Time          { return e.At }
func (e FundsReservationFailed) OccurredAt() time.Time { return e.At }
func (e PaymentJournaled) OccurredAt() time.Time       { return e.At }
func (e PaymentSettled) OccurredAt() time.Time         { return e.At }
func (e PaymentCancelled) OccurredAt() time.Time       { return e.At }
func (e PaymentDeclined) OccurredAt() time.Time        { return e.At }
func (e PaymentFailed) OccurredAt() time.Time          { return e.At }
func (e PaymentNotified) OccurredAt() time.Time        { return e.At }
