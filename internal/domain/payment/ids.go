package payment

import "github.com/google/uuid"

// PaymentID identifies a payment aggregate and its event stream.
type PaymentID struct{ id uuid.UUID }

func NewPaymentID() PaymentID                  { return PaymentID{id: uuid.New()} }
func PaymentIDFrom(id uuid.UUID) PaymentID     { return PaymentID{id: id} }
func ParsePaymentID(s string) (PaymentID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return PaymentID{}, err
	}
	return PaymentID{id: id}, nil
}
func (p PaymentID) UUID() uuid.UUID { return p.id }
func (p PaymentID) String() string  { return p.id.String() }
func (p PaymentID) IsZero() bool    { return p.id == uuid.Nil }

// AccountID identifies a payer or payee account.
type AccountID struct{ id uuid.UUID }

func NewAccountID() AccountID              { return AccountID{id: uuid.New()} }
func AccountIDFrom(id uuid.UUID) AccountID { return AccountID{id: id} }
func ParseAccountID(s string) (AccountID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return AccountID{}, err
	}
	return AccountID{id: id}, nil
}
func (a AccountID) UUID() uuid.UUID { return a.id }
func (a AccountID) String() string  { return a.id.String() }
func (a AccountID) IsZero() bool    { return a.id == uuid.Nil }

// ReservationID identifies a fund reservation held against a payer account.
type ReservationID struct{ id uuid.UUID }

func NewReservationID() ReservationID              { return ReservationID{id: uuid.New()} }
func ReservationIDFrom(id uuid.UUID) ReservationID { return ReservationID{id: id} }
func ParseReservationID(s string) (ReservationID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ReservationID{}, err
	}
	return ReservationID{id: id}, nil
}
func (r ReservationID) UUID() uuid.UUID { return r.id }
func (r ReservationID) String() string  { return r.id.String() }
func (r ReservationID) IsZero() bool    { return r.id == uuid.Nil }

// LedgerEntryID identifies a single journal entry.
type LedgerEntryID struct{ id uuid.UUID }

func NewLedgerEntryID() LedgerEntryID              { return LedgerEntryID{id: uuid.New()} }
func LedgerEntryIDFrom(id uuid.UUID) LedgerEntryID { return LedgerEntryID{id: id} }
func (l LedgerEntryID) UUID() uuid.UUID            { return l.id }
func (l LedgerEntryID) String() string             { return l.id.String() }
func (l LedgerEntryID) IsZero() bool               { return l.id == uuid.Nil }

// MarshalText / UnmarshalText make the ID types transparent to JSON encoding
// without exposing the underlying uuid field.

func (p PaymentID) MarshalText() ([]byte, error) { return []byte(p.id.String()), nil }
func (p *PaymentID) UnmarshalText(b []byte) error {
	id, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	p.id = id
	return nil
}

func (a AccountID) MarshalText() ([]byte, error) { return []byte(a.id.String()), nil }
func (a *AccountID) UnmarshalText(b []byte) error {
	id, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	a.id = id
	return nil
}

func (r ReservationID) MarshalText() ([]byte, error) { return []byte(r.id.String()), nil }
func (r *ReservationID) UnmarshalText(b []byte) error {
	id, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	r.id = id
	return nil
}

func (l LedgerEntryID) MarshalText() ([]byte, error) { return []byte(l.id.String()), nil }
func (l *LedgerEntryID) UnmarshalText(b []byte) error {
	id, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	l.id = id
	return nil
}
