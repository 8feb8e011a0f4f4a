package errors

import (
	"errors"
	"fmt"
)

var (
	// Validation errors
	ErrInvalidPayment = errors.New("invalid payment")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidInput   = errors.New("invalid input")

	// State errors
	ErrInvalidStateTransition     = errors.New("invalid state transition")
	ErrCannotCancelSettledPayment = errors.New("cannot cancel settled payment")
	ErrEmptyJournal               = errors.New("journal entries must not be empty")
	ErrUnbalancedJournal          = errors.New("journal debits and credits do not balance")
	ErrSettlementExceedsReserved  = errors.New("settlement amount exceeds reserved amount")

	// Concurrency errors
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// Not-found errors
	ErrPaymentNotFound = errors.New("payment not found")
	ErrSagaNotFound    = errors.New("saga not found")

	// Saga / workflow errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrSagaNotInReview         = errors.New("saga is not awaiting manual review")
	ErrSagaTerminal            = errors.New("saga already reached a terminal status")

	// External-dependency errors
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrComplianceUnavailable = errors.New("compliance screening unavailable")
	ErrSettlementUnavailable = errors.New("settlement gateway unavailable")
	ErrLedgerUnavailable     = errors.New("ledger service unavailable")
	ErrReservationNotFound   = errors.New("fund reservation not found")
	ErrExternalCallTimeout   = errors.New("external call timeout")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// StateTransitionError carries the attempted operation and the state it was
// attempted from, so a saga can log and branch on it.
type StateTransitionError struct {
	Operation string
	State     string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("operation %s not allowed in state %s", e.Operation, e.State)
}

func (e *StateTransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

// NewStateTransitionError creates a StateTransitionError for the given
// operation and current state.
func NewStateTransitionError(operation, state string) *StateTransitionError {
	return &StateTransitionError{Operation: operation, State: state}
}
