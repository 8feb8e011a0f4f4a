package payment

import (
	"encoding/json"
	"fmt"
)

// MarshalEvent serializes an event into its persisted type name and JSON
// payload.
func MarshalEvent(e Event) (eventType string, payload []byte, err error) {
	payload, err = json.Marshal(e)
	if err != nil {
		return "", nil, fmt.Errorf("marshal event %s: %w", e.EventType(), err)
	}
	return e.EventType(), payload, nil
}

// UnmarshalEvent reconstructs an event from its persisted type name and JSON
// payload. Unknown type names are a fault, not a recoverable condition: they
// indicate a corrupted or newer stream.
func UnmarshalEvent(eventType string, payload []byte) (Event, error) {
	var e Event
	switch eventType {
	case EventTypeRequested:
		e = &PaymentRequested{}
	case EventTypeFlagged:
		e = &PaymentFlagged{}
	case EventTypeAMLPassed:
		e = &AMLPassed{}
	case EventTypeFundsReserved:
		e = &FundsReserved{}
	case EventTypeReservationFailed:
		e = &FundsReservationFailed{}
	case EventTypeJournaled:
		e = &PaymentJournaled{}
	case EventTypeSettled:
		e = &PaymentSettled{}
	case EventTypeCancelled:
		e = &PaymentCancelled{}
	case EventTypeDeclined:
		e = &PaymentDeclined{}
	case EventTypeFailed:
		e = &PaymentFailed{}
	case EventTypeNotified:
		e = &PaymentNotified{}
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}

	if err := json.Unmarshal(payload, e); err != nil {
		return nil, fmt.Errorf("unmarshal event %s: %w", eventType, err)
	}
	return deref(e), nil
}

// deref returns the value form of the decoded event so that the codec and
// the aggregate always deal in value types.
func deref(e Event) Event {
	switch v := e.(type) {
	case *PaymentRequested:
		return *v
	case *PaymentFlagged:
		return *v
	case *AMLPassed:
		return *v
	case *FundsReserved:
		return *v
	case *FundsReservationFailed:
		return *v
	case *PaymentJournaled:
		return *v
	case *PaymentSettled:
		return *v
	case *PaymentCancelled:
		return *v
	case *PaymentDeclined:
		return *v
	case *PaymentFailed:
		return *v
	case *PaymentNotified:
		return *v
	default:
		return e
	}
}
