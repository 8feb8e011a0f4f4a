package redis

import (
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhorak/payflow/internal/domain/payment"
	"github.com/vhorak/payflow/internal/domain/saga"
)

func testCommand() saga.Command {
	return saga.Command{
		Kind:           saga.CmdReserveFunds,
		CorrelationID:  uuid.New(),
		PaymentID:      payment.NewPaymentID(),
		IdempotencyKey: "idem-key-001",
		NotBefore:      time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}
}

func TestDecodeCommand_CarriesAttemptCount(t *testing.T) {
	cmd := testCommand()
	values, err := commandValues(cmd, 3)
	require.NoError(t, err)

	decoded, attempt, err := DecodeCommand(goredis.XMessage{ID: "1-0", Values: values})
	require.NoError(t, err)
	assert.Equal(t, cmd, decoded)
	assert.Equal(t, 3, attempt)
}

func TestDecodeCommand_FirstDeliveryIsAttemptZero(t *testing.T) {
	values, err := commandValues(testCommand(), 0)
	require.NoError(t, err)

	_, attempt, err := DecodeCommand(goredis.XMessage{ID: "1-0", Values: values})
	require.NoError(t, err)
	assert.Equal(t, 0, attempt)
}

func TestDecodeCommand_MissingAttemptDefaultsToZero(t *testing.T) {
	cmd := testCommand()
	values, err := commandValues(cmd, 2)
	require.NoError(t, err)
	delete(values, "attempt")

	decoded, attempt, err := DecodeCommand(goredis.XMessage{ID: "1-0", Values: values})
	require.NoError(t, err)
	assert.Equal(t, cmd, decoded)
	assert.Equal(t, 0, attempt)
}

func TestDecodeCommand_MissingPayload(t *testing.T) {
	_, _, err := DecodeCommand(goredis.XMessage{ID: "1-0", Values: map[string]any{"kind": "settle"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no payload")
}

func TestDecodeCommand_MalformedPayload(t *testing.T) {
	_, _, err := DecodeCommand(goredis.XMessage{ID: "1-0", Values: map[string]any{"payload": "{not json"}})
	require.Error(t, err)
}
