package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	domainErrors "github.com/vhorak/payflow/internal/domain/errors"
	"github.com/vhorak/payflow/internal/domain/payment"
	"github.com/vhorak/payflow/internal/domain/saga"
)

const sagaColumns = `saga_id, correlation_id, idempotency_key, payment_id,
	current_step, status, failed_step, enhanced_audit, risk_score,
	reservation_id, journaled, failure_reason,
	started_at, updated_at, completed_at, step_deadline, review_deadline`

// SagaRepository persists saga instances in PostgreSQL. The unique index on
// idempotency_key enforces the one-saga-per-key invariant at the storage
// layer.
type SagaRepository struct {
	pool *pgxpool.Pool
}

// NewSagaRepository creates a SagaRepository.
func NewSagaRepository(pool *pgxpool.Pool) *SagaRepository {
	return &SagaRepository{pool: pool}
}

func (r *SagaRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Create inserts a new instance; a taken idempotency key fails with
// ErrDuplicateIdempotencyKey.
func (r *SagaRepository) Create(ctx context.Context, in *saga.Instance) error {
	var reservationID *uuid.UUID
	if in.ReservationID != nil {
		id := in.ReservationID.UUID()
		reservationID = &id
	}

	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO sagas (`+sagaColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		in.SagaID, in.CorrelationID, in.IdempotencyKey, in.PaymentID.UUID(),
		string(in.CurrentStep), string(in.Status), string(in.FailedStep), in.EnhancedAudit, in.RiskScore,
		reservationID, in.Journaled, in.FailureReason,
		in.StartedAt, in.UpdatedAt, in.CompletedAt, in.StepDeadline, in.ReviewDeadline,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domainErrors.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert saga: %w", err)
	}
	return nil
}

// GetByCorrelationID returns the instance, or nil if absent.
func (r *SagaRepository) GetByCorrelationID(ctx context.Context, correlationID uuid.UUID) (*saga.Instance, error) {
	return r.scanSaga(r.db(ctx).QueryRow(ctx,
		`SELECT `+sagaColumns+` FROM sagas WHERE correlation_id = $1`, correlationID))
}

// GetByIdempotencyKey returns the instance, or nil if absent.
func (r *SagaRepository) GetByIdempotencyKey(ctx context.Context, key string) (*saga.Instance, error) {
	return r.scanSaga(r.db(ctx).QueryRow(ctx,
		`SELECT `+sagaColumns+` FROM sagas WHERE idempotency_key = $1`, key))
}

// GetByPaymentID returns the instance driving the payment, or nil.
func (r *SagaRepository) GetByPaymentID(ctx context.Context, paymentID payment.PaymentID) (*saga.Instance, error) {
	return r.scanSaga(r.db(ctx).QueryRow(ctx,
		`SELECT `+sagaColumns+` FROM sagas WHERE payment_id = $1`, paymentID.UUID()))
}

// Update persists the instance's current state.
func (r *SagaRepository) Update(ctx context.Context, in *saga.Instance) error {
	var reservationID *uuid.UUID
	if in.ReservationID != nil {
		id := in.ReservationID.UUID()
		reservationID = &id
	}

	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE sagas SET
		   current_step=$1, status=$2, failed_step=$3, enhanced_audit=$4,
		   risk_score=$5, reservation_id=$6, journaled=$7, failure_reason=$8,
		   updated_at=$9, completed_at=$10, step_deadline=$11, review_deadline=$12
		 WHERE saga_id=$13`,
		string(in.CurrentStep), string(in.Status), string(in.FailedStep), in.EnhancedAudit,
		in.RiskScore, reservationID, in.Journaled, in.FailureReason,
		in.UpdatedAt, in.CompletedAt, in.StepDeadline, in.ReviewDeadline,
		in.SagaID,
	)
	if err != nil {
		return fmt.Errorf("update saga: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrSagaNotFound
	}
	return nil
}

// ListExpired returns running instances whose active deadline has passed,
// oldest first.
func (r *SagaRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*saga.Instance, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+sagaColumns+` FROM sagas
		 WHERE status = $1
		   AND ((current_step = $2 AND review_deadline < $3)
		     OR (current_step <> $2 AND step_deadline < $3))
		 ORDER BY updated_at
		 LIMIT $4`,
		string(saga.StatusRunning), string(saga.StepManualReview), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query expired sagas: %w", err)
	}
	defer rows.Close()

	var out []*saga.Instance
	for rows.Next() {
		in, err := r.scanSagaRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired sagas: %w", err)
	}
	return out, nil
}

// ListStalledCompensations returns compensating instances whose last update
// is older than the cutoff, oldest first.
func (r *SagaRepository) ListStalledCompensations(ctx context.Context, cutoff time.Time, limit int) ([]*saga.Instance, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+sagaColumns+` FROM sagas
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at
		 LIMIT $3`,
		string(saga.StatusCompensating), cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query stalled compensations: %w", err)
	}
	defer rows.Close()

	var out []*saga.Instance
	for rows.Next() {
		in, err := r.scanSagaRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stalled compensations: %w", err)
	}
	return out, nil
}

func (r *SagaRepository) scanSaga(row pgx.Row) (*saga.Instance, error) {
	in, err := r.scanSagaRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return in, nil
}

func (r *SagaRepository) scanSagaRow(row scanner) (*saga.Instance, error) {
	var (
		in            saga.Instance
		paymentID     uuid.UUID
		currentStep   string
		status        string
		failedStep    string
		reservationID *uuid.UUID
	)
	err := row.Scan(
		&in.SagaID, &in.CorrelationID, &in.IdempotencyKey, &paymentID,
		&currentStep, &status, &failedStep, &in.EnhancedAudit, &in.RiskScore,
		&reservationID, &in.Journaled, &in.FailureReason,
		&in.StartedAt, &in.UpdatedAt, &in.CompletedAt, &in.StepDeadline, &in.ReviewDeadline,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan saga: %w", err)
	}

	in.PaymentID = payment.PaymentIDFrom(paymentID)
	in.CurrentStep = saga.Step(currentStep)
	in.Status = saga.Status(status)
	in.FailedStep = saga.Step(failedStep)
	if reservationID != nil {
		id := payment.ReservationIDFrom(*reservationID)
		in.ReservationID = &id
	}
	return &in, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}
