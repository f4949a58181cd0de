package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/bnoverseas/payments-service/internal/models"
	pkgerrors "github.com/bnoverseas/payments-service/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const appointmentTracer = "appointment-repository"

type PostgresAppointmentRepository struct {
	db *sql.DB
}

func NewPostgresAppointmentRepository(db *sql.DB) *PostgresAppointmentRepository {
	return &PostgresAppointmentRepository{db: db}
}

func (r *PostgresAppointmentRepository) GetByID(ctx context.Context, id string) (appt *models.Appointment, err error) {
	ctx, finish := instrument(ctx, appointmentTracer, "GetAppointmentByID", attribute.String("appointment_id", id))
	defer func() { finish(err) }()

	query := `SELECT id, user_id, consultant_name, scheduled_at, fee, currency, status, COALESCE(cancellation_reason, '') FROM appointments WHERE id = $1`
	var a models.Appointment
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.UserID, &a.ConsultantName, &a.ScheduledAt, &a.Fee, &a.Currency, &a.Status, &a.CancellationReason,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrAppointmentNotFound
		return nil, err
	}
	if err != nil {
		err = fmt.Errorf("failed to get appointment: %w", err)
		return nil, err
	}
	return &a, nil
}

func (r *PostgresAppointmentRepository) Cancel(ctx context.Context, id, reason string) (ok bool, err error) {
	ctx, finish := instrument(ctx, appointmentTracer, "CancelAppointment", attribute.String("appointment_id", id))
	defer func() { finish(err) }()

	query := `UPDATE appointments SET status = 'CANCELLED', cancellation_reason = $2, updated_at = NOW() WHERE id = $1 AND status <> 'CANCELLED'`
	ok, err = execAffectsOne(ctx, r.db, query, id, reason)
	if err != nil {
		err = fmt.Errorf("failed to cancel appointment: %w", err)
		return false, err
	}
	slog.Info("appointment cancellation processed", "method", "Cancel", "appointment_id", id, "cancelled", ok)
	return ok, nil
}

// confirmAppointment moves a SCHEDULED appointment to CONFIRMED inside the
// caller's database transaction.
func confirmAppointment(ctx context.Context, dbTx *sql.Tx, id string) (bool, error) {
	query := `UPDATE appointments SET status = 'CONFIRMED', updated_at = NOW() WHERE id = $1 AND status = 'SCHEDULED'`
	res, err := dbTx.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to confirm appointment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to confirm appointment: %w", err)
	}
	return n == 1, nil
}

func execAffectsOne(ctx context.Context, db *sql.DB, query string, args ...any) (bool, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
