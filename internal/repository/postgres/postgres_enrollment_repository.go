package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const enrollmentTracer = "enrollment-repository"

type PostgresEnrollmentRepository struct {
	db *sql.DB
}

func NewPostgresEnrollmentRepository(db *sql.DB) *PostgresEnrollmentRepository {
	return &PostgresEnrollmentRepository{db: db}
}

// Revoke refunds an active enrollment and decrements the course counter.
func (r *PostgresEnrollmentRepository) Revoke(ctx context.Context, userID, courseID string) (revoked bool, err error) {
	ctx, finish := instrument(ctx, enrollmentTracer, "RevokeEnrollment",
		attribute.String("user_id", userID), attribute.String("course_id", courseID))
	defer func() { finish(err) }()

	update := `UPDATE enrollments SET status = 'REFUNDED', updated_at = NOW() WHERE user_id = $1 AND course_id = $2 AND status = 'ACTIVE'`
	decrement := `UPDATE courses SET total_students = GREATEST(total_students - 1, 0) WHERE id = $1`

	revoked, err = r.withCounter(ctx, "Revoke", courseID, decrement, update, userID, courseID)
	if err != nil {
		err = fmt.Errorf("failed to revoke enrollment: %w", err)
		return false, err
	}
	slog.Info("enrollment revocation processed", "method", "Revoke", "user_id", userID, "course_id", courseID, "revoked", revoked)
	return revoked, nil
}

// withCounter runs stmt and, only when it touched exactly one row, counterStmt,
// inside a single database transaction.
func (r *PostgresEnrollmentRepository) withCounter(ctx context.Context, method, courseID, counterStmt, stmt string, args ...any) (bool, error) {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", method, "error", err)
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}

	res, err := dbTx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, rollback(dbTx, method, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, rollback(dbTx, method, err)
	}
	if n == 0 {
		if err := dbTx.Rollback(); err != nil {
			slog.Error("rollback failed", "method", method, "error", err)
		}
		return false, nil
	}

	if _, err := dbTx.ExecContext(ctx, counterStmt, courseID); err != nil {
		return false, rollback(dbTx, method, err)
	}

	if err := dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", method, "error", err)
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// grantEnrollment inserts the enrollment, or reactivates a refunded one, and
// increments the course counter only when a row changed. It runs inside the
// caller's database transaction.
func grantEnrollment(ctx context.Context, dbTx *sql.Tx, userID, courseID string) (bool, error) {
	upsert := `
		INSERT INTO enrollments (id, user_id, course_id, status)
		VALUES ($1, $2, $3, 'ACTIVE')
		ON CONFLICT (user_id, course_id) DO UPDATE
		SET status = 'ACTIVE', updated_at = NOW()
		WHERE enrollments.status <> 'ACTIVE'`
	res, err := dbTx.ExecContext(ctx, upsert, uuid.NewString(), userID, courseID)
	if err != nil {
		return false, fmt.Errorf("failed to enroll user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to enroll user: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	increment := `UPDATE courses SET total_students = total_students + 1 WHERE id = $1`
	if _, err := dbTx.ExecContext(ctx, increment, courseID); err != nil {
		return false, fmt.Errorf("failed to increment course students: %w", err)
	}
	return true, nil
}

func rollback(dbTx *sql.Tx, method string, cause error) error {
	if rbErr := dbTx.Rollback(); rbErr != nil {
		slog.Error("rollback failed", "method", method, "error", rbErr)
		return fmt.Errorf("rollback failed: %v; original error: %w", rbErr, cause)
	}
	return cause
}
