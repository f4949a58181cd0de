package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/bnoverseas/payments-service/internal/models"
	pkgerrors "github.com/bnoverseas/payments-service/pkg/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const transactionTracer = "transaction-repository"

const transactionColumns = `id, user_id, type, amount, currency, status, gateway_response, course_id, appointment_id, refund_amount, refund_reason, created_at, updated_at`

type PostgresTransactionRepository struct {
	db *sql.DB
}

func NewPostgresTransactionRepository(db *sql.DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

func (r *PostgresTransactionRepository) Create(ctx context.Context, tx *models.Transaction) (id string, err error) {
	ctx, finish := instrument(ctx, transactionTracer, "CreateTransaction")
	defer func() { finish(err) }()

	if tx == nil {
		err = pkgerrors.ErrNilTransaction
		slog.Error("failed to create transaction", "method", "Create", "error", err)
		return "", err
	}
	if !tx.Type.Valid() {
		err = pkgerrors.ErrInvalidTransactionType
		slog.Error("invalid transaction type", "method", "Create", "type", tx.Type, "error", err)
		return "", err
	}
	if tx.Status == "" {
		tx.Status = models.StatusPending
	}
	if !tx.Status.Valid() {
		err = pkgerrors.ErrInvalidTransactionStatus
		slog.Error("invalid transaction status", "method", "Create", "status", tx.Status, "error", err)
		return "", err
	}
	if tx.Amount <= 0 {
		err = fmt.Errorf("%w: amount must be positive", pkgerrors.ErrInvalidInput)
		slog.Error("amount must be positive", "method", "Create", "amount", tx.Amount, "error", err)
		return "", err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}

	query := `INSERT INTO transactions (id, user_id, type, amount, currency, status, course_id, appointment_id) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query,
		tx.ID, tx.UserID, tx.Type, tx.Amount, tx.Currency, tx.Status,
		nullString(tx.CourseID), nullString(tx.AppointmentID),
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		slog.Error("failed to create transaction", "method", "Create", "user_id", tx.UserID, "type", tx.Type, "error", err)
		err = fmt.Errorf("failed to create transaction: %w", err)
		return "", err
	}

	slog.Info("transaction created", "method", "Create", "id", tx.ID, "user_id", tx.UserID, "type", tx.Type, "amount", tx.Amount)
	return tx.ID, nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id string) (tx *models.Transaction, err error) {
	ctx, finish := instrument(ctx, transactionTracer, "GetTransactionByID", attribute.String("transaction_id", id))
	defer func() { finish(err) }()

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	tx, err = scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrTransactionNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get transaction by id", "method", "GetByID", "transaction_id", id, "error", err)
		err = fmt.Errorf("failed to get transaction by id: %w", err)
		return nil, err
	}
	return tx, nil
}

// GetByPaymentID finds the transaction whose stored gateway snapshot carries the
// given gateway payment id.
func (r *PostgresTransactionRepository) GetByPaymentID(ctx context.Context, paymentID string) (tx *models.Transaction, err error) {
	ctx, finish := instrument(ctx, transactionTracer, "GetTransactionByPaymentID", attribute.String("payment_id", paymentID))
	defer func() { finish(err) }()

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE gateway_response->>'payment_id' = $1 ORDER BY created_at DESC LIMIT 1`
	tx, err = scanTransaction(r.db.QueryRowContext(ctx, query, paymentID))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrTransactionNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get transaction by payment id", "method", "GetByPaymentID", "payment_id", paymentID, "error", err)
		err = fmt.Errorf("failed to get transaction by payment id: %w", err)
		return nil, err
	}
	return tx, nil
}

func (r *PostgresTransactionRepository) ListByUser(ctx context.Context, userID string) (txs []models.Transaction, err error) {
	ctx, finish := instrument(ctx, transactionTracer, "ListTransactionsByUser", attribute.String("user_id", userID))
	defer func() { finish(err) }()

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		err = fmt.Errorf("failed to list transactions: %w", err)
		return nil, err
	}
	defer rows.Close()

	txs = []models.Transaction{}
	for rows.Next() {
		var tx *models.Transaction
		tx, err = scanTransaction(rows)
		if err != nil {
			err = fmt.Errorf("failed to scan transaction: %w", err)
			return nil, err
		}
		txs = append(txs, *tx)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("failed to iterate transactions: %w", err)
		return nil, err
	}
	return txs, nil
}

// MarkCompleted moves a PENDING or FAILED transaction to COMPLETED and grants
// its entitlement in the same database transaction. A false result means the
// transaction was already COMPLETED or REFUNDED, or missing, and nothing was
// granted.
func (r *PostgresTransactionRepository) MarkCompleted(ctx context.Context, tx *models.Transaction, gatewayResponse json.RawMessage) (ok bool, err error) {
	if tx == nil {
		return false, pkgerrors.ErrNilTransaction
	}
	ctx, finish := instrument(ctx, transactionTracer, "MarkTransactionCompleted",
		attribute.String("transaction_id", tx.ID), attribute.String("type", string(tx.Type)))
	defer func() { finish(err) }()

	if err = checkEntitlement(tx); err != nil {
		return false, err
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "MarkCompleted", "error", err)
		err = fmt.Errorf("failed to begin transaction: %w", err)
		return false, err
	}

	query := `UPDATE transactions SET status = 'COMPLETED', gateway_response = $2, updated_at = NOW() WHERE id = $1 AND status IN ('PENDING', 'FAILED')`
	res, err := dbTx.ExecContext(ctx, query, tx.ID, string(gatewayResponse))
	if err != nil {
		err = fmt.Errorf("failed to mark transaction completed: %w", rollback(dbTx, "MarkCompleted", err))
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		err = fmt.Errorf("failed to mark transaction completed: %w", rollback(dbTx, "MarkCompleted", err))
		return false, err
	}
	if n == 0 {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "method", "MarkCompleted", "error", rbErr)
		}
		slog.Info("transaction already settled", "method", "MarkCompleted", "transaction_id", tx.ID)
		return false, nil
	}

	granted, err := grantEntitlement(ctx, dbTx, tx)
	if err != nil {
		err = fmt.Errorf("failed to grant entitlement: %w", rollback(dbTx, "MarkCompleted", err))
		return false, err
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "MarkCompleted", "error", err)
		err = fmt.Errorf("failed to commit transaction: %w", err)
		return false, err
	}
	slog.Info("transaction completed", "method", "MarkCompleted", "transaction_id", tx.ID, "type", tx.Type, "granted", granted)
	return true, nil
}

func checkEntitlement(tx *models.Transaction) error {
	switch tx.Type {
	case models.TypeCoursePurchase:
		if tx.CourseID == "" {
			return fmt.Errorf("%w: course transaction %s has no course id", pkgerrors.ErrInvalidInput, tx.ID)
		}
	case models.TypeAppointmentBooking:
		if tx.AppointmentID == "" {
			return fmt.Errorf("%w: appointment transaction %s has no appointment id", pkgerrors.ErrInvalidInput, tx.ID)
		}
	}
	return nil
}

// grantEntitlement reports false when the entitlement was already in place.
func grantEntitlement(ctx context.Context, dbTx *sql.Tx, tx *models.Transaction) (bool, error) {
	switch tx.Type {
	case models.TypeCoursePurchase:
		return grantEnrollment(ctx, dbTx, tx.UserID, tx.CourseID)
	case models.TypeAppointmentBooking:
		return confirmAppointment(ctx, dbTx, tx.AppointmentID)
	}
	return false, nil
}

func (r *PostgresTransactionRepository) MarkFailed(ctx context.Context, id string, gatewayResponse json.RawMessage) (ok bool, err error) {
	ctx, finish := instrument(ctx, transactionTracer, "MarkTransactionFailed", attribute.String("transaction_id", id))
	defer func() { finish(err) }()

	query := `UPDATE transactions SET status = 'FAILED', gateway_response = $2, updated_at = NOW() WHERE id = $1 AND status = 'PENDING'`
	ok, err = execAffectsOne(ctx, r.db, query, id, string(gatewayResponse))
	if err != nil {
		err = fmt.Errorf("failed to mark transaction failed: %w", err)
		return false, err
	}
	return ok, nil
}

func (r *PostgresTransactionRepository) MarkRefunded(ctx context.Context, id string, amount int64, reason string) (ok bool, err error) {
	ctx, finish := instrument(ctx, transactionTracer, "MarkTransactionRefunded", attribute.String("transaction_id", id))
	defer func() { finish(err) }()

	query := `UPDATE transactions SET status = 'REFUNDED', refund_amount = $2, refund_reason = $3, updated_at = NOW() WHERE id = $1 AND status = 'COMPLETED'`
	ok, err = execAffectsOne(ctx, r.db, query, id, amount, reason)
	if err != nil {
		err = fmt.Errorf("failed to mark transaction refunded: %w", err)
		return false, err
	}
	return ok, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx            models.Transaction
		gateway       []byte
		courseID      sql.NullString
		appointmentID sql.NullString
		refundAmount  sql.NullInt64
		refundReason  sql.NullString
	)
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Amount, &tx.Currency, &tx.Status,
		&gateway, &courseID, &appointmentID, &refundAmount, &refundReason, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(gateway) > 0 {
		tx.GatewayResponse = json.RawMessage(gateway)
	}
	tx.CourseID = courseID.String
	tx.AppointmentID = appointmentID.String
	tx.RefundAmount = refundAmount.Int64
	tx.RefundReason = refundReason.String
	return &tx, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
