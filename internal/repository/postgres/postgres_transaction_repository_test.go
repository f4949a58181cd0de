package postgres_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bnoverseas/payments-service/internal/models"
	repository "github.com/bnoverseas/payments-service/internal/repository/postgres"
	pkgerrors "github.com/bnoverseas/payments-service/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transactionColumns = []string{
	"id", "user_id", "type", "amount", "currency", "status", "gateway_response",
	"course_id", "appointment_id", "refund_amount", "refund_reason", "created_at", "updated_at",
}

func TestPostgresTransactionRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresTransactionRepository(db)
	ctx := context.Background()

	t.Run("NilTransaction", func(t *testing.T) {
		id, err := repo.Create(ctx, nil)
		assert.Empty(t, id)
		assert.ErrorIs(t, err, pkgerrors.ErrNilTransaction)
	})

	t.Run("InvalidType", func(t *testing.T) {
		tx := &models.Transaction{UserID: "user_1", Amount: 500, Type: "MERCH", Status: models.StatusPending}
		id, err := repo.Create(ctx, tx)
		assert.Empty(t, id)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransactionType)
	})

	t.Run("InvalidStatus", func(t *testing.T) {
		tx := &models.Transaction{UserID: "user_1", Amount: 500, Type: models.TypeCoursePurchase, Status: "SETTLED"}
		id, err := repo.Create(ctx, tx)
		assert.Empty(t, id)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransactionStatus)
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		tx := &models.Transaction{UserID: "user_1", Amount: 0, Type: models.TypeCoursePurchase}
		id, err := repo.Create(ctx, tx)
		assert.Empty(t, id)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		assert.Contains(t, err.Error(), "amount must be positive")
	})

	t.Run("Success", func(t *testing.T) {
		tx := &models.Transaction{
			UserID: "user_1", Type: models.TypeCoursePurchase, CourseID: "course_9",
			Amount: 499900, Currency: "INR",
		}
		createdAt := time.Now().UTC()
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO transactions (id, user_id, type, amount, currency, status, course_id, appointment_id) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at`)).
			WithArgs(sqlmock.AnyArg(), "user_1", models.TypeCoursePurchase, int64(499900), "INR", models.StatusPending, "course_9", nil).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(createdAt, createdAt))

		id, err := repo.Create(ctx, tx)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, tx.ID)
		assert.Equal(t, models.StatusPending, tx.Status)
		assert.WithinDuration(t, createdAt, tx.CreatedAt, time.Second)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		tx := &models.Transaction{UserID: "user_1", Type: models.TypeAppointmentBooking, AppointmentID: "appt_1", Amount: 150000, Currency: "INR"}
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO transactions`)).
			WillReturnError(fmt.Errorf("database error"))

		id, err := repo.Create(ctx, tx)
		assert.Empty(t, id)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransactionRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresTransactionRepository(db)
	ctx := context.Background()
	query := regexp.QuoteMeta(`FROM transactions WHERE id = $1`)

	t.Run("Success", func(t *testing.T) {
		createdAt := time.Now().UTC()
		gateway := []byte(`{"payment_id":"pay_1","status":"captured"}`)
		mock.ExpectQuery(query).
			WithArgs("tx_1").
			WillReturnRows(sqlmock.NewRows(transactionColumns).AddRow(
				"tx_1", "user_1", "COURSE_PURCHASE", int64(499900), "INR", "COMPLETED", gateway,
				"course_9", nil, nil, nil, createdAt, createdAt,
			))

		tx, err := repo.GetByID(ctx, "tx_1")
		require.NoError(t, err)
		assert.Equal(t, &models.Transaction{
			ID: "tx_1", UserID: "user_1", Type: models.TypeCoursePurchase, Amount: 499900, Currency: "INR",
			Status: models.StatusCompleted, GatewayResponse: json.RawMessage(gateway), CourseID: "course_9",
			CreatedAt: createdAt, UpdatedAt: createdAt,
		}, tx)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("TransactionNotFound", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("tx_404").WillReturnError(sql.ErrNoRows)

		tx, err := repo.GetByID(ctx, "tx_404")
		assert.Nil(t, tx)
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("tx_1").WillReturnError(fmt.Errorf("connection reset"))

		tx, err := repo.GetByID(ctx, "tx_1")
		assert.Nil(t, tx)
		assert.Contains(t, err.Error(), "failed to get transaction by id")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransactionRepository_GetByPaymentID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresTransactionRepository(db)
	ctx := context.Background()
	query := regexp.QuoteMeta(`WHERE gateway_response->>'payment_id' = $1 ORDER BY created_at DESC LIMIT 1`)

	t.Run("Success", func(t *testing.T) {
		now := time.Now().UTC()
		mock.ExpectQuery(query).
			WithArgs("pay_1").
			WillReturnRows(sqlmock.NewRows(transactionColumns).AddRow(
				"tx_1", "user_1", "APPOINTMENT_BOOKING", int64(150000), "INR", "REFUNDED", []byte(`{"payment_id":"pay_1"}`),
				nil, "appt_1", int64(150000), "Visa appointment moved", now, now,
			))

		tx, err := repo.GetByPaymentID(ctx, "pay_1")
		require.NoError(t, err)
		assert.Equal(t, "appt_1", tx.AppointmentID)
		assert.Empty(t, tx.CourseID)
		assert.Equal(t, int64(150000), tx.RefundAmount)
		assert.Equal(t, "Visa appointment moved", tx.RefundReason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("pay_404").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByPaymentID(ctx, "pay_404")
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransactionRepository_ListByUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresTransactionRepository(db)
	ctx := context.Background()
	query := regexp.QuoteMeta(`FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`)

	t.Run("Success", func(t *testing.T) {
		now := time.Now().UTC()
		mock.ExpectQuery(query).
			WithArgs("user_1").
			WillReturnRows(sqlmock.NewRows(transactionColumns).
				AddRow("tx_2", "user_1", "APPOINTMENT_BOOKING", int64(150000), "INR", "PENDING", nil, nil, "appt_1", nil, nil, now, now).
				AddRow("tx_1", "user_1", "COURSE_PURCHASE", int64(499900), "INR", "COMPLETED", []byte(`{}`), "course_9", nil, nil, nil, now, now))

		txs, err := repo.ListByUser(ctx, "user_1")
		require.NoError(t, err)
		require.Len(t, txs, 2)
		assert.Equal(t, "tx_2", txs[0].ID)
		assert.Nil(t, txs[0].GatewayResponse)
		assert.Equal(t, models.StatusCompleted, txs[1].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("user_2").WillReturnRows(sqlmock.NewRows(transactionColumns))

		txs, err := repo.ListByUser(ctx, "user_2")
		require.NoError(t, err)
		assert.NotNil(t, txs)
		assert.Empty(t, txs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("user_1").WillReturnError(fmt.Errorf("database error"))

		txs, err := repo.ListByUser(ctx, "user_1")
		assert.Nil(t, txs)
		assert.Contains(t, err.Error(), "failed to list transactions")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransactionRepository_StatusTransitions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresTransactionRepository(db)
	ctx := context.Background()
	gateway := json.RawMessage(`{"payment_id":"pay_1"}`)

	failQuery := regexp.QuoteMeta(`UPDATE transactions SET status = 'FAILED', gateway_response = $2, updated_at = NOW() WHERE id = $1 AND status = 'PENDING'`)
	refundQuery := regexp.QuoteMeta(`UPDATE transactions SET status = 'REFUNDED', refund_amount = $2, refund_reason = $3, updated_at = NOW() WHERE id = $1 AND status = 'COMPLETED'`)

	t.Run("MarkFailedSettledIsUntouched", func(t *testing.T) {
		mock.ExpectExec(failQuery).WithArgs("tx_1", string(gateway)).WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.MarkFailed(ctx, "tx_1", gateway)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MarkRefunded", func(t *testing.T) {
		mock.ExpectExec(refundQuery).WithArgs("tx_1", int64(499900), "Course cancelled").WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.MarkRefunded(ctx, "tx_1", 499900, "Course cancelled")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransactionRepository_MarkCompleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewPostgresTransactionRepository(db)
	ctx := context.Background()
	gateway := json.RawMessage(`{"payment_id":"pay_1"}`)

	course := &models.Transaction{ID: "tx_1", UserID: "user_1", Type: models.TypeCoursePurchase, CourseID: "course_9"}
	appointment := &models.Transaction{ID: "tx_2", UserID: "user_1", Type: models.TypeAppointmentBooking, AppointmentID: "appt_1"}

	completeQuery := regexp.QuoteMeta(`UPDATE transactions SET status = 'COMPLETED', gateway_response = $2, updated_at = NOW() WHERE id = $1 AND status IN ('PENDING', 'FAILED')`)
	upsert := regexp.QuoteMeta(`INSERT INTO enrollments (id, user_id, course_id, status)`)
	increment := regexp.QuoteMeta(`UPDATE courses SET total_students = total_students + 1 WHERE id = $1`)
	confirm := regexp.QuoteMeta(`UPDATE appointments SET status = 'CONFIRMED', updated_at = NOW() WHERE id = $1 AND status = 'SCHEDULED'`)

	t.Run("CoursePurchaseEnrolls", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(completeQuery).WithArgs("tx_1", string(gateway)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(upsert).WithArgs(sqlmock.AnyArg(), "user_1", "course_9").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(increment).WithArgs("course_9").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ok, err := repo.MarkCompleted(ctx, course, gateway)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ActiveEnrollmentLeavesCounter", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(completeQuery).WithArgs("tx_1", string(gateway)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(upsert).WithArgs(sqlmock.AnyArg(), "user_1", "course_9").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		ok, err := repo.MarkCompleted(ctx, course, gateway)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AppointmentBookingConfirms", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(completeQuery).WithArgs("tx_2", string(gateway)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(confirm).WithArgs("appt_1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ok, err := repo.MarkCompleted(ctx, appointment, gateway)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SubscriptionHasNoGrant", func(t *testing.T) {
		sub := &models.Transaction{ID: "tx_3", UserID: "user_1", Type: models.TypeSubscription}
		mock.ExpectBegin()
		mock.ExpectExec(completeQuery).WithArgs("tx_3", string(gateway)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ok, err := repo.MarkCompleted(ctx, sub, gateway)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	// A delivery that read PENDING before a refund must not re-enroll.
	t.Run("RefundedTransactionGrantsNothing", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(completeQuery).WithArgs("tx_1", string(gateway)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		ok, err := repo.MarkCompleted(ctx, course, gateway)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CounterErrorRollsBack", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(completeQuery).WithArgs("tx_1", string(gateway)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(upsert).WithArgs(sqlmock.AnyArg(), "user_1", "course_9").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(increment).WithArgs("course_9").WillReturnError(fmt.Errorf("database error"))
		mock.ExpectRollback()

		ok, err := repo.MarkCompleted(ctx, course, gateway)
		assert.False(t, ok)
		assert.Contains(t, err.Error(), "failed to grant entitlement")
		assert.Contains(t, err.Error(), "database error")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UpdateErrorWithRollbackError", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(completeQuery).WithArgs("tx_1", string(gateway)).WillReturnError(fmt.Errorf("deadlock detected"))
		mock.ExpectRollback().WillReturnError(fmt.Errorf("rollback error"))

		ok, err := repo.MarkCompleted(ctx, course, gateway)
		assert.False(t, ok)
		assert.Contains(t, err.Error(), "failed to mark transaction completed")
		assert.Contains(t, err.Error(), "rollback failed")
		assert.Contains(t, err.Error(), "deadlock detected")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CommitError", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(completeQuery).WithArgs("tx_2", string(gateway)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(confirm).WithArgs("appt_1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit().WillReturnError(fmt.Errorf("commit error"))

		ok, err := repo.MarkCompleted(ctx, appointment, gateway)
		assert.False(t, ok)
		assert.Contains(t, err.Error(), "failed to commit transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MissingCourseIsRejected", func(t *testing.T) {
		broken := &models.Transaction{ID: "tx_9", UserID: "user_1", Type: models.TypeCoursePurchase}

		ok, err := repo.MarkCompleted(ctx, broken, gateway)
		assert.False(t, ok)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NilTransaction", func(t *testing.T) {
		_, err := repo.MarkCompleted(ctx, nil, gateway)
		assert.ErrorIs(t, err, pkgerrors.ErrNilTransaction)
	})
}
