package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bnoverseas/payments-service/internal/models"
	"github.com/bnoverseas/payments-service/internal/repository"
	pkgerrors "github.com/bnoverseas/payments-service/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

type TransactionService interface {
	CreateTransaction(ctx context.Context, userID string, txType models.TransactionType, referenceID string) (*models.Transaction, error)
	GetTransaction(ctx context.Context, userID, id string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, userID string) ([]models.Transaction, error)
}

type transactionService struct {
	transactions repository.TransactionRepository
	courses      repository.CourseRepository
	appointments repository.AppointmentRepository
}

func NewTransactionService(
	transactions repository.TransactionRepository,
	courses repository.CourseRepository,
	appointments repository.AppointmentRepository,
) *transactionService {
	return &transactionService{transactions: transactions, courses: courses, appointments: appointments}
}

// CreateTransaction opens a PENDING transaction priced from the purchased item.
// The returned id goes into the gateway order notes as transactionId.
func (s *transactionService) CreateTransaction(ctx context.Context, userID string, txType models.TransactionType, referenceID string) (*models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "CreateTransaction")
	defer span.End()

	if userID == "" || referenceID == "" {
		span.SetStatus(codes.Error, "missing user or reference")
		return nil, pkgerrors.ErrInvalidInput
	}

	tx := &models.Transaction{UserID: userID, Type: txType, Status: models.StatusPending}
	switch txType {
	case models.TypeCoursePurchase:
		course, err := s.courses.GetByID(ctx, referenceID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		tx.CourseID = course.ID
		tx.Amount = course.Price
		tx.Currency = course.Currency

	case models.TypeAppointmentBooking:
		appt, err := s.appointments.GetByID(ctx, referenceID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if appt.UserID != userID {
			span.SetStatus(codes.Error, "appointment owned by another user")
			return nil, pkgerrors.ErrForbidden
		}
		if appt.Status != models.AppointmentScheduled {
			span.SetStatus(codes.Error, "appointment not payable")
			return nil, fmt.Errorf("%w: appointment is %s", pkgerrors.ErrInvalidInput, appt.Status)
		}
		tx.AppointmentID = appt.ID
		tx.Amount = appt.Fee
		tx.Currency = appt.Currency

	default:
		span.SetStatus(codes.Error, "unsupported transaction type")
		return nil, pkgerrors.ErrInvalidTransactionType
	}

	if _, err := s.transactions.Create(ctx, tx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction creation failed")
		slog.Error("failed to create transaction", "user_id", userID, "type", txType, "reference_id", referenceID, "error", err)
		return nil, err
	}

	slog.Info("checkout transaction created", "transaction_id", tx.ID, "user_id", userID, "type", txType, "amount", tx.Amount)
	return tx, nil
}

func (s *transactionService) GetTransaction(ctx context.Context, userID, id string) (*models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "GetTransaction")
	defer span.End()

	tx, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Other users' transactions are reported as missing.
	if tx.UserID != userID {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *transactionService) ListTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	tracer := otel.Tracer("transaction-service")
	ctx, span := tracer.Start(ctx, "ListTransactions")
	defer span.End()

	return s.transactions.ListByUser(ctx, userID)
}
