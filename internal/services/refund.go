package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/bnoverseas/payments-service/internal/models"
	"github.com/bnoverseas/payments-service/internal/webhook"
	pkgerrors "github.com/bnoverseas/payments-service/pkg/errors"
)

const defaultRefundReason = "Refund issued by payment gateway"

// findRefundedTransaction resolves a refund to its transaction through the
// payment id stored in the gateway snapshot.
func (s *webhookService) findRefundedTransaction(ctx context.Context, r webhook.RefundEntity) (*models.Transaction, error) {
	tx, err := s.transactions.GetByPaymentID(ctx, r.PaymentID)
	if stderrors.Is(err, pkgerrors.ErrTransactionNotFound) {
		slog.Warn("no transaction for refunded payment, ignoring", "refund_id", r.ID, "payment_id", r.PaymentID)
		return nil, nil
	}
	return tx, err
}

func refundReason(r webhook.RefundEntity) string {
	if reason := r.Notes.Get(webhook.NoteReason); reason != "" {
		return reason
	}
	return defaultRefundReason
}

func (s *webhookService) handleRefundCreated(ctx context.Context, ev webhook.RefundEvent) (Outcome, error) {
	tx, err := s.findRefundedTransaction(ctx, ev.Refund)
	if err != nil {
		return OutcomeFailed, err
	}
	if tx == nil {
		return OutcomeDropped, nil
	}

	refunded, err := s.transactions.MarkRefunded(ctx, tx.ID, ev.Refund.Amount, refundReason(ev.Refund))
	if err != nil {
		return OutcomeFailed, err
	}
	if !refunded {
		slog.Info("transaction not refundable or already refunded", "transaction_id", tx.ID, "status", tx.Status)
		return OutcomeSkipped, nil
	}
	slog.Info("refund recorded", "transaction_id", tx.ID, "refund_id", ev.Refund.ID, "amount", ev.Refund.Amount)
	return OutcomeProcessed, nil
}

// handleRefundProcessed revokes the entitlement a refunded payment granted.
// It also records the refund when refund.created was never delivered.
func (s *webhookService) handleRefundProcessed(ctx context.Context, ev webhook.RefundEvent) (Outcome, error) {
	tx, err := s.findRefundedTransaction(ctx, ev.Refund)
	if err != nil {
		return OutcomeFailed, err
	}
	if tx == nil {
		return OutcomeDropped, nil
	}

	switch tx.Status {
	case models.StatusCompleted:
		if _, err := s.transactions.MarkRefunded(ctx, tx.ID, ev.Refund.Amount, refundReason(ev.Refund)); err != nil {
			return OutcomeFailed, err
		}
		tx.Status = models.StatusRefunded
		tx.RefundAmount = ev.Refund.Amount
		tx.RefundReason = refundReason(ev.Refund)
	case models.StatusRefunded:
	default:
		slog.Warn("refund for unsettled transaction, nothing to revoke", "transaction_id", tx.ID, "status", tx.Status)
		return OutcomeSkipped, nil
	}

	revoked, err := s.revokeEntitlement(ctx, tx)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to revoke entitlement for transaction %s: %w", tx.ID, err)
	}
	if !revoked {
		return OutcomeSkipped, nil
	}

	slog.Info("entitlement revoked after refund", "transaction_id", tx.ID, "type", tx.Type, "refund_id", ev.Refund.ID)
	s.notifyRefund(ctx, tx, ev.Refund)
	return OutcomeProcessed, nil
}

func (s *webhookService) revokeEntitlement(ctx context.Context, tx *models.Transaction) (bool, error) {
	switch tx.Type {
	case models.TypeCoursePurchase:
		return s.enrollments.Revoke(ctx, tx.UserID, tx.CourseID)
	case models.TypeAppointmentBooking:
		return s.appointments.Cancel(ctx, tx.AppointmentID, refundCancellationReason)
	default:
		return false, nil
	}
}
