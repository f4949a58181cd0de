package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/bnoverseas/payments-service/internal/models"
	"github.com/bnoverseas/payments-service/internal/webhook"
	pkgerrors "github.com/bnoverseas/payments-service/pkg/errors"
)

// handlePaymentCaptured fulfils the purchase behind a captured payment.
// The status transition and the entitlement commit together, so a delivery
// that read a stale PENDING status cannot re-grant after a refund. The
// conditional update also decides which delivery sends the notification.
func (s *webhookService) handlePaymentCaptured(ctx context.Context, ev webhook.PaymentEvent) (Outcome, error) {
	p := ev.Payment
	txID := p.Notes.Get(webhook.NoteTransactionID)
	if txID == "" {
		slog.Warn("payment event without transaction id, dropping", "event", ev.EventName, "payment_id", p.ID)
		return OutcomeDropped, nil
	}

	tx, err := s.transactions.GetByID(ctx, txID)
	if stderrors.Is(err, pkgerrors.ErrTransactionNotFound) {
		slog.Warn("transaction not found for payment, dropping", "transaction_id", txID, "payment_id", p.ID)
		return OutcomeDropped, nil
	}
	if err != nil {
		return OutcomeFailed, err
	}

	if tx.Status == models.StatusCompleted || tx.Status == models.StatusRefunded {
		slog.Info("transaction already settled, skipping", "transaction_id", tx.ID, "status", tx.Status)
		return OutcomeSkipped, nil
	}

	gw := gatewaySnapshot(p, "captured", s.now())
	raw, err := json.Marshal(gw)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to marshal gateway response: %w", err)
	}

	completed, err := s.transactions.MarkCompleted(ctx, tx, raw)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to complete transaction %s: %w", tx.ID, err)
	}
	if !completed {
		slog.Info("transaction settled by another delivery, skipping", "transaction_id", tx.ID)
		return OutcomeSkipped, nil
	}
	tx.Status = models.StatusCompleted
	tx.GatewayResponse = raw

	slog.Info("payment fulfilled", "transaction_id", tx.ID, "type", tx.Type, "payment_id", p.ID, "user_id", tx.UserID)
	s.notifyPurchase(ctx, tx, gw)
	return OutcomeProcessed, nil
}

// handlePaymentFailed records a failed attempt. Only PENDING transactions move
// to FAILED; a settled transaction is never downgraded.
func (s *webhookService) handlePaymentFailed(ctx context.Context, ev webhook.PaymentEvent) (Outcome, error) {
	p := ev.Payment
	txID := p.Notes.Get(webhook.NoteTransactionID)
	if txID == "" {
		slog.Warn("payment event without transaction id, dropping", "event", ev.EventName, "payment_id", p.ID)
		return OutcomeDropped, nil
	}

	gw := gatewaySnapshot(p, "failed", s.now())
	raw, err := json.Marshal(gw)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to marshal gateway response: %w", err)
	}

	failed, err := s.transactions.MarkFailed(ctx, txID, raw)
	if err != nil {
		return OutcomeFailed, err
	}
	if !failed {
		slog.Info("transaction not pending, ignoring payment failure", "transaction_id", txID, "payment_id", p.ID)
		return OutcomeSkipped, nil
	}

	tx, err := s.transactions.GetByID(ctx, txID)
	if err != nil {
		slog.Error("failed to reload failed transaction for notification", "transaction_id", txID, "error", err)
		return OutcomeProcessed, nil
	}
	slog.Info("payment marked failed", "transaction_id", txID, "payment_id", p.ID, "error_code", p.ErrorCode)
	s.notifyPaymentFailed(ctx, tx, gw)
	return OutcomeProcessed, nil
}
