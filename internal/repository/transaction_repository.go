package repository

import (
	"context"
	"encoding/json"

	"github.com/bnoverseas/payments-service/internal/models"
)

// TransactionRepository is the durable mirror of gateway payment attempts.
// Mark* methods are conditional updates; the bool result reports whether this
// call performed the transition.
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) (string, error)
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*models.Transaction, error)
	ListByUser(ctx context.Context, userID string) ([]models.Transaction, error)
	// MarkCompleted moves a PENDING or FAILED transaction to COMPLETED and
	// grants its entitlement (enrollment or appointment confirmation) in the
	// same database transaction. Nothing is granted when the status update
	// does not apply.
	MarkCompleted(ctx context.Context, tx *models.Transaction, gatewayResponse json.RawMessage) (bool, error)
	MarkFailed(ctx context.Context, id string, gatewayResponse json.RawMessage) (bool, error)
	MarkRefunded(ctx context.Context, id string, amount int64, reason string) (bool, error)
}
