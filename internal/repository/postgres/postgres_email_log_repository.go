package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bnoverseas/payments-service/internal/models"
)

type PostgresEmailLogRepository struct {
	db *sql.DB
}

func NewPostgresEmailLogRepository(db *sql.DB) *PostgresEmailLogRepository {
	return &PostgresEmailLogRepository{db: db}
}

func (r *PostgresEmailLogRepository) SaveLog(ctx context.Context, entry models.EmailLog) (err error) {
	ctx, finish := instrument(ctx, "email-log-repository", "SaveEmailLog")
	defer func() { finish(err) }()

	query := `INSERT INTO email_logs (recipient_email, type, subject, status, error_message) VALUES ($1, $2, $3, $4, $5)`
	if _, err = r.db.ExecContext(ctx, query, entry.Recipient, entry.Type, entry.Subject, entry.Status, entry.ErrorMessage); err != nil {
		err = fmt.Errorf("failed to save email log: %w", err)
		return err
	}
	return nil
}
