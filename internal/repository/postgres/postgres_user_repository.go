package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bnoverseas/payments-service/internal/models"
	pkgerrors "github.com/bnoverseas/payments-service/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (user *models.User, err error) {
	ctx, finish := instrument(ctx, "user-repository", "GetUserByID", attribute.String("user_id", id))
	defer func() { finish(err) }()

	if id == "" {
		err = fmt.Errorf("%w: user id cannot be empty", pkgerrors.ErrInvalidInput)
		return nil, err
	}

	query := `SELECT id, COALESCE(name, ''), email FROM users WHERE id = $1`
	var u models.User
	err = r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name, &u.Email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = pkgerrors.ErrUserNotFound
		return nil, err
	case err != nil:
		err = fmt.Errorf("failed to get user by id: %w", err)
		return nil, err
	}
	return &u, nil
}
