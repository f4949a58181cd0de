package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/bnoverseas/payments-service/internal/models"
	pkgerrors "github.com/bnoverseas/payments-service/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

type PostgresCourseRepository struct {
	db *sql.DB
}

func NewPostgresCourseRepository(db *sql.DB) *PostgresCourseRepository {
	return &PostgresCourseRepository{db: db}
}

func (r *PostgresCourseRepository) GetByID(ctx context.Context, id string) (course *models.Course, err error) {
	ctx, finish := instrument(ctx, "course-repository", "GetCourseByID", attribute.String("course_id", id))
	defer func() { finish(err) }()

	query := `
			SELECT id, title, instructor, price, currency, total_students
			FROM courses
			WHERE id = $1
`
	var c models.Course
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.Title,
		&c.Instructor,
		&c.Price,
		&c.Currency,
		&c.TotalStudents,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrCourseNotFound
		return nil, err
	}
	if err != nil {
		err = fmt.Errorf("failed to get course: %w", err)
		return nil, err
	}
	return &c, nil
}
