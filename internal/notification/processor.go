package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bnoverseas/payments-service/internal/infrastructure/observability"
	"github.com/bnoverseas/payments-service/internal/models"
	"github.com/bnoverseas/payments-service/internal/repository"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
)

var (
	ErrEmptyEmail         = errors.New("email is empty")
	ErrInvalidEmailFormat = errors.New("invalid email format")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmptyEmail
	}
	if err := validate.Var(email, "email"); err != nil {
		return ErrInvalidEmailFormat
	}
	return nil
}

// Processor delivers queued emails and records the outcome of each one.
type Processor struct {
	sender       Sender
	logs         repository.EmailLogRepository
	maxAttempts  int
	initialDelay time.Duration
}

func NewProcessor(sender Sender, logs repository.EmailLogRepository) *Processor {
	return &Processor{sender: sender, logs: logs, maxAttempts: 3, initialDelay: time.Second}
}

// WithRetry overrides the delivery attempt count and the first backoff delay.
func (p *Processor) WithRetry(maxAttempts int, initialDelay time.Duration) *Processor {
	p.maxAttempts = maxAttempts
	p.initialDelay = initialDelay
	return p
}

// HandleMessage is the kafka.MessageHandler for the notifications topic.
func (p *Processor) HandleMessage(ctx context.Context, _, value []byte) error {
	var e Email
	if err := json.Unmarshal(value, &e); err != nil {
		return fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	return p.Process(ctx, e)
}

func (p *Processor) Process(ctx context.Context, e Email) error {
	if err := ValidateEmail(e.To); err != nil {
		slog.Error("notification recipient validation failed", "type", e.Type, "to", e.To, "error", err)
		return fmt.Errorf("validation error: %w", err)
	}

	subject, body, err := Render(e)
	if err != nil {
		slog.Error("failed to render notification", "type", e.Type, "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	attempt := 0
	err = backoff.RetryNotify(func() error {
		attempt++
		return p.sender.SendEmail(ctx, e.To, subject, body)
	}, p.backOff(ctx), func(err error, next time.Duration) {
		slog.Warn("failed to send email, retrying", "attempt", attempt, "max_attempts", p.maxAttempts, "retry_in", next, "to", e.To, "error", err)
	})

	entry := models.EmailLog{Recipient: e.To, Type: string(e.Type), Subject: subject}
	if err != nil {
		slog.Error("failed to send notification email", "type", e.Type, "to", e.To, "error", err)
		entry.Status = models.EmailFailed
		entry.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	} else {
		slog.Info("notification email sent", "type", e.Type, "to", e.To)
		entry.Status = models.EmailSent
	}
	observability.NotificationsSent.WithLabelValues(string(e.Type), string(entry.Status)).Inc()

	if logErr := p.logs.SaveLog(context.WithoutCancel(ctx), entry); logErr != nil {
		slog.Error("failed to save email log", "type", e.Type, "error", logErr)
	}
	return err
}

// backOff doubles the delay from initialDelay, without jitter, for at most
// maxAttempts sends, and stops early when ctx is done.
func (p *Processor) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(p.maxAttempts-1, 0))), ctx)
}
