package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bnoverseas/payments-service/internal/infrastructure/observability"
	"github.com/bnoverseas/payments-service/internal/infrastructure/redis"
	"github.com/bnoverseas/payments-service/internal/notification"
	"github.com/bnoverseas/payments-service/internal/repository"
	"github.com/bnoverseas/payments-service/internal/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Outcome is how a single webhook event ended.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	// OutcomeSkipped: the event was valid but its effect was already applied.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeDropped: the event could not be correlated to a local record.
	OutcomeDropped   Outcome = "dropped"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

const refundCancellationReason = "Payment refunded"

type WebhookService interface {
	// ClaimDelivery reports whether this gateway event id is free to process.
	// The claim is short-lived so a delivery lost to a crash is retried once
	// it expires. Deliveries without an id are always claimed.
	ClaimDelivery(ctx context.Context, eventID string) bool
	// CompleteDelivery turns a claim into the long-lived dedupe record.
	CompleteDelivery(ctx context.Context, eventID string)
	// ReleaseDelivery forgets a claim so a redelivery is processed again.
	ReleaseDelivery(ctx context.Context, eventID string)
	// HandleEvent routes ev to its handler. It never returns an error: handler
	// failures are logged and reported through the Outcome.
	HandleEvent(ctx context.Context, ev webhook.Event) Outcome
}

type WebhookDeps struct {
	Transactions  repository.TransactionRepository
	Enrollments   repository.EnrollmentRepository
	Courses       repository.CourseRepository
	Appointments  repository.AppointmentRepository
	Subscriptions repository.SubscriptionRepository
	Users         repository.UserRepository
	Dispatcher    notification.Dispatcher
	// Redis is optional; without it every delivery is claimed.
	Redis redis.RedisClient
}

type webhookService struct {
	transactions  repository.TransactionRepository
	enrollments   repository.EnrollmentRepository
	courses       repository.CourseRepository
	appointments  repository.AppointmentRepository
	subscriptions repository.SubscriptionRepository
	users         repository.UserRepository
	dispatcher    notification.Dispatcher
	redisClient   redis.RedisClient
	appURL        string
	claimTTL      time.Duration
	dedupeTTL     time.Duration
	now           func() time.Time
}

// NewWebhookService builds the event router. claimTTL bounds how long an
// unfinished delivery blocks redeliveries; dedupeTTL is how long a finished
// one is remembered.
func NewWebhookService(deps WebhookDeps, appURL string, claimTTL, dedupeTTL time.Duration) *webhookService {
	return &webhookService{
		transactions:  deps.Transactions,
		enrollments:   deps.Enrollments,
		courses:       deps.Courses,
		appointments:  deps.Appointments,
		subscriptions: deps.Subscriptions,
		users:         deps.Users,
		dispatcher:    deps.Dispatcher,
		redisClient:   deps.Redis,
		appURL:        appURL,
		claimTTL:      claimTTL,
		dedupeTTL:     dedupeTTL,
		now:           time.Now,
	}
}

func deliveryKey(eventID string) string {
	return fmt.Sprintf("webhook:event:%s", eventID)
}

func (s *webhookService) ClaimDelivery(ctx context.Context, eventID string) bool {
	if eventID == "" || s.redisClient == nil {
		return true
	}
	ok, err := s.redisClient.SetNX(ctx, deliveryKey(eventID), "processing", s.claimTTL)
	if err != nil {
		slog.Warn("failed to claim webhook delivery, processing anyway", "event_id", eventID, "error", err)
		return true
	}
	return ok
}

func (s *webhookService) CompleteDelivery(ctx context.Context, eventID string) {
	if eventID == "" || s.redisClient == nil {
		return
	}
	if err := s.redisClient.Set(ctx, deliveryKey(eventID), "done", s.dedupeTTL); err != nil {
		slog.Warn("failed to record completed webhook delivery", "event_id", eventID, "error", err)
	}
}

func (s *webhookService) ReleaseDelivery(ctx context.Context, eventID string) {
	if eventID == "" || s.redisClient == nil {
		return
	}
	if err := s.redisClient.Del(ctx, deliveryKey(eventID)); err != nil {
		slog.Warn("failed to release webhook delivery", "event_id", eventID, "error", err)
	}
}

func (s *webhookService) HandleEvent(ctx context.Context, ev webhook.Event) Outcome {
	switch e := ev.(type) {
	case webhook.PaymentEvent:
		if e.EventName == webhook.EventPaymentFailed {
			return s.run(ctx, e.EventName, func(ctx context.Context) (Outcome, error) {
				return s.handlePaymentFailed(ctx, e)
			})
		}
		return s.run(ctx, e.EventName, func(ctx context.Context) (Outcome, error) {
			return s.handlePaymentCaptured(ctx, e)
		})

	case webhook.RefundEvent:
		if e.EventName == webhook.EventRefundCreated {
			return s.run(ctx, e.EventName, func(ctx context.Context) (Outcome, error) {
				return s.handleRefundCreated(ctx, e)
			})
		}
		return s.run(ctx, e.EventName, func(ctx context.Context) (Outcome, error) {
			return s.handleRefundProcessed(ctx, e)
		})

	case webhook.SubscriptionEvent:
		if e.EventName == webhook.EventSubscriptionActivated {
			return s.run(ctx, e.EventName, func(ctx context.Context) (Outcome, error) {
				return s.handleSubscriptionActivated(ctx, e)
			})
		}
		return s.run(ctx, e.EventName, func(ctx context.Context) (Outcome, error) {
			return s.handleSubscriptionCancelled(ctx, e)
		})

	default:
		reason := ""
		if u, ok := ev.(webhook.UnknownEvent); ok {
			reason = u.Reason
		}
		slog.Warn("unhandled webhook event", "event", ev.Name(), "reason", reason)
		observability.WebhookEvents.WithLabelValues("unknown", string(OutcomeIgnored)).Inc()
		return OutcomeIgnored
	}
}

// run is the per-event error boundary: errors and panics are logged, counted
// and turned into OutcomeFailed.
func (s *webhookService) run(ctx context.Context, event string, fn func(context.Context) (Outcome, error)) (outcome Outcome) {
	tracer := otel.Tracer("webhook-service")
	ctx, span := tracer.Start(ctx, "HandleEvent")
	span.SetAttributes(attribute.String("event", event))
	defer span.End()
	logger := observability.WithContext(ctx, "event", event)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("webhook handler panicked", "panic", r)
			span.SetStatus(codes.Error, "panic")
			outcome = OutcomeFailed
		}
		span.SetAttributes(attribute.String("outcome", string(outcome)))
		observability.WebhookEvents.WithLabelValues(event, string(outcome)).Inc()
	}()

	outcome, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("webhook handler failed", "error", err)
		return OutcomeFailed
	}
	logger.Info("webhook event handled", "outcome", outcome)
	return outcome
}
