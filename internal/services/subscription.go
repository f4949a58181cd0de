package service

import (
	"context"
	"log/slog"

	"github.com/bnoverseas/payments-service/internal/models"
	"github.com/bnoverseas/payments-service/internal/webhook"
)

func (s *webhookService) handleSubscriptionActivated(ctx context.Context, ev webhook.SubscriptionEvent) (Outcome, error) {
	sub := ev.Subscription
	userID := sub.Notes.Get(webhook.NoteUserID)
	if userID == "" {
		slog.Warn("subscription without user id, dropping", "subscription_id", sub.ID)
		return OutcomeDropped, nil
	}
	planType := sub.Notes.Get(webhook.NotePlanType)
	if planType == "" {
		planType = sub.PlanID
	}

	created, err := s.subscriptions.Create(ctx, &models.Subscription{
		UserID:                userID,
		GatewaySubscriptionID: sub.ID,
		PlanType:              planType,
		Status:                models.SubscriptionActive,
		CurrentPeriodStart:    sub.PeriodStart(),
		CurrentPeriodEnd:      sub.PeriodEnd(),
	})
	if err != nil {
		return OutcomeFailed, err
	}
	if !created {
		return OutcomeSkipped, nil
	}
	return OutcomeProcessed, nil
}

func (s *webhookService) handleSubscriptionCancelled(ctx context.Context, ev webhook.SubscriptionEvent) (Outcome, error) {
	cancelled, err := s.subscriptions.Cancel(ctx, ev.Subscription.ID, s.now().UTC())
	if err != nil {
		return OutcomeFailed, err
	}
	if !cancelled {
		slog.Warn("subscription not found or already cancelled", "subscription_id", ev.Subscription.ID)
		return OutcomeSkipped, nil
	}
	return OutcomeProcessed, nil
}
