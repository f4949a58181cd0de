package models

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

type Subscription struct {
	ID                    string
	UserID                string
	GatewaySubscriptionID string
	PlanType              string
	Status                SubscriptionStatus
	CurrentPeriodStart    time.Time
	CurrentPeriodEnd      time.Time
	CancelledAt           *time.Time
	CreatedAt             time.Time
}
