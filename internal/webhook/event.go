package webhook

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	pkgerrors "github.com/bnoverseas/payments-service/pkg/errors"
)

// Gateway event names the service acts on.
const (
	EventPaymentCaptured       = "payment.captured"
	EventPaymentFailed         = "payment.failed"
	EventOrderPaid             = "order.paid"
	EventRefundCreated         = "refund.created"
	EventRefundProcessed       = "refund.processed"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionCancelled = "subscription.cancelled"
)

// Event is one verified gateway delivery. The concrete type is one of
// PaymentEvent, RefundEvent, SubscriptionEvent or UnknownEvent.
type Event interface {
	Name() string
}

type PaymentEvent struct {
	EventName string
	Payment   PaymentEntity
}

func (e PaymentEvent) Name() string { return e.EventName }

type RefundEvent struct {
	EventName string
	Refund    RefundEntity
}

func (e RefundEvent) Name() string { return e.EventName }

type SubscriptionEvent struct {
	EventName    string
	Subscription SubscriptionEntity
}

func (e SubscriptionEvent) Name() string { return e.EventName }

// UnknownEvent is an unrecognized event name or a recognized one whose payload
// did not have the expected shape.
type UnknownEvent struct {
	EventName string
	Reason    string
}

func (e UnknownEvent) Name() string { return e.EventName }

type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Method           string `json:"method"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	Notes            Notes  `json:"notes"`
	CreatedAt        int64  `json:"created_at"`
}

type RefundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	Notes     Notes  `json:"notes"`
	CreatedAt int64  `json:"created_at"`
}

type SubscriptionEntity struct {
	ID           string `json:"id"`
	PlanID       string `json:"plan_id"`
	Status       string `json:"status"`
	CurrentStart int64  `json:"current_start"`
	CurrentEnd   int64  `json:"current_end"`
	EndedAt      int64  `json:"ended_at"`
	Notes        Notes  `json:"notes"`
}

func (s SubscriptionEntity) PeriodStart() time.Time { return unixTime(s.CurrentStart) }
func (s SubscriptionEntity) PeriodEnd() time.Time   { return unixTime(s.CurrentEnd) }

// Notes is the free-form metadata the application attached to the gateway
// order. The gateway sends an empty JSON array when no notes were set.
type Notes map[string]string

// Note keys. The snake_case spellings are accepted on input only.
const (
	NoteTransactionID = "transactionId"
	NoteUserID        = "userId"
	NotePlanType      = "planType"
	NoteReason        = "reason"
)

var noteAliases = map[string]string{
	"transaction_id": NoteTransactionID,
	"user_id":        NoteUserID,
	"plan_type":      NotePlanType,
}

func (n *Notes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] == '[' || bytes.Equal(data, []byte("null")) {
		*n = Notes{}
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Notes, len(raw))
	for k, v := range raw {
		var s string
		switch val := v.(type) {
		case string:
			s = val
		case float64:
			s = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(val)
		default:
			continue
		}
		if canonical, ok := noteAliases[k]; ok {
			if _, exists := raw[canonical]; exists {
				continue
			}
			k = canonical
		}
		out[k] = s
	}
	*n = out
	return nil
}

func (n Notes) Get(key string) string { return n[key] }

type envelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		Refund *struct {
			Entity RefundEntity `json:"entity"`
		} `json:"refund"`
		Subscription *struct {
			Entity SubscriptionEntity `json:"entity"`
		} `json:"subscription"`
	} `json:"payload"`
}

// Parse decodes a webhook body into its event variant. Only a body that is not
// a JSON envelope is an error; shape mismatches come back as UnknownEvent.
func Parse(body []byte) (Event, error) {
	var head struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrMalformedPayload, err)
	}

	switch head.Event {
	case EventPaymentCaptured, EventPaymentFailed, EventOrderPaid,
		EventRefundCreated, EventRefundProcessed,
		EventSubscriptionActivated, EventSubscriptionCancelled:
	default:
		return UnknownEvent{EventName: head.Event, Reason: "unrecognized event"}, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return UnknownEvent{EventName: head.Event, Reason: "payload shape mismatch: " + err.Error()}, nil
	}

	switch head.Event {
	case EventPaymentCaptured, EventPaymentFailed, EventOrderPaid:
		if env.Payload.Payment == nil || env.Payload.Payment.Entity.ID == "" {
			return UnknownEvent{EventName: head.Event, Reason: "missing payment entity"}, nil
		}
		return PaymentEvent{EventName: head.Event, Payment: env.Payload.Payment.Entity}, nil

	case EventRefundCreated, EventRefundProcessed:
		if env.Payload.Refund == nil || env.Payload.Refund.Entity.PaymentID == "" {
			return UnknownEvent{EventName: head.Event, Reason: "missing refund entity"}, nil
		}
		return RefundEvent{EventName: head.Event, Refund: env.Payload.Refund.Entity}, nil

	default:
		if env.Payload.Subscription == nil || env.Payload.Subscription.Entity.ID == "" {
			return UnknownEvent{EventName: head.Event, Reason: "missing subscription entity"}, nil
		}
		return SubscriptionEvent{EventName: head.Event, Subscription: env.Payload.Subscription.Entity}, nil
	}
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
