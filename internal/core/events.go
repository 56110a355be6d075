package core

import (
	"context"
	"time"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

// EventType names a domain event.
type EventType string

const (
	EventAccountCreated     EventType = "account.created"
	EventPlanChanged        EventType = "account.plan_changed"
	EventCheckoutCreated    EventType = "payment.checkout_created"
	EventPaymentPaid        EventType = "payment.paid"
	EventPaymentCancelled   EventType = "payment.cancelled"
	EventUsageReset         EventType = "usage.reset"
	EventMigrationCompleted EventType = "plans.migrated"
)

// Event is published to the configured notifiers.
type Event struct {
	Type        EventType   `json:"type"`
	AccountID   string      `json:"accountId,omitempty"`
	Email       string      `json:"email,omitempty"`
	Plan        models.Tier `json:"plan,omitempty"`
	MerchantRef string      `json:"merchantRef,omitempty"`
	Amount      int64       `json:"amount,omitempty"`
	Count       int         `json:"count,omitempty"`
	At          time.Time   `json:"at"`
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

func notifierOrNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

func utcNow() time.Time { return time.Now().UTC() }
