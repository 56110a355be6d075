package models

import "time"

// TransactionStatus is the lifecycle position of a payment.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionPaid      TransactionStatus = "PAID"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed out of s.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionPaid || s == TransactionCancelled
}

// Transaction is a checkout session correlated with the payment gateway by its merchant reference.
type Transaction struct {
	MerchantRef   string            `json:"merchantRef" firestore:"-"` // document ID
	Reference     string            `json:"reference,omitempty" firestore:"reference,omitempty"`
	AccountID     string            `json:"accountId" firestore:"accountId"`
	Plan          Tier              `json:"plan" firestore:"plan"`
	Amount        int64             `json:"amount" firestore:"amount"`
	Status        TransactionStatus `json:"status" firestore:"status"`
	PaymentMethod string            `json:"paymentMethod,omitempty" firestore:"paymentMethod,omitempty"`
	CheckoutURL   string            `json:"checkoutUrl,omitempty" firestore:"checkoutUrl,omitempty"`
	CreatedAt     time.Time         `json:"createdAt" firestore:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt" firestore:"updatedAt"`
	PaidAt        *time.Time        `json:"paidAt,omitempty" firestore:"paidAt,omitempty"`
	CancelledAt   *time.Time        `json:"cancelledAt,omitempty" firestore:"cancelledAt,omitempty"`
	ExpiresAt     *time.Time        `json:"expiresAt,omitempty" firestore:"expiresAt,omitempty"`
	// PlanApplied is set once the paid plan has been written to the account.
	PlanApplied   bool              `json:"planApplied" firestore:"planApplied"`
}

// PaymentLog records a verified gateway callback.
type PaymentLog struct {
	ID            string    `json:"id" firestore:"-"`
	MerchantRef   string    `json:"merchantRef" firestore:"merchantRef"`
	Reference     string    `json:"reference,omitempty" firestore:"reference,omitempty"`
	Status        string    `json:"status" firestore:"status"`
	PaymentMethod string    `json:"paymentMethod,omitempty" firestore:"paymentMethod,omitempty"`
	Amount        int64     `json:"amount" firestore:"amount"`
	Payload       string    `json:"payload" firestore:"payload"`
	ReceivedAt    time.Time `json:"receivedAt" firestore:"receivedAt"`
}
