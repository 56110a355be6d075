package core

import "errors"

// Ledger errors.
var (
	ErrKeyNotFound      = errors.New("api key not found")
	ErrKeyDisabled      = errors.New("api key is disabled")
	ErrLimitReached     = errors.New("api key usage limit reached")
	ErrKeyMissing       = errors.New("api key is required")
	ErrInvalidKeyFormat = errors.New("custom key must be 6-32 characters of letters, digits or '-'")
	ErrKeyConflict      = errors.New("api key is already in use")
	ErrKeyNotOwned      = errors.New("api key does not belong to this account")
	ErrKeyGeneration    = errors.New("failed to generate a unique api key")
)

// Account errors.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidPlan     = errors.New("invalid plan")
	ErrInvalidRole     = errors.New("invalid role")
)

// Billing errors.
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyCompleted    = errors.New("transaction already completed")
	ErrAlreadyCancelled    = errors.New("transaction already cancelled")
	ErrInvalidSignature    = errors.New("invalid callback signature")
	ErrInvalidCallback     = errors.New("invalid callback payload")
	ErrPaymentDisabled     = errors.New("payment gateway is not configured")
	ErrGatewayFailure      = errors.New("payment gateway request failed")
	ErrPlanNotPurchasable  = errors.New("plan cannot be purchased")
)

// ErrCategoryNotFound is returned for an unknown random image category.
var ErrCategoryNotFound = errors.New("image category not found")

// Admission failure reason codes.
const (
	ReasonKeyMissing   = "key_missing"
	ReasonKeyNotFound  = "key_not_found"
	ReasonKeyDisabled  = "key_disabled"
	ReasonLimitReached = "limit_reached"
)

// ReasonCode maps an admission error to its machine readable reason, or "" for other errors.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrKeyMissing):
		return ReasonKeyMissing
	case errors.Is(err, ErrKeyNotFound):
		return ReasonKeyNotFound
	case errors.Is(err, ErrKeyDisabled):
		return ReasonKeyDisabled
	case errors.Is(err, ErrLimitReached):
		return ReasonLimitReached
	default:
		return ""
	}
}
