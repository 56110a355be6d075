package models

import (
	"regexp"
	"time"
)

const (
	// GeneratedKeyLength is the length of every system-generated key string.
	GeneratedKeyLength = 32
	// CustomKeyMinLength and CustomKeyMaxLength bound user-supplied key strings.
	CustomKeyMinLength = 6
	CustomKeyMaxLength = 32
)

var customKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// ValidCustomKey reports whether s is acceptable as a user-supplied key string.
func ValidCustomKey(s string) bool {
	if len(s) < CustomKeyMinLength || len(s) > CustomKeyMaxLength {
		return false
	}
	return customKeyPattern.MatchString(s)
}

// APIKey is a credential presented on key-gated endpoints.
// Plan and Limit are snapshots taken when the key was issued or its plan last
// applied; they are not joined live from the account.
type APIKey struct {
	ID         string     `json:"id" firestore:"-"`
	Key        string     `json:"key" firestore:"key"`
	AccountID  string     `json:"accountId" firestore:"accountId"`
	Label      string     `json:"label,omitempty" firestore:"label,omitempty"`
	Plan       Tier       `json:"plan" firestore:"plan"`
	Limit      int64      `json:"limit" firestore:"limit"`
	Usage      int64      `json:"usage" firestore:"usage"`
	IsActive   bool       `json:"isActive" firestore:"isActive"`
	Custom     bool       `json:"custom" firestore:"custom"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty" firestore:"lastUsedAt"`
	CreatedAt  time.Time  `json:"createdAt" firestore:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt" firestore:"updatedAt"`
}

// Remaining returns the number of calls left in the current period.
func (k *APIKey) Remaining() int64 {
	if k.Usage >= k.Limit {
		return 0
	}
	return k.Limit - k.Usage
}

// KeyStatus is the admission state of a key.
type KeyStatus string

const (
	KeyStatusActive    KeyStatus = "active"
	KeyStatusExhausted KeyStatus = "exhausted"
	KeyStatusDisabled  KeyStatus = "disabled"
)

// Status derives the state machine position of the key.
func (k *APIKey) Status() KeyStatus {
	switch {
	case !k.IsActive:
		return KeyStatusDisabled
	case k.Usage >= k.Limit:
		return KeyStatusExhausted
	default:
		return KeyStatusActive
	}
}
