package models

import "time"

// Role gates access to the admin endpoints. It is independent of the plan tier.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Account represents a user of the API.
// APIKey, APIUsage and APILimit mirror the account's active key and are only
// written together with that key.
type Account struct {
	ID          string    `json:"id" firestore:"-"` // Firebase Auth UID, also the document ID
	Email       string    `json:"email" firestore:"email"`
	DisplayName string    `json:"displayName,omitempty" firestore:"displayName,omitempty"`
	PhotoURL    string    `json:"photoURL,omitempty" firestore:"photoURL,omitempty"`
	Role        Role      `json:"role" firestore:"role"`
	Plan        Tier      `json:"plan" firestore:"plan"`
	IsActive    bool      `json:"isActive" firestore:"isActive"`
	APIKey      string    `json:"apiKey" firestore:"apiKey"`
	APIUsage    int64     `json:"apiUsage" firestore:"apiUsage"`
	APILimit    int64     `json:"apiLimit" firestore:"apiLimit"`
	CreatedAt   time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// IsAdmin reports whether the account may use the admin endpoints.
func (a *Account) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// MirrorKey copies the key string, usage and limit of k onto the account.
func (a *Account) MirrorKey(k *APIKey) {
	if k == nil {
		a.APIKey = ""
		a.APIUsage = 0
		a.APILimit = 0
		return
	}
	a.APIKey = k.Key
	a.APIUsage = k.Usage
	a.APILimit = k.Limit
}

// Stats holds the aggregate counters shown on the admin dashboard.
type Stats struct {
	Accounts              int64     `json:"accounts"`
	APIKeys               int64     `json:"apiKeys"`
	ActiveAPIKeys         int64     `json:"activeApiKeys"`
	PendingTransactions   int64     `json:"pendingTransactions"`
	PaidTransactions      int64     `json:"paidTransactions"`
	CancelledTransactions int64     `json:"cancelledTransactions"`
	GeneratedAt           time.Time `json:"generatedAt"`
}
