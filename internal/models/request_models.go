package models

// IssueKeyRequest is the body for issuing a new key.
// Tier is only honoured on the admin route; users always receive their current plan.
type IssueKeyRequest struct {
	Label     string `json:"label,omitempty"`
	CustomKey string `json:"customKey,omitempty"`
	Tier      string `json:"tier,omitempty"`
}

// RegenerateKeyRequest is the body for rotating a key. An empty KeyID mints a new key.
type RegenerateKeyRequest struct {
	KeyID string `json:"keyId,omitempty"`
}

// CustomKeyRequest is the body for replacing a key string with a user-chosen one.
type CustomKeyRequest struct {
	Key string `json:"key" binding:"required"`
}

// CheckoutRequest starts a plan purchase.
type CheckoutRequest struct {
	Plan   string `json:"plan" binding:"required"`
	Method string `json:"method" binding:"required"`
}

// SetPlanRequest is the admin plan override body.
type SetPlanRequest struct {
	Plan string `json:"plan" binding:"required"`
}

// SetRoleRequest is the admin role change body.
type SetRoleRequest struct {
	Role string `json:"role" binding:"required"`
}
