package api

import (
	"time"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

// Response is the success envelope of the account, billing and admin routes.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ErrorResponse is the error envelope of the account, billing and admin routes.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ResultResponse is the success envelope of the public and key-gated routes.
type ResultResponse struct {
	Status bool        `json:"status"`
	Result interface{} `json:"result"`
}

// KeyErrorResponse is the error envelope of the public and key-gated routes.
type KeyErrorResponse struct {
	Status bool   `json:"status"`
	Error  string `json:"error"`
}

// KeyInfoResponse describes the presented key without exposing it in full.
type KeyInfoResponse struct {
	Key        string           `json:"key"`
	Label      string           `json:"label,omitempty"`
	Plan       models.Tier      `json:"plan"`
	Limit      int64            `json:"limit"`
	Usage      int64            `json:"usage"`
	Remaining  int64            `json:"remaining"`
	Status     models.KeyStatus `json:"status"`
	LastUsedAt *time.Time       `json:"lastUsedAt,omitempty"`
}

// RandomImageResponse is the result of a random image draw.
type RandomImageResponse struct {
	Category string `json:"category"`
	URL      string `json:"url"`
}

// DeleteAccountResponse reports the cascade of an account deletion.
type DeleteAccountResponse struct {
	AccountID   string `json:"accountId"`
	KeysRemoved int    `json:"keysRemoved"`
}

// UsageResetResponse reports a manual usage reset.
type UsageResetResponse struct {
	KeysReset int `json:"keysReset"`
}

func newKeyInfo(k *models.APIKey) KeyInfoResponse {
	return KeyInfoResponse{
		Key:        maskKey(k.Key),
		Label:      k.Label,
		Plan:       k.Plan,
		Limit:      k.Limit,
		Usage:      k.Usage,
		Remaining:  k.Remaining(),
		Status:     k.Status(),
		LastUsedAt: k.LastUsedAt,
	}
}

// maskKey keeps the first and last four characters of a key string.
func maskKey(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
