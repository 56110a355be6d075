// Package payment talks to the Tripay-style payment gateway.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Gateway callback statuses.
const (
	StatusPaid    = "PAID"
	StatusUnpaid  = "UNPAID"
	StatusExpired = "EXPIRED"
	StatusFailed  = "FAILED"
)

// ErrGateway wraps every non-success answer of the gateway.
var ErrGateway = errors.New("payment gateway error")

// Config holds the gateway credentials.
type Config struct {
	BaseURL      string
	APIKey       string
	PrivateKey   string
	MerchantCode string
	ReturnURL    string
	CallbackURL  string
	Timeout      time.Duration
}

// Client is a gateway API client.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a Client. A zero timeout defaults to 30 seconds.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

// OrderItem is a line of a charge.
type OrderItem struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

// ChargeRequest describes a closed payment to open at the gateway.
type ChargeRequest struct {
	Method        string
	MerchantRef   string
	Amount        int64
	CustomerName  string
	CustomerEmail string
	Items         []OrderItem
	ExpiresAt     time.Time
}

// Charge is the gateway answer to a ChargeRequest.
type Charge struct {
	Reference   string `json:"reference"`
	MerchantRef string `json:"merchant_ref"`
	CheckoutURL string `json:"checkout_url"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	ExpiredTime int64  `json:"expired_time"`
}

type createBody struct {
	Method        string      `json:"method"`
	MerchantRef   string      `json:"merchant_ref"`
	Amount        int64       `json:"amount"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email"`
	OrderItems    []OrderItem `json:"order_items"`
	ReturnURL     string      `json:"return_url,omitempty"`
	CallbackURL   string      `json:"callback_url,omitempty"`
	ExpiredTime   int64       `json:"expired_time,omitempty"`
	Signature     string      `json:"signature"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// CreateTransaction opens a closed payment and returns the checkout URL.
func (c *Client) CreateTransaction(ctx context.Context, req ChargeRequest) (*Charge, error) {
	body := createBody{
		Method:        req.Method,
		MerchantRef:   req.MerchantRef,
		Amount:        req.Amount,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		OrderItems:    req.Items,
		ReturnURL:     c.cfg.ReturnURL,
		CallbackURL:   c.cfg.CallbackURL,
		Signature:     c.MerchantSignature(req.MerchantRef, req.Amount),
	}
	if !req.ExpiresAt.IsZero() {
		body.ExpiredTime = req.ExpiresAt.Unix()
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/transaction/create", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrGateway, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: status %d: undecodable response", ErrGateway, resp.StatusCode)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return nil, fmt.Errorf("%w: status %d: %s", ErrGateway, resp.StatusCode, env.Message)
	}
	var charge Charge
	if err := json.Unmarshal(env.Data, &charge); err != nil {
		return nil, fmt.Errorf("%w: undecodable charge: %v", ErrGateway, err)
	}
	return &charge, nil
}

// MerchantSignature signs merchantCode+merchantRef+amount with the private key.
func (c *Client) MerchantSignature(merchantRef string, amount int64) string {
	return Sign(c.cfg.PrivateKey, []byte(c.cfg.MerchantCode+merchantRef+strconv.FormatInt(amount, 10)))
}

// VerifySignature checks the X-Callback-Signature header against the raw callback body.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	return Verify(c.cfg.PrivateKey, body, signature)
}

// Sign returns the hex encoded HMAC-SHA256 of data.
func Sign(key string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares signature with Sign(key, data) in constant time.
func Verify(key string, data []byte, signature string) bool {
	if key == "" || signature == "" {
		return false
	}
	got := strings.ToLower(strings.TrimSpace(signature))
	return hmac.Equal([]byte(Sign(key, data)), []byte(got))
}

// Callback is the body the gateway posts to the callback URL.
type Callback struct {
	Reference         string `json:"reference"`
	MerchantRef       string `json:"merchant_ref"`
	PaymentMethod     string `json:"payment_method"`
	PaymentMethodCode string `json:"payment_method_code"`
	TotalAmount       int64  `json:"total_amount"`
	Status            string `json:"status"`
	PaidAt            int64  `json:"paid_at,omitempty"`
}

// ParseCallback decodes a callback body.
func ParseCallback(body []byte) (*Callback, error) {
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("failed to decode callback: %w", err)
	}
	if cb.MerchantRef == "" || cb.Status == "" {
		return nil, errors.New("callback is missing merchant_ref or status")
	}
	cb.Status = strings.ToUpper(cb.Status)
	return &cb, nil
}

// Method returns the most specific payment method name of the callback.
func (cb *Callback) Method() string {
	if cb.PaymentMethodCode != "" {
		return cb.PaymentMethodCode
	}
	return cb.PaymentMethod
}
