package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
)

// MailConfig holds the SMTP settings.
type MailConfig struct {
	Host   string
	Port   int
	User   string
	Pass   string
	Sender string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// MailSink emails a receipt to the account owner when a payment is settled.
type MailSink struct {
	cfg      MailConfig
	sendMail sendMailFunc
}

// NewMailSink creates a MailSink.
func NewMailSink(cfg MailConfig) *MailSink {
	return &MailSink{cfg: cfg, sendMail: smtp.SendMail}
}

func (m *MailSink) Name() string { return "smtp" }

func (m *MailSink) Send(_ context.Context, event core.Event) error {
	if event.Type != core.EventPaymentPaid || event.Email == "" {
		return nil
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	}
	if err := m.sendMail(addr, auth, m.cfg.Sender, []string{event.Email}, receipt(m.cfg.Sender, event)); err != nil {
		return fmt.Errorf("failed to send receipt: %w", err)
	}
	return nil
}

func receipt(sender string, event core.Event) []byte {
	body := fmt.Sprintf("Thank you for your purchase.\r\n\r\nPlan: %s\r\nAmount: %d\r\nReference: %s\r\nDaily limit: %d requests\r\n",
		event.Plan, event.Amount, event.MerchantRef, event.Plan.Limit())
	return []byte(fmt.Sprintf("To: %s\r\n"+
		"From: %s\r\n"+
		"Subject: Slowly API payment receipt %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s", event.Email, sender, event.MerchantRef, body))
}
