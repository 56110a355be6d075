package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
)

// DiscordSink posts a plain embed per event to a Discord webhook.
type DiscordSink struct {
	url    string
	client *http.Client
}

// NewDiscordSink creates a DiscordSink with the given HTTP timeout.
func NewDiscordSink(webhookURL string, timeout time.Duration) *DiscordSink {
	return &DiscordSink{url: webhookURL, client: &http.Client{Timeout: timeout}}
}

func (d *DiscordSink) Name() string { return "discord" }

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Fields    []discordField `json:"fields,omitempty"`
	Timestamp string         `json:"timestamp"`
}

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds"`
}

func embedFor(event core.Event) discordEmbed {
	embed := discordEmbed{
		Title:     string(event.Type),
		Color:     0x5865F2,
		Timestamp: event.At.Format(time.RFC3339),
	}
	switch event.Type {
	case core.EventPaymentPaid:
		embed.Color = 0x57F287
	case core.EventPaymentCancelled:
		embed.Color = 0xED4245
	}
	add := func(name, value string) {
		if value != "" {
			embed.Fields = append(embed.Fields, discordField{Name: name, Value: value, Inline: true})
		}
	}
	add("Account", event.AccountID)
	add("Email", event.Email)
	add("Plan", string(event.Plan))
	add("Merchant Ref", event.MerchantRef)
	if event.Amount > 0 {
		add("Amount", strconv.FormatInt(event.Amount, 10))
	}
	if event.Count > 0 {
		add("Count", strconv.Itoa(event.Count))
	}
	return embed
}

func (d *DiscordSink) Send(ctx context.Context, event core.Event) error {
	body, err := json.Marshal(discordMessage{Embeds: []discordEmbed{embedFor(event)}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
