package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dailydues/backend/internal/config"
	"github.com/dailydues/backend/pkg/logger"
)

// NotificationAdapter formats and posts a notification for one chat platform.
type NotificationAdapter interface {
	Send(ctx context.Context, ch config.NotificationChannel, n *Notification) error
}

func getAdapter(channelType string) NotificationAdapter {
	switch channelType {
	case "slack":
		return &slackAdapter{}
	case "discord":
		return &discordAdapter{}
	case "teams":
		return &teamsAdapter{}
	case "telegram":
		return &telegramAdapter{}
	default:
		return &genericAdapter{}
	}
}

var notificationHTTPClient = &http.Client{Timeout: 10 * time.Second}

func postJSON(ctx context.Context, webhookURL string, payload interface{}, headers map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return postBody(ctx, webhookURL, body, headers)
}

func postBody(ctx context.Context, webhookURL string, body []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := notificationHTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	logger.Debug().Int("status", resp.StatusCode).Int("payload_len", len(body)).Msg("[Notification] webhook response")

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// splitMessage splits a long message into chunks, preferring newline boundaries.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var parts []string
	remaining := msg
	for len(remaining) > maxLen {
		breakPoint := maxLen
		if i := strings.LastIndex(remaining[:maxLen], "\n"); i > maxLen/2 {
			breakPoint = i + 1
		}
		parts = append(parts, remaining[:breakPoint])
		remaining = remaining[breakPoint:]
	}
	if remaining != "" {
		parts = append(parts, remaining)
	}
	return parts
}

// toSlackMarkdown converts **bold** to Slack's *bold*.
func toSlackMarkdown(s string) string {
	return strings.ReplaceAll(s, "**", "*")
}

func signPayload(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

type slackAdapter struct{}

func (a *slackAdapter) Send(ctx context.Context, ch config.NotificationChannel, n *Notification) error {
	const maxLen = 3000
	for _, part := range splitMessage(toSlackMarkdown(n.Body), maxLen) {
		payload := map[string]interface{}{
			"text": n.Text,
			"blocks": []map[string]interface{}{
				{
					"type": "section",
					"text": map[string]string{"type": "mrkdwn", "text": part},
				},
			},
		}
		if err := postJSON(ctx, ch.Webhook, payload, nil); err != nil {
			return err
		}
	}
	return nil
}

type discordAdapter struct{}

func (a *discordAdapter) Send(ctx context.Context, ch config.NotificationChannel, n *Notification) error {
	const maxLen = 2000
	for _, part := range splitMessage(n.Body, maxLen) {
		if err := postJSON(ctx, ch.Webhook, map[string]interface{}{"content": part}, nil); err != nil {
			return err
		}
	}
	return nil
}

type teamsAdapter struct{}

func buildAdaptiveCard(text string) map[string]interface{} {
	return map[string]interface{}{
		"type": "message",
		"attachments": []map[string]interface{}{
			{
				"contentType": "application/vnd.microsoft.card.adaptive",
				"content": map[string]interface{}{
					"type":    "AdaptiveCard",
					"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
					"version": "1.5",
					"body": []map[string]interface{}{
						{"type": "TextBlock", "text": text, "wrap": true},
					},
				},
			},
		},
	}
}

func (a *teamsAdapter) Send(ctx context.Context, ch config.NotificationChannel, n *Notification) error {
	return postJSON(ctx, ch.Webhook, buildAdaptiveCard(n.Body), nil)
}

type telegramAdapter struct{}

func (a *telegramAdapter) Send(ctx context.Context, ch config.NotificationChannel, n *Notification) error {
	if ch.ChatID == "" {
		return fmt.Errorf("telegram channel %q has no chat_id", ch.Name)
	}
	const maxLen = 4000
	for _, part := range splitMessage(toSlackMarkdown(n.Body), maxLen) {
		payload := map[string]interface{}{
			"chat_id":    ch.ChatID,
			"text":       part,
			"parse_mode": "Markdown",
		}
		if err := postJSON(ctx, ch.Webhook, payload, nil); err != nil {
			return err
		}
	}
	return nil
}

// genericAdapter posts the raw notification; with a secret the body is signed
// in X-DailyDues-Signature.
type genericAdapter struct{}

func (a *genericAdapter) Send(ctx context.Context, ch config.NotificationChannel, n *Notification) error {
	body, err := json.Marshal(map[string]interface{}{
		"event":     n.Event,
		"text":      n.Text,
		"message":   n.Body,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	var headers map[string]string
	if ch.Secret != "" {
		headers = map[string]string{"X-DailyDues-Signature": signPayload(body, ch.Secret)}
	}
	return postBody(ctx, ch.Webhook, body, headers)
}
