package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// WebhookSink posts notifications to a chat bot endpoint
type WebhookSink struct {
	url        string
	channelID  string
	httpClient *http.Client
	userAgent  string
}

type webhookPayload struct {
	ChannelID string `json:"channelId"`
	Title     string `json:"title"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

func NewWebhookSink(url, channelID string, httpClient *http.Client, userAgent string) *WebhookSink {
	return &WebhookSink{
		url:        url,
		channelID:  channelID,
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

func (s *WebhookSink) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(webhookPayload{
		ChannelID: s.channelID,
		Title:     n.Message(),
		ImageURL:  n.ImageURL,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "POST", s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	return nil
}

// LogSink only logs notifications; used when no webhook is configured
type LogSink struct{}

func (LogSink) Send(ctx context.Context, n Notification) error {
	slog.Info(n.Message(), "anime_id", n.AnimeID, "episode", n.Episode)
	return nil
}
