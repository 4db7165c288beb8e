package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/phrazzld/futureself-api/internal/platform/logger"
	"github.com/phrazzld/futureself-api/internal/redact"
)

// ErrWebhookRejected is returned when the webhook answers with a non-2xx status.
var ErrWebhookRejected = errors.New("webhook rejected delivery")

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// WebhookNotifier POSTs each Delivery as JSON to a fixed URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookNotifier creates a WebhookNotifier. The timeout bounds each call.
func NewWebhookNotifier(rawURL string, timeout time.Duration, l *slog.Logger) (*WebhookNotifier, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook url %q", redact.String(rawURL))
	}
	if l == nil {
		l = slog.Default()
	}
	return &WebhookNotifier{
		url:    u.String(),
		client: &http.Client{Timeout: timeout},
		logger: l.With(slog.String("component", "webhook_notifier")),
	}, nil
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, d Delivery) error {
	log := logger.FromContextOrDefault(ctx, n.logger).With(slog.String("letter_id", d.LetterID.String()))

	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode delivery: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", fmt.Sprintf("%s/%d", d.LetterID, d.Occurrence))

	resp, err := n.client.Do(req)
	if err != nil {
		log.Error("webhook call failed", slog.String("error", redact.Error(err)))
		return fmt.Errorf("webhook call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Warn("webhook rejected delivery", slog.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: status %s, body %s", ErrWebhookRejected, resp.Status, bytes.TrimSpace(snippet))
	}

	log.Debug("webhook accepted delivery", slog.Int("status", resp.StatusCode))
	return nil
}
