package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/logger"
)

// Dialer starts an outbound call. It is fire-and-forget: a nil error only means the request
// was handed off.
type Dialer interface {
	Dial(ctx context.Context, number string) error
}

// URI returns the tel: link clients can open with their own dialer.
func URI(number string) string {
	return "tel:" + strings.ReplaceAll(strings.TrimSpace(number), " ", "")
}

// LogDialer only records the dial request. Used when no telephony gateway is configured.
type LogDialer struct {
	log *zap.Logger
}

func NewLogDialer(log *zap.Logger) *LogDialer {
	return &LogDialer{log: logger.Module(log, "telephony")}
}

func (d *LogDialer) Dial(_ context.Context, number string) error {
	d.log.Warn("no telephony gateway configured, dial request logged only", zap.String("uri", URI(number)))
	return nil
}

// WebhookDialer posts dial requests to an HTTP gateway.
type WebhookDialer struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

// NewWebhookDialer returns a dialer for url. A nil client uses a 10s timeout client.
func NewWebhookDialer(url string, client *http.Client, log *zap.Logger) *WebhookDialer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookDialer{url: url, client: client, log: logger.Module(log, "telephony")}
}

type dialRequest struct {
	Number string    `json:"number"`
	URI    string    `json:"uri"`
	At     time.Time `json:"at"`
}

func (d *WebhookDialer) Dial(ctx context.Context, number string) error {
	body, err := json.Marshal(dialRequest{Number: number, URI: URI(number), At: time.Now().UTC()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build dial request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("dial gateway request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("dial gateway returned status %d", resp.StatusCode)
	}

	d.log.Info("dial request accepted", zap.String("uri", URI(number)))
	return nil
}
