package notify

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"

	"main/internal/errors"
)

// Notifier delivers human-readable status messages. Failures are logged by
// callers, never fatal to order flow.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, text string) error {
	logs.Infof("notify: %s", text)
	return nil
}

// WebhookNotifier posts notifications to a configured webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{}
	}
	return &WebhookNotifier{url: url, client: client}
}

type webhookBody struct {
	Text string `json:"text"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, text string) error {
	payload, err := sonic.ConfigFastest.Marshal(webhookBody{Text: text})
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build notification request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post notification")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Wrapf(errors.New("webhook rejected notification"), "status %d", resp.StatusCode)
	}
	return nil
}
