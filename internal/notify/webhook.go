package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"crowdfill/internal/config"
	"crowdfill/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookNotifier POSTs events to one configured URL.
type WebhookNotifier struct {
	Hook   config.WebhookConfig
	Client *http.Client
}

func NewWebhook(hook config.WebhookConfig) *WebhookNotifier {
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	return &WebhookNotifier{Hook: hook, Client: &http.Client{Timeout: timeout}}
}

func (w *WebhookNotifier) Name() string { return "webhook:" + w.Hook.URL }

func (w *WebhookNotifier) Notify(ctx context.Context, evt domain.Event) error {
	data, err := json.Marshal(messageFor(evt))
	if err != nil {
		return eris.Wrap(err, "webhook: encode event")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Hook.URL, bytes.NewReader(data))
	if err != nil {
		return eris.Wrap(err, "webhook: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Crowdfill-Event", evt.Type)
	req.Header.Set("X-Crowdfill-Delivery", strconv.FormatInt(evt.ID, 10))
	if strings.TrimSpace(w.Hook.Secret) != "" {
		req.Header.Set("X-Crowdfill-Secret", w.Hook.Secret)
	}
	res, err := w.Client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "webhook: post %s", w.Hook.URL)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("webhook %s: status %d: %s", w.Hook.URL, res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
