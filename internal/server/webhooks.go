package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"medboard/internal/config"
	"medboard/internal/domain"
	"medboard/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// WebhookDispatcher delivers new events to the configured webhooks. Each
// hook has its own cursor, stored in the database so restarts resume where
// delivery stopped. A hook without a stored cursor starts at the newest
// event.
type WebhookDispatcher struct {
	Repo     repo.Repo
	Webhooks []config.Webhook
	Interval time.Duration
	Client   *http.Client
	Log      log.FieldLogger
}

func NewWebhookDispatcher(r repo.Repo, hooks []config.Webhook, logger log.FieldLogger) *WebhookDispatcher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &WebhookDispatcher{
		Repo:     r,
		Webhooks: hooks,
		Interval: defaultWebhookInterval,
		Client:   &http.Client{Timeout: defaultWebhookTimeout},
		Log:      logger,
	}
}

// Run polls for events until ctx is done.
func (d *WebhookDispatcher) Run(ctx context.Context) error {
	if len(d.Webhooks) == 0 {
		<-ctx.Done()
		return nil
	}
	interval := d.Interval
	if interval <= 0 {
		interval = defaultWebhookInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchAll runs one delivery pass over every enabled hook.
func (d *WebhookDispatcher) DispatchAll(ctx context.Context) {
	for i, hook := range d.Webhooks {
		if !hook.IsEnabled() || strings.TrimSpace(hook.URL) == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		d.dispatchWebhook(ctx, hookID(i, hook), hook)
	}
}

func hookID(idx int, hook config.Webhook) string {
	if id := strings.TrimSpace(hook.ID); id != "" {
		return id
	}
	return fmt.Sprintf("webhook-%d", idx)
}

func (d *WebhookDispatcher) dispatchWebhook(ctx context.Context, id string, hook config.Webhook) {
	logger := d.Log.WithFields(log.Fields{"webhook": id, "url": hook.URL})
	cursor, err := d.cursorFor(ctx, id)
	if err != nil {
		logger.WithError(err).Error("webhook cursor unavailable")
		return
	}
	events, err := d.Repo.EventsAfter(ctx, defaultWebhookBatch, cursor)
	if err != nil {
		logger.WithError(err).Error("webhook fetch events failed")
		return
	}
	if len(events) == 0 {
		return
	}
	filter := newEventFilter(hook.Events)
	last := cursor
	defer func() {
		if last == cursor {
			return
		}
		if err := d.Repo.SetWebhookCursor(context.WithoutCancel(ctx), id, last); err != nil {
			logger.WithError(err).Error("webhook cursor not saved")
		}
	}()
	for _, evt := range events {
		if !filter.match(evt.Type) {
			last = evt.ID
			continue
		}
		if err := d.postEvent(ctx, hook, evt); err != nil {
			logger.WithError(err).WithField("event_id", evt.ID).Warn("webhook delivery failed")
			return
		}
		logger.WithFields(log.Fields{"event_id": evt.ID, "type": evt.Type}).Debug("webhook delivered")
		last = evt.ID
	}
}

func (d *WebhookDispatcher) cursorFor(ctx context.Context, id string) (int64, error) {
	cur, ok, err := d.Repo.WebhookCursor(ctx, id)
	if err != nil || ok {
		return cur, err
	}
	cur, err = d.Repo.LatestEventID(ctx)
	if err != nil {
		return 0, err
	}
	return cur, d.Repo.SetWebhookCursor(ctx, id, cur)
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	RecordID   string          `json:"record_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	Actor      string          `json:"actor"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

func (d *WebhookDispatcher) postEvent(ctx context.Context, hook config.Webhook, evt domain.Event) error {
	payload := json.RawMessage([]byte("{}"))
	var raw string
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			payload = json.RawMessage([]byte(evt.Payload))
		} else {
			raw = evt.Payload
		}
	}
	body := webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		RecordID:   evt.RecordID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		Actor:      evt.Actor,
		TS:         evt.TS,
		Payload:    payload,
		PayloadRaw: raw,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != client.Timeout {
			client = &http.Client{Timeout: timeout, Transport: client.Transport}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	for k, v := range hook.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Medboard-Event", evt.Type)
	req.Header.Set("X-Medboard-Delivery", fmt.Sprintf("%d", evt.ID))
	if evt.RecordID != "" {
		req.Header.Set("X-Medboard-Record", evt.RecordID)
	}
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Medboard-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
