package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"demopilot/internal/config"
	"demopilot/internal/domain"
	"demopilot/internal/events"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

type webhookDispatcher struct {
	journal  *events.Journal
	webhooks []config.WebhookConfig
	client   *http.Client
	logger   *log.Logger
	interval time.Duration
	mu       sync.Mutex
	cursors  map[int]int64
}

// RunWebhooks forwards new journal entries to the configured webhooks until
// ctx is done. Entries written before the call are not forwarded.
func RunWebhooks(ctx context.Context, journal *events.Journal, hooks []config.WebhookConfig, logger *log.Logger) error {
	if len(hooks) == 0 || journal == nil {
		return nil
	}
	if logger == nil {
		logger = log.Default()
	}
	d := &webhookDispatcher{
		journal:  journal,
		webhooks: hooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		logger:   logger,
		interval: defaultWebhookInterval,
		cursors:  make(map[int]int64),
	}
	return d.run(ctx)
}

func (d *webhookDispatcher) run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for i, hook := range d.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	cursor := d.cursorFor(ctx, idx)
	entries, err := d.journal.After(ctx, cursor, defaultWebhookBatch)
	if err != nil {
		d.logger.Printf("webhook: fetch entries failed: %v", err)
		return
	}
	filter := newLevelFilter(hook.Levels)
	for _, entry := range entries {
		if !filter.match(entry.Level) {
			d.setCursor(idx, entry.ID)
			continue
		}
		if err := d.postEntry(ctx, hook, entry); err != nil {
			d.logger.Printf("webhook: deliver to %s failed: %v", hook.URL, err)
			return
		}
		d.setCursor(idx, entry.ID)
	}
}

func (d *webhookDispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.journal.LatestID(ctx)
	if err != nil {
		d.logger.Printf("webhook: init cursor failed: %v", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *webhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

func (d *webhookDispatcher) postEntry(ctx context.Context, hook config.WebhookConfig, entry domain.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != d.client.Timeout {
			client = &http.Client{Timeout: timeout}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Demopilot-Level", entry.Level)
	req.Header.Set("X-Demopilot-Delivery", fmt.Sprintf("%d", entry.ID))
	if entry.Generator != "" {
		req.Header.Set("X-Demopilot-Generator", entry.Generator)
	}
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Demopilot-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type levelFilter struct {
	all bool
	set map[string]struct{}
}

func newLevelFilter(levels []string) levelFilter {
	set := make(map[string]struct{}, len(levels))
	for _, l := range levels {
		if key := strings.ToLower(strings.TrimSpace(l)); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return levelFilter{all: true}
	}
	return levelFilter{set: set}
}

func (f levelFilter) match(level string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[level]
	return ok
}
