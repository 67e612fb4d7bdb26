package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"demopilot/internal/app"
	"demopilot/internal/config"
	"demopilot/internal/domain"
)

func TestWebhookForwardsNewEntries(t *testing.T) {
	ctx := context.Background()
	a, err := app.Open(ctx, t.TempDir(), app.Options{Config: config.Default(), Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	defer a.Close()

	var (
		mu       sync.Mutex
		received []domain.LogEntry
		secrets  []string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var entry domain.LogEntry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received = append(received, entry)
		secrets = append(secrets, r.Header.Get("X-Demopilot-Secret"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	a.Journal.Log(ctx, "before dispatcher", domain.LevelError, "shop")

	d := &webhookDispatcher{
		journal:  a.Journal,
		webhooks: []config.WebhookConfig{{URL: hook.URL, Levels: []string{"error", "success"}, Secret: "s3cret"}},
		client:   hook.Client(),
		logger:   log.New(io.Discard, "", 0),
		cursors:  make(map[int]int64),
	}
	d.dispatchAll(ctx)

	a.Journal.Log(ctx, "Starting generation", domain.LevelInfo, "shop")
	a.Journal.Log(ctx, "Generation failed: boom", domain.LevelError, "shop")
	a.Journal.Log(ctx, "Successfully generated 3 products records", domain.LevelSuccess, "shop")
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 deliveries, got %+v", received)
	}
	if received[0].Message != "Generation failed: boom" || received[1].Level != domain.LevelSuccess {
		t.Fatalf("unexpected deliveries: %+v", received)
	}
	if secrets[0] != "s3cret" {
		t.Fatalf("secret header missing")
	}
}

func TestWebhookRetriesFailedDelivery(t *testing.T) {
	ctx := context.Background()
	a, err := app.Open(ctx, t.TempDir(), app.Options{Config: config.Default(), Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	defer a.Close()

	var (
		mu    sync.Mutex
		calls int
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	d := &webhookDispatcher{
		journal:  a.Journal,
		webhooks: []config.WebhookConfig{{URL: hook.URL}},
		client:   hook.Client(),
		logger:   log.New(io.Discard, "", 0),
		cursors:  make(map[int]int64),
	}
	d.dispatchAll(ctx)
	a.Journal.Log(ctx, "Cleanup failed: host unavailable", domain.LevelError, "hr")
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected one failed and one successful delivery, got %d calls", calls)
	}
}
