package extension_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/courier/extension"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestToOptionsSkipsZeroValues(t *testing.T) {
	if n := len(extension.Config{}.ToOptions()); n != 0 {
		t.Fatalf("zero config produced %d options", n)
	}

	cfg := extension.Config{}
	cfg.Concurrency = 4
	cfg.PollInterval = time.Second
	cfg.StrictEventTypes = true
	if n := len(cfg.ToOptions()); n != 3 {
		t.Fatalf("expected 3 options, got %d", n)
	}
}

func TestLifecycleBeforeRegister(t *testing.T) {
	ext := extension.New()
	if err := ext.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail before Register")
	}
	if err := ext.Health(context.Background()); err == nil {
		t.Fatal("expected Health to fail before Register")
	}

	rec := httptest.NewRecorder()
	ext.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/stats", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before Register, got %d", rec.Code)
	}
}

func TestRegisterMountsUnderBasePath(t *testing.T) {
	ext := extension.New(
		extension.WithBasePath("/hooks/"),
		extension.WithLogger(quietLogger()),
	)
	ctx := context.Background()
	if err := ext.Register(ctx); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := ext.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}

	rec := httptest.NewRecorder()
	ext.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hooks/subscriptions",
		strings.NewReader(`{"url":"https://example.com/in","events":["message-sent"]}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	ext.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/hooks/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", rec.Code)
	}
	var stats map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats["subscriptions"] != float64(1) {
		t.Fatalf("unexpected stats %v", stats)
	}

	if err := ext.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := ext.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestDisableRoutes(t *testing.T) {
	ext := extension.New(extension.WithDisableRoutes(), extension.WithLogger(quietLogger()))
	if err := ext.Register(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	ext.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhooks/stats", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with routes disabled, got %d", rec.Code)
	}
}

func TestPersistentDriverNeedsStore(t *testing.T) {
	cfg := extension.DefaultConfig()
	cfg.StoreDriver = extension.DriverPostgres

	ext := extension.New(extension.WithConfig(cfg), extension.WithLogger(quietLogger()))
	if err := ext.Register(context.Background()); err == nil {
		t.Fatal("expected an error for postgres without WithStore")
	}
}
