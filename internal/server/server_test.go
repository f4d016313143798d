package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"retail-bi/internal/config"
	"retail-bi/internal/models"
	"retail-bi/internal/observability"
	"retail-bi/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRun(t *testing.T, months int, reg prometheus.Registerer) *pipeline.Run {
	t.Helper()
	var txs []models.Transaction
	for m := range months {
		for c := range 3 {
			id := fmt.Sprintf("T%d-%d", m, c)
			date := time.Date(2023, time.Month(m+1), 10+c, 0, 0, 0, 0, time.UTC)
			txs = append(txs,
				models.Transaction{OrderID: id, Date: date, CustomerID: fmt.Sprintf("U%d", c), Category: "Electronics",
					Region: "West", ProductName: "Laptop", Quantity: 1, Sales: 999.99, Profit: 120},
				models.Transaction{OrderID: id, Date: date, CustomerID: fmt.Sprintf("U%d", c), Category: "Electronics",
					Region: "West", ProductName: "Keyboard", Quantity: 1, Sales: 79.99 + float64(c), Profit: 15},
			)
		}
	}

	var metrics *observability.Metrics
	if reg != nil {
		metrics = observability.NewMetrics(reg)
	}
	return pipeline.New(config.DefaultConfig().Pipeline, testLogger(), metrics).Execute(context.Background(), txs)
}

func newTestServer(t *testing.T, months int) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	run := newTestRun(t, months, reg)
	return NewServer(run, 10, testLogger(), reg, &TemplateHandlers{Dashboard: DashboardHandler(run)})
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer(t, 3)

	tests := []struct {
		path           string
		expectedStatus int
		contentType    string
	}{
		{"/", http.StatusOK, "text/html"},
		{"/health", http.StatusOK, "application/json"},
		{"/admin/stats", http.StatusOK, "application/json"},
		{"/api/summary", http.StatusOK, "application/json"},
		{"/api/monthly-sales", http.StatusOK, "application/json"},
		{"/api/forecast", http.StatusOK, "application/json"},
		{"/api/associations", http.StatusOK, "application/json"},
		{"/api/rfm", http.StatusOK, "application/json"},
		{"/api/segments", http.StatusOK, "application/json"},
		{"/api/categories", http.StatusOK, "application/json"},
		{"/api/regions", http.StatusOK, "application/json"},
		{"/api/top-products", http.StatusOK, "application/json"},
		{"/api/seasonality", http.StatusOK, "application/json"},
		{"/api/insights", http.StatusOK, "application/json"},
		{"/sse/summary", http.StatusOK, "text/event-stream"},
		{"/sse/monthly-sales", http.StatusOK, "text/event-stream"},
		{"/sse/forecast", http.StatusOK, "text/event-stream"},
		{"/sse/associations", http.StatusOK, "text/event-stream"},
		{"/sse/segments", http.StatusOK, "text/event-stream"},
		{"/sse/insights", http.StatusOK, "text/event-stream"},
		{"/sse/refresh-all", http.StatusOK, "text/event-stream"},
		{"/metrics", http.StatusOK, "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)

			srv.ServeHTTP(w, r)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.expectedStatus)
			}

			ct := w.Header().Get("Content-Type")
			if !strings.Contains(ct, tt.contentType) {
				t.Errorf("content-type = %q, want %q", ct, tt.contentType)
			}

			if tt.contentType == "application/json" {
				var result any
				if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
					t.Errorf("invalid json: %v", err)
				}
			}
		})
	}
}

func TestServer_UnknownRoutes(t *testing.T) {
	srv := newTestServer(t, 2)

	for _, path := range []string{"/nope", "/api/unknown", "/favicon.ico"} {
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/summary", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST: status = %d, want 405", w.Code)
	}
}

func TestServer_UnknownAPIRouteIsJSON(t *testing.T) {
	srv := newTestServer(t, 2)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Success || resp.Error.Code != "NOT_FOUND" {
		t.Errorf("unexpected body: %+v", resp)
	}
}

func TestServer_DegradedRun(t *testing.T) {
	srv := newTestServer(t, 1)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/forecast", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("forecast status = %d, want 503", w.Code)
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/associations", nil))
	if w.Code != http.StatusOK {
		t.Errorf("associations status = %d, want 200", w.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv := newTestServer(t, 3)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	for _, name := range []string{"retailbi_pipeline_runs_total", "retailbi_module_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in metrics output", name)
		}
	}
}

func TestServer_NoMetricsWithoutGatherer(t *testing.T) {
	run := newTestRun(t, 2, nil)
	srv := NewServer(run, 10, testLogger(), nil, &TemplateHandlers{Dashboard: DashboardHandler(run)})

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDashboardHandler(t *testing.T) {
	run := newTestRun(t, 2, nil)

	w := httptest.NewRecorder()
	DashboardHandler(run)(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Header().Get("Cache-Control") != cacheMaxAge {
		t.Errorf("unexpected Cache-Control %q", w.Header().Get("Cache-Control"))
	}
	body := w.Body.String()
	for _, want := range []string{"<!DOCTYPE html>", run.ID(), "/sse/refresh-all", `id="associations-content"`} {
		if !strings.Contains(body, want) {
			t.Errorf("expected page to contain %q", want)
		}
	}
}

func TestGracefulServer_ShutdownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	cfg := config.DefaultConfig().Server
	cfg.ShutdownTimeout = 5 * time.Second
	httpServer := &http.Server{Handler: http.NotFoundHandler()}
	gs := NewGracefulServer(httpServer, testLogger(), cfg)

	var hooks atomic.Int32
	for range 2 {
		gs.RegisterShutdownHook(func(ctx context.Context) error {
			hooks.Add(1)
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	if got := hooks.Load(); got != 2 {
		t.Errorf("expected 2 hooks to run, got %d", got)
	}
}

func TestGracefulServer_HookError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	gs := NewGracefulServer(&http.Server{Handler: http.NotFoundHandler()}, testLogger(), config.DefaultConfig().Server)
	hookErr := errors.New("flush failed")
	gs.RegisterShutdownHook(func(ctx context.Context) error { return hookErr })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := gs.Serve(ctx, ln); !errors.Is(err, hookErr) {
		t.Errorf("expected hook error, got %v", err)
	}
}
