package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/estimapres/edgehub/internal/cache"
	"github.com/estimapres/edgehub/internal/config"
	"github.com/estimapres/edgehub/internal/logging"
	"github.com/estimapres/edgehub/internal/metrics"
	"github.com/estimapres/edgehub/internal/worker"
)

func TestWorkerRoutesReportStateAndAcceptSkipWaiting(t *testing.T) {
	w := newInstalledWorker(t)
	app := fiber.New()
	RegisterWorkerRoutes(w, worker.NewDispatcher(w), logging.Discard())(app)

	status := getStatus(t, app)
	if status.State != worker.StateInstalled || status.Claimed {
		t.Fatalf("expected installed and unclaimed, got %+v", status)
	}

	req := httptest.NewRequest(http.MethodPost, "/-/worker/message", strings.NewReader("SKIP_WAITING\n"))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload struct {
		Accepted bool         `json:"accepted"`
		State    worker.State `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.Accepted || payload.State != worker.StateActive {
		t.Fatalf("unexpected message response: %+v", payload)
	}

	status = getStatus(t, app)
	if status.State != worker.StateActive || len(status.Generations) != 1 {
		t.Fatalf("expected active worker with one generation, got %+v", status)
	}
}

func TestWorkerMessageIgnoresUnknownPayload(t *testing.T) {
	w := newInstalledWorker(t)
	app := fiber.New()
	RegisterWorkerRoutes(w, worker.NewDispatcher(w), logging.Discard())(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/-/worker/message", strings.NewReader("RELOAD")))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"accepted":false`) {
		t.Fatalf("unexpected response: %d %s", resp.StatusCode, string(body))
	}
	if w.State() != worker.StateInstalled {
		t.Fatalf("unknown message must not activate, got %s", w.State())
	}
}

func TestMetricsRouteExposesCounters(t *testing.T) {
	metrics.ShellFallbacks.Add(0)
	app := fiber.New()
	RegisterMetricsRoute()(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/-/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), "edgehub_shell_fallbacks_total") {
		t.Fatalf("metrics output missing edgehub counters: %d", resp.StatusCode)
	}
}

func newInstalledWorker(t *testing.T) *worker.Worker {
	t.Helper()
	store, err := cache.NewMemoryStore(1 << 20)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	network := worker.FetcherFunc(func(ctx context.Context, req *worker.Request) (*worker.Response, error) {
		return &worker.Response{Status: http.StatusOK, Header: http.Header{}, Body: []byte("ok"), URL: req.URL.String()}, nil
	})
	w, err := worker.New(worker.Options{
		Config: config.WorkerConfig{
			Origin:        "https://estimapres.app",
			CacheName:     "estimapres-v6",
			ShellAssets:   []string{"/", "/index.html"},
			ShellDocument: "/index.html",
		},
		Store:   store,
		Fetcher: network,
		Logger:  logging.Discard(),
	})
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	return w
}

func getStatus(t *testing.T, app *fiber.App) worker.Status {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/-/worker", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	var status worker.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return status
}
