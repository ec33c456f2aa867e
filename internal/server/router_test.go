package server

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/estimapres/edgehub/internal/logging"
)

func TestAppRoutesUnclaimedRequestsToProxy(t *testing.T) {
	recorder := &proxyRecorder{}
	app := newTestApp(t, recorder, func(app *fiber.App) {
		app.Get("/-/ping", func(c fiber.Ctx) error {
			return c.SendString("pong")
		})
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://estimapres.app/assets/app.js", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204 from proxy, got %d", resp.StatusCode)
	}
	if recorder.lastPath != "/assets/app.js" {
		t.Fatalf("proxy should receive the request, got %q", recorder.lastPath)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if recorder.lastRequestID != resp.Header.Get("X-Request-ID") {
		t.Fatalf("request id in locals should match the response header")
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "http://estimapres.app/-/ping", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "pong" {
		t.Fatalf("named route should win over the proxy, got %s", string(body))
	}
	if recorder.calls != 1 {
		t.Fatalf("proxy should not see named routes, calls=%d", recorder.calls)
	}
}

func TestAppRecoversFromPanics(t *testing.T) {
	app := newTestApp(t, ProxyHandlerFunc(func(fiber.Ctx) error {
		panic("boom")
	}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://estimapres.app/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", resp.StatusCode)
	}
}

func TestNewAppValidatesOptions(t *testing.T) {
	if _, err := NewApp(AppOptions{Proxy: &proxyRecorder{}, ListenPort: 5000}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := NewApp(AppOptions{Logger: logging.Discard(), ListenPort: 5000}); err == nil {
		t.Fatalf("expected error without proxy")
	}
	if _, err := NewApp(AppOptions{Logger: logging.Discard(), Proxy: &proxyRecorder{}}); err == nil {
		t.Fatalf("expected error without port")
	}
}

func TestWriteErrorBody(t *testing.T) {
	app := newTestApp(t, ProxyHandlerFunc(func(c fiber.Ctx) error {
		return WriteError(c, fiber.StatusBadGateway, "upstream_failed")
	}))
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "http://estimapres.app/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusBadGateway || !bytes.Contains(body, []byte(`"upstream_failed"`)) {
		t.Fatalf("unexpected error response: %d %s", resp.StatusCode, string(body))
	}
}

func newTestApp(t *testing.T, proxy ProxyHandler, routes ...RouteRegistrar) *fiber.App {
	t.Helper()
	app, err := NewApp(AppOptions{
		Logger:     logging.Discard(),
		Proxy:      proxy,
		ListenPort: 5000,
		Routes:     routes,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return app
}

type proxyRecorder struct {
	calls         int
	lastPath      string
	lastRequestID string
}

func (p *proxyRecorder) Handle(c fiber.Ctx) error {
	p.calls++
	p.lastPath = c.Path()
	p.lastRequestID = RequestID(c)
	return c.SendStatus(fiber.StatusNoContent)
}
