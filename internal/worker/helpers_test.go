package worker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/estimapres/edgehub/internal/cache"
	"github.com/estimapres/edgehub/internal/config"
	"github.com/estimapres/edgehub/internal/logging"
)

var errOffline = errors.New("network unreachable")

const shellBody = "<html>shell</html>"

// fakeNetwork 按不含查询串的地址返回预设响应，并记录每一次请求。
type fakeNetwork struct {
	mu        sync.Mutex
	responses map[string]*Response
	offline   bool
	calls     []string
}

func newShellNetwork() *fakeNetwork {
	n := &fakeNetwork{responses: map[string]*Response{}}
	n.set("https://estimapres.app/", shellBody, "text/html")
	n.set("https://estimapres.app/index.html", shellBody, "text/html")
	n.set("https://estimapres.app/manifest.webmanifest", `{"name":"EstimaPres"}`, "application/manifest+json")
	n.set("https://estimapres.app/favicon.ico", "ico", "image/x-icon")
	return n
}

func (n *fakeNetwork) set(rawURL, body, contentType string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.responses[rawURL] = &Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{contentType}},
		Body:   []byte(body),
	}
}

func (n *fakeNetwork) remove(rawURL string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.responses, rawURL)
}

func (n *fakeNetwork) setOffline(offline bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = offline
}

func (n *fakeNetwork) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func (n *fakeNetwork) Fetch(ctx context.Context, req *Request) (*Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, req.Method+" "+req.URL.String())
	if n.offline {
		return nil, errOffline
	}
	resp, ok := n.responses[cache.KeyFor(req.URL)]
	if !ok {
		return &Response{Status: http.StatusNotFound, Header: http.Header{}, Body: []byte("not found"), URL: req.URL.String()}, nil
	}
	return &Response{
		Status: resp.Status,
		Header: resp.Header.Clone(),
		Body:   append([]byte(nil), resp.Body...),
		URL:    req.URL.String(),
	}, nil
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Origin:        "https://estimapres.app",
		CacheName:     "estimapres-v6",
		ShellAssets:   []string{"/", "/index.html", "/manifest.webmanifest", "/favicon.ico"},
		ShellDocument: "/index.html",
		CacheFirstHosts: []string{
			"fonts.googleapis.com",
			"fonts.gstatic.com",
			"www.gstatic.com",
		},
		NetworkFirstHosts: []string{
			"firestore.googleapis.com",
			"identitytoolkit.googleapis.com",
			"securetoken.googleapis.com",
			"firebaseinstallations.googleapis.com",
		},
		ExcludedSchemes:      []string{"chrome-extension"},
		SkipWaitingOnInstall: true,
	}
}

func newTestWorker(t *testing.T, cfg config.WorkerConfig, store cache.Store, fetcher Fetcher) *Worker {
	t.Helper()
	w, err := New(Options{
		Config:  cfg,
		Store:   store,
		Fetcher: fetcher,
		Logger:  logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return w
}

func newTestStore(t *testing.T) cache.Store {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("store error: %v", err)
	}
	return store
}

// newActiveWorker 返回已完成 install + activate 的 worker。
func newActiveWorker(t *testing.T) (*Worker, *fakeNetwork, cache.Store) {
	t.Helper()
	network := newShellNetwork()
	store := newTestStore(t)
	w := newTestWorker(t, testWorkerConfig(), store, network)
	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if w.State() != StateActive {
		t.Fatalf("expected active worker, got %s", w.State())
	}
	return w, network, store
}

func mustRequest(t *testing.T, rawURL string, header http.Header) *Request {
	t.Helper()
	req, err := NewRequest(rawURL, header)
	if err != nil {
		t.Fatalf("request %s: %v", rawURL, err)
	}
	return req
}

func currentBucket(t *testing.T, store cache.Store) cache.Bucket {
	t.Helper()
	bucket, err := store.Open(context.Background(), "estimapres-v6")
	if err != nil {
		t.Fatalf("open bucket: %v", err)
	}
	return bucket
}

// failingStore 包装真实存储，但所有 Put 都失败。
type failingStore struct {
	cache.Store
}

func (s failingStore) Open(ctx context.Context, generation string) (cache.Bucket, error) {
	bucket, err := s.Store.Open(ctx, generation)
	if err != nil {
		return nil, err
	}
	return failingBucket{Bucket: bucket}, nil
}

type failingBucket struct {
	cache.Bucket
}

func (failingBucket) Put(context.Context, *cache.Entry) error {
	return errors.New("quota exceeded")
}
