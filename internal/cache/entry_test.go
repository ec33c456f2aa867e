package cache

import (
	"net/http"
	"testing"
)

func TestKeyForDropsQueryAndFragment(t *testing.T) {
	a := KeyFor(mustURL(t, "https://Fonts.GStatic.com/s/roboto.woff2?v=3#x"))
	b := KeyFor(mustURL(t, "https://fonts.gstatic.com/s/roboto.woff2"))
	if a != b {
		t.Fatalf("keys should collapse: %s vs %s", a, b)
	}
	if got := KeyFor(mustURL(t, "https://estimapres.app")); got != "https://estimapres.app/" {
		t.Fatalf("empty path should become /, got %s", got)
	}
}

func TestMatchesHonorsVary(t *testing.T) {
	entry := &Entry{
		URL:         "https://estimapres.app/data.json",
		Status:      http.StatusOK,
		Header:      http.Header{"Vary": []string{"accept-language"}},
		VaryHeaders: map[string]string{"Accept-Language": "es-AR"},
	}
	u := mustURL(t, "https://estimapres.app/data.json")

	en := http.Header{"Accept-Language": []string{"en-US"}}
	if entry.Matches(u, en, MatchOptions{IgnoreSearch: true}) {
		t.Fatalf("vary-sensitive match should miss on different header")
	}
	if !entry.Matches(u, en, LenientMatch) {
		t.Fatalf("ignore-vary match should hit")
	}
	es := http.Header{"Accept-Language": []string{"es-AR"}}
	if !entry.Matches(u, es, MatchOptions{IgnoreSearch: true}) {
		t.Fatalf("vary-sensitive match should hit on equal header")
	}
}

func TestCaptureVary(t *testing.T) {
	req := http.Header{"Accept-Encoding": []string{"gzip"}, "Cookie": []string{"a=1"}}
	resp := http.Header{"Vary": []string{"Accept-Encoding, origin"}}
	captured := CaptureVary(req, resp)
	if captured["Accept-Encoding"] != "gzip" {
		t.Fatalf("expected Accept-Encoding captured, got %v", captured)
	}
	if v, ok := captured["Origin"]; !ok || v != "" {
		t.Fatalf("expected empty Origin captured, got %v", captured)
	}
	if CaptureVary(req, http.Header{}) != nil {
		t.Fatalf("no Vary should capture nothing")
	}
}

func TestCacheable(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		header http.Header
		want   bool
	}{
		{"ok", http.StatusOK, http.Header{}, true},
		{"no content", http.StatusNoContent, http.Header{}, true},
		{"partial", http.StatusPartialContent, http.Header{}, false},
		{"not found", http.StatusNotFound, http.Header{}, false},
		{"server error", http.StatusInternalServerError, http.Header{}, false},
		{"vary star", http.StatusOK, http.Header{"Vary": []string{"*"}}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Cacheable(tc.status, tc.header); got != tc.want {
				t.Fatalf("Cacheable(%d) = %v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestEntryCloneIsDeep(t *testing.T) {
	entry := testEntry("https://estimapres.app/", "body")
	cloned := entry.Clone()
	cloned.Body[0] = 'B'
	cloned.Header.Set("Content-Type", "text/html")
	if string(entry.Body) != "body" || entry.Header.Get("Content-Type") != "text/javascript" {
		t.Fatalf("clone must not alias the original")
	}
}
