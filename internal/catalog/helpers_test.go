package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// recorder logs every request the fake catalog receives as "path?query".
type recorder struct {
	mu   sync.Mutex
	hits []string
}

func (r *recorder) add(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, req.URL.Path+"?"+req.URL.RawQuery)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = nil
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.hits...)
}

// count returns how many hits start with prefix.
func (r *recorder) count(prefix string) int {
	n := 0
	for _, h := range r.all() {
		if strings.HasPrefix(h, prefix) {
			n++
		}
	}
	return n
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// newTestGateway starts a fake catalog serving h and returns a gateway
// pointed at it. The probe issued during construction is cleared from the
// recorder. When h does not answer the probe endpoint itself, the probe is
// accepted with an empty list.
func newTestGateway(t *testing.T, h http.HandlerFunc, opts ...func(*Options)) (*Gateway, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rec.add(req)
		h(w, req)
	}))
	t.Cleanup(srv.Close)

	o := Options{
		BaseURL:      srv.URL,
		Token:        "tok",
		CacheEnabled: true,
		RetryBackoff: time.Millisecond,
	}
	for _, f := range opts {
		f(&o)
	}
	g := New(context.Background(), o)
	rec.reset()
	return g, rec
}

// routes builds a handler from exact "path?query" keys. The probe endpoint
// with an empty query defaults to "[]". Unknown requests get 404.
func routes(m map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		key := req.URL.Path + "?" + req.URL.RawQuery
		if body, ok := m[key]; ok {
			writeJSON(w, http.StatusOK, body)
			return
		}
		if key == probeEndpoint+"?" {
			writeJSON(w, http.StatusOK, "[]")
			return
		}
		writeJSON(w, http.StatusNotFound, `{"detail":"not found"}`)
	}
}
