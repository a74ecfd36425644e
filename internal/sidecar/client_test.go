package sidecar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type captureServer struct {
	mu     sync.Mutex
	posts  map[string][][]byte
	broken bool
}

func newCaptureServer() (*captureServer, *httptest.Server) {
	cs := &captureServer{posts: make(map[string][][]byte)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		if cs.broken {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			cs.posts[r.URL.Path] = append(cs.posts[r.URL.Path], body)
		}
		w.WriteHeader(http.StatusOK)
	}))
	return cs, srv
}

func (cs *captureServer) count(path string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.posts[path])
}

func (cs *captureServer) setBroken(b bool) {
	cs.mu.Lock()
	cs.broken = b
	cs.mu.Unlock()
}

func TestPostIsDeliveredToKindEndpoint(t *testing.T) {
	cs, srv := newCaptureServer()
	defer srv.Close()

	c := New(srv.URL, 10, time.Millisecond, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.Post("devices", map[string]string{"id": "12297829382473034769"})

	waitFor(t, func() bool { return cs.count("/devices") == 1 })

	var body map[string]string
	cs.mu.Lock()
	raw := cs.posts["/devices"][0]
	cs.mu.Unlock()
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if body["id"] != "12297829382473034769" {
		t.Errorf("posted body = %v", body)
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	c := New("http://127.0.0.1:1", 3, time.Hour, time.Hour)

	for i := 0; i < 5; i++ {
		c.Post("events", map[string]int{"n": i})
	}

	if got := c.Depth(); got != 3 {
		t.Fatalf("Depth() = %d, want 3", got)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var first map[string]int
	if err := json.Unmarshal(c.pending[0].body, &first); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if first["n"] != 2 {
		t.Errorf("oldest surviving write n = %d, want 2 (0 and 1 dropped)", first["n"])
	}
}

func TestFailedDeliveryRetriesAfterReconnectInterval(t *testing.T) {
	cs, srv := newCaptureServer()
	defer srv.Close()
	cs.setBroken(true)

	c := New(srv.URL, 10, 20*time.Millisecond, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.Post("commands", map[string]string{"action": "restart"})

	// Nothing lands while the sidecar is erroring.
	time.Sleep(60 * time.Millisecond)
	if cs.count("/commands") != 0 {
		t.Fatal("write delivered while the sidecar was returning errors")
	}
	if c.Depth() != 1 {
		t.Fatalf("Depth() = %d, want the write retained for retry", c.Depth())
	}

	cs.setBroken(false)
	c.Post("commands", map[string]string{"action": "status"}) // wakes the drain
	waitFor(t, func() bool { return cs.count("/commands") == 2 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}
