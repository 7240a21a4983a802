package upstream

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

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

func newTestManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	opts = append([]ManagerOption{
		WithHealthCheckInterval(0),
		WithClientOptions(WithRetryDelay(time.Millisecond), WithMaxRetries(0)),
	}, opts...)
	m := NewManager(opts...)
	t.Cleanup(m.Stop)
	return m
}

func mustGetClient(t *testing.T, m *Manager, endpoint, credential string) *Client {
	t.Helper()
	c, err := m.GetClient(endpoint, credential)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	return c
}

func TestManagerCachesClients(t *testing.T) {
	m := newTestManager(t)

	a := mustGetClient(t, m, "https://api.respond.io/v2", "key-1")
	b := mustGetClient(t, m, "https://api.respond.io/v2/", "Bearer key-1")
	if a != b {
		t.Fatalf("expected identical handle for equivalent endpoint and credential")
	}
	c := mustGetClient(t, m, "https://api.respond.io/v2", "key-2")
	if a == c {
		t.Fatalf("expected distinct handle for a different credential")
	}
	if want, got := 2, m.Len(); want != got {
		t.Fatalf("unexpected cache size: want %d got %d", want, got)
	}
}

func TestManagerRecreatesAfterSustainedFailures(t *testing.T) {
	m := newTestManager(t)
	const endpoint, cred = "https://api.respond.io/v2", "key"

	first := mustGetClient(t, m, endpoint, cred)
	for i := 0; i < DefaultMaxErrors; i++ {
		m.MarkUnhealthy(endpoint, cred)
	}
	if got := mustGetClient(t, m, endpoint, cred); got != first {
		t.Fatalf("expected handle to survive %d failures", DefaultMaxErrors)
	}

	m.MarkUnhealthy(endpoint, cred)
	second := mustGetClient(t, m, endpoint, cred)
	if second == first {
		t.Fatalf("expected a fresh handle after exceeding the error threshold")
	}
	stats := m.Stats()
	if len(stats) != 1 || !stats[0].Healthy || stats[0].ErrorCount != 0 {
		t.Fatalf("unexpected stats after recreation: %+v", stats)
	}
}

func TestManagerRecreatesStaleUnhealthyEntry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, withClock(clock.Now))
	const endpoint, cred = "https://api.respond.io/v2", "key"

	first := mustGetClient(t, m, endpoint, cred)
	m.MarkUnhealthy(endpoint, cred)

	clock.Advance(DefaultStaleAfter - time.Second)
	if got := mustGetClient(t, m, endpoint, cred); got != first {
		t.Fatalf("expected handle to survive before staleness window")
	}

	clock.Advance(2 * time.Second)
	if got := mustGetClient(t, m, endpoint, cred); got == first {
		t.Fatalf("expected a fresh handle once the unhealthy entry went stale")
	}
}

func TestManagerHealthyEntryNeverRecreated(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, withClock(clock.Now))

	first := mustGetClient(t, m, "https://api.respond.io/v2", "key")
	clock.Advance(24 * time.Hour)
	if got := mustGetClient(t, m, "https://api.respond.io/v2", "key"); got != first {
		t.Fatalf("expected healthy handle to be reused regardless of age")
	}
}

func TestManagerMarkUnhealthyUnknownIsNoop(t *testing.T) {
	m := newTestManager(t)
	m.MarkUnhealthy("https://api.respond.io/v2", "nobody")
	if want, got := 0, m.Len(); want != got {
		t.Fatalf("unexpected cache size: want %d got %d", want, got)
	}
}

func TestManagerProbes(t *testing.T) {
	t.Run("success marks healthy", func(t *testing.T) {
		var gotPath, gotQuery, gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath, gotQuery, gotAuth = r.URL.Path, r.URL.RawQuery, r.Header.Get("Authorization")
			_, _ = io.WriteString(w, `{"items":[]}`)
		}))
		defer srv.Close()

		m := newTestManager(t)
		mustGetClient(t, m, srv.URL, "probe-key")
		m.MarkUnhealthy(srv.URL, "probe-key")

		m.probeAll()
		m.probes.Wait()

		if want, got := "/space/user", gotPath; want != got {
			t.Fatalf("unexpected probe path: want %q got %q", want, got)
		}
		if want, got := "limit=1", gotQuery; want != got {
			t.Fatalf("unexpected probe query: want %q got %q", want, got)
		}
		if want, got := "Bearer probe-key", gotAuth; want != got {
			t.Fatalf("unexpected probe auth: want %q got %q", want, got)
		}
		stats := m.Stats()
		if len(stats) != 1 || !stats[0].Healthy || stats[0].ErrorCount != 0 {
			t.Fatalf("unexpected stats after probe: %+v", stats)
		}
	})

	t.Run("failure is recorded and swallowed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		m := newTestManager(t)
		first := mustGetClient(t, m, srv.URL, "k")

		m.probeAll()
		m.probes.Wait()

		stats := m.Stats()
		if len(stats) != 1 || stats[0].Healthy || stats[0].ErrorCount != 1 {
			t.Fatalf("unexpected stats after failed probe: %+v", stats)
		}
		if got := mustGetClient(t, m, srv.URL, "k"); got != first {
			t.Fatalf("expected a single failed probe to keep the handle")
		}
	})
}

func TestManagerCallFailureMarksUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := newTestManager(t)
	c := mustGetClient(t, m, srv.URL, "k")
	if _, err := c.Get(t.Context(), "/contact/id:1", nil); err == nil {
		t.Fatalf("expected upstream error")
	}
	stats := m.Stats()
	if len(stats) != 1 || stats[0].Healthy || stats[0].ErrorCount != 1 {
		t.Fatalf("unexpected stats after failed call: %+v", stats)
	}
}

func TestManagerIgnoresFailuresOfReplacedClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m := newTestManager(t)
	old := mustGetClient(t, m, srv.URL, "k")
	for i := 0; i <= DefaultMaxErrors; i++ {
		m.MarkUnhealthy(srv.URL, "k")
	}
	fresh := mustGetClient(t, m, srv.URL, "k")
	if fresh == old {
		t.Fatalf("expected a fresh handle after exceeding the error threshold")
	}

	if _, err := old.Get(t.Context(), "/contact/id:1", nil); err == nil {
		t.Fatalf("expected upstream error")
	}
	stats := m.Stats()
	if len(stats) != 1 || !stats[0].Healthy || stats[0].ErrorCount != 0 {
		t.Fatalf("replaced client failure leaked into the fresh entry: %+v", stats)
	}

	if _, err := fresh.Get(t.Context(), "/contact/id:1", nil); err == nil {
		t.Fatalf("expected upstream error")
	}
	stats = m.Stats()
	if len(stats) != 1 || stats[0].Healthy || stats[0].ErrorCount != 1 {
		t.Fatalf("unexpected stats after failed call on fresh client: %+v", stats)
	}
}

func TestManagerStopEndsHealthLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(WithHealthCheckInterval(5 * time.Millisecond))
	if _, err := m.GetClient("http://127.0.0.1:1", "k"); err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	m.Stop()
	m.Stop()
	m.probes.Wait()
}
