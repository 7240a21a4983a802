package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func mustClient(t *testing.T, endpoint, credential string, opts ...ClientOption) *Client {
	t.Helper()
	opts = append([]ClientOption{WithRetryDelay(time.Millisecond)}, opts...)
	c, err := NewClient(endpoint, credential, opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient(t *testing.T) {
	t.Run("rejects empty credential", func(t *testing.T) {
		if _, err := NewClient("https://api.respond.io/v2", "Bearer  "); !errors.Is(err, ErrNoCredential) {
			t.Fatalf("expected ErrNoCredential, got %v", err)
		}
	})
	t.Run("rejects empty endpoint", func(t *testing.T) {
		if _, err := NewClient("", "k"); !errors.Is(err, ErrNoEndpoint) {
			t.Fatalf("expected ErrNoEndpoint, got %v", err)
		}
	})
	t.Run("rejects non-http scheme", func(t *testing.T) {
		if _, err := NewClient("ftp://example.com", "k"); err == nil {
			t.Fatalf("expected error for ftp scheme")
		}
	})
	t.Run("trims trailing slash", func(t *testing.T) {
		c := mustClient(t, "https://api.respond.io/v2/", "k")
		if want, got := "https://api.respond.io/v2", c.Endpoint(); want != got {
			t.Fatalf("unexpected endpoint: want %q got %q", want, got)
		}
	})
}

func TestNormalizeCredential(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{in: "abc", want: "abc"},
		{in: "  abc  ", want: "abc"},
		{in: "Bearer abc", want: "abc"},
		{in: "bearer\tabc", want: "abc"},
		{in: "BEARER   abc ", want: "abc"},
		{in: "Bearer", want: ""},
		{in: "Bearer  ", want: ""},
		{in: "Bearerabc", want: "Bearerabc"},
	}
	for _, tc := range cases {
		if got := NormalizeCredential(tc.in); tc.want != got {
			t.Fatalf("NormalizeCredential(%q): want %q got %q", tc.in, tc.want, got)
		}
	}
}

func TestClientSendsBearerAndPath(t *testing.T) {
	var gotAuth, gotPath, gotQuery, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"items":[]}`)
	}))
	defer srv.Close()

	c := mustClient(t, srv.URL+"/v2", "Bearer secret-token")
	res, err := c.Post(context.Background(), "/contact/list", map[string][]string{"limit": {"5"}}, map[string]string{"search": "x"})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if want, got := `{"items":[]}`, string(res); want != got {
		t.Fatalf("unexpected body: want %s got %s", want, got)
	}
	if want, got := "Bearer secret-token", gotAuth; want != got {
		t.Fatalf("unexpected Authorization: want %q got %q", want, got)
	}
	if want, got := "/v2/contact/list", gotPath; want != got {
		t.Fatalf("unexpected path: want %q got %q", want, got)
	}
	if want, got := "limit=5", gotQuery; want != got {
		t.Fatalf("unexpected query: want %q got %q", want, got)
	}
	if want, got := `{"search":"x"}`, gotBody; want != got {
		t.Fatalf("unexpected request body: want %s got %s", want, got)
	}
}

func TestClientEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	res, err := mustClient(t, srv.URL, "k").Delete(context.Background(), "/contact/id:1", nil)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil body, got %s", res)
	}
}

func TestClientRetries(t *testing.T) {
	t.Run("temporary failure then success", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = io.WriteString(w, `{"ok":true}`)
		}))
		defer srv.Close()

		if _, err := mustClient(t, srv.URL, "k").Get(context.Background(), "/space/user", nil); err != nil {
			t.Fatalf("Get: %v", err)
		}
		if want, got := int32(3), calls.Load(); want != got {
			t.Fatalf("unexpected attempts: want %d got %d", want, got)
		}
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"code":404,"message":"Contact not found"}`)
		}))
		defer srv.Close()

		_, err := mustClient(t, srv.URL, "k").Get(context.Background(), "/contact/id:9", nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if want, got := "API Error 404: Contact not found", Describe(err); want != got {
			t.Fatalf("unexpected description: want %q got %q", want, got)
		}
		if want, got := int32(1), calls.Load(); want != got {
			t.Fatalf("unexpected attempts: want %d got %d", want, got)
		}
	})

	t.Run("exhausted retries invoke failure hook", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		var hooked error
		c := mustClient(t, srv.URL, "k", WithMaxRetries(2), withFailureHook(func(err error) { hooked = err }))
		_, err := c.Get(context.Background(), "/space/user", nil)
		if err == nil {
			t.Fatalf("expected error")
		}
		if hooked == nil {
			t.Fatalf("expected failure hook to fire")
		}
		if want, got := int32(3), calls.Load(); want != got {
			t.Fatalf("unexpected attempts: want %d got %d", want, got)
		}
		if !strings.HasPrefix(Describe(err), "API Error 503: ") {
			t.Fatalf("unexpected description: %q", Describe(err))
		}
	})

	t.Run("context cancellation stops retrying", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		c := mustClient(t, srv.URL, "k", WithRetryDelay(time.Hour))
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		_, err := c.Get(ctx, "/space/user", nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := mustClient(t, url, "k", WithMaxRetries(0)).Get(context.Background(), "/space/user", nil)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if !strings.HasPrefix(Describe(err), "Network Error: ") {
		t.Fatalf("unexpected description: %q", Describe(err))
	}
}

func TestParseRetryAfter(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"2", 2 * time.Second},
		{"-5", 0},
		{"3600", maxRetryAfter},
		{"garbage", 0},
	}
	for _, tc := range cases {
		if got := parseRetryAfter(tc.in); got != tc.want {
			t.Fatalf("parseRetryAfter(%q): want %s got %s", tc.in, tc.want, got)
		}
	}
}

func TestDescribeGenericError(t *testing.T) {
	if want, got := "Error: boom", Describe(errors.New("boom")); want != got {
		t.Fatalf("unexpected description: want %q got %q", want, got)
	}
}
