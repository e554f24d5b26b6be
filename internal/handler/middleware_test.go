package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s: expected %q, got %q", header, want, got)
		}
	}
}

func TestThrottle_AllowsWithinBurst(t *testing.T) {
	th := NewThrottle(1, 3, 0)
	h := th.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "203.0.113.7:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d within burst should pass, got %d", i+1, rec.Code)
		}
	}
}

func TestThrottle_RejectsOverBurst(t *testing.T) {
	th := NewThrottle(0.001, 2, 0)
	h := th.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "203.0.113.7:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "203.0.113.7:1000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after burst exhausted, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429")
	}
}

func TestThrottle_IsolatesClients(t *testing.T) {
	th := NewThrottle(0.001, 1, 0)
	h := th.Middleware(okHandler())

	first := httptest.NewRequest(http.MethodPost, "/", nil)
	first.RemoteAddr = "203.0.113.7:1000"
	h.ServeHTTP(httptest.NewRecorder(), first)

	// A different client has its own bucket.
	second := httptest.NewRequest(http.MethodPost, "/", nil)
	second.RemoteAddr = "198.51.100.1:1000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, second)

	if rec.Code != http.StatusOK {
		t.Errorf("distinct client must not share the bucket, got %d", rec.Code)
	}
}

func TestCORS_AllowedOrigin(t *testing.T) {
	h := CORS([]string{"https://example.com"}, okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("expected allow-origin echo, got %q", got)
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	h := CORS([]string{"https://example.com"}, okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow-origin for unlisted origin: %q", got)
	}
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	called := false
	h := CORS([]string{"https://example.com"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rec.Code)
	}
	if called {
		t.Error("preflight must not reach the next handler")
	}
}

func TestClientIP_Fallbacks(t *testing.T) {
	cases := []struct {
		name           string
		trustedProxies int
		setup          func(r *http.Request)
		expect         string
	}{
		{"cf header", 0, func(r *http.Request) { r.Header.Set("CF-Connecting-IP", "198.51.100.9") }, "198.51.100.9"},
		{"xff one trusted proxy", 1, func(r *http.Request) { r.Header.Set("X-Forwarded-For", "192.0.2.1, 10.0.0.1") }, "10.0.0.1"},
		{"xff two trusted proxies", 2, func(r *http.Request) { r.Header.Set("X-Forwarded-For", "192.0.2.1, 10.0.0.1, 10.0.0.2") }, "10.0.0.1"},
		{"xff ignored with no trusted proxies", 0, func(r *http.Request) { r.Header.Set("X-Forwarded-For", "192.0.2.1") }, "203.0.113.7"},
		{"xff with more trusted proxies than entries", 3, func(r *http.Request) { r.Header.Set("X-Forwarded-For", "192.0.2.1") }, "203.0.113.7"},
		{"remote addr", 0, func(r *http.Request) {}, "203.0.113.7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "203.0.113.7:1234"
			tc.setup(req)
			if got := ClientIP(req, tc.trustedProxies); got != tc.expect {
				t.Errorf("expected %q, got %q", tc.expect, got)
			}
		})
	}
}

// A sender must not be able to pick a fresh identity per request by stuffing
// the leftmost X-Forwarded-For entries.
func TestClientIP_SpoofedForwardedEntriesDoNotRotateIdentity(t *testing.T) {
	identity := func(xff string, trustedProxies int) string {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		req.Header.Set("X-Forwarded-For", xff)
		return ClientIP(req, trustedProxies)
	}

	if a, b := identity("6.6.6.1", 0), identity("6.6.6.2", 0); a != b {
		t.Errorf("untrusted header must not change the identity: %q vs %q", a, b)
	}
	// Behind one trusted proxy the rightmost entry is the proxy-appended
	// peer; extra leftmost garbage does not move it.
	if a, b := identity("6.6.6.1, 192.0.2.50", 1), identity("6.6.6.2, 192.0.2.50", 1); a != b || a != "192.0.2.50" {
		t.Errorf("expected the proxy-appended entry both times, got %q and %q", a, b)
	}
}
