package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SaltProphet/SystemZero/pkg/telemetry"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/auth"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func TestRequestIDAssignedAndEchoed(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = telemetry.RequestIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	got := rr.Header().Get(RequestIDHeader)
	if got == "" || got != seen {
		t.Fatalf("header %q, context %q", got, seen)
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set(RequestIDHeader, "caller-supplied-1")
	h.ServeHTTP(rr, req)
	if rr.Header().Get(RequestIDHeader) != "caller-supplied-1" {
		t.Fatalf("incoming id not honored: %q", rr.Header().Get(RequestIDHeader))
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set(RequestIDHeader, "bad\nid")
	h.ServeHTTP(rr, req)
	if rr.Header().Get(RequestIDHeader) == "bad\nid" {
		t.Fatal("malformed incoming id must be replaced")
	}
}

func TestRateLimitMinuteWindow(t *testing.T) {
	l := NewRateLimiter(3, 100, true)
	base := time.Unix(1724500000, 0)
	clock := base
	l.SetClock(func() time.Time { return clock })
	h := l.Middleware(okHandler)

	call := func() *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		h.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 3; i++ {
		clock = base.Add(time.Duration(i) * 10 * time.Second)
		if rr := call(); rr.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rr.Code)
		}
	}
	rr := call()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("fourth request = %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("remaining = %q", rr.Header().Get("X-RateLimit-Remaining"))
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["detail"] == "" {
		t.Fatalf("body = %s", rr.Body.String())
	}

	// The oldest stamp ages out of the window.
	clock = base.Add(61 * time.Second)
	if rr := call(); rr.Code != http.StatusOK {
		t.Fatalf("after window = %d", rr.Code)
	}
}

func TestRateLimitBurstWindow(t *testing.T) {
	l := NewRateLimiter(100, 2, true)
	base := time.Unix(1724500000, 0)
	clock := base
	l.SetClock(func() time.Time { return clock })
	h := l.Middleware(okHandler)

	call := func() int {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.RemoteAddr = "10.0.0.2:5000"
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	if call() != http.StatusOK || call() != http.StatusOK {
		t.Fatal("burst budget")
	}
	if call() != http.StatusTooManyRequests {
		t.Fatal("third request inside 5s must be rejected")
	}
	clock = base.Add(6 * time.Second)
	if call() != http.StatusOK {
		t.Fatal("burst window must slide")
	}
}

func TestRateLimitKeysClientsSeparately(t *testing.T) {
	l := NewRateLimiter(1, 100, true)
	h := l.Middleware(okHandler)

	first := httptest.NewRequest(http.MethodGet, "/status", nil)
	first.RemoteAddr = "10.0.0.3:1"
	second := httptest.NewRequest(http.MethodGet, "/status", nil)
	second.RemoteAddr = "10.0.0.4:1"

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, first)
	if rr.Code != http.StatusOK {
		t.Fatalf("first client = %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, second)
	if rr.Code != http.StatusOK {
		t.Fatalf("second client shares the budget: %d", rr.Code)
	}

	// Same address but a distinct API key gets its own budget.
	keyed := httptest.NewRequest(http.MethodGet, "/status", nil)
	keyed.RemoteAddr = "10.0.0.3:1"
	keyed.Header.Set(APIKeyHeader, "some-key")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, keyed)
	if rr.Code != http.StatusOK {
		t.Fatalf("keyed client = %d", rr.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	l := NewRateLimiter(1, 1, false)
	h := l.Middleware(okHandler)
	for i := 0; i < 10; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("disabled limiter rejected request %d", i)
		}
	}
}

func TestMaxBody(t *testing.T) {
	h := MaxBody(16)(okHandler)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/captures", strings.NewReader("small")))
	if rr.Code != http.StatusOK {
		t.Fatalf("small body = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	big := strings.NewReader(strings.Repeat("x", 64))
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/captures", big))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body = %d", rr.Code)
	}
}

func TestTrustedHosts(t *testing.T) {
	h := TrustedHosts([]string{"monitor.internal", "*.example.com"})(okHandler)

	cases := []struct {
		host string
		code int
	}{
		{"monitor.internal", http.StatusOK},
		{"monitor.internal:8000", http.StatusOK},
		{"api.example.com", http.StatusOK},
		{"evil.test", http.StatusBadRequest},
	}
	for _, c := range cases {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = c.host
		h.ServeHTTP(rr, req)
		if rr.Code != c.code {
			t.Fatalf("host %q = %d, want %d", c.host, rr.Code, c.code)
		}
	}

	open := TrustedHosts(nil)(okHandler)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "anything.goes"
	open.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("empty list = %d", rr.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(okHandler)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("allow origin = %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://elsewhere.test")
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("disallowed origin must get no allow header")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("request still served: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d", rr.Code)
	}
}

func TestRequireAuth(t *testing.T) {
	km := auth.NewKeyManager(filepath.Join(t.TempDir(), "keys.yaml"))
	operatorKey, err := km.CreateKey("op", auth.RoleOperator, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	readonlyKey, err := km.CreateKey("ro", auth.RoleReadonly, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	h := RequireAuth(km, auth.PermWriteCaptures)(okHandler)
	call := func(key string) int {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/captures", nil)
		if key != "" {
			req.Header.Set(APIKeyHeader, key)
		}
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := call(""); code != http.StatusUnauthorized {
		t.Fatalf("missing key = %d", code)
	}
	if code := call("bogus"); code != http.StatusUnauthorized {
		t.Fatalf("invalid key = %d", code)
	}
	if code := call(readonlyKey); code != http.StatusForbidden {
		t.Fatalf("readonly on write = %d", code)
	}
	if code := call(operatorKey); code != http.StatusOK {
		t.Fatalf("operator on write = %d", code)
	}

	// Bearer form is accepted too.
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/captures", nil)
	req.Header.Set("Authorization", "Bearer "+operatorKey)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("bearer form = %d", rr.Code)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler, tag("outer"), tag("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Fatalf("order = %v", order)
	}
}
