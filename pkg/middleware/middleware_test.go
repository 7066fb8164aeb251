package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusCreated)
	w.Write([]byte("done"))
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core).Sugar()

	var seen string
	h := Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
		okHandler(w, r)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/feed", nil))

	require.NotEmpty(t, seen)
	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "request started", entries[0].Message)
	assert.Equal(t, "request completed", entries[1].Message)

	fields := entries[1].ContextMap()
	assert.Equal(t, seen, fields["traceid"])
	assert.EqualValues(t, http.StatusCreated, fields["statuscode"])
	assert.EqualValues(t, 4, fields["bytes"])
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(60, 2)
	now := time.Unix(1700000000, 0)
	rl.now = func() time.Time { return now }
	rl.lastCleanup = now

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"))

	// One token per second at 60 per minute
	now = now.Add(time.Second)
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))

	stats := rl.Stats()
	assert.Equal(t, 2, stats.ActiveIPs)
	assert.Equal(t, 4, stats.TotalRequests)
	assert.Equal(t, 60, stats.RequestsPerMinute)
	assert.Equal(t, 2, stats.BurstSize)

	// Idle visitors are dropped
	now = now.Add(time.Hour)
	rl.Allow("3.3.3.3")
	assert.Equal(t, 1, rl.Stats().ActiveIPs)
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimit(NewRateLimiter(60, 1))(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
}

func TestRateLimitIgnoresSpoofedForwarding(t *testing.T) {
	h := RateLimit(NewRateLimiter(60, 1))(http.HandlerFunc(okHandler))

	for i, xff := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", xff)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if i == 0 {
			assert.Equal(t, http.StatusCreated, rec.Code)
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, rec.Code, xff)
	}
}

func TestClientIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		trusted bool
		remote  string
		xff     string
		realIP  string
		want    string
	}{
		{"direct", false, "192.0.2.9:1234", "", "", "192.0.2.9"},
		{"untrusted peer forwarding", false, "192.0.2.9:1234", "203.0.113.5", "198.51.100.7", "192.0.2.9"},
		{"trusted peer real ip", true, "192.0.2.1:1234", "", "198.51.100.7", "198.51.100.7"},
		{"trusted peer forwarded", true, "192.0.2.1:1234", "203.0.113.5", "198.51.100.7", "203.0.113.5"},
		{"skips trusted hops", true, "10.1.1.1:80", " 203.0.113.5 , 198.51.100.4, 10.0.0.1", "", "198.51.100.4"},
		{"all hops trusted", true, "10.1.1.1:80", "10.0.0.2, 10.0.0.1", "", "10.0.0.2"},
		{"trusted peer no headers", true, "192.0.2.1:1234", "", "", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(60, 1)
			if tt.trusted {
				rl = NewRateLimiter(60, 1, proxies...)
			}

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			assert.Equal(t, tt.want, rl.clientIP(req))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{" 10.0.0.7/8 ", "", "::1"})
	require.NoError(t, err)
	require.Len(t, proxies, 2)
	assert.Equal(t, "10.0.0.0/8", proxies[0].String())
	assert.Equal(t, "::1/128", proxies[1].String())

	_, err = ParseTrustedProxies([]string{"proxy.local"})
	assert.Error(t, err)
}

func TestPanics(t *testing.T) {
	log := zap.NewNop().Sugar()
	h := Panics(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	h := CORS("*")(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/questions", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Equal(t, "WWW-Authenticate", rec.Header().Get("Access-Control-Expose-Headers"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/feed", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestMaxBytes(t *testing.T) {
	var readErr error
	h := MaxBytes(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))
	assert.Error(t, readErr)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
	assert.NoError(t, readErr)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(okHandler), mark("a"), mark("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b"}, order)
}
