package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SecurityHeaders adds security response headers to every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("X-XSS-Protection", "0")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// Throttle is a cheap local per-IP token-bucket applied before any gate
// check. It bounds bursts against this instance; the KV-backed window limit
// in the gate remains the real admission control.
type Throttle struct {
	rps            rate.Limit
	burst          int
	trustedProxies int

	mu      sync.Mutex
	clients map[string]*throttleEntry
}

type throttleEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewThrottle creates a Throttle allowing rps sustained requests per client
// with the given burst. A background loop evicts idle entries.
func NewThrottle(rps float64, burst, trustedProxies int) *Throttle {
	t := &Throttle{
		rps:            rate.Limit(rps),
		burst:          burst,
		trustedProxies: trustedProxies,
		clients:        make(map[string]*throttleEntry),
	}
	go t.evictLoop()
	return t
}

func (t *Throttle) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-15 * time.Minute)
		t.mu.Lock()
		for ip, ent := range t.clients {
			if ent.lastSeen.Before(cutoff) {
				delete(t.clients, ip)
			}
		}
		t.mu.Unlock()
	}
}

func (t *Throttle) limiter(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	ent, ok := t.clients[ip]
	if !ok {
		ent = &throttleEntry{lim: rate.NewLimiter(t.rps, t.burst)}
		t.clients[ip] = ent
	}
	ent.lastSeen = time.Now()
	return ent.lim
}

// Middleware returns an http.Handler that rejects over-limit clients with 429.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.limiter(ClientIP(r, t.trustedProxies)).Allow() {
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "too_many_requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
