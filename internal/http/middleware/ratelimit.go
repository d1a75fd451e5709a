package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"
)

// sniffLimit bounds how much of a webhook body the limiter will read to
// find the call ID. Matches the dispatcher's own request cap.
const sniffLimit = 1 << 20

// turnLimiter is a token bucket per conversation. The voice platform
// sends every webhook from its own infrastructure, so keying on the peer
// address would throttle all calls together; a runaway retry loop on one
// call is the failure mode this guards against.
type turnLimiter struct {
	mu        sync.Mutex
	rate      float64
	burst     float64
	calls     map[string]*turnBucket
	nextSweep time.Time
}

type turnBucket struct {
	tokens   float64
	lastSeen time.Time
}

func newTurnLimiter(rate float64, burst int) *turnLimiter {
	return &turnLimiter{
		rate:      rate,
		burst:     float64(burst),
		calls:     make(map[string]*turnBucket),
		nextSweep: time.Now().Add(5 * time.Minute),
	}
}

func (l *turnLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.nextSweep) {
		cutoff := now.Add(-10 * time.Minute)
		for id, b := range l.calls {
			if b.lastSeen.Before(cutoff) {
				delete(l.calls, id)
			}
		}
		l.nextSweep = now.Add(5 * time.Minute)
	}

	b, ok := l.calls[key]
	if !ok {
		b = &turnBucket{tokens: l.burst}
		l.calls[key] = b
	} else {
		b.tokens += now.Sub(b.lastSeen).Seconds() * l.rate
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// TurnRateLimit rejects webhook turns arriving faster than rate/sec per
// call (with the given burst), answering 429. Bodies without a callId
// fall back to a bucket keyed by the peer address.
func TurnRateLimit(rate float64, burst int) func(http.Handler) http.Handler {
	limiter := newTurnLimiter(rate, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := peerAddr(r)
			if r.Body != nil {
				body, err := io.ReadAll(io.LimitReader(r.Body, sniffLimit))
				if err != nil {
					http.Error(w, "failed to read request body", http.StatusBadRequest)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				var peek struct {
					CallID string `json:"callId"`
				}
				if json.Unmarshal(body, &peek) == nil && peek.CallID != "" {
					key = peek.CallID
				}
			}

			if !limiter.allow(key, time.Now()) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error": "rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func peerAddr(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
