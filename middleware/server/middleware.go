// Package server adapts the payment gate to net/http.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/langell/chainOverflow/pkg/gate"
	"github.com/langell/chainOverflow/pkg/types"
	"go.uber.org/zap"
)

// L402Middleware provides payment protection for HTTP handlers
type L402Middleware struct {
	gate *gate.Gate
	log  *zap.SugaredLogger
}

// NewL402Middleware creates a new middleware instance
func NewL402Middleware(g *gate.Gate, log *zap.SugaredLogger) *L402Middleware {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &L402Middleware{
		gate: g,
		log:  log,
	}
}

// Protect wraps an HTTP handler with payment verification. Requests to
// routes the gate does not protect reach next untouched.
func (m *L402Middleware) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := m.gate.Evaluate(r.Context(), gate.Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
		})

		if !d.Admit {
			m.send402(w, d)
			return
		}

		// Payment valid, hand the proof details to the handler
		if d.Payment != nil {
			r = r.WithContext(types.WithPayment(r.Context(), *d.Payment))
		}

		next.ServeHTTP(w, r)
	})
}

// send402 writes a rejection decision
func (m *L402Middleware) send402(w http.ResponseWriter, d gate.Decision) {
	for k, v := range d.Header {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(d.Status)

	if err := json.NewEncoder(w).Encode(d.Body); err != nil {
		m.log.Errorw("payment response", "ERROR", err)
	}
}
