package handlers

import (
	"context"
	"encoding/json"
	"expvar"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/langell/chainOverflow/pkg/ledger"
	"github.com/langell/chainOverflow/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// PaymentStats are the payment path components reported on /debug/payments.
// Either may be nil.
type PaymentStats struct {
	Limiter *middleware.RateLimiter
	Ledger  ledger.Ledger
}

// DebugStandardLibraryMux registers all the debug routes from the standard library
// into a new mux bypassing the use of the DefaultServerMux. Using the
// DefaultServerMux would be a security risk since a dependency could inject a
// handler into our service without us knowing it.
func DebugStandardLibraryMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Register all the standard library debug endpoints.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())

	return mux
}

// DebugMux registers the standard library debug routes, the health checks,
// the payment stats and the prometheus endpoint.
func DebugMux(build string, log *zap.SugaredLogger, gatherer prometheus.Gatherer, ready ReadinessCheck, stats PaymentStats) http.Handler {
	mux := DebugStandardLibraryMux()

	mux.HandleFunc("/debug/liveness", liveness(build))
	mux.HandleFunc("/debug/readiness", readiness(log, ready))
	mux.HandleFunc("/debug/payments", payments(stats))

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

func liveness(build string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, err := os.Hostname()
		if err != nil {
			host = "unavailable"
		}

		data := struct {
			Status string `json:"status"`
			Build  string `json:"build"`
			Host   string `json:"host"`
		}{
			Status: "up",
			Build:  build,
			Host:   host,
		}

		respondJSON(w, http.StatusOK, data)
	}
}

func readiness(log *zap.SugaredLogger, ready ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ok"
		statusCode := http.StatusOK
		if ready != nil {
			if err := ready(ctx); err != nil {
				status = "not ready"
				statusCode = http.StatusServiceUnavailable
				log.Infow("readiness failure", "ERROR", err)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(struct {
			Status string `json:"status"`
		}{Status: status})
	}
}

func payments(stats PaymentStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := struct {
			ReplayProtection bool                       `json:"replay_protection"`
			Ledger           *ledger.Stats              `json:"ledger,omitempty"`
			RateLimit        *middleware.RateLimitStats `json:"rate_limit,omitempty"`
		}{
			ReplayProtection: stats.Ledger != nil,
		}

		if rep, ok := stats.Ledger.(ledger.Reporter); ok {
			s := rep.Stats()
			data.Ledger = &s
		}
		if stats.Limiter != nil {
			s := stats.Limiter.Stats()
			data.RateLimit = &s
		}

		respondJSON(w, http.StatusOK, data)
	}
}
