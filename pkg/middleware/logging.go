package middleware

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ctxKey int

const traceKey ctxKey = 1

// TraceID returns the id assigned to the request by Logger
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey).(string)
	return id
}

// ResponseRecorder wraps http.ResponseWriter to capture the status and the
// number of bytes written.
type ResponseRecorder struct {
	http.ResponseWriter
	StatusCode int
	Bytes      int
	wrote      bool
}

func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

func (r *ResponseRecorder) WriteHeader(statusCode int) {
	if !r.wrote {
		r.StatusCode = statusCode
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *ResponseRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	n, err := r.ResponseWriter.Write(b)
	r.Bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer
func (r *ResponseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the websocket upgrader
func (r *ResponseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.wrote = true
	r.StatusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Logger writes one line when a request starts and one when it completes.
// Each request gets a trace id that handlers can read with TraceID.
func Logger(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			traceID := uuid.NewString()

			log.Infow("request started", "traceid", traceID, "method", r.Method, "path", r.URL.Path,
				"remoteaddr", r.RemoteAddr)

			recorder := NewResponseRecorder(w)
			next.ServeHTTP(recorder, r.WithContext(context.WithValue(r.Context(), traceKey, traceID)))

			log.Infow("request completed", "traceid", traceID, "method", r.Method, "path", r.URL.Path,
				"remoteaddr", r.RemoteAddr, "statuscode", recorder.StatusCode, "bytes", recorder.Bytes,
				"since", time.Since(start))
		})
	}
}
