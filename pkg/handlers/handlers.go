// Package handlers serves the question and answer API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dimfeld/httptreemux/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/langell/chainOverflow/middleware/server"
	"github.com/langell/chainOverflow/pkg/events"
	"github.com/langell/chainOverflow/pkg/middleware"
	"github.com/langell/chainOverflow/pkg/store"
	"github.com/langell/chainOverflow/pkg/types"
	"go.uber.org/zap"
)

// HealthText is the body of GET /
const HealthText = "ChainOverflow API is running. use /api/questions to interact."

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// Config contains all the mandatory systems required by the API
type Config struct {
	Log          *zap.SugaredLogger
	Store        *store.Store
	Events       *events.Events
	Payments     *server.L402Middleware
	Limiter      *middleware.RateLimiter
	CORSOrigin   string
	MaxBodyBytes int64
}

// Handler manages the HTTP handlers of the API
type Handler struct {
	log    *zap.SugaredLogger
	store  *store.Store
	events *events.Events
	ws     websocket.Upgrader
}

// NewHandler creates a new HTTP handler
func NewHandler(log *zap.SugaredLogger, st *store.Store, evts *events.Events) *Handler {
	return &Handler{
		log:    log,
		store:  st,
		events: evts,
		ws: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// APIMux constructs a http.Handler with all application routes defined.
// The payment gate sits in front of the router so paid routes answer 402
// before any handler runs.
func APIMux(cfg Config) http.Handler {
	h := NewHandler(cfg.Log, cfg.Store, cfg.Events)

	mux := httptreemux.NewContextMux()
	h.SetupRoutes(mux)

	mw := []func(http.Handler) http.Handler{
		middleware.Logger(cfg.Log),
		middleware.Panics(cfg.Log),
		middleware.CORS(cfg.CORSOrigin),
	}
	if cfg.Limiter != nil {
		mw = append(mw, middleware.RateLimit(cfg.Limiter))
	}
	if cfg.MaxBodyBytes > 0 {
		mw = append(mw, middleware.MaxBytes(cfg.MaxBodyBytes))
	}
	if cfg.Payments != nil {
		mw = append(mw, cfg.Payments.Protect)
	}

	return middleware.Chain(mux, mw...)
}

// SetupRoutes registers all routes with the router
func (h *Handler) SetupRoutes(mux *httptreemux.ContextMux) {
	mux.NotFoundHandler = func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Not found")
	}

	mux.GET("/", h.HealthHandler)
	mux.GET("/api/feed", h.FeedHandler)
	mux.GET("/api/questions/:id", h.QuestionHandler)
	mux.GET("/api/search", h.SearchHandler)
	mux.GET("/api/events", h.EventsHandler)

	// Paid
	mux.POST("/api/questions", h.CreateQuestionHandler)
	mux.POST("/api/answers", h.CreateAnswerHandler)
}

// HealthHandler handles GET /
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(HealthText))
}

// FeedHandler handles GET /api/feed
func (h *Handler) FeedHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Feed())
}

// QuestionHandler handles GET /api/questions/:id
func (h *Handler) QuestionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(httptreemux.ContextParams(r.Context())["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusNotFound, "Question not found")
		return
	}

	q, err := h.store.Question(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Question not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to fetch question")
		return
	}

	respondJSON(w, http.StatusOK, q)
}

// SearchHandler handles GET /api/search?q=
func (h *Handler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Search(r.URL.Query().Get("q")))
}

// CreatedResponse is returned by the paid POST routes
type CreatedResponse struct {
	ID       int64  `json:"id"`
	Message  string `json:"message"`
	IPFSHash string `json:"ipfsHash"`
}

// CreateQuestionHandler handles POST /api/questions
func (h *Handler) CreateQuestionHandler(w http.ResponseWriter, r *http.Request) {
	var nq types.NewQuestion
	if !decode(w, r, &nq) {
		return
	}

	q := h.store.CreateQuestion(nq)
	h.logCreated(r, "question", q.ID)
	h.publish(events.KindQuestionCreated, q)

	respondJSON(w, http.StatusCreated, CreatedResponse{
		ID:       q.ID,
		Message:  "Question created successfully",
		IPFSHash: q.IPFSHash,
	})
}

// CreateAnswerHandler handles POST /api/answers
func (h *Handler) CreateAnswerHandler(w http.ResponseWriter, r *http.Request) {
	var na types.NewAnswer
	if !decode(w, r, &na) {
		return
	}

	a := h.store.CreateAnswer(na)
	h.logCreated(r, "answer", a.ID)
	h.publish(events.KindAnswerCreated, a)

	respondJSON(w, http.StatusCreated, CreatedResponse{
		ID:       a.ID,
		Message:  "Answer posted successfully",
		IPFSHash: a.IPFSHash,
	})
}

// EventsHandler handles a web socket that streams created records
func (h *Handler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	c, err := h.ws.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.log.Infow("events upgrade", "ERROR", err)
		return
	}
	defer c.Close()

	id := middleware.TraceID(r.Context())
	if id == "" {
		id = fmt.Sprintf("%p", c)
	}

	ch := h.events.Acquire(id)
	defer h.events.Release(id)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, open := <-ch:
			if !open {
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

func (h *Handler) logCreated(r *http.Request, kind string, id int64) {
	fields := []any{"traceid", middleware.TraceID(r.Context()), "kind", kind, "id", id}
	if p, ok := types.PaymentFromContext(r.Context()); ok {
		fields = append(fields, "macaroon", p.Credential.Macaroon)
		if p.Result.Payer != nil {
			fields = append(fields, "payer", p.Result.Payer.Hex())
		}
	}
	h.log.Infow("record created", fields...)
}

func (h *Handler) publish(kind string, data any) {
	if h.events == nil {
		return
	}
	if err := h.events.Publish(kind, data); err != nil {
		h.log.Errorw("publish event", "kind", kind, "ERROR", err)
	}
}

// Helper functions

// ValidationError is the body of a 400 caused by invalid fields
type ValidationError struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// decode reads and validates a JSON body. It writes the error response and
// returns false on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return false
	}

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			respondError(w, http.StatusBadRequest, err.Error())
			return false
		}

		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fmt.Sprintf("failed on the %q rule", fe.Tag())
		}
		respondJSON(w, http.StatusBadRequest, ValidationError{Error: "validation failed", Fields: fields})
		return false
	}

	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
