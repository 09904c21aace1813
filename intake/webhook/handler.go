// Package webhook exposes the reconciliation engine over HTTP. Each
// provider posts to /{provider}; the body is handed to the engine as is.
// Authentication of inbound webhooks is left to the host.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/xraph/affiliate"
)

// DefaultMaxBody caps a payload at 1 MiB.
const DefaultMaxBody = 1 << 20

// Processor is the part of *affiliate.Engine the handler needs.
type Processor interface {
	Handle(ctx context.Context, providerID string, raw []byte) (*affiliate.Outcome, error)
}

// Handler is the HTTP adapter in front of a Processor.
type Handler struct {
	engine  Processor
	logger  zerolog.Logger
	maxBody int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithMaxBody overrides DefaultMaxBody.
func WithMaxBody(n int64) Option {
	return func(h *Handler) { h.maxBody = n }
}

// New creates a Handler.
func New(engine Processor, opts ...Option) *Handler {
	h := &Handler{engine: engine, logger: zerolog.Nop(), maxBody: DefaultMaxBody}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router returns the chi router serving POST /{provider}.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post("/{provider}", h.receive)
	return r
}

// response is the JSON body of every reply.
type response struct {
	ID      string `json:"id,omitempty"`
	Status  string `json:"status"`
	Stage   string `json:"stage,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	log := h.logger.With().
		Str("provider", provider).
		Str("request_id", middleware.GetReqID(r.Context())).
		Logger()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, response{Status: "error", Message: "payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Message: "read body"})
		return
	}

	out, err := h.engine.Handle(r.Context(), provider, body)
	if err != nil {
		code := http.StatusInternalServerError
		if affiliate.IsRetryable(err) {
			code = http.StatusServiceUnavailable
		}
		log.Error().Err(err).Int("code", code).Msg("webhook failed")
		writeJSON(w, code, response{Status: "error", Message: "temporarily unable to process event"})
		return
	}

	resp := response{
		ID:     out.ID.String(),
		Status: string(out.Status),
		Stage:  string(out.Stage),
		Reason: out.Reason(),
	}
	if out.IsInvalid() {
		resp.Message = out.Err.Error()
		// Dropped event types are acknowledged so providers stop redelivering.
		if errors.Is(out.Err, affiliate.ErrUnsupportedType) {
			log.Debug().Err(out.Err).Msg("webhook event type dropped")
			writeJSON(w, http.StatusOK, resp)
			return
		}
		log.Warn().Err(out.Err).Msg("webhook rejected")
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	log.Debug().Str("status", resp.Status).Str("stage", resp.Stage).Msg("webhook handled")
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
