package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/outreachd/interactiond/internal/gateway"
	"github.com/outreachd/interactiond/internal/interaction/app"
	"github.com/outreachd/interactiond/internal/interaction/domain"
)

// inboundProcessor and dispositionTracker are the slices of the app layer
// the webhook transport needs; consumer-side interfaces keep the handlers
// testable.
type inboundProcessor interface {
	Process(ctx context.Context, msg app.InboundMessage) error
}

type dispositionTracker interface {
	OnAnsweredBy(ctx context.Context, callID string, classification domain.AnsweredBy) (gateway.VoiceResponse, error)
	OnStatus(ctx context.Context, callID, duration string) error
}

// WebhookHandler terminates the gateway's webhooks. Signature verification
// happens upstream of this service; bodies arrive form-encoded in the
// provider's usual parameter names.
type WebhookHandler struct {
	processor inboundProcessor
	tracker   dispositionTracker
	logger    *slog.Logger
}

func NewWebhookHandler(processor inboundProcessor, tracker dispositionTracker, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		tracker:   tracker,
		logger:    logger.With("handler", "webhook"),
	}
}

// RegisterRoutes mounts the webhook endpoints on r.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/sms", h.handleInboundSMS)
	r.Post("/webhooks/calls/answered", h.handleAnsweredBy)
	r.Post("/webhooks/calls/status", h.handleCallStatus)
}

func (h *WebhookHandler) handleInboundSMS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	if err := r.ParseForm(); err != nil {
		h.jsonError(w, logger, "invalid form payload", http.StatusBadRequest)
		return
	}

	msg := app.InboundMessage{
		From:              r.PostFormValue("From"),
		To:                r.PostFormValue("To"),
		Body:              r.PostFormValue("Body"),
		ProviderMessageID: r.PostFormValue("MessageSid"),
	}
	if msg.From == "" || msg.To == "" {
		h.jsonError(w, logger, "From and To are required", http.StatusBadRequest)
		return
	}

	if err := h.processor.Process(ctx, msg); err != nil {
		switch {
		case errors.Is(err, domain.ErrNumberNotFound):
			h.jsonError(w, logger, "receiving number not configured", http.StatusNotFound)
		case errors.Is(err, domain.ErrConfigurationMissing):
			logger.ErrorContext(ctx, "inbound processing hit missing configuration", "error", err)
			h.jsonError(w, logger, "number configuration incomplete", http.StatusInternalServerError)
		default:
			logger.ErrorContext(ctx, "failed to process inbound message", "error", err)
			h.jsonError(w, logger, "failed to process message", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *WebhookHandler) handleAnsweredBy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	if err := r.ParseForm(); err != nil {
		h.jsonError(w, logger, "invalid form payload", http.StatusBadRequest)
		return
	}

	callID := r.PostFormValue("CallSid")
	if callID == "" {
		h.jsonError(w, logger, "CallSid is required", http.StatusBadRequest)
		return
	}
	classification := domain.AnsweredBy(r.PostFormValue("AnsweredBy"))

	doc, err := h.tracker.OnAnsweredBy(ctx, callID, classification)
	if err != nil {
		if errors.Is(err, domain.ErrOutboundNotFound) {
			h.jsonError(w, logger, "no dispatch record for call", http.StatusNotFound)
			return
		}
		logger.ErrorContext(ctx, "failed to process answered-by callback", "error", err, "call_id", callID)
		h.jsonError(w, logger, "failed to process callback", http.StatusInternalServerError)
		return
	}

	body, err := doc.Render()
	if err != nil {
		logger.ErrorContext(ctx, "failed to render voice response", "error", err, "call_id", callID)
		h.jsonError(w, logger, "failed to render response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (h *WebhookHandler) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	if err := r.ParseForm(); err != nil {
		h.jsonError(w, logger, "invalid form payload", http.StatusBadRequest)
		return
	}

	callID := r.PostFormValue("CallSid")
	if callID == "" {
		h.jsonError(w, logger, "CallSid is required", http.StatusBadRequest)
		return
	}
	duration := r.PostFormValue("CallDuration")

	if err := h.tracker.OnStatus(ctx, callID, duration); err != nil {
		if errors.Is(err, domain.ErrOutboundNotFound) {
			h.jsonError(w, logger, "no dispatch record for call", http.StatusNotFound)
			return
		}
		logger.ErrorContext(ctx, "failed to process status callback", "error", err, "call_id", callID)
		h.jsonError(w, logger, "failed to process callback", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *WebhookHandler) jsonError(w http.ResponseWriter, logger *slog.Logger, message string, statusCode int) {
	logger.Warn("webhook error response", "status_code", statusCode, "message", message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}
