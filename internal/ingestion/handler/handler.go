package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

const maxRequestBytes = 64 << 20

type Handler struct {
	publisher *publisher.Publisher
	validator *validator.Validator
	logger    *slog.Logger
}

func New(pub *publisher.Publisher, v *validator.Validator) *Handler {
	return &Handler{
		publisher: pub,
		validator: v,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Ingest handles POST /api/v1/documents.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.DocumentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validator.ValidateDocument(&req); err != nil {
		h.writeValidation(w, err)
		return
	}
	resp, err := h.publisher.Ingest(ctx, &req)
	if err != nil {
		log.Error("ingestion failed", "filename", req.Filename, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "ingestion failed")
		return
	}
	log.Info("document queued", "filename", resp.Filename)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// IngestBatch handles POST /api/v1/documents/batch.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.BatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validator.ValidateBatch(&req); err != nil {
		h.writeValidation(w, err)
		return
	}
	resp, err := h.publisher.IngestBatch(ctx, &req)
	if err != nil {
		log.Error("batch ingestion failed", "documents", len(req.Documents), "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "ingestion failed")
		return
	}
	log.Info("batch queued", "documents", len(resp))
	h.writeJSON(w, http.StatusAccepted, map[string]any{"documents": resp})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) writeValidation(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
