package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/logger"
)

type Handler struct {
	publisher *publisher.Publisher
	maxBytes  int64
	logger    *slog.Logger
}

func New(pub *publisher.Publisher, maxBytes int64) *Handler {
	return &Handler{
		publisher: pub,
		maxBytes:  maxBytes,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Upload handles PUT /api/v1/indexes/{name}. The body is the artifact in
// either the JavaScript or the bare JSON form.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	name := r.PathValue("name")

	if err := validator.ValidateUpload(name, r.ContentLength); err != nil {
		h.writeValidationError(w, err)
		return
	}
	if h.maxBytes > 0 && r.ContentLength > h.maxBytes {
		h.writeAppError(w, h.tooLarge())
		return
	}

	body := io.Reader(r.Body)
	if h.maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeAppError(w, h.tooLarge())
			return
		}
		h.writeAppError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "reading request body failed"))
		return
	}
	if len(data) == 0 {
		h.writeValidationError(w, validator.ValidateUpload(name, 0))
		return
	}

	resp, report, err := h.publisher.Upload(ctx, name, data)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("index upload failed",
			"index", name,
			"error", err,
			"status_code", statusCode,
		)
		if report != nil && !report.Valid {
			h.writeJSON(w, statusCode, ingestion.RejectedResponse{
				Error:  "index failed validation",
				Index:  name,
				Report: report,
			})
			return
		}
		h.writeError(w, statusCode, err.Error())
		return
	}
	log.Info("index uploaded",
		"index", name,
		"checksum", resp.Checksum,
		"documents", resp.Stats.Documents,
		"stored", resp.Stored,
		"published", resp.Published,
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/v1/indexes/{name}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	if err := h.publisher.Delete(ctx, name); err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		if statusCode >= http.StatusInternalServerError {
			logger.FromContext(ctx).Error("index delete failed", "index", name, "error", err)
		}
		h.writeError(w, statusCode, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, ingestion.DeleteResponse{Index: name, Status: "deleted"})
}

// Reload handles POST /api/v1/indexes/{name}/reload.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	entry, err := h.publisher.Reload(ctx, name)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		logger.FromContext(ctx).Warn("index reload failed", "index", name, "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, entry.Summary())
}

func (h *Handler) tooLarge() *apperrors.AppError {
	return apperrors.Newf(apperrors.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge,
		"artifact exceeds %d bytes", h.maxBytes)
}

func (h *Handler) writeAppError(w http.ResponseWriter, err *apperrors.AppError) {
	h.writeError(w, err.StatusCode, err.Error())
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
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
