package rpahandler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"montero/internal/auth"
	"montero/internal/domain/artifacts"
	"montero/internal/domain/audit"
	"montero/internal/domain/rpa"
	"montero/internal/platform/logger"
	"montero/internal/requestctx"
	"montero/internal/transport/http/api"
	"montero/internal/transport/http/bind"
	"montero/internal/transport/http/middleware"
	"montero/internal/transport/http/shared"
)

const maxAttachmentBytes = 10 << 20

// MaxAttachmentBodyBytes is the request cap for attachment uploads: the file
// plus multipart framing.
const MaxAttachmentBodyBytes = maxAttachmentBytes + 1<<20

type Handler struct {
	Service     *rpa.Service
	Attachments artifacts.Writer
	Audit       audit.Recorder
}

func NewHandler(service *rpa.Service, attachments artifacts.Writer, recorder audit.Recorder) *Handler {
	return &Handler{Service: service, Attachments: attachments, Audit: recorder}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rpa", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermRPAWrite)).Post("/jobs", h.handleEnqueue)
		r.With(middleware.RequirePermission(auth.PermRPARead)).Get("/jobs", h.handleList)
		r.With(middleware.RequirePermission(auth.PermRPARead)).Get("/jobs/{jobID}", h.handleStatus)
		r.With(middleware.RequirePermission(auth.PermRPAWrite)).Post("/jobs/{jobID}/cancel", h.handleCancel)
		r.With(middleware.RequirePermission(auth.PermRPARead)).Get("/artifacts/{ref}", h.handleArtifact)
		r.With(middleware.RequirePermission(auth.PermRPAWrite)).Post("/attachments", h.handleAttachment)
	})
}

type enqueueResponse struct {
	JobID   string     `json:"jobId"`
	Status  rpa.Status `json:"status"`
	Created bool       `json:"created"`
}

func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req rpa.EnqueueRequest
	if err := bind.Decode(r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", middleware.GetRequestID(r.Context()))
			return
		}
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	job, created, err := h.Service.Enqueue(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := enqueueResponse{JobID: job.ID, Status: job.Status, Created: created}
	if !created {
		api.Success(w, resp, middleware.GetRequestID(r.Context()))
		return
	}
	h.record(r, "rpa.job.enqueue", job.ID, map[string]any{"action": job.Action, "platform": job.Platform})
	api.Created(w, resp, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := rpa.Filter{Status: rpa.Status(q.Get("status")), Platform: q.Get("platform"), Action: rpa.Action(q.Get("action"))}
	if filter.Status != "" && !filter.Status.Valid() {
		api.Fail(w, http.StatusBadRequest, "invalid_filter", "unknown status "+strconv.Quote(string(filter.Status)), middleware.GetRequestID(r.Context()))
		return
	}
	if filter.Action != "" && !filter.Action.Valid() {
		api.Fail(w, http.StatusBadRequest, "invalid_filter", "unknown action "+strconv.Quote(string(filter.Action)), middleware.GetRequestID(r.Context()))
		return
	}

	page := shared.ParsePage(r, 50, 500)
	items, total, err := h.Service.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	shared.WriteTotal(w, total)
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, view, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.Service.Cancel(r.Context(), jobID); err != nil {
		writeError(w, r, err)
		return
	}
	h.record(r, "rpa.job.cancel", jobID, map[string]any{"status": rpa.StatusCancelled})
	view, err := h.Service.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, view, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleArtifact(w http.ResponseWriter, r *http.Request) {
	art, err := h.Service.Artifact(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	mime := art.Mime
	if mime == "" {
		mime = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Bytes)))
	if art.Filename != "" {
		w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(art.Filename))
	}
	w.Header().Set("X-Artifact-SHA256", art.SHA256)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(art.Bytes); err != nil {
		logger.C(r.Context()).Warn().Err(err).Msg("artifact write failed")
	}
}

// handleAttachment stores a multipart "file" so incapacity payloads can
// reference it by ref.
func (h *Handler) handleAttachment(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	if h.Attachments == nil {
		api.Fail(w, http.StatusServiceUnavailable, "attachments_disabled", "attachment storage is not configured", requestID)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxAttachmentBodyBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_attachment", "multipart field \"file\" is required", requestID)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAttachmentBytes+1))
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_attachment", "attachment could not be read", requestID)
		return
	}
	if len(data) == 0 || len(data) > maxAttachmentBytes {
		api.Fail(w, http.StatusBadRequest, "invalid_attachment", "attachment must be between 1 byte and 10 MiB", requestID)
		return
	}

	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	ref, err := h.Attachments.Put(r.Context(), artifacts.Meta{Mime: mime, Filename: filepath.Base(header.Filename)}, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.record(r, "rpa.attachment.upload", ref, map[string]any{"filename": filepath.Base(header.Filename), "size": len(data)})
	api.Created(w, map[string]any{"ref": ref, "size": len(data), "mime": mime}, requestID)
}

func (h *Handler) record(r *http.Request, action, entityID string, after any) {
	if h.Audit == nil {
		return
	}
	ctx := r.Context()
	err := h.Audit.Record(ctx, requestctx.GetActor(ctx), action, "rpa_job", entityID, requestctx.GetRequestID(ctx), shared.ClientIP(r), nil, after)
	if err != nil {
		logger.C(ctx).Warn().Err(err).Str("action", action).Msg("audit record failed")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	var payloadErr *rpa.PayloadError
	switch {
	case errors.As(err, &payloadErr):
		api.FailWithDetails(w, http.StatusBadRequest, "invalid_payload", "job payload validation failed", map[string]any{"fields": payloadErr.Issues}, requestID)
	case errors.Is(err, rpa.ErrInvalidPayload):
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), requestID)
	case errors.Is(err, rpa.ErrInvalidJob):
		api.Fail(w, http.StatusBadRequest, "invalid_job", err.Error(), requestID)
	case errors.Is(err, rpa.ErrJobNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "job not found", requestID)
	case errors.Is(err, artifacts.ErrArtifactNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "artifact not found", requestID)
	case errors.Is(err, rpa.ErrIllegalTransition):
		api.Fail(w, http.StatusConflict, "illegal_transition", "job cannot change state from its current status", requestID)
	default:
		logger.C(r.Context()).Error().Err(err).Msg("rpa request failed")
		api.Fail(w, http.StatusInternalServerError, "rpa_failed", "rpa operation failed", requestID)
	}
}
