package vaulthandler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"montero/internal/auth"
	"montero/internal/domain/audit"
	"montero/internal/domain/vault"
	"montero/internal/platform/logger"
	"montero/internal/requestctx"
	"montero/internal/transport/http/api"
	"montero/internal/transport/http/bind"
	"montero/internal/transport/http/middleware"
	"montero/internal/transport/http/shared"
)

type Handler struct {
	Service *vault.Service
	Audit   audit.Recorder
}

func NewHandler(service *vault.Service, recorder audit.Recorder) *Handler {
	return &Handler{Service: service, Audit: recorder}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/vault", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermVaultAdmin))
		r.Get("/credentials", h.handleList)
		r.Put("/credentials/{platform}", h.handlePut)
		r.Delete("/credentials/{platform}", h.handleDelete)
		r.Post("/migrate", h.handleMigrate)
	})
}

type credentialRequest struct {
	Username string `json:"username" validate:"required,max=256"`
	Password string `json:"password" validate:"required,max=256"`
	URL      string `json:"url" validate:"omitempty,url"`
	Notes    string `json:"notes" validate:"max=1000"`
}

type platformParam struct {
	Platform string `json:"platform" validate:"required,platform"`
}

// credentialAudit is what the trail keeps about a credential; never secrets.
type credentialAudit struct {
	Platform string `json:"platform"`
	URL      string `json:"url,omitempty"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.List(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "vault_list_failed", "failed to list credentials", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	param := platformParam{Platform: chi.URLParam(r, "platform")}
	if !bind.Validate(w, r, &param) {
		return
	}
	var payload credentialRequest
	if !bind.JSON(w, r, &payload) {
		return
	}

	err := h.Service.Put(r.Context(), vault.CredentialInput{
		Platform: param.Platform,
		Username: payload.Username,
		Password: payload.Password,
		URL:      payload.URL,
		Notes:    payload.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.record(r, "vault.credential.put", param.Platform, credentialAudit{Platform: param.Platform, URL: payload.URL})
	api.Success(w, map[string]string{"platform": param.Platform, "status": "stored"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	if err := h.Service.Delete(r.Context(), platform); err != nil {
		writeError(w, r, err)
		return
	}
	h.record(r, "vault.credential.delete", platform, nil)
	api.Success(w, map[string]string{"platform": platform, "status": "deleted"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMigrate(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.Migrate(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.record(r, "vault.migrate", "", report)
	api.Success(w, report, middleware.GetRequestID(r.Context()))
}

func (h *Handler) record(r *http.Request, action, platform string, after any) {
	if h.Audit == nil {
		return
	}
	ctx := r.Context()
	err := h.Audit.Record(ctx, requestctx.GetActor(ctx), action, "credential", platform, requestctx.GetRequestID(ctx), shared.ClientIP(r), nil, after)
	if err != nil {
		logger.C(ctx).Warn().Err(err).Str("action", action).Msg("audit record failed")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, vault.ErrCredentialNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "credential not found", requestID)
	case errors.Is(err, vault.ErrInvalidCredential):
		api.Fail(w, http.StatusBadRequest, "invalid_credential", err.Error(), requestID)
	default:
		logger.C(r.Context()).Error().Err(err).Msg("vault operation failed")
		api.Fail(w, http.StatusInternalServerError, "vault_failed", "vault operation failed", requestID)
	}
}
