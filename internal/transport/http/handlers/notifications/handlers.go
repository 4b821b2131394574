package notificationshandler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"montero/internal/auth"
	"montero/internal/domain/notifications"
	"montero/internal/platform/logger"
	"montero/internal/transport/http/api"
	"montero/internal/transport/http/middleware"
	"montero/internal/transport/http/shared"
)

type Handler struct {
	Service *notifications.Service
}

func NewHandler(service *notifications.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermRPARead)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermRPAWrite)).Post("/{noticeID}/read", h.handleMarkRead)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePage(r, 100, 500)
	unreadOnly := r.URL.Query().Get("unread") == "true"
	total, err := h.Service.Count(r.Context(), unreadOnly)
	if err != nil {
		logger.C(r.Context()).Warn().Err(err).Msg("notice count failed")
	}

	items, err := h.Service.List(r.Context(), unreadOnly, page.Limit, page.Offset)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "notice_list_failed", "failed to list notices", middleware.GetRequestID(r.Context()))
		return
	}
	if items == nil {
		items = []notifications.Notice{}
	}

	shared.WriteTotal(w, total)
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	noticeID := chi.URLParam(r, "noticeID")
	if err := h.Service.MarkRead(r.Context(), noticeID); err != nil {
		if errors.Is(err, notifications.ErrNoticeNotFound) {
			api.Fail(w, http.StatusNotFound, "not_found", "notice not found", middleware.GetRequestID(r.Context()))
			return
		}
		api.Fail(w, http.StatusInternalServerError, "notice_update_failed", "failed to update notice", middleware.GetRequestID(r.Context()))
		return
	}

	api.Success(w, map[string]string{"status": "read"}, middleware.GetRequestID(r.Context()))
}
