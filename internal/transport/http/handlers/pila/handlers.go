package pilahandler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"montero/internal/auth"
	"montero/internal/domain/params"
	"montero/internal/domain/pila"
	"montero/internal/platform/logger"
	"montero/internal/platform/metrics"
	"montero/internal/transport/http/api"
	"montero/internal/transport/http/bind"
	"montero/internal/transport/http/middleware"
)

const fullMonthDays = 30

type Handler struct {
	Params  *params.Registry
	Metrics *metrics.Collector
}

func NewHandler(registry *params.Registry, m *metrics.Collector) *Handler {
	return &Handler{Params: registry, Metrics: m}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/pila", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermPilaCalculate))
		r.Post("/calculate", h.handleCalculate)
		r.Post("/report", h.handleReport)
		r.Get("/parameters", h.handleListParameters)
		r.Get("/parameters/{year}", h.handleGetParameters)
	})
}

type calculateRequest struct {
	pila.PayrollInput
	Year             int                     `json:"year"`
	ParafiscalPolicy params.ParafiscalPolicy `json:"parafiscalPolicy"`
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) (pila.Result, bool) {
	requestID := middleware.GetRequestID(r.Context())
	var req calculateRequest
	if err := bind.Decode(r, &req); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload: "+err.Error(), requestID)
		return pila.Result{}, false
	}
	if req.DaysWorked == 0 {
		req.DaysWorked = fullMonthDays
	}

	bundle, err := h.bundle(req.Year)
	if err != nil {
		writeError(w, r, err)
		return pila.Result{}, false
	}
	if req.ParafiscalPolicy != "" {
		if !req.ParafiscalPolicy.Valid() {
			api.Fail(w, http.StatusBadRequest, "invalid_policy", fmt.Sprintf("unknown parafiscal policy %q", req.ParafiscalPolicy), requestID)
			return pila.Result{}, false
		}
		bundle = bundle.WithPolicy(req.ParafiscalPolicy)
	}

	result, err := pila.Calculate(req.PayrollInput, bundle)
	h.Metrics.PilaCalculated(string(req.CotizanteType), err == nil)
	if err != nil {
		writeError(w, r, err)
		return pila.Result{}, false
	}
	return result, true
}

func (h *Handler) bundle(year int) (params.FiscalParameters, error) {
	if year == 0 {
		return h.Params.Default()
	}
	return h.Params.Get(year)
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	result, ok := h.calculate(w, r)
	if !ok {
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	result, ok := h.calculate(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("format") == "text" {
		var buf bytes.Buffer
		if err := pila.RenderText(&buf, result); err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
		return
	}

	doc, err := pila.RenderPDF(result)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=liquidacion-pila-%d.pdf", result.Year))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc); err != nil {
		logger.C(r.Context()).Warn().Err(err).Msg("report write failed")
	}
}

func (h *Handler) handleListParameters(w http.ResponseWriter, r *http.Request) {
	years := h.Params.Years()
	out := make([]params.FiscalParameters, 0, len(years))
	for _, year := range years {
		bundle, err := h.Params.Get(year)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out = append(out, bundle)
	}
	api.Success(w, map[string]any{"defaultYear": h.Params.DefaultYear(), "bundles": out}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_year", "year must be a number", middleware.GetRequestID(r.Context()))
		return
	}
	bundle, err := h.Params.Get(year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, bundle, middleware.GetRequestID(r.Context()))
}

var validationErrors = map[error]string{
	pila.ErrInvalidSalary:      "invalid_salary",
	pila.ErrInvalidRiskClass:   "invalid_risk_class",
	pila.ErrInvalidDaysWorked:  "invalid_days_worked",
	pila.ErrInvalidCombination: "invalid_combination",
	pila.ErrInvalidCotizante:   "invalid_cotizante",
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	for target, code := range validationErrors {
		if errors.Is(err, target) {
			api.Fail(w, http.StatusBadRequest, code, err.Error(), requestID)
			return
		}
	}
	if errors.Is(err, params.ErrUnknownFiscalYear) {
		api.Fail(w, http.StatusNotFound, "unknown_fiscal_year", err.Error(), requestID)
		return
	}
	logger.C(r.Context()).Error().Err(err).Msg("pila request failed")
	api.Fail(w, http.StatusInternalServerError, "pila_failed", "liquidation failed", requestID)
}
