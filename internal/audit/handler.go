package audit

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-stock/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

const (
	exportRateLimit  = 10
	exportRateWindow = time.Minute
	defaultWindow    = 7 * 24 * time.Hour
)

// Handler serves the audit timeline and its CSV export.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	location *time.Location
	now      func() time.Time
}

// NewHandler constructs the audit handler. Dates are read in loc.
func NewHandler(logger *slog.Logger, service *Service, loc *time.Location) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{logger: logger, service: service, location: loc, now: time.Now}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export rate limit reached")
		}),
	)
	r.Get("/audit", h.handleTimeline)
	r.With(limiter).Get("/audit/export.csv", h.handleExport)
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor := shared.ActorFromContext(r.Context()); actor != shared.SystemActor {
		return "actor:" + actor, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, errs := h.parseFilters(r)
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.respondError(w, "audit timeline", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, errs := h.parseFilters(r)
	if len(errs) > 0 {
		writeFieldErrors(w, errs)
		return
	}
	entries, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.respondError(w, "audit export", err)
		return
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, entries, h.location); err != nil {
		h.respondError(w, "encode audit csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("write audit csv", slog.Any("error", err))
	}
}

// parseFilters defaults to the last seven days ending today.
func (h *Handler) parseFilters(r *http.Request) (Filters, map[string]string) {
	q := r.URL.Query()
	errs := map[string]string{}
	today := h.now().In(h.location)
	to := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, h.location)
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, h.location)
		if err != nil {
			errs["to"] = "expected YYYY-MM-DD"
		}
		to = parsed
	}
	from := to.Add(-defaultWindow)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, h.location)
		if err != nil {
			errs["from"] = "expected YYYY-MM-DD"
		}
		from = parsed
	}
	filters := Filters{
		From:     from,
		To:       to.Add(24*time.Hour - time.Nanosecond),
		Actor:    strings.TrimSpace(q.Get("actor")),
		Entity:   strings.TrimSpace(q.Get("entity")),
		EntityID: strings.TrimSpace(q.Get("entity_id")),
		Action:   strings.TrimSpace(q.Get("action")),
	}
	filters.Page = positiveInt(q.Get("page"), "page", errs)
	filters.PageSize = positiveInt(q.Get("page_size"), "page_size", errs)
	return filters, errs
}

func positiveInt(raw, field string, errs map[string]string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		errs[field] = "must be a positive integer"
		return 0
	}
	return v
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrInvalidRange) {
		writeFieldErrors(w, map[string]string{"from": "range must be ordered and at most 90 days"})
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func writeFieldErrors(w http.ResponseWriter, errs map[string]string) {
	httpx.WriteProblem(w, httpx.ProblemDetail{
		Title:  "Validation Failed",
		Status: http.StatusUnprocessableEntity,
		Errors: errs,
	})
}
