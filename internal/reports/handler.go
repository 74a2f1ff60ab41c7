package reports

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sitdb/sitdb/internal/platform/httpx"
	"github.com/sitdb/sitdb/internal/shared"
)

// Handler exposes report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes under /reports.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/markers", h.markers)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Delete("/", h.deleteReport)
		r.Post("/status", h.updateStatus)
		r.Post("/media", h.addMedia)
	})
}

// MountMediaRoutes registers the standalone media routes under /media.
func (h *Handler) MountMediaRoutes(r chi.Router) {
	r.Delete("/{id}", h.deleteMedia)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, pagination, err := h.service.List(r.Context(), principal(r), filter)
	if err != nil {
		h.respondError(w, "list reports", err)
		return
	}
	httpx.Page(w, items, pagination)
}

func (h *Handler) markers(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	markers, err := h.service.Markers(r.Context(), principal(r), filter)
	if err != nil {
		h.respondError(w, "report markers", err)
		return
	}
	if markers == nil {
		markers = []Marker{}
	}
	httpx.OK(w, http.StatusOK, markers, "")
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Create(r.Context(), principal(r), in, shared.MetaFromRequest(r))
	if err != nil {
		h.respondError(w, "create report", err)
		return
	}
	httpx.OK(w, http.StatusCreated, report, "Laporan berhasil dibuat")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, "get report", err)
		return
	}
	httpx.OK(w, http.StatusOK, detail, "")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Update(r.Context(), principal(r), chi.URLParam(r, "id"), in, shared.MetaFromRequest(r))
	if err != nil {
		h.respondError(w, "update report", err)
		return
	}
	httpx.OK(w, http.StatusOK, report, "Laporan berhasil diperbarui")
}

func (h *Handler) deleteReport(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), principal(r), chi.URLParam(r, "id"), shared.MetaFromRequest(r)); err != nil {
		h.respondError(w, "delete report", err)
		return
	}
	httpx.OK(w, http.StatusOK, nil, "Laporan berhasil dihapus")
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var in StatusInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.UpdateStatus(r.Context(), principal(r), chi.URLParam(r, "id"), in, shared.MetaFromRequest(r))
	if err != nil {
		h.respondError(w, "update report status", err)
		return
	}
	httpx.OK(w, http.StatusOK, result, fmt.Sprintf("Status berhasil diperbarui ke %s", in.Status))
}

func (h *Handler) addMedia(w http.ResponseWriter, r *http.Request) {
	var in MediaInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	media, err := h.service.AddMedia(r.Context(), principal(r), chi.URLParam(r, "id"), in, shared.MetaFromRequest(r))
	if err != nil {
		h.respondError(w, "add media", err)
		return
	}
	httpx.OK(w, http.StatusCreated, media, "Media berhasil ditambahkan")
}

func (h *Handler) deleteMedia(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteMedia(r.Context(), principal(r), chi.URLParam(r, "id"), shared.MetaFromRequest(r)); err != nil {
		h.respondError(w, "delete media", err)
		return
	}
	httpx.OK(w, http.StatusOK, nil, "Media berhasil dihapus")
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func principal(r *http.Request) shared.Principal {
	p, _ := shared.PrincipalFromContext(r.Context())
	return p
}

// parseFilter reads list query parameters. Malformed numbers are a
// validation failure rather than silently ignored.
func parseFilter(q url.Values) (ListFilter, error) {
	filter := ListFilter{
		Status:    Status(q.Get("status")),
		Type:      Type(q.Get("type")),
		Severity:  Severity(q.Get("severity")),
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	var err error
	if filter.Page, err = intParam(q, "page"); err != nil {
		return filter, err
	}
	if filter.Limit, err = intParam(q, "limit"); err != nil {
		return filter, err
	}
	if filter.Lat, err = floatParam(q, "lat"); err != nil {
		return filter, err
	}
	if filter.Lng, err = floatParam(q, "lng"); err != nil {
		return filter, err
	}
	if filter.Radius, err = floatParam(q, "radius"); err != nil {
		return filter, err
	}
	return filter, nil
}

func intParam(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, paramError(key)
	}
	return v, nil
}

func floatParam(q url.Values, key string) (*float64, error) {
	raw := q.Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, paramError(key)
	}
	return &v, nil
}

func paramError(key string) error {
	msg := fmt.Sprintf("%s harus berupa angka", shared.FieldLabel(key))
	return &httpx.ValidationError{Message: msg, Fields: map[string]string{key: msg}}
}
