package pointsofsale

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gewis/sudosos-go/internal/catalog/revision"
	"github.com/gewis/sudosos-go/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the point-of-sale lifecycle.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers point-of-sale routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.getCurrent)
	r.Put("/{id}", h.stage)
	r.Delete("/{id}", h.remove)
	r.Get("/{id}/revisions/{rev}", h.getRevision)
	r.Get("/{id}/draft", h.getDraft)
	r.Delete("/{id}/draft", h.discardDraft)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/publish", h.publish)
}

type pointOfSaleForm struct {
	Name              string  `json:"name" validate:"required"`
	UseAuthentication bool    `json:"use_authentication"`
	OwnerID           int64   `json:"owner_id"`
	ContainerIDs      []int64 `json:"container_ids" validate:"dive,gt=0"`
}

func (f pointOfSaleForm) fields() Fields {
	return Fields{Name: f.Name, UseAuthentication: f.UseAuthentication}
}

func (h *Handler) decodeForm(w http.ResponseWriter, r *http.Request) (pointOfSaleForm, bool) {
	var form pointOfSaleForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return form, false
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return form, false
	}
	return form, true
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	id, err := h.service.CreateDraft(r.Context(), form.OwnerID, form.fields(), form.ContainerIDs)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	revs, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, revs)
}

func (h *Handler) getCurrent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rev, err := h.service.GetCurrent(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rev)
}

func (h *Handler) getRevision(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	num, err := strconv.Atoi(chi.URLParam(r, "rev"))
	if err != nil || num < 1 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Revision", "revision must be a positive integer")
		return
	}
	rev, err := h.service.GetRevision(r.Context(), id, num)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rev)
}

func (h *Handler) stage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	if err := h.service.StageUpdate(r.Context(), id, form.fields(), form.ContainerIDs); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	draft, err := h.service.GetDraft(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if draft == nil {
		respondError(w, revision.ErrNoDraft)
		return
	}
	httpx.JSON(w, http.StatusOK, draft)
}

func (h *Handler) discardDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DiscardDraft(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rev, err := h.service.Approve(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rev)
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	rev, err := h.service.PublishDirect(r.Context(), id, form.fields(), form.ContainerIDs)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rev)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.SoftDelete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, revision.ErrNoDraft):
		httpx.Problem(w, http.StatusNotFound, "No Draft Found", err.Error())
	case errors.Is(err, revision.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, revision.ErrRevisionConflict):
		httpx.Problem(w, http.StatusConflict, "Revision Conflict", err.Error())
	case errors.Is(err, errInvalidFields):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "identifier must be a positive integer")
		return 0, false
	}
	return id, true
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
