package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gewis/sudosos-go/internal/catalog/containers"
	"github.com/gewis/sudosos-go/internal/catalog/pointsofsale"
	"github.com/gewis/sudosos-go/internal/catalog/products"
	"github.com/gewis/sudosos-go/internal/catalog/revision"
)

// ProductSheets fetches product snapshots for rendering.
type ProductSheets interface {
	GetRevision(ctx context.Context, id int64, rev int) (products.Revision, error)
}

// ContainerSheets fetches container snapshots for rendering.
type ContainerSheets interface {
	GetRevision(ctx context.Context, id int64, rev int) (containers.Revision, error)
}

// PointOfSaleSheets fetches point-of-sale snapshots for rendering.
type PointOfSaleSheets interface {
	GetRevision(ctx context.Context, id int64, rev int) (pointsofsale.Revision, error)
}

// Handler manages report endpoints.
type Handler struct {
	client     *Client
	logger     *slog.Logger
	products   ProductSheets
	containers ContainerSheets
	pos        PointOfSaleSheets
}

// NewHandler creates a report handler.
func NewHandler(client *Client, logger *slog.Logger, p ProductSheets, c ContainerSheets, s PointOfSaleSheets) *Handler {
	return &Handler{client: client, logger: logger, products: p, containers: c, pos: s}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Get("/products/{id}/revisions/{rev}", h.productSheet)
	r.Get("/containers/{id}/revisions/{rev}", h.containerSheet)
	r.Get("/pointsofsale/{id}/revisions/{rev}", h.pointOfSaleSheet)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) productSheet(w http.ResponseWriter, r *http.Request) {
	id, rev, ok := sheetParams(w, r)
	if !ok {
		return
	}
	snapshot, err := h.products.GetRevision(r.Context(), id, rev)
	if err != nil {
		h.respondFetchError(w, err)
		return
	}
	h.renderSheet(w, r, snapshot, fmt.Sprintf("product-%d-r%d.pdf", id, rev))
}

func (h *Handler) containerSheet(w http.ResponseWriter, r *http.Request) {
	id, rev, ok := sheetParams(w, r)
	if !ok {
		return
	}
	snapshot, err := h.containers.GetRevision(r.Context(), id, rev)
	if err != nil {
		h.respondFetchError(w, err)
		return
	}
	h.renderSheet(w, r, snapshot, fmt.Sprintf("container-%d-r%d.pdf", id, rev))
}

func (h *Handler) pointOfSaleSheet(w http.ResponseWriter, r *http.Request) {
	id, rev, ok := sheetParams(w, r)
	if !ok {
		return
	}
	snapshot, err := h.pos.GetRevision(r.Context(), id, rev)
	if err != nil {
		h.respondFetchError(w, err)
		return
	}
	h.renderSheet(w, r, snapshot, fmt.Sprintf("pos-%d-r%d.pdf", id, rev))
}

func (h *Handler) renderSheet(w http.ResponseWriter, r *http.Request, sheet Renderable, filename string) {
	pdf, err := h.client.RenderHTML(r.Context(), SheetHTML(sheet))
	if err != nil {
		h.logger.Error("render revision sheet", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) respondFetchError(w http.ResponseWriter, err error) {
	if errors.Is(err, revision.ErrNotFound) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	h.logger.Error("fetch revision for sheet", slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func sheetParams(w http.ResponseWriter, r *http.Request) (int64, int, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, 0, false
	}
	rev, err := strconv.Atoi(chi.URLParam(r, "rev"))
	if err != nil || rev < 1 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, 0, false
	}
	return id, rev, true
}
