package transfers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gewis/sudosos-go/internal/platform/httpx"
	"github.com/gewis/sudosos-go/internal/shared"
)

// Handler wires HTTP endpoints for the transfer ledger.
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

// MountRoutes registers transfer routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Get("/user/{id}", h.listByUser)
}

type transferForm struct {
	Reference   string          `json:"reference" validate:"omitempty,uuid4"`
	FromID      *int64          `json:"from_id"`
	ToID        *int64          `json:"to_id"`
	AmountCents int64           `json:"amount_cents" validate:"gt=0"`
	Purpose     string          `json:"purpose" validate:"required,oneof=INVOICE DEPOSIT PAYOUT FINE WRITE_OFF"`
	Detail      json.RawMessage `json:"detail"`
	Description string          `json:"description"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form transferForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	detail, err := detailFor(Purpose(form.Purpose))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if len(form.Detail) > 0 {
		if err := json.Unmarshal(form.Detail, detail); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Detail", err.Error())
			return
		}
	}
	transfer := Transfer{
		FromID:      form.FromID,
		ToID:        form.ToID,
		AmountCents: form.AmountCents,
		Purpose:     Purpose(form.Purpose),
		Detail:      detail,
		Description: form.Description,
	}
	if form.Reference != "" {
		ref, err := uuid.Parse(form.Reference)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Reference", err.Error())
			return
		}
		transfer.Reference = ref
	}
	created, err := h.service.Create(r.Context(), transfer)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	transfer, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) listByUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	list, err := h.service.ListByUser(r.Context(), id, limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
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
