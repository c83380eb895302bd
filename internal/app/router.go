package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gewis/sudosos-go/internal/catalog/containers"
	"github.com/gewis/sudosos-go/internal/catalog/pointsofsale"
	"github.com/gewis/sudosos-go/internal/catalog/products"
	"github.com/gewis/sudosos-go/internal/transfers"
	"github.com/gewis/sudosos-go/internal/users"
	"github.com/gewis/sudosos-go/jobs"
	"github.com/gewis/sudosos-go/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config
	Actors ActorDirectory

	ProductHandler     *products.Handler
	ContainerHandler   *containers.Handler
	PointOfSaleHandler *pointsofsale.Handler
	UserHandler        *users.Handler
	TransferHandler    *transfers.Handler
	ReportHandler      *report.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with SudoSOS defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
		Actors: params.Actors,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/products", params.ProductHandler.MountRoutes)
	r.Route("/containers", params.ContainerHandler.MountRoutes)
	r.Route("/pointsofsale", params.PointOfSaleHandler.MountRoutes)
	r.Route("/users", params.UserHandler.MountRoutes)
	r.Route("/transfers", params.TransferHandler.MountRoutes)
	if params.ReportHandler != nil {
		r.Route("/reports", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
