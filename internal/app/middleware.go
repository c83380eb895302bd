package app

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/gewis/sudosos-go/internal/platform/httpx"
	"github.com/gewis/sudosos-go/internal/shared"
	"github.com/gewis/sudosos-go/internal/users"
)

// ActorDirectory resolves the acting account for a request.
type ActorDirectory interface {
	Get(ctx context.Context, id int64) (users.User, error)
}

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger *slog.Logger
	Config *Config
	Actors ActorDirectory
}

// MiddlewareStack installs the SudoSOS middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	// The gateway in front of us authenticates and forwards the account id.
	// Requests without the header stay anonymous; a stale id is rejected.
	actorMiddleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("X-User-ID")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := strconv.ParseInt(header, 10, 64)
			if err != nil || id < 1 {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "malformed actor id")
				return
			}
			user, err := cfg.Actors.Get(r.Context(), id)
			if err != nil || user.DeletedAt != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "unknown actor")
				return
			}
			ctx := shared.ContextWithActor(r.Context(), &shared.Actor{ID: user.ID, Name: user.Name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	return []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		actorMiddleware,
	}
}
