// Package router assembles the HTTP surface of the API.
package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/cors"
	"github.com/unrolled/secure"

	"github.com/linfan/backend/internal/access"
	"github.com/linfan/backend/internal/accounts"
	"github.com/linfan/backend/internal/auth"
	"github.com/linfan/backend/internal/cards"
	"github.com/linfan/backend/internal/categories"
	"github.com/linfan/backend/internal/dashboard"
	"github.com/linfan/backend/internal/directory"
	"github.com/linfan/backend/internal/observability"
	"github.com/linfan/backend/internal/platform/httpx"
	"github.com/linfan/backend/internal/stocks"
	"github.com/linfan/backend/internal/transactions"
)

// Handlers groups the per-resource HTTP handlers.
type Handlers struct {
	Users        *auth.Handler
	Ledgers      *directory.Handler
	Accounts     *accounts.Handler
	Cards        *cards.Handler
	Transactions *transactions.Handler
	Categories   *categories.Handler
	Stocks       *stocks.Handler
	Dashboard    *dashboard.Handler
}

type Options struct {
	Logger         *slog.Logger
	Gate           *access.Gate
	Metrics        *observability.Metrics
	Health         func(context.Context) error
	AllowedOrigins []string
	RatePerMinute  int
	RequestTimeout time.Duration
	Production     bool
}

// New returns the root handler: /healthz, /metrics and the JSON API under
// /api/v1, wrapped in CORS.
func New(opts Options, h Handlers) http.Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rate := opts.RatePerMinute
	if rate <= 0 {
		rate = 300
	}
	headers := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        opts.Production,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:      !opts.Production,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Timeout(timeout))
	r.Use(headers.Handler)
	r.Use(opts.Metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Health != nil {
			if err := opts.Health(r.Context()); err != nil {
				log.Warn("health check failed", "error", err)
				httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "")
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.Limit(rate, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
			}),
		))
		r.Use(opts.Gate.Authenticate)

		r.Get("/users/me", h.Users.Me)
		r.Route("/ledgers", h.Ledgers.Routes)

		r.Group(func(r chi.Router) {
			r.Use(opts.Gate.LedgerScoped, access.Require(access.ReadLedger))
			r.Route("/accounts", h.Accounts.Routes)
			r.Route("/cards", h.Cards.Routes)
			r.Route("/transactions", h.Transactions.Routes)
			r.Route("/categories", h.Categories.Routes)
			r.Route("/stocks", h.Stocks.Routes)
			r.Get("/dashboard", h.Dashboard.Summary)
		})
	})

	return cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", access.LedgerHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}).Handler(r)
}
