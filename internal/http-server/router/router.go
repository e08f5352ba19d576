// Package router assembles the middleware chain in front of the handlers.
package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"serenity/gateway/internal/http-server/handlers"
	mwLogger "serenity/gateway/internal/http-server/middleware/logger"
	"serenity/gateway/internal/http-server/middleware/ratelimit"
	"serenity/gateway/internal/http-server/middleware/usertoken"
)

type Options struct {
	AllowedOrigins []string
	// TrustProxy derives the client address from forwarding headers before
	// rate limiting. Without it the limiter keys on the socket address.
	TrustProxy     bool
	RPS            float64
	Burst          int
	Now            func() time.Time
}

// New returns the gateway's HTTP handler: CORS outermost, then request id,
// real ip (trusted proxies only), request log, panic recovery and rate
// limiting. User token extraction applies to the routes that forward to the
// upstream on the caller's behalf.
func New(log *slog.Logger, h *handlers.Handler, opts Options) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	if opts.TrustProxy {
		router.Use(middleware.RealIP)
	}
	router.Use(mwLogger.New(log))
	router.Use(middleware.Recoverer)
	if opts.RPS > 0 {
		router.Use(ratelimit.New(opts.RPS, opts.Burst).Limit)
	}

	h.Mount(router, usertoken.New(log, opts.Now))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}).Handler(router)
}
