package main

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aistrategyllc/checkout-api/internal/health"
	"github.com/aistrategyllc/checkout-api/internal/obs"
	"github.com/aistrategyllc/checkout-api/internal/ratelimit"
	"github.com/aistrategyllc/checkout-api/internal/security"
)

const checkoutBodyLimit = 16 << 10

type routerConfig struct {
	Logger      zerolog.Logger
	Services    *services
	Health      health.Handler
	CORSOrigins []string
	Metrics     *obs.HTTPMetrics
	Tracing     bool
	HSTS        bool
	Pprof       bool
	PprofUser   string
	PprofPass   string
	AdminUser   string
	AdminPass   string
}

func newRouter(rc routerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if rc.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if rc.Metrics != nil {
		r.Use(obs.HTTPObs{Metrics: rc.Metrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: rc.Logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: rc.HSTS, TrustForwardedProto: true}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(rc.CORSOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         300,
	}))

	if rc.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if rc.Pprof {
		r.Mount("/debug/pprof", basicAuth(newPprofMux(), rc.PprofUser, rc.PprofPass, true))
	}

	r.Get("/health/live", rc.Health.Live)
	r.Get("/health/ready", rc.Health.Ready)

	svc := rc.Services
	limit := ratelimit.Handler{
		Limiter: svc.CheckoutLimiter,
		OnError: func(err error) {
			rc.Logger.Warn().Err(err).Msg("rate limit store unavailable")
		},
	}
	checkout := r.With(limit.Middleware, security.BodyLimit{Max: checkoutBodyLimit}.Middleware)
	checkout.Post("/checkout", svc.Checkout.Checkout)
	checkout.Post("/api/checkout", svc.Checkout.Checkout)

	r.Post("/webhook", svc.Webhook.Handle)
	r.Post("/api/webhook", svc.Webhook.Handle)

	if strings.TrimSpace(rc.AdminUser) != "" {
		r.Method(http.MethodGet, "/admin/fulfillments", basicAuth(http.HandlerFunc(svc.Ledger.Recent), rc.AdminUser, rc.AdminPass, false))
	}
	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// newPprofMux routes on the path remaining after the mount point. pprof.Index
// still sees the full URL and resolves named profiles from it.
func newPprofMux() http.Handler {
	r := chi.NewRouter()
	r.HandleFunc("/cmdline", pprof.Cmdline)
	r.HandleFunc("/profile", pprof.Profile)
	r.HandleFunc("/symbol", pprof.Symbol)
	r.HandleFunc("/trace", pprof.Trace)
	r.HandleFunc("/*", pprof.Index)
	return r
}

// basicAuth guards handler with static credentials. An empty user leaves the
// handler open only when allowOpen is set.
func basicAuth(handler http.Handler, user, pass string, allowOpen bool) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" && allowOpen {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if user == "" || !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
