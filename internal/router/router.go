package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/config"
	"github.com/jwalitptl/clinic-api/internal/handler/appointment"
	"github.com/jwalitptl/clinic-api/internal/handler/auth"
	"github.com/jwalitptl/clinic-api/internal/handler/consultation"
	"github.com/jwalitptl/clinic-api/internal/handler/health"
	"github.com/jwalitptl/clinic-api/internal/handler/notification"
	"github.com/jwalitptl/clinic-api/internal/handler/payment"
	"github.com/jwalitptl/clinic-api/internal/handler/prescription"
	"github.com/jwalitptl/clinic-api/internal/handler/principal"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/realtime"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// Handlers are the route owners mounted under /api/v1.
type Handlers struct {
	Auth          *auth.Handler
	Principals    *principal.Handler
	Appointments  *appointment.Handler
	Consultations *consultation.Handler
	Prescriptions *prescription.Handler
	Notifications *notification.Handler
	Payments      *payment.Handler
	Health        *health.Handler
	Realtime      *realtime.Handler
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
	cfg      *config.Config
	gatherer prometheus.Gatherer
}

func NewRouter(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	handlers Handlers,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	logger zerolog.Logger,
) *Router {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     authMiddleware,
		handlers: handlers,
		cfg:      cfg,
		gatherer: gatherer,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(logger),
		middleware.Logger(logger),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{HSTS: cfg.Server.Mode == gin.ReleaseMode}),
		middleware.CORS(cfg.CORS),
	)
	if m != nil {
		engine.Use(middleware.Metrics(m))
	}
	if cfg.RateLimit.Enabled {
		engine.Use(middleware.NewRateLimiter(cfg.RateLimit).RateLimit())
	}
	engine.Use(middleware.SizeLimit(middleware.DefaultMaxBodySize))

	return r
}

func (r *Router) Setup() {
	if r.cfg.Metrics.Enabled && r.gatherer != nil {
		path := r.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	api := r.engine.Group("/api/v1")

	// The websocket upgrade outlives any request deadline and authenticates itself.
	if r.handlers.Realtime != nil {
		api.GET("/ws", r.handlers.Realtime.Connect)
	}

	public := api.Group("")
	if r.cfg.Server.RequestTimeout > 0 {
		public.Use(middleware.Timeout(r.cfg.Server.RequestTimeout))
	}
	r.handlers.Health.RegisterRoutes(public)

	protected := public.Group("")
	protected.Use(r.auth.Authenticate())

	r.handlers.Auth.RegisterRoutes(public, protected)
	for _, h := range []Handler{
		r.handlers.Principals,
		r.handlers.Appointments,
		r.handlers.Consultations,
		r.handlers.Prescriptions,
		r.handlers.Notifications,
		r.handlers.Payments,
	} {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
