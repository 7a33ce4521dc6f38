package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/serendip/gatekeeper/internal/api/handler"
	"github.com/serendip/gatekeeper/internal/api/middleware"
)

// RouterConfig holds the transport settings of the HTTP surface.
type RouterConfig struct {
	AllowedOrigins []string
	BodyLimit      string

	// Registerer receives the HTTP request metrics. Defaults to the global
	// Prometheus registry.
	Registerer prometheus.Registerer
}

// NewRouter builds the Echo instance. Probes, metrics and docs get their own
// routes; every other request is dispatched by srv.
func NewRouter(cfg RouterConfig, srv *Server, health *handler.HealthHandler, v *handler.Validator, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)
	e.Validator = v

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	if cfg.BodyLimit != "" {
		e.Use(echomiddleware.BodyLimit(cfg.BodyLimit))
	}
	e.Use(middleware.CORS(cfg.AllowedOrigins...))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "gatekeeper",
		Registerer: cfg.Registerer,
	}))

	// --- Operational routes ---
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	e.GET("/health", health.Liveness)        // liveness  – is the process alive?
	e.GET("/health/ready", health.Readiness) // readiness – are dependencies up?

	// --- Endpoint pipelines ---
	e.Any("/*", srv.Handle)

	return e
}
