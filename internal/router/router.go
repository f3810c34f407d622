package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-practice/internal/config"
	"github.com/stemsi/exstem-practice/internal/handler"
	"github.com/stemsi/exstem-practice/internal/metrics"
	"github.com/stemsi/exstem-practice/internal/middleware"
	"github.com/stemsi/exstem-practice/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	Events  *handler.EventsHandler
	WS      *handler.WSHandler
	Support *handler.SupportHandler
}

// Deps are the cross-cutting pieces the route table needs.
type Deps struct {
	Identity *middleware.IdentityResolver
	Metrics  *metrics.Metrics
	Limiter  *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(deps Deps, handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(deps.Metrics.Middleware())

	brotliCfg := middleware.DefaultBrotliConfig
	brotliCfg.Skipper = skipCompression
	router.Use(middleware.BrotliWithConfig(brotliCfg))

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", deps.Metrics.Handler())

	requireCredential := middleware.RequireCredential(deps.Identity)

	// ─── 1. Session API (credential + rate limit) ──────────────────────
	api := router.Group("/api/v1")
	api.Use(
		deps.Limiter.Middleware(),
		middleware.NoStore(),
		requireCredential,
	)
	{
		api.POST("/exams/:slug/sessions", handlers.Session.StartSession)

		sessions := api.Group("/sessions/:id")
		{
			sessions.GET("", handlers.Session.GetSession)
			sessions.DELETE("", handlers.Session.CloseSession)
			sessions.PUT("/answers/:index", handlers.Session.SelectAnswer)
			sessions.POST("/navigate", handlers.Session.Navigate)
			sessions.POST("/save", handlers.Session.SaveProgress)
			sessions.POST("/submit", handlers.Session.Submit)
			sessions.DELETE("/submit", handlers.Session.CancelSubmit)
			sessions.GET("/result", handlers.Session.GetResult)
			sessions.GET("/result/export", handlers.Session.ExportResult)
			sessions.GET("/events", handlers.Events.SessionEventsSSE)
		}

		api.GET("/support/outcomes/:attempt_id", handlers.Support.GetOutcome)
	}

	// ─── 2. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(requireCredential)
	{
		ws.GET("/sessions/:id/stream", handlers.WS.SessionStream)
	}

	return router
}

// skipCompression leaves streams and already-zipped downloads alone.
func skipCompression(c *gin.Context) bool {
	path := c.Request.URL.Path
	return strings.HasSuffix(path, "/events") || strings.HasSuffix(path, "/result/export") || path == "/metrics"
}
