package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/config"
	"github.com/stemsi/exstem-papers/internal/handler"
	"github.com/stemsi/exstem-papers/internal/middleware"
	"github.com/stemsi/exstem-papers/internal/model"
	"github.com/stemsi/exstem-papers/internal/response"
	"github.com/stemsi/exstem-papers/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Paper      *handler.PaperHandler
	AdminPaper *handler.AdminPaperHandler
	Library    *handler.LibraryHandler
	Settings   *handler.SettingsHandler
	WS         *handler.WSHandler
	Monitor    *handler.MonitorHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// A nil createLimiter leaves paper creation unthrottled.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	createLimiter middleware.Limiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

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
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log), middleware.Metrics())

	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		SkipPaths: []string{"/metrics"},
	}))

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ─── 0. Public Group (No Auth) ─────────────────────────────────────
	publicAPI := router.Group("/api/v1/public")
	publicAPI.Use(middleware.CacheControl(60))
	{
		publicAPI.GET("/difficulties", handlers.Paper.Difficulties)
	}

	// ─── 1. User Group (JWT) ───────────────────────────────────────────
	papersAPI := router.Group("/api/v1/papers")
	papersAPI.Use(middleware.RequireUserJWT(authService), middleware.NoStore())
	{
		create := []gin.HandlerFunc{handlers.Paper.Create}
		if createLimiter != nil {
			create = append([]gin.HandlerFunc{middleware.RateLimit(createLimiter, log)}, create...)
		}
		papersAPI.POST("", create...)
		papersAPI.GET("/history", handlers.Paper.History)
		papersAPI.GET("/:paper_id", handlers.Paper.Detail)
		papersAPI.PUT("/:paper_id/progress", handlers.Paper.SaveProgress)
		papersAPI.POST("/:paper_id/submit", handlers.Paper.Submit)
	}

	// ─── 2. WebSocket Group (User WS Auth) ─────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService, service.TokenTypeUser))
	{
		ws.GET("/papers/:paper_id/stream", handlers.WS.PaperStream)
	}

	// ─── 3. Staff Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireStaffJWT(authService), middleware.NoStore())
	{
		grade := middleware.RequirePermission(model.PermissionPapersGrade)
		admin := middleware.RequirePermission(model.PermissionPapersAdmin)
		anyStaff := middleware.RequireAnyPermission(model.PermissionPapersGrade, model.PermissionPapersAdmin)

		papersGroup := adminAPI.Group("/papers")
		{
			papersGroup.GET("", admin, handlers.AdminPaper.List)
			papersGroup.GET("/pending", grade, handlers.AdminPaper.Pending)
			papersGroup.GET("/monitor", anyStaff, handlers.Monitor.MonitorSSE)
			papersGroup.GET("/:paper_id", admin, handlers.AdminPaper.Get)
			papersGroup.DELETE("/:paper_id", admin, handlers.AdminPaper.Delete)
			papersGroup.POST("/:paper_id/questions/:question_id/grade", grade, handlers.AdminPaper.GradeQuestion)
		}

		libraryGroup := adminAPI.Group("/library", admin)
		{
			libraryGroup.POST("/reload", handlers.Library.Reload)
			libraryGroup.GET("/banks", handlers.Library.Banks)
			libraryGroup.GET("/banks/:difficulty", handlers.Library.Bank)
			libraryGroup.POST("/banks/:difficulty/questions", handlers.Library.AddQuestion)
			libraryGroup.DELETE("/banks/:difficulty/questions/:index", handlers.Library.DeleteQuestion)
		}

		adminAPI.GET("/settings", admin, handlers.Settings.GetSettings)
		adminAPI.PUT("/settings", admin, handlers.Settings.UpdateSettings)
		adminAPI.GET("/system/metrics", admin, handlers.System.SystemMetricsSSE)
	}

	return router
}
