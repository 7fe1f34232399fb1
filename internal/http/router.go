// Package http wires the gin surface: middleware chain, route table, and the
// handler set behind it.
package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/recipenow/recipenow-backend/internal/http/handlers"
	"github.com/recipenow/recipenow-backend/internal/http/middleware"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string

	Health  *handlers.HealthHandler
	Assets  *handlers.AssetHandler
	Recipes *handlers.RecipeHandler
	Jobs    *handlers.JobHandler
	Auth    *middleware.AuthMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.AttachTraceContext())
	router.Use(middleware.RequestLogger(cfg.Log))
	router.Use(middleware.CORS(cfg.CORSOrigins))

	router.GET("/healthcheck", cfg.Health.HealthCheck)

	api := router.Group("/api/v1")
	api.Use(cfg.Auth.RequireUser())
	{
		api.POST("/assets", cfg.Assets.Upload)
		api.GET("/assets", cfg.Assets.List)
		api.GET("/assets/:id", cfg.Assets.Get)
		api.GET("/assets/:id/image", cfg.Assets.Image)
		api.GET("/assets/:id/lines", cfg.Assets.Lines)
		api.POST("/assets/:id/reingest", cfg.Assets.Reingest)
		api.DELETE("/assets/:id", cfg.Assets.Delete)
		api.GET("/assets/:id/jobs/latest", cfg.Jobs.LatestForAsset)

		api.GET("/recipes", cfg.Recipes.List)
		api.GET("/recipes/:id", cfg.Recipes.Get)
		api.PATCH("/recipes/:id", cfg.Recipes.Patch)
		api.POST("/recipes/:id/verify", cfg.Recipes.Verify)
		api.DELETE("/recipes/:id", cfg.Recipes.Delete)
		api.GET("/recipes/:id/spans", cfg.Recipes.Spans)
		api.DELETE("/recipes/:id/spans", cfg.Recipes.DeleteSpans)
		api.GET("/recipes/:id/overlay", cfg.Recipes.Overlay)
		api.POST("/recipes/:id/reextract", cfg.Recipes.Reextract)

		api.GET("/jobs/:id", cfg.Jobs.Get)
		api.POST("/jobs/:id/cancel", cfg.Jobs.Cancel)
	}

	return router
}
