package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pointdeck/pointdeck/internal/app"
	"github.com/pointdeck/pointdeck/internal/handlers"
	"github.com/pointdeck/pointdeck/internal/middleware"
	"github.com/pointdeck/pointdeck/internal/realtime"
	"github.com/pointdeck/pointdeck/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers the REST
// and websocket routes.
func NewRouter(db *gorm.DB, cfg *app.Config, gateway *realtime.Gateway) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigin))
	r.NoRoute(middleware.NotFoundHandler)

	retention := services.WithRetentionDays(cfg.Cleanup.RetentionDays)

	sessionHandler, err := handlers.NewSessionHandler(db, retention)
	if err != nil {
		return nil, err
	}
	featureHandler, err := handlers.NewFeatureHandler(db)
	if err != nil {
		return nil, err
	}

	api := r.Group("/api")
	api.GET("/health", handlers.Health())

	sessions := api.Group("/sessions")
	{
		sessions.POST("", sessionHandler.Create)
		sessions.GET("/:sessionId", sessionHandler.Get)
		sessions.POST("/:sessionId/participants", sessionHandler.Join)
		sessions.GET("/:sessionId/features", featureHandler.List)
		sessions.POST("/:sessionId/features", featureHandler.Create)
		sessions.POST("/:sessionId/features/:featureId/reveal", featureHandler.Reveal)
	}

	// Realtime clients join over a plain websocket upgrade.
	if gateway != nil {
		r.GET("/ws", handlers.Realtime(gateway))
	}

	return r, nil
}
