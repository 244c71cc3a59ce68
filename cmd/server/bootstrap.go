package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gin-gonic/gin"

	"github.com/pointdeck/pointdeck/internal/api"
	"github.com/pointdeck/pointdeck/internal/app"
	"github.com/pointdeck/pointdeck/internal/app/maintenance"
	"github.com/pointdeck/pointdeck/internal/database"
	"github.com/pointdeck/pointdeck/internal/realtime"
	"github.com/pointdeck/pointdeck/internal/services"
	"github.com/pointdeck/pointdeck/pkg/logger"
)

// runtimeStack bundles long-lived components used by the HTTP server.
type runtimeStack struct {
	DB          *gorm.DB
	Coordinator *realtime.Coordinator
	Cleaner     *maintenance.Cleaner
	Router      *gin.Engine
}

// bootstrapRuntime initialises the database, the realtime core, the retention
// job, and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	sessions, err := services.NewSessionService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}
	participants, err := services.NewParticipantService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise participant service: %w", err)
	}
	features, err := services.NewFeatureService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise feature service: %w", err)
	}
	cleanup, err := services.NewCleanupService(stack.DB, services.WithRetentionDays(cfg.Cleanup.RetentionDays))
	if err != nil {
		return nil, fmt.Errorf("initialise cleanup service: %w", err)
	}

	store, err := services.NewCoordinatorStore(sessions, participants, features, cleanup)
	if err != nil {
		return nil, fmt.Errorf("initialise coordinator store: %w", err)
	}

	registry := realtime.NewRegistry(realtime.WithGracePeriod(cfg.Realtime.GracePeriod))
	stack.Coordinator = realtime.NewCoordinator(store, realtime.NewHub(), registry)
	gateway := realtime.NewGateway(stack.Coordinator, cfg.Server.AllowedOrigin)

	if cfg.Cleanup.Enabled {
		stack.Cleaner, err = maintenance.NewCleaner(cleanup, maintenance.WithSchedule(cfg.Cleanup.Schedule))
		if err != nil {
			return nil, fmt.Errorf("initialise maintenance: %w", err)
		}
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(stack.DB, cfg, gateway)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown releases everything the stack holds, tolerating partial
// initialisation.
func (s *runtimeStack) Shutdown(log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
		if err := s.Cleaner.RunOnce(context.Background()); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", dbCfg.Driver))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("database handle unavailable on shutdown", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("database close failed", zap.Error(err))
	}
}
