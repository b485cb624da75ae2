package bootstrap

import (
	"fmt"

	"github.com/steveiliop56/jellyauth/internal/config"
	"github.com/steveiliop56/jellyauth/internal/controller"
	"github.com/steveiliop56/jellyauth/internal/middleware"

	"github.com/gin-gonic/gin"
)

func (app *BootstrapApp) setupRouter() (*gin.Engine, error) {
	engine := gin.New()
	engine.Use(gin.Recovery())

	if len(app.config.Server.TrustedProxies) > 0 {
		err := engine.SetTrustedProxies(app.config.Server.TrustedProxies)

		if err != nil {
			return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
		}
	}

	zerologMiddleware := middleware.NewZerologMiddleware(app.metrics)

	err := zerologMiddleware.Init()

	if err != nil {
		return nil, fmt.Errorf("failed to initialize zerolog middleware: %w", err)
	}

	engine.Use(zerologMiddleware.Middleware())

	rootRouter := &engine.RouterGroup
	apiRouter := engine.Group("/api")

	oauthController := controller.NewOAuthController(rootRouter, app.services.oauthFlowService, app.metrics)

	oauthController.SetupRoutes()

	statusController := controller.NewStatusController(controller.StatusControllerConfig{
		RequireInvite:   app.config.Wizarr.RequireInvite,
		AutoCreateUsers: app.config.Provisioning.AutoCreateUsers,
		MatchStrategy:   app.config.Provisioning.MatchStrategy,
		Version:         config.Version,
	}, rootRouter, app.services.oauthBrokerService, app.services.wizarrService)

	statusController.SetupRoutes()

	healthController := controller.NewHealthController(apiRouter, app.db)

	healthController.SetupRoutes()

	if app.metrics != nil {
		path := app.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		engine.GET(path, gin.WrapH(app.metrics.Handler()))
	}

	return engine, nil
}
