package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/steveiliop56/jellyauth/internal/utils/tlog"

	"github.com/gin-gonic/gin"
)

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthController struct {
	router *gin.RouterGroup
	db     Pinger
}

func NewHealthController(router *gin.RouterGroup, db Pinger) *HealthController {
	return &HealthController{
		router: router,
		db:     db,
	}
}

func (controller *HealthController) SetupRoutes() {
	controller.router.GET("/health", controller.healthHandler)
	controller.router.HEAD("/health", controller.healthHandler)
}

func (controller *HealthController) healthHandler(c *gin.Context) {
	if controller.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := controller.db.PingContext(ctx); err != nil {
			tlog.App.Error().Err(err).Msg("Health check failed to reach the account directory")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "error",
				"message": "Account directory unavailable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Healthy",
	})
}
