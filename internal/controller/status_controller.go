package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/steveiliop56/jellyauth/internal/service"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
)

const wizarrAvailableKey = "wizarr"

var defaultAvailabilityTTL = 30 * time.Second

type ProviderStatuses interface {
	Statuses() []service.ProviderStatus
}

type StatusControllerConfig struct {
	RequireInvite   bool
	AutoCreateUsers bool
	MatchStrategy   string
	Version         string
	// AvailabilityTTL bounds how often the status endpoint probes Wizarr
	AvailabilityTTL time.Duration
}

type WizarrStatus struct {
	Enabled   bool `json:"enabled"`
	Available bool `json:"available"`
}

type StatusResponse struct {
	Providers       []service.ProviderStatus `json:"providers"`
	Wizarr          WizarrStatus             `json:"wizarr"`
	RequireInvite   bool                     `json:"requireInvite"`
	AutoCreateUsers bool                     `json:"autoCreateUsers"`
	MatchStrategy   string                   `json:"matchStrategy"`
	Version         string                   `json:"version"`
}

type StatusController struct {
	config    StatusControllerConfig
	router    *gin.RouterGroup
	providers ProviderStatuses
	invites   service.InviteService
	probes    *gocache.Cache
}

func NewStatusController(config StatusControllerConfig, router *gin.RouterGroup, providers ProviderStatuses, invites service.InviteService) *StatusController {
	if config.AvailabilityTTL <= 0 {
		config.AvailabilityTTL = defaultAvailabilityTTL
	}
	return &StatusController{
		config:    config,
		router:    router,
		providers: providers,
		invites:   invites,
		probes:    gocache.New(config.AvailabilityTTL, 2*config.AvailabilityTTL),
	}
}

func (controller *StatusController) SetupRoutes() {
	controller.router.GET("/oauth/status", controller.statusHandler)
}

func (controller *StatusController) statusHandler(c *gin.Context) {
	res := StatusResponse{
		Providers:       controller.providers.Statuses(),
		RequireInvite:   controller.config.RequireInvite,
		AutoCreateUsers: controller.config.AutoCreateUsers,
		MatchStrategy:   controller.config.MatchStrategy,
		Version:         controller.config.Version,
	}

	if controller.invites != nil && controller.invites.Enabled() {
		res.Wizarr = WizarrStatus{
			Enabled:   true,
			Available: controller.wizarrAvailable(c.Request.Context()),
		}
	}

	c.JSON(http.StatusOK, res)
}

// wizarrAvailable serves the last probe result until it expires
func (controller *StatusController) wizarrAvailable(ctx context.Context) bool {
	if cached, found := controller.probes.Get(wizarrAvailableKey); found {
		if available, ok := cached.(bool); ok {
			return available
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	available := controller.invites.Available(ctx)
	controller.probes.SetDefault(wizarrAvailableKey, available)
	return available
}
