package controller

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/steveiliop56/jellyauth/internal/metrics"
	"github.com/steveiliop56/jellyauth/internal/service"
	"github.com/steveiliop56/jellyauth/internal/utils/tlog"

	"github.com/gin-gonic/gin"
)

type OAuthRequest struct {
	Provider string `uri:"provider" binding:"required"`
}

type AuthorizeQuery struct {
	Invite    string `form:"invite" url:"invite,omitempty"`
	ReturnURL string `form:"return_url" url:"return_url,omitempty"`
}

type CallbackQuery struct {
	Code             string `form:"code" url:"code,omitempty"`
	State            string `form:"state" url:"state,omitempty"`
	Error            string `form:"error" url:"error,omitempty"`
	ErrorDescription string `form:"error_description" url:"error_description,omitempty"`
}

type FlowService interface {
	Authorize(ctx context.Context, in service.AuthorizeInput) (string, error)
	Callback(ctx context.Context, in service.CallbackInput) (service.CallbackResult, error)
}

type OAuthController struct {
	router  *gin.RouterGroup
	flow    FlowService
	metrics *metrics.Metrics
}

func NewOAuthController(router *gin.RouterGroup, flow FlowService, metrics *metrics.Metrics) *OAuthController {
	return &OAuthController{
		router:  router,
		flow:    flow,
		metrics: metrics,
	}
}

func (controller *OAuthController) SetupRoutes() {
	oauthGroup := controller.router.Group("/oauth")
	oauthGroup.GET("/:provider/authorize", controller.authorizeHandler)
	oauthGroup.GET("/:provider/callback", controller.callbackHandler)
	// Providers using response_mode=form_post call back with a POST
	oauthGroup.POST("/:provider/callback", controller.callbackHandler)
}

func (controller *OAuthController) authorizeHandler(c *gin.Context) {
	var req OAuthRequest

	err := c.BindUri(&req)
	if err != nil {
		tlog.App.Error().Err(err).Msg("Failed to bind URI")
		c.String(http.StatusBadRequest, "unsupported provider")
		return
	}

	var query AuthorizeQuery

	err = c.ShouldBindQuery(&query)
	if err != nil {
		tlog.App.Error().Err(err).Msg("Failed to bind query")
		c.String(http.StatusBadRequest, "failed to initiate OAuth flow")
		return
	}

	provider := strings.ToLower(req.Provider)

	authURL, err := controller.flow.Authorize(c.Request.Context(), service.AuthorizeInput{
		Provider:   provider,
		InviteCode: query.Invite,
		ReturnURL:  query.ReturnURL,
	})
	if err != nil {
		message, outcome := authorizeFailure(err)
		tlog.App.Warn().Err(err).Str("provider", provider).Msg("Failed to initiate OAuth flow")
		controller.metrics.Flow("authorize", provider, outcome)
		c.String(http.StatusBadRequest, message)
		return
	}

	tlog.App.Debug().Str("provider", provider).Msg("Redirecting to OAuth provider")
	controller.metrics.Flow("authorize", provider, "redirected")
	c.Redirect(http.StatusFound, authURL)
}

func (controller *OAuthController) callbackHandler(c *gin.Context) {
	var req OAuthRequest

	err := c.BindUri(&req)
	if err != nil {
		tlog.App.Error().Err(err).Msg("Failed to bind URI")
		c.String(http.StatusBadRequest, "OAuth authentication failed")
		return
	}

	provider := strings.ToLower(req.Provider)

	// Form binding reads the query on GET and the body on form posts
	var query CallbackQuery

	err = c.ShouldBind(&query)
	if err != nil {
		tlog.App.Error().Err(err).Msg("Failed to bind callback parameters")
		tlog.AuditLoginFailure(c, provider, "bad request")
		c.String(http.StatusBadRequest, "OAuth authentication failed")
		return
	}

	result, err := controller.flow.Callback(c.Request.Context(), service.CallbackInput{
		Provider:         provider,
		Code:             query.Code,
		State:            query.State,
		Error:            query.Error,
		ErrorDescription: query.ErrorDescription,
	})
	if err != nil {
		message, outcome := callbackFailure(err)
		logCallbackError(err, provider)
		tlog.AuditLoginFailure(c, provider, outcome)
		controller.metrics.Flow("callback", provider, outcome)
		c.String(http.StatusBadRequest, message)
		return
	}

	if result.InviteCode != "" {
		tlog.AuditInviteConsumed(result.InviteCode, result.Account.ID, result.InviteRecorded.Ok())
	}

	tlog.AuditLoginSuccess(c, result.Account.ID, result.Account.Username, provider)
	controller.metrics.Flow("callback", provider, "signed_in")
	c.Redirect(http.StatusFound, result.RedirectURL)
}

func authorizeFailure(err error) (string, string) {
	switch {
	case errors.Is(err, service.ErrProviderDisabled):
		return "provider not enabled", "provider_disabled"
	case errors.Is(err, service.ErrUnsupportedProvider):
		return "unsupported provider", "unsupported_provider"
	case errors.Is(err, service.ErrInvalidInvite):
		return "invalid or expired invite code", "invalid_invite"
	case errors.Is(err, service.ErrInviteRequired):
		return "valid invite code is required", "invite_required"
	default:
		return "failed to initiate OAuth flow", "error"
	}
}

func callbackFailure(err error) (string, string) {
	var providerErr *service.ProviderError

	switch {
	case errors.As(err, &providerErr):
		return "OAuth error: " + providerErr.Code, "provider_error"
	case errors.Is(err, service.ErrMissingCode):
		return "no authorization code received", "missing_code"
	case errors.Is(err, service.ErrProviderDisabled), errors.Is(err, service.ErrUnsupportedProvider):
		return "provider not enabled", "provider_disabled"
	case errors.Is(err, service.ErrInvite):
		return "OAuth authentication failed", "invite_required"
	case errors.Is(err, service.ErrUserCreationDisabled):
		return "OAuth authentication failed", "creation_disabled"
	case errors.Is(err, service.ErrMalformedIdentity):
		return "OAuth authentication failed", "malformed_identity"
	case errors.Is(err, service.ErrUpstream):
		return "OAuth authentication failed", "upstream_error"
	default:
		return "OAuth authentication failed", "error"
	}
}

// Upstream bodies only ever reach the log
func logCallbackError(err error, provider string) {
	event := tlog.App.Warn().Err(err).Str("provider", provider)

	var upstream *service.UpstreamError
	if errors.As(err, &upstream) {
		event = event.Int("status", upstream.Status).Str("body", upstream.Body)
	}

	event.Msg("OAuth callback failed")
}
