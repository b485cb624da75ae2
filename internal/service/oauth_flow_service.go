package service

import (
	"context"
	"strings"
	"time"

	"github.com/steveiliop56/jellyauth/internal/config"
	"github.com/steveiliop56/jellyauth/internal/model"
	"github.com/steveiliop56/jellyauth/internal/utils"
	"github.com/steveiliop56/jellyauth/internal/utils/tlog"
)

type ProviderRegistry interface {
	Lookup(id string) (OAuthProvider, error)
}

type AccountProvisioner interface {
	ProvisionWithInvite(ctx context.Context, user model.OAuthUser, inviteCode string) (ProvisionResult, error)
}

type OAuthFlowServiceConfig struct {
	AppURL           string
	DefaultReturnURL string
	RequireInvite    bool
	SessionTTL       time.Duration
}

type AuthorizeInput struct {
	Provider   string
	InviteCode string
	ReturnURL  string
}

type CallbackInput struct {
	Provider         string
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

type CallbackResult struct {
	RedirectURL string
	Provider    string
	Account     model.Account
	Created     bool
	InviteCode  string
	// InviteRecorded is the outcome of telling the invite service about the sign in
	InviteRecorded Result
}

// OAuthFlowService runs the authorize and callback halves of a sign in. The only
// state carried between them is the session entry keyed by the state token.
type OAuthFlowService struct {
	config      OAuthFlowServiceConfig
	providers   ProviderRegistry
	sessions    *SessionStore
	invites     InviteService
	provisioner AccountProvisioner
}

func NewOAuthFlowService(cfg OAuthFlowServiceConfig, providers ProviderRegistry, sessions *SessionStore, invites InviteService, provisioner AccountProvisioner) *OAuthFlowService {
	if cfg.DefaultReturnURL == "" {
		cfg.DefaultReturnURL = config.DefaultReturnURL
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = config.SessionTTL
	}
	return &OAuthFlowService{
		config:      cfg,
		providers:   providers,
		sessions:    sessions,
		invites:     invites,
		provisioner: provisioner,
	}
}

func (flow *OAuthFlowService) invitesEnabled() bool {
	return flow.invites != nil && flow.invites.Enabled()
}

// Authorize validates the request and returns the provider's authorization URL.
func (flow *OAuthFlowService) Authorize(ctx context.Context, in AuthorizeInput) (string, error) {
	provider, err := flow.providers.Lookup(in.Provider)
	if err != nil {
		return "", err
	}

	inviteCode := strings.TrimSpace(in.InviteCode)

	if inviteCode != "" && flow.invitesEnabled() {
		if !flow.invites.Validate(ctx, inviteCode) {
			return "", ErrInvalidInvite
		}
	} else if inviteCode == "" && flow.config.RequireInvite && flow.invitesEnabled() {
		return "", ErrInviteRequired
	}

	returnURL := strings.TrimSpace(in.ReturnURL)
	if returnURL != "" && !utils.IsRedirectSafe(returnURL, flow.config.AppURL) {
		tlog.App.Warn().Str("return_url", returnURL).Msg("Ignoring unsafe return URL")
		returnURL = ""
	}

	state := utils.GenerateState()

	// Pure sign ins carry no context, skip the session entirely
	if inviteCode != "" || returnURL != "" {
		flow.sessions.Put(state, model.OAuthSessionData{
			Provider:   provider.ID(),
			InviteCode: inviteCode,
			ReturnURL:  returnURL,
		}, flow.config.SessionTTL)
		tlog.App.Debug().Str("provider", provider.ID()).Bool("invite", inviteCode != "").Msg("Stored flow session")
	}

	return provider.AuthURL(state), nil
}

// Callback completes the flow. The session is consumed before any network call so
// it is gone on every terminal path, and nothing done before a failure is rolled back.
func (flow *OAuthFlowService) Callback(ctx context.Context, in CallbackInput) (CallbackResult, error) {
	var session model.OAuthSessionData
	var hasSession bool

	if in.State != "" {
		session, hasSession = flow.sessions.Take(in.State)
	}

	if in.Error != "" {
		return CallbackResult{}, &ProviderError{Code: in.Error, Description: in.ErrorDescription}
	}

	if strings.TrimSpace(in.Code) == "" {
		return CallbackResult{}, ErrMissingCode
	}

	provider, err := flow.providers.Lookup(in.Provider)
	if err != nil {
		return CallbackResult{}, err
	}

	if hasSession && session.Provider != "" && session.Provider != provider.ID() {
		tlog.App.Warn().Str("expected", session.Provider).Str("provider", provider.ID()).Msg("Flow session belongs to another provider, ignoring it")
		hasSession = false
		session = model.OAuthSessionData{}
	}

	// Without the session there is no proof the invite was checked at authorize time
	if session.InviteCode == "" && flow.config.RequireInvite && flow.invitesEnabled() {
		return CallbackResult{}, ErrInviteRequired
	}

	if !hasSession {
		tlog.App.Debug().Str("provider", provider.ID()).Msg("No flow session for callback, continuing as plain sign in")
	}

	token, err := provider.ExchangeCode(ctx, in.Code)
	if err != nil {
		return CallbackResult{}, err
	}

	user, err := provider.Identity(ctx, token)
	if err != nil {
		return CallbackResult{}, err
	}

	provisioned, err := flow.provisioner.ProvisionWithInvite(ctx, user, session.InviteCode)
	if err != nil {
		return CallbackResult{}, err
	}

	result := CallbackResult{
		Provider:       provider.ID(),
		Account:        provisioned.Account,
		Created:        provisioned.Created,
		InviteCode:     session.InviteCode,
		InviteRecorded: Succeeded(),
	}

	if session.InviteCode != "" && flow.invitesEnabled() {
		result.InviteRecorded = flow.invites.MarkUsed(ctx, session.InviteCode, provisioned.Account.ID)
		if !result.InviteRecorded.Ok() {
			tlog.App.Warn().Err(result.InviteRecorded.Err).Str("invite", session.InviteCode).Msg("Sign in completed but the invite could not be marked as used")
		}
	}

	result.RedirectURL = flow.resolveReturnURL(session, provisioned.Invite)
	return result, nil
}

func (flow *OAuthFlowService) resolveReturnURL(session model.OAuthSessionData, invite model.InviteSettings) string {
	if session.ReturnURL != "" {
		return session.ReturnURL
	}
	if invite.IsValid && invite.ReturnURL != "" && utils.IsRedirectSafe(invite.ReturnURL, flow.config.AppURL) {
		return invite.ReturnURL
	}
	return flow.config.DefaultReturnURL
}
