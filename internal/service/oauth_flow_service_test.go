package service_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/steveiliop56/jellyauth/internal/config"
	"github.com/steveiliop56/jellyauth/internal/model"
	"github.com/steveiliop56/jellyauth/internal/service"

	"gotest.tools/v3/assert"
)

type fakeProvider struct {
	id        string
	mutex     sync.Mutex
	exchanged []string
	user      model.OAuthUser
}

func (p *fakeProvider) ID() string   { return p.id }
func (p *fakeProvider) Name() string { return "Fake " + p.id }

func (p *fakeProvider) AuthURL(state string) string {
	return "https://idp.example.com/authorize?" + url.Values{"state": {state}}.Encode()
}

func (p *fakeProvider) ExchangeCode(ctx context.Context, code string) (model.TokenResponse, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.exchanged = append(p.exchanged, code)
	if code == "BAD" {
		return model.TokenResponse{}, &service.UpstreamError{Service: p.id, Status: 400, Body: `{"error":"invalid_grant"}`}
	}
	return model.TokenResponse{AccessToken: "token-" + code, TokenType: "Bearer"}, nil
}

func (p *fakeProvider) Identity(ctx context.Context, token model.TokenResponse) (model.OAuthUser, error) {
	user := p.user
	user.Provider = p.id
	return user, nil
}

type flowFixture struct {
	clock     *fakeClock
	sessions  *service.SessionStore
	invites   *fakeInvites
	provider  *fakeProvider
	directory *service.DirectoryService
	flow      *service.OAuthFlowService
}

func newFlowFixture(t *testing.T, cfg service.OAuthFlowServiceConfig) *flowFixture {
	fixture := &flowFixture{
		clock:   newFakeClock(),
		invites: newFakeInvites(),
		provider: &fakeProvider{
			id:   "google",
			user: model.OAuthUser{ID: "g-1", Email: "alice@example.com"},
		},
		directory: newTestDirectory(t),
	}

	fixture.sessions = service.NewSessionStore(service.SessionStoreConfig{Now: fixture.clock.Now})

	broker := service.NewOAuthBrokerService(map[string]config.OAuthServiceConfig{
		"github": {Enabled: false},
	})
	assert.NilError(t, broker.Init())
	broker.Register(fixture.provider)

	provisioning := newProvisioning(t, service.ProvisioningServiceConfig{AutoCreateUsers: true}, fixture.directory, fixture.invites)

	fixture.flow = service.NewOAuthFlowService(cfg, broker, fixture.sessions, fixture.invites, provisioning)
	return fixture
}

func stateOf(t *testing.T, authURL string) string {
	parsed, err := url.Parse(authURL)
	assert.NilError(t, err)
	state := parsed.Query().Get("state")
	assert.Assert(t, state != "")
	return state
}

func TestFlowEndToEnd(t *testing.T) {
	fixture := newFlowFixture(t, service.OAuthFlowServiceConfig{})
	ctx := context.Background()

	authURL, err := fixture.flow.Authorize(ctx, service.AuthorizeInput{
		Provider:   "google",
		InviteCode: "ABC",
		ReturnURL:  "/home",
	})
	assert.NilError(t, err)

	state := stateOf(t, authURL)

	session, ok := fixture.sessions.Get(state)
	assert.Assert(t, ok)
	assert.Equal(t, "ABC", session.InviteCode)
	assert.Equal(t, "/home", session.ReturnURL)
	assert.Equal(t, "google", session.Provider)
	assert.Equal(t, fixture.clock.Now().Add(15*time.Minute), session.ExpiresAt)

	result, err := fixture.flow.Callback(ctx, service.CallbackInput{
		Provider: "google",
		Code:     "XYZ",
		State:    state,
	})
	assert.NilError(t, err)
	assert.Equal(t, "/home", result.RedirectURL)
	assert.Assert(t, result.Created)
	assert.Assert(t, result.InviteRecorded.Ok())
	assert.DeepEqual(t, []string{"XYZ"}, fixture.provider.exchanged)

	// Invite libraries granted and the invite consumed by the new account
	assert.Equal(t, "alice", result.Account.Username)
	assert.DeepEqual(t, []string{"Movies", "Shows"}, result.Account.Libraries)
	assert.Equal(t, result.Account.ID, fixture.invites.used["ABC"])

	// Session consumed
	_, ok = fixture.sessions.Get(state)
	assert.Assert(t, !ok)
	assert.Equal(t, 0, fixture.sessions.Len())
}

func TestFlowAuthorizeRejectsExpiredInvite(t *testing.T) {
	fixture := newFlowFixture(t, service.OAuthFlowServiceConfig{})

	_, err := fixture.flow.Authorize(context.Background(), service.AuthorizeInput{
		Provider:   "google",
		InviteCode: "EXPIRED123",
	})
	assert.Assert(t, errors.Is(err, service.ErrInvalidInvite))
	assert.Equal(t, 0, fixture.sessions.Len())
}

func TestFlowAuthorizeErrors(t *testing.T) {
	ctx := context.Background()
	fixture := newFlowFixture(t, service.OAuthFlowServiceConfig{RequireInvite: true})

	_, err := fixture.flow.Authorize(ctx, service.AuthorizeInput{Provider: "github"})
	assert.Assert(t, errors.Is(err, service.ErrProviderDisabled))

	_, err = fixture.flow.Authorize(ctx, service.AuthorizeInput{Provider: "myspace"})
	assert.Assert(t, errors.Is(err, service.ErrUnsupportedProvider))

	_, err = fixture.flow.Authorize(ctx, service.AuthorizeInput{Provider: "google"})
	assert.Assert(t, errors.Is(err, service.ErrInviteRequired))

	// Requirement only applies while the integration is on
	fixture.invites.enabled = false
	_, err = fixture.flow.Authorize(ctx, service.AuthorizeInput{Provider: "google"})
	assert.NilError(t, err)

	assert.Equal(t, 0, fixture.sessions.Len())
}

func TestFlowAuthorizeSessionOnlyWithContext(t *testing.T) {
	ctx := context.Background()
	fixture := newFlowFixture(t, service.OAuthFlowServiceConfig{AppURL: "https://jellyfin.example.com"})

	// Pure sign in
	_, err := fixture.flow.Authorize(ctx, service.AuthorizeInput{Provider: "Google"})
	assert.NilError(t, err)
	assert.Equal(t, 0, fixture.sessions.Len())

	// Unsafe return URLs are dropped, leaving nothing to store
	_, err = fixture.flow.Authorize(ctx, service.AuthorizeInput{Provider: "google", ReturnURL: "https://evil.com/steal"})
	assert.NilError(t, err)
	assert.Equal(t, 0, fixture.sessions.Len())

	authURL, err := fixture.flow.Authorize(ctx, service.AuthorizeInput{Provider: "google", ReturnURL: "https://jellyfin.example.com/web/#/home"})
	assert.NilError(t, err)
	session, ok := fixture.sessions.Get(stateOf(t, authURL))
	assert.Assert(t, ok)
	assert.Equal(t, "https://jellyfin.example.com/web/#/home", session.ReturnURL)
}

func TestFlowCallbackProviderError(t *testing.T) {
	ctx := context.Background()
	fixture := newFlowFixture(t, service.OAuthFlowServiceConfig{})

	authURL, err := fixture.flow.Authorize(ctx, service.AuthorizeInput{Provider: "google", ReturnURL: "/home"})
	assert.NilError(t, err)
	state := stateOf(t, authURL)
	assert.Equal(t, 1, fixture.sessions.Len())

	_, err = fixture.flow.Callback(ctx, service.CallbackInput{
		Provider: "google",
		State:    state,
		Error:    "access_denied",
	})

	var providerErr *service.ProviderError
	assert.Assert(t, errors.As(err, &providerErr))
	assert.Equal(t, "access_denied", providerErr.Code)

	// The failed attempt consumed its session and created nothing
	assert.Equal(t, 0, fixture.sessions.Len())
	assert.Equal(t, 0, len(fixture.provider.exchanged))
}

func TestFlowCallbackMissingCode(t *testing.T) {
	fixture := newFlowFixture(t, service.OAuthFlowServiceConfig{})

	_, err := fixture.flow.Callback(context.Background(), service.CallbackInput{Provider: "google", State: "whatever"})
	assert.Assert(t, errors.Is(err, service.ErrMissingCode))

	_, err = fixture.flow.Callback(context.Background(), service.CallbackInput{Provider: "github", Code: "XYZ"})
	assert.Assert(t, errors.Is(err, service.ErrProviderDisabled))
}

func TestFlowCallbackWithoutSession(t *testing.T) {
	ctx := context.Background()
	fixture := newFlowFixture(t, service.OAuthFlowServiceConfig{})

	result, err := fixture.flow.Callback(ctx, service.CallbackInput{
		Provider: "google",
		Code:     "XYZ",
		State:    "never-issued",
	})
	assert.NilError(t, err)
	assert.Equal(t, "/web/index.html", result.RedirectURL)
	assert.Equal(t, "", result.InviteCode)
	assert.Equal(t, 0, len(fixture.invites.used))
}

func TestFlowCallbackRequiresInviteSession(t *testing.T) {
	fixture := newFlowFixture(t, service.OAuthFlowServiceConfig{RequireInvite: true})

	_, err := fixture.flow.Callback(context.Background(), service.CallbackInput{
		Provider: "google",
		Code:     "XYZ",
		State:    "never-issued",
	})
	assert.Assert(t, errors.Is(err, service.ErrInviteRequired))
	assert.Equal(t, 0, len(fixture.provider.exchanged))
}

func TestFlowCallbackExpiredSession(t *testing.T) {
	ctx := context.Background()
	fixture := newFlowFixture(t, service.OAuthFlowServiceConfig{})

	authURL, err := fixture.flow.Authorize(ctx, service.AuthorizeInput{Provider: "google", InviteCode: "ABC", ReturnURL: "/home"})
	assert.NilError(t, err)

	fixture.clock.Advance(15 * time.Minute)

	result, err := fixture.flow.Callback(ctx, service.CallbackInput{Provider: "google", Code: "XYZ", State: stateOf(t, authURL)})
	assert.NilError(t, err)
	assert.Equal(t, "/web/index.html", result.RedirectURL)
	assert.Equal(t, 0, len(fixture.invites.used))
	assert.Equal(t, 0, len(result.Account.Libraries))
}

func TestFlowCallbackSessionFromOtherProvider(t *testing.T) {
	ctx := context.Background()
	fixture := newFlowFixture(t, service.OAuthFlowServiceConfig{})

	other := &fakeProvider{id: "pocketid", user: model.OAuthUser{ID: "p-1", Email: "zed@example.com"}}
	broker := service.NewOAuthBrokerService(nil)
	assert.NilError(t, broker.Init())
	broker.Register(fixture.provider)
	broker.Register(other)

	provisioning := newProvisioning(t, service.ProvisioningServiceConfig{AutoCreateUsers: true}, fixture.directory, fixture.invites)
	flow := service.NewOAuthFlowService(service.OAuthFlowServiceConfig{}, broker, fixture.sessions, fixture.invites, provisioning)

	authURL, err := flow.Authorize(ctx, service.AuthorizeInput{Provider: "google", InviteCode: "ABC", ReturnURL: "/home"})
	assert.NilError(t, err)

	result, err := flow.Callback(ctx, service.CallbackInput{Provider: "pocketid", Code: "XYZ", State: stateOf(t, authURL)})
	assert.NilError(t, err)
	assert.Equal(t, "/web/index.html", result.RedirectURL)
	assert.Equal(t, 0, len(fixture.invites.used))
	assert.Equal(t, 0, fixture.sessions.Len())
}

func TestFlowCallbackInviteNotRecorded(t *testing.T) {
	ctx := context.Background()
	fixture := newFlowFixture(t, service.OAuthFlowServiceConfig{})
	fixture.invites.markErr = errors.New("wizarr is down")

	authURL, err := fixture.flow.Authorize(ctx, service.AuthorizeInput{Provider: "google", InviteCode: "ABC"})
	assert.NilError(t, err)

	result, err := fixture.flow.Callback(ctx, service.CallbackInput{Provider: "google", Code: "XYZ", State: stateOf(t, authURL)})
	assert.NilError(t, err)
	assert.Equal(t, service.OutcomeNonFatal, result.InviteRecorded.Outcome)
	assert.Equal(t, "/web/index.html", result.RedirectURL)

	// The account stays created
	_, err = fixture.directory.FindByLogin(ctx, "alice@example.com")
	assert.NilError(t, err)
}

func TestFlowCallbackInviteReturnURL(t *testing.T) {
	ctx := context.Background()
	fixture := newFlowFixture(t, service.OAuthFlowServiceConfig{})

	settings := fixture.invites.invites["ABC"]
	settings.ReturnURL = "/web/#/invited"
	fixture.invites.invites["ABC"] = settings

	authURL, err := fixture.flow.Authorize(ctx, service.AuthorizeInput{Provider: "google", InviteCode: "ABC"})
	assert.NilError(t, err)

	result, err := fixture.flow.Callback(ctx, service.CallbackInput{Provider: "google", Code: "XYZ", State: stateOf(t, authURL)})
	assert.NilError(t, err)
	assert.Equal(t, "/web/#/invited", result.RedirectURL)
}

func TestFlowCallbackUpstreamFailure(t *testing.T) {
	ctx := context.Background()
	fixture := newFlowFixture(t, service.OAuthFlowServiceConfig{})

	authURL, err := fixture.flow.Authorize(ctx, service.AuthorizeInput{Provider: "google", ReturnURL: "/home"})
	assert.NilError(t, err)

	_, err = fixture.flow.Callback(ctx, service.CallbackInput{Provider: "google", Code: "BAD", State: stateOf(t, authURL)})
	assert.Assert(t, errors.Is(err, service.ErrUpstream))
	assert.Equal(t, 0, fixture.sessions.Len())

	// Replaying the state after a failure finds nothing
	result, err := fixture.flow.Callback(ctx, service.CallbackInput{Provider: "google", Code: "XYZ", State: stateOf(t, authURL)})
	assert.NilError(t, err)
	assert.Equal(t, "/web/index.html", result.RedirectURL)
}
