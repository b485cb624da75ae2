package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/steveiliop56/jellyauth/internal/config"
	"github.com/steveiliop56/jellyauth/internal/model"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

var GithubOAuthScopes = []string{"user:email", "read:user"}

const GithubAPIURL = "https://api.github.com"

var githubHeaders = map[string]string{
	"Accept": "application/vnd.github+json",
}

type GithubEmailResponse []struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

type GithubUserInfoResponse struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	ID        int64  `json:"id"`
	AvatarURL string `json:"avatar_url"`
}

type GithubOAuthService struct {
	client oauthClient
	name   string
	apiURL string
}

func NewGithubOAuthService(config config.OAuthServiceConfig) *GithubOAuthService {
	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = GithubOAuthScopes
	}

	endpoint := endpoints.GitHub
	if config.AuthURL != "" {
		endpoint.AuthURL = config.AuthURL
	}
	if config.TokenURL != "" {
		endpoint.TokenURL = config.TokenURL
	}

	// The user info URL doubles as the API base for github enterprise
	apiURL := GithubAPIURL
	if config.UserinfoURL != "" {
		apiURL = config.UserinfoURL
	}

	return &GithubOAuthService{
		client: oauthClient{
			service: "github",
			config: oauth2.Config{
				ClientID:     config.ClientID,
				ClientSecret: config.ClientSecret,
				RedirectURL:  config.RedirectURL,
				Scopes:       scopes,
				Endpoint:     endpoint,
			},
		},
		name:   config.Name,
		apiURL: apiURL,
	}
}

func (github *GithubOAuthService) Init() error {
	github.client.httpClient = newHTTPClient(false)
	return nil
}

func (github *GithubOAuthService) ID() string {
	return "github"
}

func (github *GithubOAuthService) Name() string {
	return github.name
}

func (github *GithubOAuthService) AuthURL(state string) string {
	return github.client.authURL(state, oauth2.AccessTypeOffline)
}

func (github *GithubOAuthService) ExchangeCode(ctx context.Context, code string) (model.TokenResponse, error) {
	return github.client.exchange(ctx, github.client.config, code)
}

func (github *GithubOAuthService) Identity(ctx context.Context, token model.TokenResponse) (model.OAuthUser, error) {
	var userInfo GithubUserInfoResponse

	err := github.client.getJSON(ctx, token.AccessToken, github.apiURL+"/user", githubHeaders, &userInfo)
	if err != nil {
		return model.OAuthUser{}, err
	}

	if userInfo.ID == 0 {
		return model.OAuthUser{}, malformedIdentity("github", "an id")
	}

	var emails GithubEmailResponse

	err = github.client.getJSON(ctx, token.AccessToken, github.apiURL+"/user/emails", githubHeaders, &emails)
	if err != nil {
		return model.OAuthUser{}, err
	}

	email, err := githubVerifiedEmail(emails)
	if err != nil {
		return model.OAuthUser{}, err
	}

	name := userInfo.Name
	if name == "" {
		name = userInfo.Login
	}

	return model.OAuthUser{
		ID:              strconv.FormatInt(userInfo.ID, 10),
		Email:           email,
		Name:            name,
		Picture:         userInfo.AvatarURL,
		Provider:        github.ID(),
		AuthenticatedAt: time.Now().UTC(),
	}, nil
}

// githubVerifiedEmail picks the primary verified email, else the first verified one.
func githubVerifiedEmail(emails GithubEmailResponse) (string, error) {
	var email string

	for _, e := range emails {
		if !e.Verified || strings.TrimSpace(e.Email) == "" {
			continue
		}
		if e.Primary {
			return e.Email, nil
		}
		if email == "" {
			email = e.Email
		}
	}

	if email != "" {
		return email, nil
	}

	if len(emails) > 0 {
		return "", unverifiedEmail("github")
	}

	return "", malformedIdentity("github", "an email")
}
