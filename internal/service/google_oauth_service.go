package service

import (
	"context"
	"strings"
	"time"

	"github.com/steveiliop56/jellyauth/internal/config"
	"github.com/steveiliop56/jellyauth/internal/model"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

var GoogleOAuthScopes = []string{"email", "profile"}

const GoogleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type GoogleUserInfoResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
	// VerifiedEmail is always sent by the v2 endpoint, absent is treated as verified
	VerifiedEmail *bool `json:"verified_email"`
}

type GoogleOAuthService struct {
	client      oauthClient
	name        string
	userinfoURL string
}

func NewGoogleOAuthService(config config.OAuthServiceConfig) *GoogleOAuthService {
	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = GoogleOAuthScopes
	}

	endpoint := endpoints.Google
	if config.AuthURL != "" {
		endpoint.AuthURL = config.AuthURL
	}
	if config.TokenURL != "" {
		endpoint.TokenURL = config.TokenURL
	}

	userinfoURL := GoogleUserinfoURL
	if config.UserinfoURL != "" {
		userinfoURL = config.UserinfoURL
	}

	return &GoogleOAuthService{
		client: oauthClient{
			service: "google",
			config: oauth2.Config{
				ClientID:     config.ClientID,
				ClientSecret: config.ClientSecret,
				RedirectURL:  config.RedirectURL,
				Scopes:       scopes,
				Endpoint:     endpoint,
			},
		},
		name:        config.Name,
		userinfoURL: userinfoURL,
	}
}

func (google *GoogleOAuthService) Init() error {
	google.client.httpClient = newHTTPClient(false)
	return nil
}

func (google *GoogleOAuthService) ID() string {
	return "google"
}

func (google *GoogleOAuthService) Name() string {
	return google.name
}

func (google *GoogleOAuthService) AuthURL(state string) string {
	return google.client.authURL(state, oauth2.AccessTypeOffline)
}

func (google *GoogleOAuthService) ExchangeCode(ctx context.Context, code string) (model.TokenResponse, error) {
	return google.client.exchange(ctx, google.client.config, code)
}

func (google *GoogleOAuthService) Identity(ctx context.Context, token model.TokenResponse) (model.OAuthUser, error) {
	var userInfo GoogleUserInfoResponse

	err := google.client.getJSON(ctx, token.AccessToken, google.userinfoURL, nil, &userInfo)
	if err != nil {
		return model.OAuthUser{}, err
	}

	if strings.TrimSpace(userInfo.ID) == "" {
		return model.OAuthUser{}, malformedIdentity("google", "an id")
	}

	if strings.TrimSpace(userInfo.Email) == "" {
		return model.OAuthUser{}, malformedIdentity("google", "an email")
	}

	if userInfo.VerifiedEmail != nil && !*userInfo.VerifiedEmail {
		return model.OAuthUser{}, unverifiedEmail("google")
	}

	return model.OAuthUser{
		ID:              userInfo.ID,
		Email:           userInfo.Email,
		Name:            userInfo.Name,
		GivenName:       userInfo.GivenName,
		FamilyName:      userInfo.FamilyName,
		Picture:         userInfo.Picture,
		Provider:        google.ID(),
		AuthenticatedAt: time.Now().UTC(),
	}, nil
}
