package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/steveiliop56/jellyauth/internal/config"
	"github.com/steveiliop56/jellyauth/internal/model"

	"golang.org/x/oauth2"
)

// GenericClaims covers the standard OIDC userinfo claims
type GenericClaims struct {
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Picture           string `json:"picture"`
	// EmailVerified is optional, only an explicit false is rejected
	EmailVerified *bool `json:"email_verified"`
}

type GenericOAuthService struct {
	id                 string
	name               string
	client             oauthClient
	insecureSkipVerify bool
	userinfoURL        string
}

func NewGenericOAuthService(id string, config config.OAuthServiceConfig) *GenericOAuthService {
	return &GenericOAuthService{
		id:   id,
		name: config.Name,
		client: oauthClient{
			service: id,
			config: oauth2.Config{
				ClientID:     config.ClientID,
				ClientSecret: config.ClientSecret,
				RedirectURL:  config.RedirectURL,
				Scopes:       config.Scopes,
				Endpoint: oauth2.Endpoint{
					AuthURL:  config.AuthURL,
					TokenURL: config.TokenURL,
				},
			},
		},
		insecureSkipVerify: config.InsecureSkipVerify,
		userinfoURL:        config.UserinfoURL,
	}
}

func (generic *GenericOAuthService) Init() error {
	if generic.client.config.Endpoint.AuthURL == "" || generic.client.config.Endpoint.TokenURL == "" || generic.userinfoURL == "" {
		return errors.New("generic providers need an auth, token and user info URL")
	}
	generic.client.httpClient = newHTTPClient(generic.insecureSkipVerify)
	return nil
}

func (generic *GenericOAuthService) ID() string {
	return generic.id
}

func (generic *GenericOAuthService) Name() string {
	return generic.name
}

func (generic *GenericOAuthService) AuthURL(state string) string {
	return generic.client.authURL(state, oauth2.AccessTypeOffline)
}

func (generic *GenericOAuthService) ExchangeCode(ctx context.Context, code string) (model.TokenResponse, error) {
	return generic.client.exchange(ctx, generic.client.config, code)
}

func (generic *GenericOAuthService) Identity(ctx context.Context, token model.TokenResponse) (model.OAuthUser, error) {
	var claims GenericClaims

	err := generic.client.getJSON(ctx, token.AccessToken, generic.userinfoURL, nil, &claims)
	if err != nil {
		return model.OAuthUser{}, err
	}

	if strings.TrimSpace(claims.Sub) == "" {
		return model.OAuthUser{}, malformedIdentity(generic.id, "a subject")
	}

	if strings.TrimSpace(claims.Email) == "" {
		return model.OAuthUser{}, malformedIdentity(generic.id, "an email")
	}

	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return model.OAuthUser{}, unverifiedEmail(generic.id)
	}

	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}

	return model.OAuthUser{
		ID:              claims.Sub,
		Email:           claims.Email,
		Name:            name,
		GivenName:       claims.GivenName,
		FamilyName:      claims.FamilyName,
		Picture:         claims.Picture,
		Provider:        generic.id,
		AuthenticatedAt: time.Now().UTC(),
	}, nil
}
