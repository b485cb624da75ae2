package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/steveiliop56/jellyauth/internal/config"
	"github.com/steveiliop56/jellyauth/internal/model"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var AppleOAuthScopes = []string{"name", "email"}

const (
	AppleIssuer   = "https://appleid.apple.com"
	AppleAuthURL  = "https://appleid.apple.com/auth/authorize"
	AppleTokenURL = "https://appleid.apple.com/auth/token"
	AppleKeysURL  = "https://appleid.apple.com/auth/keys"
)

// Apple caps client secrets at six months, a short lived one per exchange is enough
const appleClientSecretTTL = 5 * time.Minute

type AppleIDTokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type AppleOAuthService struct {
	client     oauthClient
	name       string
	teamID     string
	keyID      string
	keyPEM     string
	keyFile    string
	keysURL    string
	privateKey *ecdsa.PrivateKey

	keysMutex sync.Mutex
	keyfunc   jwt.Keyfunc
}

func NewAppleOAuthService(config config.OAuthServiceConfig) *AppleOAuthService {
	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = AppleOAuthScopes
	}

	endpoint := oauth2.Endpoint{
		AuthURL:   AppleAuthURL,
		TokenURL:  AppleTokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	if config.AuthURL != "" {
		endpoint.AuthURL = config.AuthURL
	}
	if config.TokenURL != "" {
		endpoint.TokenURL = config.TokenURL
	}

	// Apple has no userinfo endpoint, the override points at the signing keys instead
	keysURL := AppleKeysURL
	if config.UserinfoURL != "" {
		keysURL = config.UserinfoURL
	}

	return &AppleOAuthService{
		client: oauthClient{
			service: "apple",
			config: oauth2.Config{
				ClientID:    config.ClientID,
				RedirectURL: config.RedirectURL,
				Scopes:      scopes,
				Endpoint:    endpoint,
			},
		},
		name:    config.Name,
		teamID:  config.TeamID,
		keyID:   config.KeyID,
		keyPEM:  config.PrivateKey,
		keyFile: config.PrivateKeyFile,
		keysURL: keysURL,
	}
}

// WithKeyfunc replaces the JWKS lookup used to verify identity tokens.
func (apple *AppleOAuthService) WithKeyfunc(kf jwt.Keyfunc) *AppleOAuthService {
	apple.keysMutex.Lock()
	defer apple.keysMutex.Unlock()
	apple.keyfunc = kf
	return apple
}

func (apple *AppleOAuthService) Init() error {
	if apple.client.config.ClientID == "" || apple.teamID == "" || apple.keyID == "" {
		return errors.New("apple needs a client id, team id and key id")
	}

	keyPEM := apple.keyPEM
	if keyPEM == "" && apple.keyFile != "" {
		contents, err := os.ReadFile(apple.keyFile)
		if err != nil {
			return fmt.Errorf("failed to read apple private key: %w", err)
		}
		keyPEM = string(contents)
	}

	if keyPEM == "" {
		return errors.New("apple needs a private key")
	}

	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(keyPEM))
	if err != nil {
		return fmt.Errorf("failed to parse apple private key: %w", err)
	}

	apple.privateKey = key
	apple.client.httpClient = newHTTPClient(false)
	return nil
}

func (apple *AppleOAuthService) ID() string {
	return "apple"
}

func (apple *AppleOAuthService) Name() string {
	return apple.name
}

func (apple *AppleOAuthService) AuthURL(state string) string {
	return apple.client.authURL(state, oauth2.SetAuthURLParam("response_mode", "form_post"))
}

func (apple *AppleOAuthService) ClientSecret(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    apple.teamID,
		Subject:   apple.client.config.ClientID,
		Audience:  jwt.ClaimStrings{AppleIssuer},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(appleClientSecretTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = apple.keyID

	return token.SignedString(apple.privateKey)
}

func (apple *AppleOAuthService) ExchangeCode(ctx context.Context, code string) (model.TokenResponse, error) {
	secret, err := apple.ClientSecret(time.Now())
	if err != nil {
		return model.TokenResponse{}, fmt.Errorf("%w: failed to sign apple client secret: %w", ErrConfiguration, err)
	}

	// Copy so concurrent exchanges never share a secret
	cfg := apple.client.config
	cfg.ClientSecret = secret

	return apple.client.exchange(ctx, cfg, code)
}

func (apple *AppleOAuthService) Identity(ctx context.Context, token model.TokenResponse) (model.OAuthUser, error) {
	if token.IDToken == "" {
		return model.OAuthUser{}, malformedIdentity("apple", "an id token")
	}

	kf, err := apple.getKeyfunc(ctx)
	if err != nil {
		return model.OAuthUser{}, err
	}

	var claims AppleIDTokenClaims

	_, err = jwt.ParseWithClaims(token.IDToken, &claims, kf,
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithIssuer(AppleIssuer),
		jwt.WithAudience(apple.client.config.ClientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.OAuthUser{}, fmt.Errorf("%w: apple id token: %w", ErrMalformedIdentity, err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return model.OAuthUser{}, malformedIdentity("apple", "a subject")
	}

	if strings.TrimSpace(claims.Email) == "" {
		return model.OAuthUser{}, malformedIdentity("apple", "an email")
	}

	return model.OAuthUser{
		ID:              claims.Subject,
		Email:           claims.Email,
		Provider:        apple.ID(),
		AuthenticatedAt: time.Now().UTC(),
	}, nil
}

func (apple *AppleOAuthService) getKeyfunc(ctx context.Context) (jwt.Keyfunc, error) {
	apple.keysMutex.Lock()
	defer apple.keysMutex.Unlock()

	if apple.keyfunc != nil {
		return apple.keyfunc, nil
	}

	// The keyset refreshes in the background for the lifetime of the process
	jwks, err := keyfunc.NewDefaultCtx(context.WithoutCancel(ctx), []string{apple.keysURL})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load apple signing keys: %w", ErrUpstream, err)
	}

	apple.keyfunc = jwks.Keyfunc
	return apple.keyfunc, nil
}
