package service

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/steveiliop56/jellyauth/internal/model"

	"golang.org/x/oauth2"
)

// upstream bodies can be large html error pages, keep what is useful for the log
const maxUpstreamBody = 4096

func newHTTPClient(insecureSkipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: insecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}

	return &http.Client{
		Transport: transport,
		// Providers should never take more than 30 seconds to respond
		Timeout: 30 * time.Second,
	}
}

// oauthClient holds the pieces every authorization code provider shares.
// It keeps no per flow state so one instance serves concurrent callbacks.
type oauthClient struct {
	service    string
	config     oauth2.Config
	httpClient *http.Client
}

func (client *oauthClient) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, client.httpClient)
}

func (client *oauthClient) authURL(state string, opts ...oauth2.AuthCodeOption) string {
	return client.config.AuthCodeURL(state, opts...)
}

func (client *oauthClient) exchange(ctx context.Context, config oauth2.Config, code string) (model.TokenResponse, error) {
	token, err := config.Exchange(client.context(ctx), code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return model.TokenResponse{}, &UpstreamError{
				Service: client.service,
				Status:  retrieveErr.Response.StatusCode,
				Body:    truncate(string(retrieveErr.Body)),
			}
		}
		return model.TokenResponse{}, fmt.Errorf("%w: %s token exchange: %w", ErrUpstream, client.service, err)
	}

	return tokenResponse(token), nil
}

// getJSON performs an authenticated GET and decodes a 2xx body into out.
func (client *oauthClient) getJSON(ctx context.Context, accessToken string, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	res, err := client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s request: %w", ErrUpstream, client.service, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: %s response: %w", ErrUpstream, client.service, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &UpstreamError{
			Service: client.service,
			Status:  res.StatusCode,
			Body:    truncate(string(body)),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s returned invalid json: %w", ErrMalformedIdentity, client.service, err)
	}

	return nil
}

func tokenResponse(token *oauth2.Token) model.TokenResponse {
	res := model.TokenResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		ExpiresIn:    token.ExpiresIn,
	}

	if scope, ok := token.Extra("scope").(string); ok {
		res.Scope = scope
	}

	if idToken, ok := token.Extra("id_token").(string); ok {
		res.IDToken = idToken
	}

	return res
}

func truncate(body string) string {
	if len(body) > maxUpstreamBody {
		return body[:maxUpstreamBody]
	}
	return body
}
