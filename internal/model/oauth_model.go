package model

import "time"

// OAuthUser is the identity returned by a provider for a single callback.
type OAuthUser struct {
	ID              string
	Email           string
	Name            string
	GivenName       string
	FamilyName      string
	Picture         string
	Provider        string
	AuthenticatedAt time.Time
}

type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Scope        string
	IDToken      string
}

// OAuthSessionData links a state token to the context of one flow attempt.
type OAuthSessionData struct {
	Provider   string
	InviteCode string
	ReturnURL  string
	ExpiresAt  time.Time
}

func (s OAuthSessionData) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
