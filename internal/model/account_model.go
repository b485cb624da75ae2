package model

import "time"

type Account struct {
	ID              string
	Username        string
	Email           string
	Provider        string
	ProviderSubject string
	Policy          UserPolicy
	Libraries       []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
