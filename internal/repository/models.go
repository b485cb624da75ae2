package repository

type Account struct {
	ID              string
	Username        string
	Email           string
	Provider        string
	ProviderSubject string
	Policy          string
	Libraries       string
	CreatedAt       int64
	UpdatedAt       int64
}
