package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/steveiliop56/jellyauth/internal/model"
	"github.com/steveiliop56/jellyauth/internal/repository"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// UserDirectory is the local account store.
type UserDirectory interface {
	FindByLogin(ctx context.Context, login string) (model.Account, error)
	FindBySubject(ctx context.Context, provider string, subject string) (model.Account, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, account model.Account) (model.Account, error)
	Update(ctx context.Context, account model.Account) (model.Account, error)
}

type DirectoryService struct {
	queries *repository.Queries
}

func NewDirectoryService(queries *repository.Queries) *DirectoryService {
	return &DirectoryService{
		queries: queries,
	}
}

// FindByLogin matches the username or the stored email, case-insensitively.
func (directory *DirectoryService) FindByLogin(ctx context.Context, login string) (model.Account, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return model.Account{}, ErrAccountNotFound
	}

	account, err := directory.queries.GetAccountByLogin(ctx, login)
	if err != nil {
		return model.Account{}, directoryError(err)
	}

	return accountFromRow(account)
}

func (directory *DirectoryService) FindBySubject(ctx context.Context, provider string, subject string) (model.Account, error) {
	if provider == "" || subject == "" {
		return model.Account{}, ErrAccountNotFound
	}

	account, err := directory.queries.GetAccountBySubject(ctx, repository.GetAccountBySubjectParams{
		Provider:        provider,
		ProviderSubject: subject,
	})
	if err != nil {
		return model.Account{}, directoryError(err)
	}

	return accountFromRow(account)
}

func (directory *DirectoryService) UsernameExists(ctx context.Context, username string) (bool, error) {
	count, err := directory.queries.CountAccountsByUsername(ctx, username)
	if err != nil {
		return false, directoryError(err)
	}
	return count > 0, nil
}

func (directory *DirectoryService) Get(ctx context.Context, id string) (model.Account, error) {
	account, err := directory.queries.GetAccount(ctx, id)
	if err != nil {
		return model.Account{}, directoryError(err)
	}
	return accountFromRow(account)
}

func (directory *DirectoryService) List(ctx context.Context) ([]model.Account, error) {
	rows, err := directory.queries.ListAccounts(ctx)
	if err != nil {
		return nil, directoryError(err)
	}

	accounts := make([]model.Account, 0, len(rows))
	for _, row := range rows {
		account, err := accountFromRow(row)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	return accounts, nil
}

// Create stores a new account, a taken username returns ErrUsernameTaken.
func (directory *DirectoryService) Create(ctx context.Context, account model.Account) (model.Account, error) {
	if strings.TrimSpace(account.Username) == "" {
		return model.Account{}, fmt.Errorf("%w: username is required", ErrProvisioning)
	}

	policy, libraries, err := encodeAccount(account)
	if err != nil {
		return model.Account{}, err
	}

	now := time.Now().UTC().Unix()

	row, err := directory.queries.CreateAccount(ctx, repository.CreateAccountParams{
		ID:              uuid.New().String(),
		Username:        account.Username,
		Email:           account.Email,
		Provider:        account.Provider,
		ProviderSubject: account.ProviderSubject,
		Policy:          policy,
		Libraries:       libraries,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return model.Account{}, directoryError(err)
	}

	return accountFromRow(row)
}

func (directory *DirectoryService) Update(ctx context.Context, account model.Account) (model.Account, error) {
	policy, libraries, err := encodeAccount(account)
	if err != nil {
		return model.Account{}, err
	}

	row, err := directory.queries.UpdateAccount(ctx, repository.UpdateAccountParams{
		Email:           account.Email,
		Provider:        account.Provider,
		ProviderSubject: account.ProviderSubject,
		Policy:          policy,
		Libraries:       libraries,
		UpdatedAt:       time.Now().UTC().Unix(),
		ID:              account.ID,
	})
	if err != nil {
		return model.Account{}, directoryError(err)
	}

	return accountFromRow(row)
}

func encodeAccount(account model.Account) (string, string, error) {
	policy, err := json.Marshal(account.Policy)
	if err != nil {
		return "", "", fmt.Errorf("%w: failed to encode policy: %w", ErrProvisioning, err)
	}

	libraries := account.Libraries
	if libraries == nil {
		libraries = []string{}
	}

	encodedLibraries, err := json.Marshal(libraries)
	if err != nil {
		return "", "", fmt.Errorf("%w: failed to encode libraries: %w", ErrProvisioning, err)
	}

	return string(policy), string(encodedLibraries), nil
}

func accountFromRow(row repository.Account) (model.Account, error) {
	account := model.Account{
		ID:              row.ID,
		Username:        row.Username,
		Email:           row.Email,
		Provider:        row.Provider,
		ProviderSubject: row.ProviderSubject,
		CreatedAt:       time.Unix(row.CreatedAt, 0).UTC(),
		UpdatedAt:       time.Unix(row.UpdatedAt, 0).UTC(),
	}

	if err := json.Unmarshal([]byte(row.Policy), &account.Policy); err != nil {
		return model.Account{}, fmt.Errorf("%w: corrupt policy for account %s: %w", ErrProvisioning, row.ID, err)
	}

	if err := json.Unmarshal([]byte(row.Libraries), &account.Libraries); err != nil {
		return model.Account{}, fmt.Errorf("%w: corrupt libraries for account %s: %w", ErrProvisioning, row.ID, err)
	}

	return account, nil
}

func directoryError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || (code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")) {
			return ErrUsernameTaken
		}
	}

	return fmt.Errorf("%w: directory: %w", ErrProvisioning, err)
}
