package repository

import (
	"context"
)

const accountColumns = `id, username, email, provider, provider_subject, policy, libraries, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (Account, error) {
	var i Account
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.Email,
		&i.Provider,
		&i.ProviderSubject,
		&i.Policy,
		&i.Libraries,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createAccount = `-- name: CreateAccount :one
INSERT INTO accounts (
    id,
    username,
    email,
    provider,
    provider_subject,
    policy,
    libraries,
    created_at,
    updated_at
) VALUES (
    ?, ?, ?, ?, ?, ?, ?, ?, ?
)
RETURNING ` + accountColumns

type CreateAccountParams struct {
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

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (Account, error) {
	row := q.db.QueryRowContext(ctx, createAccount,
		arg.ID,
		arg.Username,
		arg.Email,
		arg.Provider,
		arg.ProviderSubject,
		arg.Policy,
		arg.Libraries,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanAccount(row)
}

const getAccount = `-- name: GetAccount :one
SELECT ` + accountColumns + ` FROM accounts
WHERE id = ? LIMIT 1`

func (q *Queries) GetAccount(ctx context.Context, id string) (Account, error) {
	row := q.db.QueryRowContext(ctx, getAccount, id)
	return scanAccount(row)
}

const getAccountByLogin = `-- name: GetAccountByLogin :one
SELECT ` + accountColumns + ` FROM accounts
WHERE username = ?1 OR (email != '' AND email = ?1 COLLATE NOCASE)
ORDER BY username = ?1 DESC
LIMIT 1`

// Username matches win over stored email matches
func (q *Queries) GetAccountByLogin(ctx context.Context, login string) (Account, error) {
	row := q.db.QueryRowContext(ctx, getAccountByLogin, login)
	return scanAccount(row)
}

const getAccountBySubject = `-- name: GetAccountBySubject :one
SELECT ` + accountColumns + ` FROM accounts
WHERE provider = ? AND provider_subject = ? LIMIT 1`

type GetAccountBySubjectParams struct {
	Provider        string
	ProviderSubject string
}

func (q *Queries) GetAccountBySubject(ctx context.Context, arg GetAccountBySubjectParams) (Account, error) {
	row := q.db.QueryRowContext(ctx, getAccountBySubject, arg.Provider, arg.ProviderSubject)
	return scanAccount(row)
}

const countAccountsByUsername = `-- name: CountAccountsByUsername :one
SELECT COUNT(*) FROM accounts
WHERE username = ?`

func (q *Queries) CountAccountsByUsername(ctx context.Context, username string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countAccountsByUsername, username)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listAccounts = `-- name: ListAccounts :many
SELECT ` + accountColumns + ` FROM accounts
ORDER BY username`

func (q *Queries) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := q.db.QueryContext(ctx, listAccounts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Account
	for rows.Next() {
		i, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateAccount = `-- name: UpdateAccount :one
UPDATE accounts SET
    email = ?,
    provider = ?,
    provider_subject = ?,
    policy = ?,
    libraries = ?,
    updated_at = ?
WHERE id = ?
RETURNING ` + accountColumns

type UpdateAccountParams struct {
	Email           string
	Provider        string
	ProviderSubject string
	Policy          string
	Libraries       string
	UpdatedAt       int64
	ID              string
}

func (q *Queries) UpdateAccount(ctx context.Context, arg UpdateAccountParams) (Account, error) {
	row := q.db.QueryRowContext(ctx, updateAccount,
		arg.Email,
		arg.Provider,
		arg.ProviderSubject,
		arg.Policy,
		arg.Libraries,
		arg.UpdatedAt,
		arg.ID,
	)
	return scanAccount(row)
}
