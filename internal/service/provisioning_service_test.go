package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/steveiliop56/jellyauth/internal/bootstrap"
	"github.com/steveiliop56/jellyauth/internal/config"
	"github.com/steveiliop56/jellyauth/internal/model"
	"github.com/steveiliop56/jellyauth/internal/repository"
	"github.com/steveiliop56/jellyauth/internal/service"
	"github.com/steveiliop56/jellyauth/internal/utils/tlog"

	"gotest.tools/v3/assert"
)

func newTestDirectory(t *testing.T) *service.DirectoryService {
	tlog.NewSimpleLogger().Init()

	app := bootstrap.NewBootstrapApp(config.Config{})
	db, err := app.SetupDatabase(filepath.Join(t.TempDir(), "jellyauth.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { db.Close() })

	return service.NewDirectoryService(repository.New(db))
}

type fakeInvites struct {
	mutex    sync.Mutex
	enabled  bool
	invites  map[string]model.InviteSettings
	resolved []string
	used     map[string]string
	markErr  error
}

func newFakeInvites() *fakeInvites {
	policy := model.DefaultUserPolicy()
	policy.EnableContentDownloading = true

	return &fakeInvites{
		enabled: true,
		invites: map[string]model.InviteSettings{
			"ABC": {
				InviteCode: "ABC",
				Libraries:  []string{"Movies", "Shows"},
				Policy:     &policy,
				IsValid:    true,
			},
		},
		used: make(map[string]string),
	}
}

func (f *fakeInvites) Enabled() bool {
	return f.enabled
}

func (f *fakeInvites) Validate(ctx context.Context, code string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	_, ok := f.invites[code]
	return f.enabled && ok
}

func (f *fakeInvites) ResolveSettings(ctx context.Context, code string) model.InviteSettings {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.resolved = append(f.resolved, code)
	if settings, ok := f.invites[code]; ok {
		return settings
	}
	return model.InviteSettings{InviteCode: code}
}

func (f *fakeInvites) MarkUsed(ctx context.Context, code string, accountID string) service.Result {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.markErr != nil {
		return service.NonFatal(f.markErr)
	}
	f.used[code] = accountID
	return service.Succeeded()
}

func (f *fakeInvites) Available(ctx context.Context) bool {
	return f.enabled
}

func newProvisioning(t *testing.T, cfg service.ProvisioningServiceConfig, directory service.UserDirectory, invites service.InviteService) *service.ProvisioningService {
	provisioning := service.NewProvisioningService(cfg, directory, invites)
	assert.NilError(t, provisioning.Init())
	return provisioning
}

func TestProvisionUniqueUsername(t *testing.T) {
	ctx := context.Background()
	cfg := service.ProvisioningServiceConfig{AutoCreateUsers: true}

	// Empty directory
	directory := newTestDirectory(t)
	provisioning := newProvisioning(t, cfg, directory, nil)

	account, err := provisioning.Provision(ctx, model.OAuthUser{ID: "1", Email: "alice@example.com", Provider: "google"}, "")
	assert.NilError(t, err)
	assert.Equal(t, "alice", account.Username)
	assert.Equal(t, "alice@example.com", account.Email)
	assert.DeepEqual(t, model.DefaultUserPolicy(), account.Policy)

	// Directory already holding alice
	directory = newTestDirectory(t)
	_, err = directory.Create(ctx, model.Account{Username: "alice"})
	assert.NilError(t, err)
	provisioning = newProvisioning(t, cfg, directory, nil)

	account, err = provisioning.Provision(ctx, model.OAuthUser{ID: "1", Email: "alice@example.com", Provider: "google"}, "")
	assert.NilError(t, err)
	assert.Equal(t, "alice1", account.Username)

	account, err = provisioning.Provision(ctx, model.OAuthUser{ID: "2", Email: "alice@other.com", Provider: "google"}, "")
	assert.NilError(t, err)
	assert.Equal(t, "alice2", account.Username)
}

func TestProvisionMatchesExistingByEmail(t *testing.T) {
	ctx := context.Background()
	directory := newTestDirectory(t)

	bob, err := directory.Create(ctx, model.Account{Username: "bob", Email: "bob@example.com"})
	assert.NilError(t, err)

	// Auto creation off proves no account is created
	provisioning := newProvisioning(t, service.ProvisioningServiceConfig{}, directory, nil)

	account, err := provisioning.Provision(ctx, model.OAuthUser{ID: "99", Email: "BOB@example.com", Provider: "github"}, "")
	assert.NilError(t, err)
	assert.Equal(t, bob.ID, account.ID)
	assert.Equal(t, "bob", account.Username)

	accounts, err := directory.List(ctx)
	assert.NilError(t, err)
	assert.Equal(t, 1, len(accounts))

	// Accounts named after the email match too
	_, err = directory.Create(ctx, model.Account{Username: "carol@example.com"})
	assert.NilError(t, err)

	account, err = provisioning.Provision(ctx, model.OAuthUser{ID: "3", Email: "Carol@Example.com"}, "")
	assert.NilError(t, err)
	assert.Equal(t, "carol@example.com", account.Username)
}

func TestProvisionMatchesBySubject(t *testing.T) {
	ctx := context.Background()
	directory := newTestDirectory(t)

	existing, err := directory.Create(ctx, model.Account{Username: "dave", Email: "dave@example.com", Provider: "google", ProviderSubject: "g-1"})
	assert.NilError(t, err)

	provisioning := newProvisioning(t, service.ProvisioningServiceConfig{
		AutoCreateUsers: true,
		MatchStrategy:   config.MatchStrategySubject,
	}, directory, nil)

	account, err := provisioning.Provision(ctx, model.OAuthUser{ID: "g-1", Email: "new@example.com", Provider: "google"}, "")
	assert.NilError(t, err)
	assert.Equal(t, existing.ID, account.ID)

	// Same email from another provider is a different account
	account, err = provisioning.Provision(ctx, model.OAuthUser{ID: "gh-1", Email: "dave@example.com", Name: "Dave", Provider: "github"}, "")
	assert.NilError(t, err)
	assert.Assert(t, account.ID != existing.ID)
	assert.Equal(t, "Dave1", account.Username)
}

func TestProvisionAppliesInvite(t *testing.T) {
	ctx := context.Background()
	directory := newTestDirectory(t)
	invites := newFakeInvites()

	provisioning := newProvisioning(t, service.ProvisioningServiceConfig{
		AutoCreateUsers:  true,
		DefaultLibraries: []string{"Kids"},
	}, directory, invites)

	// New account with invite settings
	result, err := provisioning.ProvisionWithInvite(ctx, model.OAuthUser{ID: "1", Email: "erin@example.com", Name: "Erin Smith"}, "ABC")
	assert.NilError(t, err)
	assert.Assert(t, result.Created)
	assert.Assert(t, result.Invite.IsValid)
	assert.Equal(t, "ErinSmith", result.Account.Username)
	assert.DeepEqual(t, []string{"Movies", "Shows"}, result.Account.Libraries)
	assert.Assert(t, result.Account.Policy.EnableContentDownloading)

	// Invalid invite falls back to the defaults
	result, err = provisioning.ProvisionWithInvite(ctx, model.OAuthUser{ID: "2", Email: "frank@example.com"}, "NOPE")
	assert.NilError(t, err)
	assert.Assert(t, result.Created)
	assert.Assert(t, !result.Invite.IsValid)
	assert.DeepEqual(t, []string{"Kids"}, result.Account.Libraries)
	assert.DeepEqual(t, model.DefaultUserPolicy(), result.Account.Policy)

	// Existing account gets the invite applied and persisted
	result, err = provisioning.ProvisionWithInvite(ctx, model.OAuthUser{ID: "2", Email: "frank@example.com"}, "ABC")
	assert.NilError(t, err)
	assert.Assert(t, !result.Created)
	assert.DeepEqual(t, []string{"Movies", "Shows"}, result.Account.Libraries)

	stored, err := directory.FindByLogin(ctx, "frank@example.com")
	assert.NilError(t, err)
	assert.DeepEqual(t, []string{"Movies", "Shows"}, stored.Libraries)
	assert.Assert(t, stored.Policy.EnableContentDownloading)

	// Disabled integration never resolves
	invites.enabled = false
	invites.resolved = nil
	_, err = provisioning.ProvisionWithInvite(ctx, model.OAuthUser{ID: "3", Email: "gina@example.com"}, "ABC")
	assert.NilError(t, err)
	assert.Equal(t, 0, len(invites.resolved))
}

func TestProvisionCreationDisabled(t *testing.T) {
	directory := newTestDirectory(t)
	provisioning := newProvisioning(t, service.ProvisioningServiceConfig{}, directory, nil)

	_, err := provisioning.Provision(context.Background(), model.OAuthUser{ID: "1", Email: "nobody@example.com"}, "")
	assert.Assert(t, errors.Is(err, service.ErrUserCreationDisabled))
	assert.Assert(t, errors.Is(err, service.ErrProvisioning))
}

func TestProvisionConcurrentSameBase(t *testing.T) {
	ctx := context.Background()
	directory := newTestDirectory(t)
	provisioning := newProvisioning(t, service.ProvisioningServiceConfig{AutoCreateUsers: true}, directory, nil)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	usernames := make([]string, 4)

	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			account, err := provisioning.Provision(ctx, model.OAuthUser{
				ID:    fmt.Sprint(i),
				Email: fmt.Sprintf("sam@host%d.com", i),
			}, "")
			errs[i] = err
			usernames[i] = account.Username
		}()
	}

	wg.Wait()

	seen := make(map[string]bool)
	for i := range 4 {
		assert.NilError(t, errs[i])
		assert.Assert(t, !seen[usernames[i]], "duplicate username %s", usernames[i])
		seen[usernames[i]] = true
	}
}

func TestBaseUsername(t *testing.T) {
	assert.Equal(t, "JohnDoe", service.BaseUsername(model.OAuthUser{Name: "John Doe", Email: "jd@example.com"}))
	assert.Equal(t, "jdoe", service.BaseUsername(model.OAuthUser{Email: "j.doe@example.com"}))
	assert.Equal(t, "OAuthUser", service.BaseUsername(model.OAuthUser{Name: " . @ "}))
}

func TestDirectoryUsernameTaken(t *testing.T) {
	ctx := context.Background()
	directory := newTestDirectory(t)

	_, err := directory.Create(ctx, model.Account{Username: "Alice"})
	assert.NilError(t, err)

	_, err = directory.Create(ctx, model.Account{Username: "alice"})
	assert.Assert(t, errors.Is(err, service.ErrUsernameTaken))

	exists, err := directory.UsernameExists(ctx, "ALICE")
	assert.NilError(t, err)
	assert.Assert(t, exists)

	_, err = directory.FindByLogin(ctx, "missing@example.com")
	assert.Assert(t, errors.Is(err, service.ErrAccountNotFound))
}
