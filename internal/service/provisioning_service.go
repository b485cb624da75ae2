package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/steveiliop56/jellyauth/internal/config"
	"github.com/steveiliop56/jellyauth/internal/model"
	"github.com/steveiliop56/jellyauth/internal/utils"
	"github.com/steveiliop56/jellyauth/internal/utils/tlog"

	"github.com/cenkalti/backoff/v5"
)

// Upper bound on numeric suffixes tried for one base username
const maxUsernameSuffix = 10000

type ProvisioningServiceConfig struct {
	AutoCreateUsers  bool
	MatchStrategy    string
	DefaultLibraries []string
}

type ProvisionResult struct {
	Account model.Account
	Created bool
	// Invite holds the resolved settings, IsValid is false when none were applied
	Invite model.InviteSettings
}

type ProvisioningService struct {
	config    ProvisioningServiceConfig
	directory UserDirectory
	invites   InviteService
}

func NewProvisioningService(config ProvisioningServiceConfig, directory UserDirectory, invites InviteService) *ProvisioningService {
	return &ProvisioningService{
		config:    config,
		directory: directory,
		invites:   invites,
	}
}

func (provisioning *ProvisioningService) Init() error {
	switch provisioning.config.MatchStrategy {
	case "":
		provisioning.config.MatchStrategy = config.MatchStrategyEmail
	case config.MatchStrategyEmail, config.MatchStrategySubject:
	default:
		return fmt.Errorf("%w: unknown match strategy %q", ErrConfiguration, provisioning.config.MatchStrategy)
	}
	return nil
}

func (provisioning *ProvisioningService) Provision(ctx context.Context, user model.OAuthUser, inviteCode string) (model.Account, error) {
	result, err := provisioning.ProvisionWithInvite(ctx, user, inviteCode)
	if err != nil {
		return model.Account{}, err
	}
	return result.Account, nil
}

// ProvisionWithInvite finds or creates the account for user, applying the invite's
// settings when they resolve as valid.
func (provisioning *ProvisioningService) ProvisionWithInvite(ctx context.Context, user model.OAuthUser, inviteCode string) (ProvisionResult, error) {
	var settings model.InviteSettings

	if inviteCode != "" && provisioning.invites != nil && provisioning.invites.Enabled() {
		settings = provisioning.invites.ResolveSettings(ctx, inviteCode)
		if !settings.IsValid {
			tlog.App.Warn().Str("invite", inviteCode).Msg("Invite settings could not be resolved, continuing without them")
		}
	}

	account, err := provisioning.findExisting(ctx, user)

	if err == nil {
		tlog.App.Info().Str("username", account.Username).Str("provider", user.Provider).Msg("Found existing account")

		if !settings.IsValid {
			return ProvisionResult{Account: account, Invite: settings}, nil
		}

		applySettings(&account, settings)

		account, err = provisioning.directory.Update(ctx, account)
		if err != nil {
			return ProvisionResult{}, fmt.Errorf("failed to apply invite settings: %w", err)
		}

		tlog.App.Info().Str("username", account.Username).Str("invite", inviteCode).Msg("Applied invite settings to account")
		return ProvisionResult{Account: account, Invite: settings}, nil
	}

	if !errors.Is(err, ErrAccountNotFound) {
		return ProvisionResult{}, err
	}

	if !provisioning.config.AutoCreateUsers {
		return ProvisionResult{}, ErrUserCreationDisabled
	}

	account, err = provisioning.create(ctx, user, settings)
	if err != nil {
		return ProvisionResult{}, err
	}

	tlog.App.Info().Str("username", account.Username).Str("provider", user.Provider).Msg("Created account")
	tlog.AuditAccountCreated(account.ID, account.Username, user.Provider, settings.IsValid)

	return ProvisionResult{Account: account, Created: true, Invite: settings}, nil
}

func (provisioning *ProvisioningService) findExisting(ctx context.Context, user model.OAuthUser) (model.Account, error) {
	if provisioning.config.MatchStrategy == config.MatchStrategySubject {
		return provisioning.directory.FindBySubject(ctx, user.Provider, user.ID)
	}
	return provisioning.directory.FindByLogin(ctx, user.Email)
}

func (provisioning *ProvisioningService) create(ctx context.Context, user model.OAuthUser, settings model.InviteSettings) (model.Account, error) {
	account := model.Account{
		Email:           user.Email,
		Provider:        user.Provider,
		ProviderSubject: user.ID,
		Policy:          model.DefaultUserPolicy(),
		Libraries:       provisioning.config.DefaultLibraries,
	}

	if settings.IsValid {
		applySettings(&account, settings)
	}

	base := BaseUsername(user)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 50 * time.Millisecond
	exp.RandomizationFactor = 0.5
	exp.Multiplier = 2
	exp.Reset()

	// Concurrent sign ins can race for the same free username, regenerate when we lose
	operation := func() (model.Account, error) {
		username, err := provisioning.uniqueUsername(ctx, base)
		if err != nil {
			return model.Account{}, backoff.Permanent(err)
		}

		candidate := account
		candidate.Username = username

		created, err := provisioning.directory.Create(ctx, candidate)
		if errors.Is(err, ErrUsernameTaken) {
			tlog.App.Debug().Str("username", username).Msg("Username was taken concurrently, retrying")
			return model.Account{}, err
		}
		if err != nil {
			return model.Account{}, backoff.Permanent(err)
		}

		return created, nil
	}

	created, err := backoff.Retry(ctx, operation, backoff.WithBackOff(exp), backoff.WithMaxTries(5))
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	return created, nil
}

func (provisioning *ProvisioningService) uniqueUsername(ctx context.Context, base string) (string, error) {
	username := base

	for counter := 1; counter <= maxUsernameSuffix; counter++ {
		exists, err := provisioning.directory.UsernameExists(ctx, username)
		if err != nil {
			return "", err
		}
		if !exists {
			return username, nil
		}
		username = base + strconv.Itoa(counter)
	}

	return "", fmt.Errorf("%w: no free username for %s", ErrProvisioning, base)
}

// BaseUsername sanitizes the display name, then the email local part, then falls
// back to a placeholder.
func BaseUsername(user model.OAuthUser) string {
	for _, candidate := range []string{user.Name, utils.EmailLocalPart(user.Email)} {
		if sanitized := utils.SanitizeUsername(candidate); sanitized != "" {
			return sanitized
		}
	}
	return config.DefaultUsername
}

func applySettings(account *model.Account, settings model.InviteSettings) {
	if len(settings.Libraries) > 0 {
		account.Libraries = append([]string(nil), settings.Libraries...)
	}
	if settings.Policy != nil {
		account.Policy = *settings.Policy
	}
}
