package bootstrap

import (
	"github.com/steveiliop56/jellyauth/internal/config"
	"github.com/steveiliop56/jellyauth/internal/repository"
	"github.com/steveiliop56/jellyauth/internal/service"
	"github.com/steveiliop56/jellyauth/internal/utils/tlog"
)

type Services struct {
	directoryService    *service.DirectoryService
	oauthBrokerService  *service.OAuthBrokerService
	oauthFlowService    *service.OAuthFlowService
	provisioningService *service.ProvisioningService
	sessionStore        *service.SessionStore
	wizarrService       *service.WizarrService
}

func (app *BootstrapApp) initServices() (Services, error) {
	services := Services{}

	directoryService := service.NewDirectoryService(repository.New(app.db))

	services.directoryService = directoryService

	wizarrService := service.NewWizarrService(service.WizarrServiceConfig{
		Enabled: app.config.Wizarr.Enabled,
		URL:     app.config.Wizarr.URL,
		APIKey:  app.config.Wizarr.APIKey,
	})

	err := wizarrService.Init()

	if err != nil {
		return Services{}, err
	}

	services.wizarrService = wizarrService

	if wizarrService.Enabled() {
		tlog.App.Info().Str("url", app.config.Wizarr.URL).Bool("requireInvite", app.config.Wizarr.RequireInvite).Msg("Wizarr integration enabled")
	}

	oauthBrokerService := service.NewOAuthBrokerService(app.config.OAuth.Providers)

	err = oauthBrokerService.Init()

	if err != nil {
		return Services{}, err
	}

	services.oauthBrokerService = oauthBrokerService

	provisioningService := service.NewProvisioningService(service.ProvisioningServiceConfig{
		AutoCreateUsers:  app.config.Provisioning.AutoCreateUsers,
		MatchStrategy:    app.config.Provisioning.MatchStrategy,
		DefaultLibraries: app.config.Provisioning.DefaultLibraries,
	}, directoryService, wizarrService)

	err = provisioningService.Init()

	if err != nil {
		return Services{}, err
	}

	services.provisioningService = provisioningService

	sessionStore := service.NewSessionStore(service.SessionStoreConfig{})

	services.sessionStore = sessionStore

	oauthFlowService := service.NewOAuthFlowService(service.OAuthFlowServiceConfig{
		AppURL:           app.config.AppURL,
		DefaultReturnURL: app.config.OAuth.DefaultReturnURL,
		RequireInvite:    app.config.Wizarr.RequireInvite,
		SessionTTL:       config.SessionTTL,
	}, oauthBrokerService, sessionStore, wizarrService, provisioningService)

	services.oauthFlowService = oauthFlowService

	return services, nil
}
