package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/steveiliop56/jellyauth/internal/config"
	"github.com/steveiliop56/jellyauth/internal/metrics"
	"github.com/steveiliop56/jellyauth/internal/utils"
	"github.com/steveiliop56/jellyauth/internal/utils/tlog"
)

type BootstrapApp struct {
	config   config.Config
	db       *sql.DB
	services Services
	metrics  *metrics.Metrics
}

func NewBootstrapApp(config config.Config) *BootstrapApp {
	return &BootstrapApp{
		config: config,
	}
}

// resolveProviders fills secrets from files, default names and redirect URLs.
func (app *BootstrapApp) resolveProviders() {
	providers := make(map[string]config.OAuthServiceConfig, len(app.config.OAuth.Providers))

	for key, provider := range app.config.OAuth.Providers {
		// Routes and the broker use lowercase ids
		id := strings.ToLower(strings.TrimSpace(key))

		provider.ClientSecret = utils.GetSecret(provider.ClientSecret, provider.ClientSecretFile)
		provider.ClientSecretFile = ""

		if provider.Name == "" {
			if name, ok := config.OverrideProviders[id]; ok {
				provider.Name = name
			} else {
				provider.Name = utils.Capitalize(id)
			}
		}

		if provider.RedirectURL == "" && app.config.AppURL != "" {
			provider.RedirectURL = app.config.AppURL + "/oauth/" + id + "/callback"
		}

		providers[id] = provider
	}

	app.config.OAuth.Providers = providers
	app.config.Wizarr.APIKey = utils.GetSecret(app.config.Wizarr.APIKey, app.config.Wizarr.APIKeyFile)
	app.config.Wizarr.APIKeyFile = ""
}

func (app *BootstrapApp) Setup() error {
	app.resolveProviders()

	// Dumps
	tlog.App.Trace().Interface("providers", app.config.OAuth.Providers).Msg("OAuth providers dump")

	// Database
	db, err := app.SetupDatabase(app.config.DatabasePath)

	if err != nil {
		return fmt.Errorf("failed to setup database: %w", err)
	}

	app.db = db

	// Services
	services, err := app.initServices()

	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	app.services = services

	if len(services.oauthBrokerService.GetConfiguredServices()) == 0 {
		tlog.App.Warn().Msg("No OAuth providers are available, every sign in will be rejected")
	}

	if app.config.Metrics.Enabled {
		app.metrics = metrics.New(services.sessionStore.Len)
	}

	// Setup router
	router, err := app.setupRouter()

	if err != nil {
		return fmt.Errorf("failed to setup routes: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	address := fmt.Sprintf("%s:%d", app.config.Server.Address, app.config.Server.Port)

	server := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)

	go func() {
		tlog.App.Info().Msgf("Starting server on %s", address)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
		tlog.App.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		tlog.App.Error().Err(err).Msg("Failed to shut down server cleanly")
	}

	if err := app.db.Close(); err != nil {
		tlog.App.Error().Err(err).Msg("Failed to close database")
	}

	return nil
}
