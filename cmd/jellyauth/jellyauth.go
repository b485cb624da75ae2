package main

import (
	"fmt"

	"github.com/steveiliop56/jellyauth/internal/bootstrap"
	"github.com/steveiliop56/jellyauth/internal/config"
	"github.com/steveiliop56/jellyauth/internal/utils/loaders"
	"github.com/steveiliop56/jellyauth/internal/utils/tlog"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/traefik/paerser/cli"
)

func NewJellyauthCmdConfiguration() *config.Config {
	return &config.Config{
		DatabasePath: "./jellyauth.db",
		Server: config.ServerConfig{
			Port:    8097,
			Address: "0.0.0.0",
		},
		OAuth: config.OAuthConfig{
			DefaultReturnURL: config.DefaultReturnURL,
		},
		Wizarr: config.WizarrConfig{
			URL: "http://localhost:5690",
		},
		Provisioning: config.ProvisioningConfig{
			AutoCreateUsers: true,
			MatchStrategy:   config.MatchStrategyEmail,
		},
		Metrics: config.MetricsConfig{
			Path: "/metrics",
		},
		Log: config.DefaultLogConfig(),
	}
}

func main() {
	tConfig := NewJellyauthCmdConfiguration()

	loaders := []cli.ResourceLoader{
		&loaders.FileLoader{},
		&loaders.FlagLoader{},
		&loaders.EnvLoader{},
	}

	cmdJellyauth := &cli.Command{
		Name:          "jellyauth",
		Description:   "OAuth sign in for Jellyfin with Wizarr invites.",
		Configuration: tConfig,
		Resources:     loaders,
		Run: func(_ []string) error {
			return runCmd(*tConfig)
		},
	}

	err := cmdJellyauth.AddCommand(versionCmd())

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to add version command")
	}

	err = cmdJellyauth.AddCommand(healthcheckCmd())

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to add healthcheck command")
	}

	err = cmdJellyauth.AddCommand(createAccountCmd())

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to add create command")
	}

	err = cmdJellyauth.AddCommand(listAccountsCmd())

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to add list command")
	}

	err = cli.Execute(cmdJellyauth)

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}

func runCmd(cfg config.Config) error {
	v := validator.New()

	err := v.Struct(cfg)

	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := tlog.NewLogger(cfg.Log)
	logger.Init()

	tlog.App.Info().Str("version", config.Version).Msg("Starting jellyauth")

	app := bootstrap.NewBootstrapApp(cfg)

	err = app.Setup()

	if err != nil {
		return fmt.Errorf("failed to bootstrap app: %w", err)
	}

	return nil
}
