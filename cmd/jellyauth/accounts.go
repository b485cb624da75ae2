package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/steveiliop56/jellyauth/internal/bootstrap"
	"github.com/steveiliop56/jellyauth/internal/config"
	"github.com/steveiliop56/jellyauth/internal/model"
	"github.com/steveiliop56/jellyauth/internal/repository"
	"github.com/steveiliop56/jellyauth/internal/service"
	"github.com/steveiliop56/jellyauth/internal/utils"

	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/traefik/paerser/cli"
)

type CreateAccountConfig struct {
	Interactive  bool   `description:"Create an account interactively."`
	DatabasePath string `description:"The path to the account directory database."`
	Username     string `description:"Username."`
	Email        string `description:"Email address."`
	Libraries    string `description:"Comma-separated list of libraries."`
	Admin        bool   `description:"Grant administrator rights."`
}

func NewCreateAccountConfig() *CreateAccountConfig {
	return &CreateAccountConfig{
		Interactive:  false,
		DatabasePath: "./jellyauth.db",
	}
}

type ListAccountsConfig struct {
	DatabasePath string `description:"The path to the account directory database."`
}

func openDirectory(databasePath string) (*service.DirectoryService, func(), error) {
	app := bootstrap.NewBootstrapApp(config.Config{})

	db, err := app.SetupDatabase(databasePath)

	if err != nil {
		return nil, nil, err
	}

	return service.NewDirectoryService(repository.New(db)), func() { db.Close() }, nil
}

func consoleLogger() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger().Level(zerolog.InfoLevel)
}

func splitLibraries(value string) []string {
	libraries := []string{}
	for _, library := range strings.Split(value, ",") {
		if library = strings.TrimSpace(library); library != "" {
			libraries = append(libraries, library)
		}
	}
	return libraries
}

func createAccountCmd() *cli.Command {
	tCfg := NewCreateAccountConfig()

	loaders := []cli.ResourceLoader{
		&cli.FlagLoader{},
	}

	return &cli.Command{
		Name:          "create",
		Description:   "Create a local account",
		Configuration: tCfg,
		Resources:     loaders,
		Run: func(_ []string) error {
			consoleLogger()

			if tCfg.Interactive {
				form := huh.NewForm(
					huh.NewGroup(
						huh.NewInput().Title("Username").Value(&tCfg.Username).Validate((func(s string) error {
							if utils.SanitizeUsername(s) == "" {
								return errors.New("username cannot be empty")
							}
							return nil
						})),
						huh.NewInput().Title("Email (optional)").Value(&tCfg.Email),
						huh.NewInput().Title("Libraries (comma-separated, optional)").Value(&tCfg.Libraries),
						huh.NewSelect[bool]().Title("Administrator?").Options(huh.NewOption("No", false), huh.NewOption("Yes", true)).Value(&tCfg.Admin),
					),
				)

				err := form.WithTheme(huh.ThemeBase()).Run()

				if err != nil {
					return fmt.Errorf("failed to run interactive prompt: %w", err)
				}
			}

			username := utils.SanitizeUsername(tCfg.Username)

			if username == "" {
				return errors.New("username cannot be empty")
			}

			directory, closeDB, err := openDirectory(tCfg.DatabasePath)

			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}

			defer closeDB()

			policy := model.DefaultUserPolicy()
			policy.IsAdministrator = tCfg.Admin

			account, err := directory.Create(context.Background(), model.Account{
				Username:  username,
				Email:     strings.TrimSpace(tCfg.Email),
				Provider:  "local",
				Policy:    policy,
				Libraries: splitLibraries(tCfg.Libraries),
			})

			if err != nil {
				return fmt.Errorf("failed to create account: %w", err)
			}

			log.Info().Str("id", account.ID).Str("username", account.Username).Msg("Account created")

			return nil
		},
	}
}

func listAccountsCmd() *cli.Command {
	tCfg := &ListAccountsConfig{DatabasePath: "./jellyauth.db"}

	loaders := []cli.ResourceLoader{
		&cli.FlagLoader{},
	}

	return &cli.Command{
		Name:          "list",
		Description:   "List local accounts",
		Configuration: tCfg,
		Resources:     loaders,
		Run: func(_ []string) error {
			consoleLogger()

			directory, closeDB, err := openDirectory(tCfg.DatabasePath)

			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}

			defer closeDB()

			accounts, err := directory.List(context.Background())

			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}

			writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "USERNAME\tEMAIL\tPROVIDER\tLIBRARIES\tCREATED")
			for _, account := range accounts {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", account.Username, account.Email, account.Provider, strings.Join(account.Libraries, ","), account.CreatedAt.Format(time.RFC3339))
			}

			return writer.Flush()
		},
	}
}
