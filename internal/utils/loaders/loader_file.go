package loaders

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/traefik/paerser/cli"
	"github.com/traefik/paerser/file"
	"github.com/traefik/paerser/flag"
)

// paerser roots every flag under "traefik"
const configFileFlag = "traefik.configFile"

type FileLoader struct{}

func (f *FileLoader) Load(args []string, cmd *cli.Command) (bool, error) {
	flags, err := flag.Parse(args, cmd.Configuration)

	if err != nil {
		return false, err
	}

	var path string

	// Flag keys keep the casing they were typed with
	for key, value := range flags {
		if strings.EqualFold(key, configFileFlag) {
			path = value
		}
	}

	if path == "" {
		return false, nil
	}

	log.Info().Str("path", path).Msg("Loading configuration file")

	err = file.Decode(path, cmd.Configuration)

	if err != nil {
		return false, err
	}

	return true, nil
}
