package loaders

import (
	"fmt"
	"strings"

	"github.com/traefik/paerser/cli"
	"github.com/traefik/paerser/flag"
)

type FlagLoader struct{}

// normalizeArgs drops blank arguments and expands the --config shorthand.
func normalizeArgs(args []string) []string {
	normalized := make([]string, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		if arg == "--config" || strings.HasPrefix(arg, "--config=") {
			arg = "--configFile" + strings.TrimPrefix(arg, "--config")
		}
		normalized = append(normalized, arg)
	}
	return normalized
}

func (*FlagLoader) Load(args []string, cmd *cli.Command) (bool, error) {
	args = normalizeArgs(args)

	if len(args) == 0 {
		return false, nil
	}

	if err := flag.Decode(args, cmd.Configuration); err != nil {
		return false, fmt.Errorf("failed to decode configuration from flags: %w", err)
	}

	return true, nil
}
