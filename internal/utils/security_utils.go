package utils

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"strings"
)

// stateBytes gives 256 bits of entropy per state token
const stateBytes = 32

// GenerateState returns an unguessable, URL safe token for correlating an OAuth round trip.
// A failing entropy source is unrecoverable so we panic instead of returning a weak value.
func GenerateState() string {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		panic("failed to read random bytes for state: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// GetSecret returns the inline secret if set, otherwise the first non-empty line of the file.
func GetSecret(conf string, file string) string {
	if conf != "" {
		return conf
	}

	if file == "" {
		return ""
	}

	contents, err := os.ReadFile(file)
	if err != nil {
		return ""
	}

	return ParseSecretFile(string(contents))
}

func ParseSecretFile(contents string) string {
	for line := range strings.SplitSeq(contents, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
