package config

import "time"

// Version information, set at build time

var Version = "development"
var CommitHash = "development"
var BuildTimestamp = "0000-00-00T00:00:00Z"

// Base values

var DefaultNamePrefix = "JELLYAUTH_"

// Flow constants

var SessionTTL = 15 * time.Minute
var DefaultReturnURL = "/web/index.html"
var DefaultUsername = "OAuthUser"

// Match strategies

const (
	MatchStrategyEmail   = "email"
	MatchStrategySubject = "subject"
)

// Main app config

type Config struct {
	AppURL       string             `description:"The base URL where the media server is hosted." validate:"omitempty,url"`
	DatabasePath string             `description:"The path to the account directory database." validate:"required"`
	Server       ServerConfig       `description:"Server configuration."`
	OAuth        OAuthConfig        `description:"OAuth configuration."`
	Wizarr       WizarrConfig       `description:"Wizarr invite integration configuration."`
	Provisioning ProvisioningConfig `description:"Account provisioning configuration."`
	Metrics      MetricsConfig      `description:"Prometheus metrics configuration."`
	Log          LogConfig          `description:"Logging configuration."`
	ConfigFile   string             `description:"Path to a YAML or TOML config file."`
}

type ServerConfig struct {
	Port           int      `description:"The port on which the server listens." validate:"required,min=1,max=65535"`
	Address        string   `description:"The address on which the server listens." validate:"required,ip"`
	TrustedProxies []string `description:"Comma-separated list of trusted proxy addresses."`
}

type OAuthConfig struct {
	Providers        map[string]OAuthServiceConfig `description:"OAuth providers configuration." validate:"dive"`
	DefaultReturnURL string                        `description:"Where to send users after sign in when no return URL was requested."`
}

type OAuthServiceConfig struct {
	Enabled            bool     `description:"Enable this provider."`
	ClientID           string   `description:"OAuth client ID (services ID for Apple)."`
	ClientSecret       string   `description:"OAuth client secret."`
	ClientSecretFile   string   `description:"Path to the file containing the OAuth client secret."`
	Scopes             []string `description:"OAuth scopes."`
	RedirectURL        string   `description:"OAuth redirect URL." validate:"omitempty,url"`
	AuthURL            string   `description:"OAuth authorization URL." validate:"omitempty,url"`
	TokenURL           string   `description:"OAuth token URL." validate:"omitempty,url"`
	UserinfoURL        string   `description:"OAuth userinfo URL." validate:"omitempty,url"`
	InsecureSkipVerify bool     `description:"Allow insecure OAuth connections."`
	Name               string   `description:"Provider name in UI."`
	TeamID             string   `description:"Apple developer team ID."`
	KeyID              string   `description:"Apple sign in key ID."`
	PrivateKey         string   `description:"Apple sign in private key (PEM)."`
	PrivateKeyFile     string   `description:"Path to the Apple sign in private key (PEM)."`
}

type WizarrConfig struct {
	Enabled       bool   `description:"Enable the Wizarr invite integration."`
	URL           string `description:"Wizarr base URL." validate:"omitempty,url"`
	APIKey        string `description:"Wizarr API key."`
	APIKeyFile    string `description:"Path to the file containing the Wizarr API key."`
	RequireInvite bool   `description:"Require a valid invite for every sign in."`
}

type ProvisioningConfig struct {
	AutoCreateUsers  bool     `description:"Create accounts for unknown users."`
	MatchStrategy    string   `description:"How identities are matched to existing accounts (email or subject)." validate:"oneof=email subject"`
	DefaultLibraries []string `description:"Libraries granted to accounts created without an invite."`
}

type MetricsConfig struct {
	Enabled bool   `description:"Expose Prometheus metrics."`
	Path    string `description:"Path of the metrics endpoint."`
}

type LogConfig struct {
	Level   string     `description:"Log level (trace, debug, info, warn, error)." validate:"omitempty,oneof=trace debug info warn error fatal panic"`
	Json    bool       `description:"Enable JSON formatted logs."`
	Streams LogStreams `description:"Configuration for specific log streams."`
}

type LogStreams struct {
	HTTP  LogStreamConfig `description:"HTTP request logging."`
	App   LogStreamConfig `description:"Application logging."`
	Audit LogStreamConfig `description:"Audit logging."`
}

type LogStreamConfig struct {
	Enabled bool   `description:"Enable this log stream."`
	Level   string `description:"Log level for this stream. Use global if empty."`
}

// DefaultLogConfig enables every stream at info with console output
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level: "info",
		Json:  false,
		Streams: LogStreams{
			HTTP:  LogStreamConfig{Enabled: true},
			App:   LogStreamConfig{Enabled: true},
			Audit: LogStreamConfig{Enabled: true},
		},
	}
}

// Providers with well known endpoints

var OverrideProviders = map[string]string{
	"google": "Google",
	"apple":  "Apple",
	"github": "GitHub",
}
