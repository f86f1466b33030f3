// Package config holds the runtime configuration of the tally server. Every
// setting can be given as a command line flag; the environment variables of
// the deployment are used as defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/antonymartiz/PrivateVoting/log"
	"github.com/antonymartiz/PrivateVoting/util"
	"github.com/antonymartiz/PrivateVoting/web3/rpc"
	flag "github.com/spf13/pflag"
)

const (
	DefaultPort            = 3001
	DefaultProviderURL     = "http://localhost:8545"
	DefaultKeyPath         = ".keys/paillier-key.json"
	DefaultFinalizeTimeout = 3 * time.Minute
	// SignerKeyEnv is the environment variable holding the hex signing key
	// when no key file is configured. Only the finalizer process reads it,
	// but it is visible to the server too, so it is meant for development.
	SignerKeyEnv = "PRIVATE_KEY"
	// finalizerDeadlineFactor sets the default finalizer deadline as a
	// multiple of the finalize timeout.
	finalizerDeadlineFactor = 5
	// apiTimeoutMargin is added to the finalize timeout to bound HTTP
	// requests, so the finalize handler always answers first.
	apiTimeoutMargin = 30 * time.Second
)

// Config is the server configuration.
type Config struct {
	Host                 string
	Port                 int
	ProviderURL          string
	FallbackProviderURLs []string
	InfuraAPIKey         string
	VotingContract       string
	KeyPath              string
	SignerKeyPath        string
	SignerKeyEnv         string
	DataDir              string
	FinalizeTimeout      time.Duration
	FinalizerDeadline    time.Duration
	LogLevel             string
	LogOutput            string
}

// Load parses args into a Config. Unset flags take the value of their
// environment variable, then the built-in default.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	envPort, err := envInt("PORT", DefaultPort)
	if err != nil {
		return nil, err
	}
	envTimeout, err := envDuration("FINALIZE_TIMEOUT", DefaultFinalizeTimeout)
	if err != nil {
		return nil, err
	}
	envDeadline, err := envDuration("FINALIZER_DEADLINE", 0)
	if err != nil {
		return nil, err
	}

	c := &Config{SignerKeyEnv: SignerKeyEnv}
	var fallbacks string
	fs.StringVar(&c.Host, "host", env("HOST", ""), "API host to listen on")
	fs.IntVar(&c.Port, "port", envPort, "API port to listen on")
	fs.StringVar(&c.ProviderURL, "provider", env("PROVIDER_URL", DefaultProviderURL), "web3 provider URL")
	fs.StringVar(&fallbacks, "fallbackProviders", env("FALLBACK_PROVIDER_URLS", rpc.SepoliaPublicURI),
		"comma separated web3 providers tried after the main one")
	fs.StringVar(&c.InfuraAPIKey, "infuraKey", env("INFURA_API_KEY", ""), "Infura API key, adds the Infura Sepolia provider")
	fs.StringVar(&c.VotingContract, "contract", env("VOTING_CONTRACT_ADDRESS", ""), "default voting contract address")
	fs.StringVar(&c.KeyPath, "keyPath", env("KEY_PATH", DefaultKeyPath), "Paillier key file")
	fs.StringVar(&c.SignerKeyPath, "signerKeyPath", env("SIGNER_KEY_PATH", ""),
		"file with the hex signing key, if empty the key is read from $"+SignerKeyEnv+" (development only)")
	fs.StringVar(&c.DataDir, "datadir", env("DATA_DIR", filepath.Join(home, ".privatevoting")), "data directory")
	fs.DurationVar(&c.FinalizeTimeout, "finalizeTimeout", envTimeout, "how long to wait for the finalizer process")
	fs.DurationVar(&c.FinalizerDeadline, "finalizerDeadline", envDeadline,
		"how long the finalizer process may run, receipt wait included (default 5x finalizeTimeout)")
	fs.StringVar(&c.LogLevel, "logLevel", env("LOG_LEVEL", log.LogLevelInfo), "log level (debug, info, warn, error)")
	fs.StringVar(&c.LogOutput, "logOutput", env("LOG_OUTPUT", "stdout"), "log output (stdout, stderr or filepath)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	c.FallbackProviderURLs = util.SplitList(fallbacks)
	return c, c.Validate()
}

// Validate checks the values that cannot be fixed at runtime.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.FinalizeTimeout <= 0 {
		return fmt.Errorf("invalid finalize timeout %s", c.FinalizeTimeout)
	}
	if c.FinalizerDeadline < 0 || (c.FinalizerDeadline > 0 && c.FinalizerDeadline < c.FinalizeTimeout) {
		return fmt.Errorf("finalizer deadline %s shorter than finalize timeout %s", c.FinalizerDeadline, c.FinalizeTimeout)
	}
	if c.KeyPath == "" {
		return fmt.Errorf("missing key path")
	}
	switch c.LogLevel {
	case log.LogLevelDebug, log.LogLevelInfo, log.LogLevelWarn, log.LogLevelError:
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

// Providers returns the ordered web3 provider candidates.
func (c *Config) Providers() []string {
	return rpc.Candidates(c.ProviderURL, c.FallbackProviderURLs, c.InfuraAPIKey)
}

// APITimeout returns the HTTP request timeout, longer than the finalize
// timeout.
func (c *Config) APITimeout() time.Duration {
	return c.FinalizeTimeout + apiTimeoutMargin
}

// ChildDeadline returns how long a finalizer process may run before it gives
// up, so that a transaction that is never mined does not leave it running.
func (c *Config) ChildDeadline() time.Duration {
	if c.FinalizerDeadline > 0 {
		return c.FinalizerDeadline
	}
	return c.FinalizeTimeout * finalizerDeadlineFactor
}

// UsesSignerEnv reports whether the signing key comes from the environment
// instead of a file.
func (c *Config) UsesSignerEnv() bool {
	return c.SignerKeyPath == ""
}

// ChildEnv returns the environment for the finalizer process. When the
// signing key comes from a file, the signing key variable is left out.
func (c *Config) ChildEnv(environ []string) []string {
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		if !c.UsesSignerEnv() && strings.HasPrefix(kv, c.SignerKeyEnv+"=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := env(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := env(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
