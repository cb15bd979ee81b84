package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paularlott/cli"
)

// Config holds the application configuration. Behavior toggles are explicit
// typed fields validated at load time; there is no dynamic configuration.
type Config struct {
	DataDir    string
	ListenAddr string

	// Lease poller
	PollerEnabled  bool
	LeaseEndpoint  string
	PollInterval   time.Duration
	FetchTimeout   time.Duration
	ConnectTimeout time.Duration

	// Notifier
	NotifierEnabled bool
	NotifierURL     string
	NotifierAPIKey  string

	// Auth tokens (empty disables)
	APIAuthToken string
	MCPAuthToken string

	ConfigFile string // Path to .env file (if loaded)
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Command-line parameters (passed as opts)
// 2. .env file (if exists)
// 3. Environment variables
// 4. Default values
//
// The resulting configuration is validated before being returned.
func Load(opts *Config) (*Config, error) {
	cfg := &Config{
		DataDir:        "./data",
		ListenAddr:     ":8080",
		PollerEnabled:  true,
		LeaseEndpoint:  "",
		PollInterval:   15 * time.Second,
		FetchTimeout:   10 * time.Second,
		ConnectTimeout: 5 * time.Second,
	}

	// Environment variables first, then .env overrides, then CLI opts.
	cfg.applyEnv(os.Getenv)

	envFile := ".env"
	if _, err := os.Stat(envFile); err == nil {
		if err := cfg.loadFromEnvFile(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
		cfg.ConfigFile = envFile
	}

	if opts != nil {
		cfg.applyOpts(opts)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv reads configuration from a key lookup function. Empty values are
// ignored.
func (c *Config) applyEnv(get func(string) string) {
	set := func(key string, apply func(string)) {
		if v := get(key); v != "" {
			apply(v)
		}
	}

	set("SEURANTA_DATA_DIR", func(v string) { c.DataDir = v })
	set("SEURANTA_LISTEN_ADDR", func(v string) { c.ListenAddr = v })
	set("SEURANTA_POLLER_ENABLED", func(v string) { c.PollerEnabled = parseBool(v, c.PollerEnabled) })
	set("SEURANTA_LEASE_ENDPOINT", func(v string) { c.LeaseEndpoint = v })
	set("SEURANTA_POLL_INTERVAL", func(v string) { c.PollInterval = parseDuration(v, c.PollInterval) })
	set("SEURANTA_FETCH_TIMEOUT", func(v string) { c.FetchTimeout = parseDuration(v, c.FetchTimeout) })
	set("SEURANTA_CONNECT_TIMEOUT", func(v string) { c.ConnectTimeout = parseDuration(v, c.ConnectTimeout) })
	set("SEURANTA_NOTIFIER_ENABLED", func(v string) { c.NotifierEnabled = parseBool(v, c.NotifierEnabled) })
	set("SEURANTA_NOTIFIER_URL", func(v string) { c.NotifierURL = v })
	set("SEURANTA_NOTIFIER_API_KEY", func(v string) { c.NotifierAPIKey = v })
	set("SEURANTA_API_TOKEN", func(v string) { c.APIAuthToken = v })
	set("SEURANTA_MCP_TOKEN", func(v string) { c.MCPAuthToken = v })
}

// loadFromEnvFile loads configuration from a .env file.
func (c *Config) loadFromEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	values := map[string]string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		values[key] = strings.Trim(strings.TrimSpace(parts[1]), "\"")
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	c.applyEnv(func(key string) string { return values[key] })
	return nil
}

// applyOpts overlays command-line values. String fields are applied only when
// non-empty; the two toggles are taken as given, since the boolean flags in
// GetFlags already fold in their environment variables and defaults. A
// notifier URL and key arriving together switch the notifier on even without
// the explicit toggle.
func (c *Config) applyOpts(opts *Config) {
	c.PollerEnabled = opts.PollerEnabled
	c.NotifierEnabled = opts.NotifierEnabled

	if opts.DataDir != "" {
		c.DataDir = opts.DataDir
	}
	if opts.ListenAddr != "" {
		c.ListenAddr = opts.ListenAddr
	}
	if opts.LeaseEndpoint != "" {
		c.LeaseEndpoint = opts.LeaseEndpoint
	}
	if opts.PollInterval > 0 {
		c.PollInterval = opts.PollInterval
	}
	if opts.NotifierURL != "" {
		c.NotifierURL = opts.NotifierURL
	}
	if opts.NotifierAPIKey != "" {
		c.NotifierAPIKey = opts.NotifierAPIKey
	}
	if opts.APIAuthToken != "" {
		c.APIAuthToken = opts.APIAuthToken
	}
	if opts.MCPAuthToken != "" {
		c.MCPAuthToken = opts.MCPAuthToken
	}

	if opts.NotifierURL != "" && opts.NotifierAPIKey != "" {
		c.NotifierEnabled = true
	}
}

func (c *Config) validate() error {
	if c.PollerEnabled && c.LeaseEndpoint == "" {
		return fmt.Errorf("lease poller is enabled but no lease endpoint is configured")
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("poll interval %s is below the 1s minimum", c.PollInterval)
	}
	if c.FetchTimeout <= 0 || c.ConnectTimeout <= 0 {
		return fmt.Errorf("fetch and connect timeouts must be positive")
	}
	if c.ConnectTimeout > c.FetchTimeout {
		return fmt.Errorf("connect timeout %s exceeds fetch timeout %s", c.ConnectTimeout, c.FetchTimeout)
	}
	if c.NotifierEnabled && (c.NotifierURL == "" || c.NotifierAPIKey == "") {
		return fmt.Errorf("notifier is enabled but URL or API key is missing")
	}
	return nil
}

// IsAPIAuthEnabled checks if API authentication is configured.
func (c *Config) IsAPIAuthEnabled() bool {
	return c.APIAuthToken != ""
}

// IsMCPEnabled checks if MCP authentication is configured.
func (c *Config) IsMCPEnabled() bool {
	return c.MCPAuthToken != ""
}

// String returns a string representation of the config source.
func (c *Config) String() string {
	if c.ConfigFile != "" {
		return fmt.Sprintf(".env file (%s)", c.ConfigFile)
	}
	return "environment variables"
}

// GetFlags returns the CLI flags for the server command.
func GetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "data-dir",
			Usage:   "Data directory path",
			EnvVars: []string{"SEURANTA_DATA_DIR"},
		},
		&cli.StringFlag{
			Name:    "addr",
			Usage:   "Server listen address (e.g., :8080)",
			EnvVars: []string{"SEURANTA_LISTEN_ADDR"},
		},
		&cli.BoolFlag{
			Name:         "poller-enabled",
			Usage:        "Enable the DHCP lease poller",
			DefaultValue: true,
			EnvVars:      []string{"SEURANTA_POLLER_ENABLED"},
		},
		&cli.StringFlag{
			Name:    "lease-endpoint",
			Usage:   "URL of the DHCP server's lease listing",
			EnvVars: []string{"SEURANTA_LEASE_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "poll-interval",
			Usage:   "Lease poll interval (e.g., 15s)",
			EnvVars: []string{"SEURANTA_POLL_INTERVAL"},
		},
		&cli.BoolFlag{
			Name:    "notifier-enabled",
			Usage:   "Enable pushing present names to the export API",
			EnvVars: []string{"SEURANTA_NOTIFIER_ENABLED"},
		},
		&cli.StringFlag{
			Name:    "notifier-url",
			Usage:   "Base URL of the presence export API",
			EnvVars: []string{"SEURANTA_NOTIFIER_URL"},
		},
		&cli.StringFlag{
			Name:    "notifier-api-key",
			Usage:   "API key for the presence export API",
			EnvVars: []string{"SEURANTA_NOTIFIER_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "api-token",
			Usage:   "Bearer token for API authentication",
			EnvVars: []string{"SEURANTA_API_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "mcp-token",
			Usage:   "Bearer token for MCP authentication",
			EnvVars: []string{"SEURANTA_MCP_TOKEN"},
		},
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func parseDuration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
