package config

import (
	"time"

	"github.com/dmitrijs2005/cyclesync/internal/backoff"
)

// EnvConfigFile names the environment variable consulted when no -c/-config
// flag is given.
const EnvConfigFile = "CYCLESYNC_CONFIG"

// Connectivity sources.
const (
	SourcePing = "ping"
	SourceGRPC = "grpc"
)

// Config holds runtime settings for the cyclesync client.
//
// Units: every interval is a time.Duration (e.g., 3*time.Second).
type Config struct {
	ServerEndpointAddr string
	UserID             string
	AccessToken        string

	DatabasePath string
	LogFile      string
	LogLevel     string
	LogFormat    string

	// ConnectivitySource is SourcePing or SourceGRPC.
	ConnectivitySource  string
	OnlineCheckInterval time.Duration
	RequestTimeout      time.Duration

	RetryBaseDelay   time.Duration
	RetryMultiplier  float64
	RetryMaxDelay    time.Duration
	RetryMaxAttempts int
	RetryInterval    time.Duration
	PullInterval     time.Duration
	BatchSize        int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	p := backoff.Default()

	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DatabasePath = "cyclesync.db"
	c.LogFile = "cyclesync.log"
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.ConnectivitySource = SourcePing
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.RetryBaseDelay = p.BaseDelay
	c.RetryMultiplier = p.Multiplier
	c.RetryMaxDelay = p.MaxDelay
	c.RetryMaxAttempts = p.MaxAttempts
	c.RetryInterval = time.Second
	c.PullInterval = time.Minute
	c.BatchSize = 20
}

// RetryPolicy assembles the push/pull backoff policy.
func (c *Config) RetryPolicy() backoff.Policy {
	return backoff.Policy{
		BaseDelay:   c.RetryBaseDelay,
		Multiplier:  c.RetryMultiplier,
		MaxDelay:    c.RetryMaxDelay,
		MaxAttempts: c.RetryMaxAttempts,
	}
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
