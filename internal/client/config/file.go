package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dmitrijs2005/cyclesync/internal/flagx"
	"github.com/dmitrijs2005/cyclesync/internal/timex"
)

// FileConfig is a DTO used exclusively for file decoding. Intervals use
// timex.Duration so files can say "3s". Zero values leave the current
// setting alone.
type FileConfig struct {
	ServerEndpointAddr string `json:"server_endpoint_addr" toml:"server_endpoint_addr"`
	UserID             string `json:"user_id" toml:"user_id"`
	AccessToken        string `json:"access_token" toml:"access_token"`

	DatabasePath string `json:"database_path" toml:"database_path"`
	LogFile      string `json:"log_file" toml:"log_file"`
	LogLevel     string `json:"log_level" toml:"log_level"`
	LogFormat    string `json:"log_format" toml:"log_format"`

	ConnectivitySource  string         `json:"connectivity_source" toml:"connectivity_source"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval" toml:"online_check_interval"`
	RequestTimeout      timex.Duration `json:"request_timeout" toml:"request_timeout"`

	RetryBaseDelay   timex.Duration `json:"retry_base_delay" toml:"retry_base_delay"`
	RetryMultiplier  float64        `json:"retry_multiplier" toml:"retry_multiplier"`
	RetryMaxDelay    timex.Duration `json:"retry_max_delay" toml:"retry_max_delay"`
	RetryMaxAttempts int            `json:"retry_max_attempts" toml:"retry_max_attempts"`
	RetryInterval    timex.Duration `json:"retry_interval" toml:"retry_interval"`
	PullInterval     timex.Duration `json:"pull_interval" toml:"pull_interval"`
	BatchSize        int            `json:"batch_size" toml:"batch_size"`
}

// parseFile overlays cfg with values from the file named by -c/-config or
// CYCLESYNC_CONFIG. Files ending in .toml are TOML, anything else JSON.
// Panics on read or decode errors.
func parseFile(cfg *Config) {
	path := flagx.ConfigFile(os.Args[1:], EnvConfigFile)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var fc FileConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &fc)
	} else {
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		panic(err)
	}
	fc.apply(cfg)
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.ServerEndpointAddr, fc.ServerEndpointAddr)
	setString(&cfg.UserID, fc.UserID)
	setString(&cfg.AccessToken, fc.AccessToken)
	setString(&cfg.DatabasePath, fc.DatabasePath)
	setString(&cfg.LogFile, fc.LogFile)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	setString(&cfg.ConnectivitySource, fc.ConnectivitySource)

	setDuration(&cfg.OnlineCheckInterval, fc.OnlineCheckInterval)
	setDuration(&cfg.RequestTimeout, fc.RequestTimeout)
	setDuration(&cfg.RetryBaseDelay, fc.RetryBaseDelay)
	setDuration(&cfg.RetryMaxDelay, fc.RetryMaxDelay)
	setDuration(&cfg.RetryInterval, fc.RetryInterval)
	setDuration(&cfg.PullInterval, fc.PullInterval)

	if fc.RetryMultiplier != 0 {
		cfg.RetryMultiplier = fc.RetryMultiplier
	}
	if fc.RetryMaxAttempts != 0 {
		cfg.RetryMaxAttempts = fc.RetryMaxAttempts
	}
	if fc.BatchSize != 0 {
		cfg.BatchSize = fc.BatchSize
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
