package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/cyclesync/internal/flagx"
	"github.com/dmitrijs2005/cyclesync/internal/timex"
)

// JsonConfig is the file DTO. Intervals use timex.Duration so a file may say
// "15m" or give integer nanoseconds. Zero values leave the current setting
// alone.
type JsonConfig struct {
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                 string         `json:"database_dsn"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	LogLevel                    string         `json:"log_level"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
	ExportURLExpiry             timex.Duration `json:"export_url_expiry"`
}

// parseJson loads configuration values from the JSON file named by -c /
// -config, or by CYCLESYNC_SERVER_CONFIG when no flag is given. Nothing is
// loaded when neither is set. Panics when the file cannot be read or
// decoded.
func parseJson(config *Config) {
	path := flagx.ConfigFile(os.Args[1:], EnvConfigFile)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.ExportURLExpiry, c.ExportURLExpiry)
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
