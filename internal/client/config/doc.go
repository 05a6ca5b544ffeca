// Package config loads runtime configuration for the cyclesync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected via -c / -config or the
//     CYCLESYNC_CONFIG environment variable. Files ending in .toml are
//     decoded as TOML, everything else as JSON.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the backend gRPC endpoint
//	-u string   user id
//	-t string   access token
//	-d string   local database path
//	-l string   log file path
//	-i int      online status check interval (seconds)
//
// # File schema
//
// Intervals use timex.Duration, so values can be strings like "3s" (or
// integer nanoseconds in JSON):
//
//	server_endpoint_addr = "127.0.0.1:50051"
//	user_id              = "u1"
//	online_check_interval = "3s"
//	connectivity_source  = "grpc"
//	retry_base_delay     = "1s"
//	retry_max_attempts   = 5
package config
