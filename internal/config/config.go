// Package config loads sandboxd's runtime settings from an optional YAML
// file layered under environment variables, following the
// viper.AutomaticEnv + SetDefault pattern used across the retrieval pack's
// CLI entry points.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the orchestrator and API server need at
// startup. Each field is loaded from the matching snake_case key in
// sandboxd.yaml or its SANDBOXD_-prefixed environment variable.
type Config struct {
	// ListenAddr is the address the API server binds to.
	ListenAddr string

	// APIKey, when non-empty, is required on every /v1 request via the
	// X-Sandboxd-API-Key header or api_key query parameter (/healthz stays
	// open). Empty disables authentication, matching a local-dev default.
	APIKey string

	// WorkerPoolSize bounds concurrent submissions.
	WorkerPoolSize int

	// DefaultImage is the container image provisioned when a submission
	// does not name one.
	DefaultImage string

	// DefaultTestTimeout bounds a single test case's execution inside the
	// sandbox.
	DefaultTestTimeout time.Duration

	// DockerHost, if set, overrides the Docker client's default connection
	// (otherwise it reads DOCKER_HOST / the platform default the way
	// client.FromEnv does).
	DockerHost string

	// Verbose enables debug-level logging.
	Verbose bool

	// Environment selects the logging mode ("production" => JSON lines).
	Environment string
}

const envPrefix = "SANDBOXD"

// Load reads sandboxd.yaml from the given search paths (if present),
// layers SANDBOXD_-prefixed environment variables on top, and returns the
// resolved Config. A missing config file is not an error; a malformed one
// is.
func Load(searchPaths ...string) (Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("api_key", "")
	v.SetDefault("worker_pool_size", 8)
	v.SetDefault("default_image", "python:3.11-slim")
	v.SetDefault("default_test_timeout", "2s")
	v.SetDefault("docker_host", "")
	v.SetDefault("verbose", false)
	v.SetDefault("environment", "development")

	v.SetConfigName("sandboxd")
	v.SetConfigType("yaml")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: read sandboxd.yaml: %w", err)
		}
	}

	timeout, err := time.ParseDuration(v.GetString("default_test_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("config: parse default_test_timeout: %w", err)
	}

	cfg := Config{
		ListenAddr:         v.GetString("listen_addr"),
		APIKey:             v.GetString("api_key"),
		WorkerPoolSize:     v.GetInt("worker_pool_size"),
		DefaultImage:       v.GetString("default_image"),
		DefaultTestTimeout: timeout,
		DockerHost:         v.GetString("docker_host"),
		Verbose:            v.GetBool("verbose"),
		Environment:        v.GetString("environment"),
	}

	if cfg.WorkerPoolSize <= 0 {
		return Config{}, fmt.Errorf("config: worker_pool_size must be positive, got %d", cfg.WorkerPoolSize)
	}

	return cfg, nil
}
