package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "veobridge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "VEOBRIDGE_PORT")
	setString(&cfg.Server.CORSOrigin, "VEOBRIDGE_CORS_ORIGIN")
	setString(&cfg.Auth.APIKey, "VEOBRIDGE_API_KEY")
	setString(&cfg.Output.Dir, "VEOBRIDGE_OUTPUT_DIR")
	setDuration(&cfg.Dispatch.Cooldown, "VEOBRIDGE_COOLDOWN")
	setDuration(&cfg.Dispatch.TaskTimeout, "VEOBRIDGE_TASK_TIMEOUT")
	setDuration(&cfg.Dispatch.LoopInterval, "VEOBRIDGE_LOOP_INTERVAL")
	setDuration(&cfg.Dispatch.PollInterval, "VEOBRIDGE_POLL_INTERVAL")
	setDuration(&cfg.Dispatch.IdleWait, "VEOBRIDGE_IDLE_WAIT")
	setDuration(&cfg.Dispatch.NoWorkerWait, "VEOBRIDGE_NO_WORKER_WAIT")
	setInt64(&cfg.Cache.PreviewMB, "VEOBRIDGE_CACHE_PREVIEW_MB")
	setString(&cfg.Logging.Level, "VEOBRIDGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "VEOBRIDGE_LOG_SERVICE")
	setBool(&cfg.Otel.Enabled, "VEOBRIDGE_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "VEOBRIDGE_OTEL_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Auth.APIKey == "" {
		return errors.New("auth.api_key is required")
	}
	if cfg.Output.Dir == "" {
		return errors.New("output.dir is required")
	}
	if cfg.Dispatch.Cooldown < 0 {
		return errors.New("dispatch.cooldown must be >= 0")
	}
	if cfg.Dispatch.TaskTimeout <= 0 {
		return errors.New("dispatch.task_timeout must be > 0")
	}
	if cfg.Dispatch.PollInterval <= 0 {
		return errors.New("dispatch.poll_interval must be > 0")
	}
	if cfg.Cache.PreviewMB < 1 {
		return errors.New("cache.preview_mb must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
