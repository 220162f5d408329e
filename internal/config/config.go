// Package config provides hierarchical configuration loading for VeoBridge.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the VeoBridge server.
type Config struct {
	Server   Server   `yaml:"server"`
	Auth     Auth     `yaml:"auth"`
	Output   Output   `yaml:"output"`
	Dispatch Dispatch `yaml:"dispatch"`
	Cache    Cache    `yaml:"cache"`
	Logging  Logging  `yaml:"logging"`
	Otel     Otel     `yaml:"otel"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Auth holds the static bearer key protecting the OpenAI-compatible surface.
type Auth struct {
	APIKey string `yaml:"api_key"`
}

// Output holds artifact output configuration. Relative task output
// directories resolve under Dir.
type Output struct {
	Dir string `yaml:"dir"`
}

// Dispatch holds the queue/worker coordination timings.
type Dispatch struct {
	Cooldown     time.Duration `yaml:"cooldown"`       // worker rest after finishing a task
	TaskTimeout  time.Duration `yaml:"task_timeout"`   // assigned task budget before the sweep reclaims it
	LoopInterval time.Duration `yaml:"loop_interval"`  // pause between dispatch loop iterations
	PollInterval time.Duration `yaml:"poll_interval"`  // HTTP blocking/stream poll period
	IdleWait     time.Duration `yaml:"idle_wait"`      // wait when no task or no idle worker
	NoWorkerWait time.Duration `yaml:"no_worker_wait"` // wait when no workers are connected at all
}

// Cache holds in-process preview cache configuration.
type Cache struct {
	PreviewMB int64 `yaml:"preview_mb"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Otel holds OpenTelemetry export configuration.
type Otel struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a Config with sensible default values for local use.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "12346",
			CORSOrigin: "*",
		},
		Auth: Auth{
			APIKey: "han1234",
		},
		Output: Output{
			Dir: "output",
		},
		Dispatch: Dispatch{
			Cooldown:     3 * time.Second,
			TaskTimeout:  600 * time.Second,
			LoopInterval: 500 * time.Millisecond,
			PollInterval: 500 * time.Millisecond,
			IdleWait:     time.Second,
			NoWorkerWait: 2 * time.Second,
		},
		Cache: Cache{
			PreviewMB: 64,
		},
		Logging: Logging{
			Level:   "info",
			Service: "veobridge",
		},
		Otel: Otel{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
	}
}
