// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
	"go.uber.org/multierr"
)

// Store backends selectable through STORE.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Server holds the configuration of the REST store server.
type Server struct {
	HTTPAddr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	Store            string        `env:"STORE" envDefault:"postgres"`
	DatabaseURL      string        `env:"DATABASE_URL"`
	SchemaAutoCreate bool          `env:"SCHEMA_AUTO_CREATE" envDefault:"true"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Editor holds the configuration of the diagram editor client.
type Editor struct {
	APIURL    string `env:"BPM_API_URL" envDefault:"http://localhost:8080"`
	TenantID  int64  `env:"BPM_TENANT_ID"`
	ProcessID int64  `env:"BPM_PROCESS_ID"`
	ReadOnly  bool   `env:"BPM_READ_ONLY"`

	RequestTimeout time.Duration `env:"BPM_REQUEST_TIMEOUT" envDefault:"10s"`
	RoleCacheTTL   time.Duration `env:"BPM_ROLE_CACHE_TTL" envDefault:"5m"`

	// Bounds for positions synthesised for nodes that were never placed.
	PlacementOriginX float64 `env:"BPM_PLACEMENT_ORIGIN_X" envDefault:"100"`
	PlacementOriginY float64 `env:"BPM_PLACEMENT_ORIGIN_Y" envDefault:"100"`
	PlacementSpreadX float64 `env:"BPM_PLACEMENT_SPREAD_X" envDefault:"400"`
	PlacementSpreadY float64 `env:"BPM_PLACEMENT_SPREAD_Y" envDefault:"300"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"warn"`
	// LogFile receives editor logs; the terminal owns stdout and stderr.
	LogFile string `env:"BPM_LOG_FILE"`
}

// LoadServer reads the server configuration from environment variables.
func LoadServer() (*Server, error) {
	cfg := &Server{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadEditor reads the editor configuration from environment variables.
// The result is not validated; callers layer flags on top first.
func LoadEditor() (*Editor, error) {
	cfg := &Editor{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Server) Validate() error {
	var err error
	if c.HTTPAddr == "" {
		err = multierr.Append(err, fmt.Errorf("HTTP address is required"))
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			err = multierr.Append(err, fmt.Errorf("DATABASE_URL is required for the postgres store"))
		}
	case StoreMemory:
	default:
		err = multierr.Append(err, fmt.Errorf("unsupported store: %s (must be postgres or memory)", c.Store))
	}
	if c.ShutdownTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("shutdown timeout must be positive"))
	}
	return multierr.Append(err, validateLogLevel(c.LogLevel))
}

// Validate checks if the configuration is valid.
func (c *Editor) Validate() error {
	var err error
	if u, perr := url.Parse(c.APIURL); perr != nil || u.Scheme == "" || u.Host == "" {
		err = multierr.Append(err, fmt.Errorf("invalid API URL: %q", c.APIURL))
	}
	if c.TenantID <= 0 {
		err = multierr.Append(err, fmt.Errorf("tenant id is required"))
	}
	if c.ProcessID <= 0 {
		err = multierr.Append(err, fmt.Errorf("process id is required"))
	}
	if c.RequestTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("request timeout must be positive"))
	}
	if c.PlacementSpreadX < 0 || c.PlacementSpreadY < 0 {
		err = multierr.Append(err, fmt.Errorf("placement spread cannot be negative"))
	}
	return multierr.Append(err, validateLogLevel(c.LogLevel))
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) error {
	if !validLogLevels[level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
	return nil
}
