package agent

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"fleetinv/services/inventory"
)

// ConfigPath is where the agent expects to find its JSON configuration file.
const ConfigPath = "/etc/fleetinv/agent.conf"

// Config represents the agent configuration stored on disk.
type Config struct {
	API       string `json:"api"`
	Patrimony string `json:"patrimony"`
	Interval  string `json:"interval"`
	SpoolDir  string `json:"spool_dir"`
	NATSURL   string `json:"nats_url"`
	Subject   string `json:"subject"`
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	interval time.Duration
}

// Every returns the report interval; zero means report once and exit.
func (c Config) Every() time.Duration {
	return c.interval
}

// LoadConfig reads and validates the agent configuration at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.normalize(allowInsecureHTTP()); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize(allowInsecure bool) error {
	c.API = strings.TrimSpace(c.API)
	c.NATSURL = strings.TrimSpace(c.NATSURL)

	if c.API == "" && c.NATSURL == "" {
		return fmt.Errorf("config missing api field")
	}
	if c.API != "" {
		if err := ensureHTTPS(c.API, allowInsecure); err != nil {
			return err
		}
	}
	if c.NATSURL != "" && strings.TrimSpace(c.Subject) == "" {
		c.Subject = inventory.DefaultSnapshotSubject
	}

	if raw := strings.TrimSpace(c.Interval); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse interval: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("interval must not be negative: %s", raw)
		}
		c.interval = d
	}
	return nil
}

func allowInsecureHTTP() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("FLEETINV_ALLOW_INSECURE_HTTP")))
	switch value {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func ensureHTTPS(raw string, allowInsecure bool) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse api url: %w", err)
	}

	switch parsed.Scheme {
	case "https":
		return nil
	case "http", "":
		if allowInsecure {
			return nil
		}
		if parsed.Scheme == "" {
			return fmt.Errorf("api url must include https scheme")
		}
		return fmt.Errorf("api url must use https: %s", raw)
	default:
		if allowInsecure {
			return nil
		}
		return fmt.Errorf("api url must use https: %s", raw)
	}
}
