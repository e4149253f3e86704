package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the inventory API service.
type Config struct {
	Addr       string `env:"ADDR,default=:5000"`
	CatalogDSN string `env:"CATALOG_DSN,required"`
	EventsDSN  string `env:"EVENTS_DSN"`

	SiteCodes      []string `env:"SITE_CODES,default=e003,e006,e007,e100,e101,e102,e103,e104,e105"`
	SiteCodesFile  string   `env:"SITE_CODES_FILE"`
	ComplementSite string   `env:"COMPLEMENT_SITE,default=dacom"`

	CorrelationTimeout time.Duration `env:"CORRELATION_TIMEOUT,default=3s"`
	CorrelationLimit   int           `env:"CORRELATION_LIMIT,default=100"`

	NATSURL     string `env:"NATS_URL"`
	NATSSubject string `env:"NATS_SUBJECT,default=fleetinv.agent.snapshots"`

	ArchiveBucket    string `env:"ARCHIVE_BUCKET"`
	S3Endpoint       string `env:"S3_ENDPOINT"`
	S3AccessKey      string `env:"S3_ACCESS_KEY"`
	S3SecretKey      string `env:"S3_SECRET_KEY"`
	S3Region         string `env:"S3_REGION,default=us-east-1"`
	S3DisableTLS     bool   `env:"S3_DISABLE_TLS,default=false"`
	S3ForcePathStyle bool   `env:"S3_FORCE_PATH_STYLE,default=true"`

	ArchiveRecipients []string `env:"ARCHIVE_AGE_RECIPIENTS"`
	ArchiveSigningKey string   `env:"ARCHIVE_SIGNING_KEY"`

	OTLPEndpoint    string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel        string   `env:"LOG_LEVEL,default=info"`
	LogFormat       string   `env:"LOG_FORMAT,default=console"`
	IngestRateLimit int      `env:"INGEST_RATE_LIMIT,default=600"`
	AllowedOrigins  []string `env:"CORS_ALLOWED_ORIGINS"`
}

// siteFile is the optional YAML override for the room code list.
type siteFile struct {
	Codes      []string `yaml:"codes"`
	Complement string   `yaml:"complement"`
}

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom is Load with an explicit variable source.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, err
	}

	if cfg.SiteCodesFile != "" {
		if err := cfg.applySiteFile(cfg.SiteCodesFile); err != nil {
			return Config{}, err
		}
	}
	cfg.SiteCodes = normalizeCodes(cfg.SiteCodes)
	cfg.ComplementSite = strings.ToLower(strings.TrimSpace(cfg.ComplementSite))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applySiteFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read site codes file: %w", err)
	}
	var file siteFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse site codes file %s: %w", path, err)
	}
	if len(file.Codes) > 0 {
		c.SiteCodes = file.Codes
	}
	if file.Complement != "" {
		c.ComplementSite = file.Complement
	}
	return nil
}

func (c Config) validate() error {
	if len(c.SiteCodes) == 0 {
		return errors.New("at least one site code is required")
	}
	for _, code := range c.SiteCodes {
		if code == c.ComplementSite {
			return fmt.Errorf("site code %q collides with the complement site", code)
		}
	}
	if c.CorrelationTimeout <= 0 {
		return errors.New("CORRELATION_TIMEOUT must be positive")
	}
	if c.CorrelationLimit < 1 || c.CorrelationLimit > 1000 {
		return fmt.Errorf("CORRELATION_LIMIT must be between 1 and 1000, got %d", c.CorrelationLimit)
	}
	if c.IngestRateLimit < 0 {
		return errors.New("INGEST_RATE_LIMIT must not be negative")
	}
	return nil
}

// MemoryCatalog reports whether the in-process catalog was selected.
func (c Config) MemoryCatalog() bool {
	return strings.HasPrefix(c.CatalogDSN, "memory://")
}

func normalizeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
