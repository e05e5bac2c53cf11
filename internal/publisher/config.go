package publisher

import (
	"net/http"
	"time"

	"github.com/dotcommander/hooktrace/internal/app"
	"github.com/dotcommander/hooktrace/internal/models"
)

// IngestionPath is appended to the configured host.
const IngestionPath = "/api/public/ingestion"

const (
	defaultFlushTimeout  = 5 * time.Second
	defaultMaxBatchItems = 100
)

// Config is everything the client needs to reach the backend.
type Config struct {
	Host          string
	PublicKey     string
	SecretKey     string
	Environment   string
	Release       string
	FlushTimeout  time.Duration
	MaxBatchItems int
	Gzip          bool
	HTTPClient    *http.Client
}

// ConfigFromSettings maps the effective backend settings onto a client config.
func ConfigFromSettings(s app.BackendSettings) Config {
	return Config{
		Host:          s.Host,
		PublicKey:     s.PublicKey,
		SecretKey:     s.SecretKey,
		Environment:   s.Environment,
		Release:       models.HandlerVersion,
		FlushTimeout:  s.FlushTimeout(),
		MaxBatchItems: s.MaxBatchItems,
		Gzip:          s.Compression == "gzip",
	}
}

// Enabled reports whether credentials and a host are present.
func (c Config) Enabled() bool {
	return c.Host != "" && c.PublicKey != "" && c.SecretKey != ""
}

// Endpoint is the full ingestion URL.
func (c Config) Endpoint() string {
	return c.Host + IngestionPath
}

func (c Config) withDefaults() Config {
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = defaultFlushTimeout
	}
	if c.MaxBatchItems <= 0 {
		c.MaxBatchItems = defaultMaxBatchItems
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Release == "" {
		c.Release = models.HandlerVersion
	}
	return c
}
