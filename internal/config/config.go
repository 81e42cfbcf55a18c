package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendS3       = "s3"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	DBConnectTimeout time.Duration `mapstructure:"DB_CONNECT_TIMEOUT"`
	MigrationsDir    string        `mapstructure:"MIGRATIONS_DIR"`

	StoreBackend  string `mapstructure:"STORE_BACKEND"`
	BundleBackend string `mapstructure:"BUNDLE_BACKEND"`

	S3Bucket         string `mapstructure:"S3_BUCKET"`
	S3Prefix         string `mapstructure:"S3_PREFIX"`
	S3Region         string `mapstructure:"S3_REGION"`
	S3Endpoint       string `mapstructure:"S3_ENDPOINT"`
	S3ForcePathStyle bool   `mapstructure:"S3_FORCE_PATH_STYLE"`

	UpstreamBaseURL     string        `mapstructure:"UPSTREAM_BASE_URL"`
	UpstreamTimeout     time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`
	UpstreamRetryMax    int           `mapstructure:"UPSTREAM_RETRY_MAX"`
	UpstreamPageLimit   int           `mapstructure:"UPSTREAM_PAGE_LIMIT"`
	UpstreamBearerToken string        `mapstructure:"UPSTREAM_BEARER_TOKEN"`

	MaxConcurrentSyncs int           `mapstructure:"SYNC_MAX_CONCURRENT"`
	SubjectTimeout     time.Duration `mapstructure:"SYNC_SUBJECT_TIMEOUT"`
	FetchTimeout       time.Duration `mapstructure:"SYNC_FETCH_TIMEOUT"`
	StoreTimeout       time.Duration `mapstructure:"SYNC_STORE_TIMEOUT"`
	DefaultBulkCount   int           `mapstructure:"SYNC_DEFAULT_BULK_COUNT"`
	MaxBulkCount       int           `mapstructure:"SYNC_MAX_BULK_COUNT"`
	SyncInterval       time.Duration `mapstructure:"SYNC_INTERVAL"`

	AdmissionLimit           int           `mapstructure:"ADMISSION_LIMIT"`
	AdmissionWindow          time.Duration `mapstructure:"ADMISSION_WINDOW"`
	AdmissionRetention       time.Duration `mapstructure:"ADMISSION_RETENTION"`
	AdmissionMaxClients      int           `mapstructure:"ADMISSION_MAX_CLIENTS"`
	AdmissionCleanupInterval time.Duration `mapstructure:"ADMISSION_CLEANUP_INTERVAL"`
	TrustClientHeader        bool          `mapstructure:"ADMISSION_TRUST_CLIENT_HEADER"`
	ClientTokenSecret        string        `mapstructure:"CLIENT_TOKEN_SECRET"`
	// TrustedProxies lists the proxy addresses or CIDRs whose X-Forwarded-For
	// is honored. Empty means the peer address is the client address.
	TrustedProxies []string `mapstructure:"TRUSTED_PROXIES"`

	RabbitMQURL        string `mapstructure:"RABBITMQ_URL"`
	RabbitMQExchange   string `mapstructure:"RABBITMQ_EXCHANGE"`
	RabbitMQRoutingKey string `mapstructure:"RABBITMQ_ROUTING_KEY"`
	RabbitMQQueue      string `mapstructure:"RABBITMQ_QUEUE"`

	WebhookURLs     []string      `mapstructure:"WEBHOOK_URLS"`
	WebhookSecret   string        `mapstructure:"WEBHOOK_SECRET"`
	WebhookEvents   []string      `mapstructure:"WEBHOOK_EVENTS"`
	WebhookTimeout  time.Duration `mapstructure:"WEBHOOK_TIMEOUT"`
	WebhookRetryMax int           `mapstructure:"WEBHOOK_RETRY_MAX"`
}

var defaults = map[string]interface{}{
	"PORT":            "8080",
	"ENV":             "development",
	"LOG_LEVEL":       "info",
	"CORS_ORIGINS":    "*",
	"REQUEST_TIMEOUT": "15m",

	"DB_MAX_CONNS":       20,
	"DB_MIN_CONNS":       2,
	"DB_CONNECT_TIMEOUT": "30s",
	"MIGRATIONS_DIR":     "",

	"STORE_BACKEND":  BackendPostgres,
	"BUNDLE_BACKEND": BackendPostgres,

	"S3_PREFIX":           "bundles",
	"S3_REGION":           "us-east-1",
	"S3_FORCE_PATH_STYLE": false,

	"UPSTREAM_BASE_URL":   "http://hapi.fhir.org/baseR4",
	"UPSTREAM_TIMEOUT":    "60s",
	"UPSTREAM_RETRY_MAX":  2,
	"UPSTREAM_PAGE_LIMIT": 50,

	"SYNC_MAX_CONCURRENT":     4,
	"SYNC_SUBJECT_TIMEOUT":    "5m",
	"SYNC_FETCH_TIMEOUT":      "2m",
	"SYNC_STORE_TIMEOUT":      "10s",
	"SYNC_DEFAULT_BULK_COUNT": 100,
	"SYNC_MAX_BULK_COUNT":     1000,
	"SYNC_INTERVAL":           "0s",

	"ADMISSION_LIMIT":               60,
	"ADMISSION_WINDOW":              "1m",
	"ADMISSION_RETENTION":           "10m",
	"ADMISSION_MAX_CLIENTS":         10000,
	"ADMISSION_CLEANUP_INTERVAL":    "1m",
	"ADMISSION_TRUST_CLIENT_HEADER": false,

	"RABBITMQ_EXCHANGE":    "fhirsync",
	"RABBITMQ_ROUTING_KEY": "sync.events",
	"RABBITMQ_QUEUE":       "fhirsync_events",

	"WEBHOOK_TIMEOUT":   "10s",
	"WEBHOOK_RETRY_MAX": 3,
}

// envOnly keys have no default but must still be bound so Unmarshal sees them.
var envOnly = []string{
	"DATABASE_URL",
	"S3_BUCKET",
	"S3_ENDPOINT",
	"UPSTREAM_BEARER_TOKEN",
	"CLIENT_TOKEN_SECRET",
	"TRUSTED_PROXIES",
	"RABBITMQ_URL",
	"WEBHOOK_URLS",
	"WEBHOOK_SECRET",
	"WEBHOOK_EVENTS",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	for key, val := range defaults {
		v.SetDefault(key, val)
		_ = v.BindEnv(key)
	}
	for _, key := range envOnly {
		_ = v.BindEnv(key)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.WebhookURLs = splitList(cfg.WebhookURLs)
	cfg.WebhookEvents = splitList(cfg.WebhookEvents)
	cfg.TrustedProxies = splitList(cfg.TrustedProxies)

	return cfg, nil
}

// splitList expands a single comma separated env value and drops blanks.
func splitList(in []string) []string {
	if len(in) == 1 && strings.Contains(in[0], ",") {
		in = strings.Split(in[0], ",")
	}
	out := in[:0]
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// NeedsDatabase reports whether any configured backend is Postgres.
func (c *Config) NeedsDatabase() bool {
	return c.StoreBackend == BackendPostgres || c.BundleBackend == BackendPostgres
}

// TrustedProxyNets parses TRUSTED_PROXIES. A bare address is a single-host
// range.
func (c *Config) TrustedProxyNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(c.TrustedProxies))
	for _, p := range c.TrustedProxies {
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: invalid address %q", p)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// Validate rejects configurations the sync pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.StoreBackend)
	}
	switch c.BundleBackend {
	case BackendPostgres, BackendMemory, BackendS3:
	default:
		return fmt.Errorf("BUNDLE_BACKEND must be %q, %q or %q, got %q", BackendPostgres, BackendS3, BackendMemory, c.BundleBackend)
	}
	if c.NeedsDatabase() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}
	if c.BundleBackend == BackendS3 && c.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when BUNDLE_BACKEND is %q", BackendS3)
	}

	if c.UpstreamBaseURL == "" {
		return fmt.Errorf("UPSTREAM_BASE_URL is required")
	}
	if c.UpstreamRetryMax < 0 {
		return fmt.Errorf("UPSTREAM_RETRY_MAX must not be negative")
	}
	if c.UpstreamPageLimit <= 0 {
		return fmt.Errorf("UPSTREAM_PAGE_LIMIT must be positive")
	}

	if c.MaxConcurrentSyncs <= 0 {
		return fmt.Errorf("SYNC_MAX_CONCURRENT must be positive, got %d", c.MaxConcurrentSyncs)
	}
	if c.DefaultBulkCount <= 0 || c.MaxBulkCount <= 0 {
		return fmt.Errorf("SYNC_DEFAULT_BULK_COUNT and SYNC_MAX_BULK_COUNT must be positive")
	}
	if c.DefaultBulkCount > c.MaxBulkCount {
		return fmt.Errorf("SYNC_DEFAULT_BULK_COUNT (%d) exceeds SYNC_MAX_BULK_COUNT (%d)", c.DefaultBulkCount, c.MaxBulkCount)
	}
	if c.SyncInterval < 0 {
		return fmt.Errorf("SYNC_INTERVAL must not be negative")
	}

	if c.AdmissionLimit <= 0 {
		return fmt.Errorf("ADMISSION_LIMIT must be positive, got %d", c.AdmissionLimit)
	}
	if c.AdmissionWindow <= 0 {
		return fmt.Errorf("ADMISSION_WINDOW must be positive")
	}
	if c.AdmissionRetention < c.AdmissionWindow {
		return fmt.Errorf("ADMISSION_RETENTION (%s) must be at least ADMISSION_WINDOW (%s)", c.AdmissionRetention, c.AdmissionWindow)
	}
	if c.AdmissionMaxClients < 0 {
		return fmt.Errorf("ADMISSION_MAX_CLIENTS must not be negative")
	}
	if _, err := c.TrustedProxyNets(); err != nil {
		return err
	}
	if c.WebhookRetryMax < 0 {
		return fmt.Errorf("WEBHOOK_RETRY_MAX must not be negative")
	}

	return nil
}
