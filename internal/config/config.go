// Package config provides layered configuration loading for the onetimeview
// service. It merges struct defaults with ONETIMEVIEW_* environment variables,
// decodes durations and human sizes, and validates the result.
package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every configuration environment variable.
const EnvPrefix = "ONETIMEVIEW_"

// Config holds the merged runtime configuration.
type Config struct {
	Addr    string `koanf:"addr" validate:"required,ip_port"`
	DataDir string `koanf:"data_dir" validate:"required,safe_path"`
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`

	IndexBackend string `koanf:"index_backend" validate:"oneof=sqlite redis memory"`
	BlobBackend  string `koanf:"blob_backend" validate:"oneof=filesystem minio"`

	RedisAddr     string `koanf:"redis_addr" validate:"required_if=IndexBackend redis"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db" validate:"gte=0"`

	MinioEndpoint  string `koanf:"minio_endpoint" validate:"required_if=BlobBackend minio"`
	MinioAccessKey string `koanf:"minio_access_key"`
	MinioSecretKey string `koanf:"minio_secret_key"`
	MinioBucket    string `koanf:"minio_bucket" validate:"required_if=BlobBackend minio"`
	MinioRegion    string `koanf:"minio_region"`
	MinioUseSSL    bool   `koanf:"minio_use_ssl"`

	MaxViewsCeiling int           `koanf:"max_views_ceiling" validate:"gte=1"`
	DefaultExpiry   time.Duration `koanf:"default_expiry" validate:"gt=0"`
	MaxExpiry       time.Duration `koanf:"max_expiry" validate:"gte=0"` // 0 disables the limit
	GraceWindow     time.Duration `koanf:"grace_window" validate:"gt=0"`
	SweepInterval   time.Duration `koanf:"sweep_interval" validate:"gt=0"`
	OrphanMinAge    time.Duration `koanf:"orphan_min_age" validate:"gte=0"`

	MaxTextLength         int      `koanf:"max_text_length" validate:"gte=1"`
	MaxUploadBytes        ByteSize `koanf:"max_upload_bytes" validate:"gt=0"`
	MaxUploadBytesPremium ByteSize `koanf:"max_upload_bytes_premium" validate:"gt=0"`

	PremiumToken string `koanf:"premium_token"`
	MetricsToken string `koanf:"metrics_token"`
	BcryptCost   int    `koanf:"bcrypt_cost" validate:"gte=4,lte=31"`

	LogLevel  string `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`
}

// DefaultAppConfig is the configuration used when no environment overrides
// are present.
var DefaultAppConfig = Config{
	Addr:                  ":8080",
	DataDir:               "./data",
	IndexBackend:          "sqlite",
	BlobBackend:           "filesystem",
	RedisAddr:             "localhost:6379",
	MinioBucket:           "onetimeview",
	MaxViewsCeiling:       10,
	DefaultExpiry:         24 * time.Hour,
	GraceWindow:           5 * time.Minute,
	SweepInterval:         5 * time.Minute,
	OrphanMinAge:          time.Minute,
	MaxTextLength:         50000,
	MaxUploadBytes:        100 << 20,
	MaxUploadBytesPremium: 500 << 20,
	BcryptCost:            10,
	LogLevel:              "info",
	LogFormat:             "text",
}

// Loader hooks are package variables so tests can inject failures.
var (
	defaultLoader = func(k *koanf.Koanf) error {
		return k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil)
	}
	envLoader = func(k *koanf.Koanf) error {
		return k.Load(env.Provider(".", env.Opt{
			Prefix: EnvPrefix,
			TransformFunc: func(key, value string) (string, any) {
				return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
			},
		}), nil)
	}
	registerValidators = func(v *validator.Validate) error {
		if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
			return err
		}
		return v.RegisterValidation("safe_path", validSafePath)
	}
)

// Load builds the configuration from defaults and environment and validates it.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				StringToByteSize(),
			),
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidators(v); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}
	if err := v.Struct(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.crossCheck(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) crossCheck() error {
	if c.MaxExpiry > 0 && c.DefaultExpiry > c.MaxExpiry {
		return errors.New("default_expiry must not exceed max_expiry")
	}
	if c.MaxUploadBytes > c.MaxUploadBytesPremium {
		return errors.New("max_upload_bytes must not exceed max_upload_bytes_premium")
	}
	return nil
}

// SQLiteDSN returns the DSN for the database file inside DataDir.
func (c *Config) SQLiteDSN() string {
	const params = "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_synchronous=FULL"
	return "file:" + joinDir(c.DataDir, "onetimeview.db") + params
}

// BlobDir returns the directory filesystem blobs are written to.
func (c *Config) BlobDir() string { return joinDir(c.DataDir, "blobs") }

func joinDir(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

// validIPPort accepts host:port where host is empty or an IP literal and the
// port is 1-65535.
func validIPPort(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	if host != "" && net.ParseIP(host) == nil {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// validSafePath rejects empty paths, the current or root directory, and any
// path with a parent reference.
func validSafePath(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if p == "" {
		return false
	}
	if clean := filepath.Clean(p); clean == "." || clean == "/" {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
