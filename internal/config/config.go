// Package config loads micdash settings from defaults, an optional config
// file and MICDASH_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"micdash/internal/blob"
)

// EnvPrefix namespaces environment overrides: http.addr -> MICDASH_HTTP_ADDR.
const EnvPrefix = "MICDASH"

// Keys shared with cobra flag bindings.
const (
	KeyEnv             = "app.env"
	KeyLogLevel        = "log.level"
	KeyHTTPAddr        = "http.addr"
	KeyShutdownTimeout = "http.shutdown_timeout"
	KeyBlobDriver      = "blob.driver"
	KeyBlobFSRoot      = "blob.fs_root"
	KeyS3Bucket        = "blob.s3.bucket"
	KeyS3Region        = "blob.s3.region"
	KeyS3Endpoint      = "blob.s3.endpoint"
	KeyS3PathStyle     = "blob.s3.path_style"
	KeyExportQueueSize = "export.queue_size"
)

type Config struct {
	App    AppConfig
	Log    LogConfig
	HTTP   HTTPConfig
	Blob   blob.Config
	Export ExportConfig
}

type AppConfig struct {
	Env string // development, staging, production
}

type LogConfig struct {
	Level string
}

type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type ExportConfig struct {
	QueueSize int
}

// New returns a viper instance with defaults and environment binding set up.
// Callers bind flags into it before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyEnv, "development")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyShutdownTimeout, 10*time.Second)
	v.SetDefault(KeyBlobDriver, string(blob.DriverFilesystem))
	v.SetDefault(KeyBlobFSRoot, "./blobdata")
	v.SetDefault(KeyS3Bucket, "")
	v.SetDefault(KeyS3Region, "us-east-1")
	v.SetDefault(KeyS3Endpoint, "")
	v.SetDefault(KeyS3PathStyle, false)
	v.SetDefault(KeyExportQueueSize, 32)
}

// Load reads file (when non-empty) or ./micdash.yaml (when present) and
// decodes the merged settings.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("micdash")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var missing viper.ConfigFileNotFoundError
			if !errors.As(err, &missing) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		App: AppConfig{Env: v.GetString(KeyEnv)},
		Log: LogConfig{Level: v.GetString(KeyLogLevel)},
		HTTP: HTTPConfig{
			Addr:            v.GetString(KeyHTTPAddr),
			ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
		},
		Blob: blob.Config{
			Driver: v.GetString(KeyBlobDriver),
			FSRoot: v.GetString(KeyBlobFSRoot),
			S3: blob.S3Config{
				Bucket:    v.GetString(KeyS3Bucket),
				Region:    v.GetString(KeyS3Region),
				Endpoint:  v.GetString(KeyS3Endpoint),
				PathStyle: v.GetBool(KeyS3PathStyle),
			},
		},
		Export: ExportConfig{QueueSize: v.GetInt(KeyExportQueueSize)},
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr must not be empty")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("http.shutdown_timeout must be positive, got %s", c.HTTP.ShutdownTimeout)
	}
	if c.Export.QueueSize <= 0 {
		return fmt.Errorf("export.queue_size must be positive, got %d", c.Export.QueueSize)
	}
	switch blob.Driver(strings.ToLower(c.Blob.Driver)) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return errors.New("blob.s3.bucket is required when blob.driver is s3")
		}
	default:
		return fmt.Errorf("unknown blob.driver %q", c.Blob.Driver)
	}
	return nil
}
