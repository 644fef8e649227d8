// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"tigdiff/internal/odb"
	"tigdiff/internal/rewrites"
)

const (
	configName = ".tigdiff"
	envPrefix  = "TIGDIFF"
)

type Config struct {
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Repository struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"repository"`

	Cache    CacheConfig    `mapstructure:"cache"`
	Rewrites RewritesConfig `mapstructure:"rewrites"`

	Environment string `mapstructure:"environment"` // development, production
	LogLevel    string `mapstructure:"log_level"`   // debug, info, warn, error
}

// CacheConfig sizes the blob caches. Sizes are human readable, like "1 KiB".
type CacheConfig struct {
	Entries         int    `mapstructure:"entries"`
	CompressMinSize string `mapstructure:"compress_min_size"`
	MaxBlobSize     string `mapstructure:"max_blob_size"`
}

func (c CacheConfig) CompressMinSizeBytes() (int, error) {
	n, err := humanize.ParseBytes(c.CompressMinSize)
	if err != nil {
		return 0, fmt.Errorf("parsing compress_min_size: %w", err)
	}
	return int(n), nil
}

func (c CacheConfig) MaxBlobSizeBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.MaxBlobSize)
	if err != nil {
		return 0, fmt.Errorf("parsing max_blob_size: %w", err)
	}
	return int64(n), nil
}

// RewritesConfig is the file form of rewrites.Rewrites. Zero percentages
// mean identity only.
type RewritesConfig struct {
	Percentage     float32  `mapstructure:"percentage"`
	Copies         bool     `mapstructure:"copies"`
	CopiesHarder   bool     `mapstructure:"copies_harder"`
	CopyPercentage float32  `mapstructure:"copy_percentage"`
	Limit          int      `mapstructure:"limit"`
	SkipVendored   bool     `mapstructure:"skip_vendored"`
	SkipPrefixes   []string `mapstructure:"skip_prefixes"`
}

// Options converts the configuration into tracker options
func (c RewritesConfig) Options() (rewrites.Rewrites, error) {
	rw := rewrites.Rewrites{
		Percentage: percent(c.Percentage),
		Limit:      c.Limit,
	}
	if c.Copies || c.CopiesHarder {
		source := rewrites.FromModifiedFiles
		if c.CopiesHarder {
			source = rewrites.FromModifiedFilesAndAllSources
		}
		rw.Copies = &rewrites.Copies{
			Source:     source,
			Percentage: percent(c.CopyPercentage),
		}
	}

	if err := rw.Validate(); err != nil {
		return rewrites.Rewrites{}, err
	}
	return rw, nil
}

func percent(p float32) *float32 {
	if p == 0 {
		return nil
	}
	return rewrites.Percent(p)
}

// Load reads configuration from defaults, an optional file and TIGDIFF_*
// environment variables, in increasing priority. An empty path searches for
// .tigdiff.yaml in the working and home directories; not finding one is fine.
func Load(path string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", ".tigdiff/db")
	v.SetDefault("repository.path", ".")

	v.SetDefault("cache.entries", odb.DefaultCacheEntries)
	v.SetDefault("cache.compress_min_size", "1 KiB")
	v.SetDefault("cache.max_blob_size", "512 MiB")

	defaults := rewrites.DefaultRewrites()
	v.SetDefault("rewrites.percentage", *defaults.Percentage)
	v.SetDefault("rewrites.copies", false)
	v.SetDefault("rewrites.copies_harder", false)
	v.SetDefault("rewrites.copy_percentage", *defaults.Percentage)
	v.SetDefault("rewrites.limit", defaults.Limit)
	v.SetDefault("rewrites.skip_vendored", false)
	v.SetDefault("rewrites.skip_prefixes", []string{})

	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Cache.Entries <= 0 {
		return fmt.Errorf("cache entries must be positive, got %d", c.Cache.Entries)
	}
	if _, err := c.Cache.CompressMinSizeBytes(); err != nil {
		return err
	}
	if _, err := c.Cache.MaxBlobSizeBytes(); err != nil {
		return err
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	if _, err := c.Rewrites.Options(); err != nil {
		return err
	}
	return nil
}
