// Package config loads hizdump settings from defaults, a config file,
// HIZ_* environment variables and command-line flags, in increasing
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gogpu/hiz/gpucore"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. HIZ_BUILD_POLICY.
const EnvPrefix = "HIZ"

// Config represents the application configuration
type Config struct {
	Build   BuildConfig   `mapstructure:"build"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type BuildConfig struct {
	Backend   string `mapstructure:"backend"`
	Policy    string `mapstructure:"policy"`
	BatchSize int    `mapstructure:"batch_size"`
	TileSize  int    `mapstructure:"tile_size"`
	Frames    int    `mapstructure:"frames"`
	Workers   int    `mapstructure:"workers"`
}

type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"`
	Scale  int    `mapstructure:"scale"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Accepted values.
var (
	Backends  = []string{"auto", "native", "webgpu", "software"}
	Formats   = []string{"webp", "png"}
	LogLevels = []string{"debug", "info", "warn", "error"}
)

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"backend":   "build.backend",
	"policy":    "build.policy",
	"batch":     "build.batch_size",
	"tile":      "build.tile_size",
	"frames":    "build.frames",
	"workers":   "build.workers",
	"out":       "output.dir",
	"format":    "output.format",
	"scale":     "output.scale",
	"log-level": "logging.level",
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Build: BuildConfig{
			Backend:   "auto",
			Policy:    "max",
			BatchSize: 1,
			TileSize:  int(gpucore.DefaultTileSize),
			Frames:    1,
			Workers:   0,
		},
		Output: OutputConfig{
			Dir:    "hiz-out",
			Format: "webp",
			Scale:  1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from file, environment, flags and defaults.
// An empty cfgFile searches $HOME/.hiz and the working directory for
// hiz.yaml; a missing file there is not an error. Only flags the user
// changed override lower layers.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".hiz"))
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("hiz")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Output.Dir = expandPath(cfg.Output.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !slices.Contains(Backends, c.Build.Backend) {
		return fmt.Errorf("build.backend must be one of: %v", Backends)
	}
	if _, err := gpucore.ParsePolicy(c.Build.Policy); err != nil {
		return fmt.Errorf("build.policy: %w", err)
	}
	if c.Build.BatchSize < 1 || c.Build.BatchSize > gpucore.MaxBatchSize {
		return fmt.Errorf("build.batch_size must be between 1 and %d", gpucore.MaxBatchSize)
	}
	if c.Build.TileSize < 1 || c.Build.TileSize > 32 {
		return errors.New("build.tile_size must be between 1 and 32")
	}
	if c.Build.Frames < 1 {
		return errors.New("build.frames must be at least 1")
	}
	if c.Build.Workers < 0 {
		return errors.New("build.workers must not be negative")
	}
	if c.Output.Dir == "" {
		return errors.New("output.dir must not be empty")
	}
	if !slices.Contains(Formats, c.Output.Format) {
		return fmt.Errorf("output.format must be one of: %v", Formats)
	}
	if c.Output.Scale < 1 || c.Output.Scale > 64 {
		return errors.New("output.scale must be between 1 and 64")
	}
	if !slices.Contains(LogLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", LogLevels)
	}
	return nil
}

// ReductionPolicy returns the parsed build policy.
func (c *Config) ReductionPolicy() gpucore.ReductionPolicy {
	p, _ := gpucore.ParsePolicy(c.Build.Policy)
	return p
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("build.backend", cfg.Build.Backend)
	v.SetDefault("build.policy", cfg.Build.Policy)
	v.SetDefault("build.batch_size", cfg.Build.BatchSize)
	v.SetDefault("build.tile_size", cfg.Build.TileSize)
	v.SetDefault("build.frames", cfg.Build.Frames)
	v.SetDefault("build.workers", cfg.Build.Workers)

	v.SetDefault("output.dir", cfg.Output.Dir)
	v.SetDefault("output.format", cfg.Output.Format)
	v.SetDefault("output.scale", cfg.Output.Scale)

	v.SetDefault("logging.level", cfg.Logging.Level)
}
