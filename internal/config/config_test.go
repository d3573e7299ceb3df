package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/hiz/gpucore"
	"github.com/spf13/pflag"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range FlagKeys {
		// Empty values are treated as unset.
		t.Setenv(EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), "")
	}
}

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("backend", "auto", "")
	fs.String("policy", "max", "")
	fs.Int("batch", 1, "")
	fs.Int("frames", 1, "")
	fs.String("format", "webp", "")
	fs.Int("scale", 1, "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := DefaultConfig()
	if *cfg != *want {
		t.Errorf("cfg = %+v, want %+v", *cfg, *want)
	}
	if cfg.ReductionPolicy() != gpucore.PolicyMax {
		t.Errorf("ReductionPolicy = %v, want max", cfg.ReductionPolicy())
	}
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "hiz.yaml")
	data := "build:\n  policy: min\n  batch_size: 4\noutput:\n  format: png\n  scale: 8\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ReductionPolicy() != gpucore.PolicyMin {
		t.Errorf("policy = %q, want min", cfg.Build.Policy)
	}
	if cfg.Build.BatchSize != 4 {
		t.Errorf("batch_size = %d, want 4", cfg.Build.BatchSize)
	}
	if cfg.Output.Format != "png" || cfg.Output.Scale != 8 {
		t.Errorf("output = %+v, want png x8", cfg.Output)
	}
	if cfg.Build.Frames != 1 {
		t.Errorf("frames = %d, want default 1", cfg.Build.Frames)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_Env(t *testing.T) {
	isolate(t)
	t.Setenv("HIZ_BUILD_POLICY", "min")
	t.Setenv("HIZ_BUILD_FRAMES", "3")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Build.Policy != "min" {
		t.Errorf("policy = %q, want min", cfg.Build.Policy)
	}
	if cfg.Build.Frames != 3 {
		t.Errorf("frames = %d, want 3", cfg.Build.Frames)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	isolate(t)
	t.Setenv("HIZ_BUILD_BATCH_SIZE", "2")
	t.Setenv("HIZ_OUTPUT_SCALE", "4")

	fs := newFlags()
	if err := fs.Parse([]string{"--batch", "3", "--format", "png"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Build.BatchSize != 3 {
		t.Errorf("batch_size = %d, want 3 (flag)", cfg.Build.BatchSize)
	}
	if cfg.Output.Scale != 4 {
		t.Errorf("scale = %d, want 4 (env, flag unchanged)", cfg.Output.Scale)
	}
	if cfg.Output.Format != "png" {
		t.Errorf("format = %q, want png", cfg.Output.Format)
	}
}

func TestLoad_Invalid(t *testing.T) {
	isolate(t)
	t.Setenv("HIZ_BUILD_BATCH_SIZE", "5")

	if _, err := Load("", nil); err == nil {
		t.Error("expected validation error for batch_size 5")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"backend", func(c *Config) { c.Build.Backend = "metal" }, "build.backend"},
		{"policy", func(c *Config) { c.Build.Policy = "avg" }, "build.policy"},
		{"batch zero", func(c *Config) { c.Build.BatchSize = 0 }, "build.batch_size"},
		{"batch max", func(c *Config) { c.Build.BatchSize = gpucore.MaxBatchSize }, ""},
		{"tile", func(c *Config) { c.Build.TileSize = 0 }, "build.tile_size"},
		{"frames", func(c *Config) { c.Build.Frames = 0 }, "build.frames"},
		{"workers", func(c *Config) { c.Build.Workers = -1 }, "build.workers"},
		{"dir", func(c *Config) { c.Output.Dir = "" }, "output.dir"},
		{"format", func(c *Config) { c.Output.Format = "jpg" }, "output.format"},
		{"scale", func(c *Config) { c.Output.Scale = 0 }, "output.scale"},
		{"level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			switch {
			case tt.want == "" && err != nil:
				t.Errorf("Validate() = %v, want nil", err)
			case tt.want != "" && (err == nil || !strings.Contains(err.Error(), tt.want)):
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}
