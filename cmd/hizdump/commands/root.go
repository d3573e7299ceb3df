package commands

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	// Backends register themselves with the backend package.
	_ "github.com/gogpu/hiz/backend/native"
	_ "github.com/gogpu/hiz/backend/software"
	_ "github.com/gogpu/hiz/backend/webgpu"
)

const version = "0.1.0"

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "hizdump",
	Short: "Build Hi-Z depth pyramids from depth images",
	Long: `hizdump runs the Hi-Z pyramid builder over a depth image on a GPU
or the software backend and writes each mip level as a grayscale image.

Settings come from flags, HIZ_* environment variables (for example
HIZ_BUILD_POLICY=min) and an optional YAML config file.`,
	Version:      version,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hiz/hiz.yaml)")
	rootCmd.PersistentFlags().String("backend", "auto", "compute backend: auto, native, webgpu, software")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
}

// newLogger returns a text logger writing to w at the named level.
// Unknown levels fall back to info.
func newLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}
