package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gogpu/hiz"
	"github.com/gogpu/hiz/backend"
	"github.com/gogpu/hiz/backend/software"
	"github.com/gogpu/hiz/gpucore"
	"github.com/gogpu/hiz/internal/config"
	"github.com/gogpu/hiz/internal/depthmap"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build <depth-image>",
	Short: "Build a Hi-Z pyramid and write its mip levels",
	Long: `Build loads a depth image (PNG, BMP or TGA; luminance is depth in [0,1]),
builds the pyramid the configured number of frames and writes one image
per mip level to the output directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.String("policy", "max", "reduction policy: max or min")
	f.Int("batch", 1, "mip levels reduced per dispatch (1-4)")
	f.Int("tile", int(gpucore.DefaultTileSize), "workgroup edge length")
	f.Int("frames", 1, "frames to run before reading back")
	f.Int("workers", 0, "software backend goroutines (0 = GOMAXPROCS)")
	f.StringP("out", "o", "hiz-out", "output directory")
	f.String("format", "webp", "output format: webp or png")
	f.Int("scale", 1, "integer upscale factor for written levels")

	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Logging.Level)
	hiz.SetLogger(logger)
	defer hiz.SetLogger(nil)

	depth, err := depthmap.Load(args[0])
	if err != nil {
		return err
	}
	logger.Info("loaded depth", "path", args[0], "width", depth.Width, "height", depth.Height)

	adapter, name, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer closeAdapter(adapter, logger)
	logger.Info("backend ready", "backend", name, "adapter", adapter.Capabilities().Name)

	start := time.Now()
	p, err := buildPyramid(cmd.Context(), adapter, depth, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("pyramid built", "desc", p.Desc.String(), "frames", cfg.Build.Frames, "elapsed", time.Since(start))

	paths, err := writeLevels(p, cfg.Output)
	if err != nil {
		return err
	}
	return printSummary(cmd.OutOrStdout(), name, p, paths)
}

// openBackend opens the configured backend. The software backend is built
// directly so the worker count applies.
func openBackend(cfg *config.Config) (gpucore.GPUAdapter, string, error) {
	switch cfg.Build.Backend {
	case "auto":
		return backend.Default()
	case backend.BackendSoftware:
		return software.New(software.WithWorkers(cfg.Build.Workers)), backend.BackendSoftware, nil
	default:
		a, err := backend.Open(cfg.Build.Backend)
		return a, cfg.Build.Backend, err
	}
}

func closeAdapter(a gpucore.GPUAdapter, logger *slog.Logger) {
	c, ok := a.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("close backend", "err", err)
	}
}

// pyramid is a read-back Hi-Z pyramid.
type pyramid struct {
	Desc   hiz.Descriptor
	Levels [][]float32
	Stats  hiz.Stats
}

// buildPyramid uploads depth, runs the builder for cfg.Build.Frames frames
// and reads back every level of the published pyramid.
func buildPyramid(ctx context.Context, adapter gpucore.GPUAdapter, depth *depthmap.Depth, cfg *config.Config, logger *slog.Logger) (*pyramid, error) {
	prog, err := gpucore.NewProgram(adapter, gpucore.ProgramDesc{
		Label:    "hizdump",
		Policy:   cfg.ReductionPolicy(),
		TileSize: uint32(cfg.Build.TileSize),
	})
	if err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}
	defer adapter.DestroyProgram(prog.ID)

	src, err := adapter.CreateTexture(&gpucore.TextureDesc{
		Label:         "depth",
		Width:         depth.Width,
		Height:        depth.Height,
		MipLevelCount: 1,
		Format:        gpucore.TextureFormatDepth32Float,
		Usage:         gpucore.TextureUsageTextureBinding | gpucore.TextureUsageCopyDst,
		Filter:        gpucore.FilterPoint,
	})
	if err != nil {
		return nil, fmt.Errorf("create depth texture: %w", err)
	}
	defer adapter.DestroyTexture(src)
	if err := adapter.WriteTexture(src, 0, depth.Data); err != nil {
		return nil, fmt.Errorf("upload depth: %w", err)
	}

	b, err := hiz.NewBuilder(adapter, prog, hiz.WithBatchSize(cfg.Build.BatchSize), hiz.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	graph := hiz.NewFrameGraph(b)
	defer graph.Close()

	fc := &hiz.FrameContext{
		ViewportWidth:  depth.Width,
		ViewportHeight: depth.Height,
		Depth:          src,
	}
	for range cfg.Build.Frames {
		if err := graph.RunFrame(ctx, fc); err != nil {
			return nil, fmt.Errorf("frame %d: %w", graph.Frames(), err)
		}
	}

	binding, ok := graph.Registry().Lookup(b.SlotName())
	if !ok {
		return nil, fmt.Errorf("pyramid not published to %s", b.SlotName())
	}

	p := &pyramid{
		Desc:   binding.Descriptor,
		Levels: make([][]float32, binding.Descriptor.MipCount),
		Stats:  b.Stats(),
	}
	for mip := range p.Levels {
		if p.Levels[mip], err = adapter.ReadTexture(binding.Texture, mip); err != nil {
			return nil, fmt.Errorf("read mip %d: %w", mip, err)
		}
	}
	return p, nil
}

// writeLevels encodes every level into out.Dir and returns the file paths.
func writeLevels(p *pyramid, out config.OutputConfig) ([]string, error) {
	if err := os.MkdirAll(out.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	paths := make([]string, 0, len(p.Levels))
	for mip, data := range p.Levels {
		w, h := p.Desc.MipSize(mip)
		img, err := depthmap.ToImage(data, w, h)
		if err != nil {
			return nil, fmt.Errorf("mip %d: %w", mip, err)
		}
		path := filepath.Join(out.Dir, levelFileName(mip, w, h, out.Format))
		if err := depthmap.Save(path, depthmap.Upscale(img, out.Scale)); err != nil {
			return nil, fmt.Errorf("mip %d: %w", mip, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func levelFileName(mip, w, h int, format string) string {
	return fmt.Sprintf("mip%02d_%dx%d.%s", mip, w, h, format)
}

func printSummary(w io.Writer, backendName string, p *pyramid, paths []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "backend: %s\npyramid: %s\n", backendName, p.Desc)
	fmt.Fprintf(&b, "frames built: %d, dispatches: %d, reallocations: %d\n",
		p.Stats.FramesBuilt, p.Stats.Dispatches, p.Stats.Reallocations)
	for _, path := range paths {
		b.WriteString(path)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
