package gpucore

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/hiz/internal/cache"
	"github.com/gogpu/naga"
)

//go:embed shaders/hiz.wgsl
var hizShaderTemplate string

// Kernel entry point names, indexed by KernelID.
var kernelEntryPoints = [...]string{
	KernelBlit:   "blit",
	KernelReduce: "reduce",
}

// EntryPoint returns the WGSL entry point of a kernel.
func EntryPoint(k KernelID) string {
	if int(k) < len(kernelEntryPoints) {
		return kernelEntryPoints[k]
	}
	return ""
}

// Kernels lists all kernels of the program in index order.
func Kernels() []KernelID {
	return []KernelID{KernelBlit, KernelReduce}
}

// Shader bind group layout, shared by both kernels.
const (
	BindingParams   = 0
	BindingInput    = 1
	BindingOutput0  = 2
	BindingsPerPass = BindingOutput0 + MaxBatchSize
)

// ShaderSource returns the WGSL source specialized for a program.
func ShaderSource(desc ProgramDesc) string {
	tile := desc.TileSize
	if tile == 0 {
		tile = DefaultTileSize
	}
	src := strings.ReplaceAll(hizShaderTemplate, "REDUCE_OP", desc.Policy.wgslOp())
	return strings.ReplaceAll(src, "TILE_SIZE", strconv.FormatUint(uint64(tile), 10))
}

// spirvKey identifies a specialization. Labels do not affect the code.
type spirvKey struct {
	policy ReductionPolicy
	tile   uint32
}

// spirvCache holds compiled programs; devices are commonly recreated with
// the same policy and tile size.
var spirvCache = cache.New[spirvKey, []uint32](8)

// CompileSPIRV compiles the specialized program to SPIR-V words with naga.
// Results are cached per policy and tile size; callers must not modify the
// returned slice.
func CompileSPIRV(desc ProgramDesc) ([]uint32, error) {
	key := spirvKey{policy: desc.Policy, tile: desc.TileSize}
	if key.tile == 0 {
		key.tile = DefaultTileSize
	}
	return spirvCache.GetOrCreate(key, func() ([]uint32, error) {
		return compileSPIRV(desc)
	})
}

func compileSPIRV(desc ProgramDesc) ([]uint32, error) {
	spirvBytes, err := naga.Compile(ShaderSource(desc))
	if err != nil {
		return nil, fmt.Errorf("gpucore: compile hiz shader: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("gpucore: SPIR-V length %d is not word aligned", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}
