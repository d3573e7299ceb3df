package gpucore

import "errors"

// Adapter errors.
var (
	// ErrComputeUnsupported is returned when the device cannot run compute
	// kernels. It is fatal at initialization time.
	ErrComputeUnsupported = errors.New("gpucore: compute dispatch not supported by device")

	// ErrOutOfMemory is returned when a texture cannot be allocated.
	ErrOutOfMemory = errors.New("gpucore: texture allocation failed")

	// ErrTextureNotFound is returned for an unknown or destroyed texture ID.
	ErrTextureNotFound = errors.New("gpucore: texture not found")

	// ErrProgramNotFound is returned for an unknown or destroyed program ID.
	ErrProgramNotFound = errors.New("gpucore: program not found")

	// ErrEncoderFinished is returned when recording on a submitted or
	// released encoder.
	ErrEncoderFinished = errors.New("gpucore: command encoder already finished")
)

// GPUAdapter abstracts over the device implementations.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - IDs become invalid after destruction and must not be reused
//
// Implementations must be safe for concurrent use.
type GPUAdapter interface {
	// === Capabilities ===

	// SupportsCompute returns whether compute kernels can be dispatched.
	SupportsCompute() bool

	// Capabilities returns the device limits relevant to the Hi-Z program.
	Capabilities() AdapterCapabilities

	// === Programs ===

	// CreateProgram compiles the Hi-Z kernels for the given policy and tile
	// size. The descriptor has defaults applied (see NewProgram).
	CreateProgram(desc *ProgramDesc) (ProgramID, error)

	// DestroyProgram releases a program.
	DestroyProgram(id ProgramID)

	// === Textures ===

	// CreateTexture allocates a texture with all of its mip levels.
	// Returns an error wrapping ErrOutOfMemory if allocation fails.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a texture.
	DestroyTexture(id TextureID)

	// WriteTexture uploads one mip level. len(data) must equal the texel
	// count of the level.
	WriteTexture(id TextureID, mip int, data []float32) error

	// ReadTexture reads back one mip level. This may stall until all
	// submitted work touching the texture has completed.
	ReadTexture(id TextureID, mip int) ([]float32, error)

	// === Command Recording and Execution ===

	// CreateCommandEncoder returns a transient encoder. Dispatches recorded
	// on it execute in recording order after Submit.
	CreateCommandEncoder(label string) (CommandEncoder, error)
}

// CommandEncoder records kernel dispatches into a single command stream.
//
// Usage:
//  1. Obtain encoder from GPUAdapter.CreateCommandEncoder()
//  2. Record dispatches
//  3. Call Submit() to execute, or Release() to discard
//
// The encoder is single-use. Release is idempotent and is safe after Submit.
type CommandEncoder interface {
	// Dispatch records one kernel dispatch.
	Dispatch(program ProgramID, d *DispatchDesc) error

	// Submit finishes recording and submits the stream to the queue.
	// Submission is asynchronous; completion is ordered, not awaited.
	Submit() error

	// Release discards any unsubmitted work and frees the encoder.
	Release()

	// DispatchCount returns the number of recorded dispatches.
	DispatchCount() int
}

// AdapterCapabilities describes GPU adapter capabilities.
type AdapterCapabilities struct {
	// Name is a human-readable adapter name.
	Name string

	// SupportsCompute indicates compute shader support.
	SupportsCompute bool

	// MaxTextureDimension2D is the largest supported texture edge.
	MaxTextureDimension2D uint32

	// MaxWorkgroupInvocations is the maximum total invocations per workgroup.
	MaxWorkgroupInvocations uint32

	// MaxComputeWorkgroupsPerDimension is the maximum workgroups per dispatch dimension.
	MaxComputeWorkgroupsPerDimension uint32
}
