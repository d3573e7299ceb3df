package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/hiz/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// program holds the device objects of one compiled Hi-Z program.
type program struct {
	desc      gpucore.ProgramDesc
	module    hal.ShaderModule
	bgLayout  hal.BindGroupLayout
	plLayout  hal.PipelineLayout
	pipelines [2]hal.ComputePipeline
}

// bindGroupLayoutEntries returns the layout shared by both kernels. The
// entries match the @group(0) @binding(N) annotations of the WGSL source.
func bindGroupLayoutEntries() []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, gpucore.BindingsPerPass)
	entries = append(entries,
		gputypes.BindGroupLayoutEntry{
			Binding:    gpucore.BindingParams,
			Visibility: gputypes.ShaderStageCompute,
			Buffer: &gputypes.BufferBindingLayout{
				Type:           gputypes.BufferBindingTypeUniform,
				MinBindingSize: gpucore.KernelParamsSize,
			},
		},
		gputypes.BindGroupLayoutEntry{
			Binding:    gpucore.BindingInput,
			Visibility: gputypes.ShaderStageCompute,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeUnfilterableFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		},
	)
	for i := range gpucore.MaxBatchSize {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(gpucore.BindingOutput0 + i),
			Visibility: gputypes.ShaderStageCompute,
			StorageTexture: &gputypes.StorageTextureBindingLayout{
				Access:        gputypes.StorageTextureAccessWriteOnly,
				Format:        gputypes.TextureFormatR32Float,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}
	return entries
}

// createProgram compiles the specialized shader and builds both pipelines.
// On failure every object created so far is destroyed.
func createProgram(device hal.Device, desc gpucore.ProgramDesc) (*program, error) {
	spirv, err := gpucore.CompileSPIRV(desc)
	if err != nil {
		return nil, err
	}

	label := desc.Label
	if label == "" {
		label = "hiz"
	}
	p := &program{desc: desc}

	p.module, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("native: create shader module: %w", err)
	}

	p.bgLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_bgl",
		Entries: bindGroupLayoutEntries(),
	})
	if err != nil {
		p.destroy(device)
		return nil, fmt.Errorf("native: create bind group layout: %w", err)
	}

	p.plLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{p.bgLayout},
	})
	if err != nil {
		p.destroy(device)
		return nil, fmt.Errorf("native: create pipeline layout: %w", err)
	}

	for _, k := range gpucore.Kernels() {
		entry := gpucore.EntryPoint(k)
		pipeline, err := device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  label + "_" + entry,
			Layout: p.plLayout,
			Compute: hal.ComputeState{
				Module:     p.module,
				EntryPoint: entry,
			},
		})
		if err != nil {
			p.destroy(device)
			return nil, fmt.Errorf("native: create %s pipeline: %w", entry, err)
		}
		p.pipelines[k] = pipeline
	}
	return p, nil
}

func (p *program) destroy(device hal.Device) {
	for i, pl := range p.pipelines {
		if pl != nil {
			device.DestroyComputePipeline(pl)
			p.pipelines[i] = nil
		}
	}
	if p.plLayout != nil {
		device.DestroyPipelineLayout(p.plLayout)
		p.plLayout = nil
	}
	if p.bgLayout != nil {
		device.DestroyBindGroupLayout(p.bgLayout)
		p.bgLayout = nil
	}
	if p.module != nil {
		device.DestroyShaderModule(p.module)
		p.module = nil
	}
}
