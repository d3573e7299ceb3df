package hiz

import "github.com/gogpu/hiz/gpucore"

// ReductionPolicy selects the depth extremum kept by the pyramid.
// It is fixed when the compute program is created.
type ReductionPolicy = gpucore.ReductionPolicy

// Reduction policies.
const (
	PolicyMax = gpucore.PolicyMax
	PolicyMin = gpucore.PolicyMin
)
