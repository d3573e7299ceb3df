package hiz

// Stats are cumulative builder counters.
type Stats struct {
	// FramesBuilt counts frames that published a pyramid.
	FramesBuilt uint64

	// FramesAborted counts frames that began but did not publish
	// (allocation failure, dispatch error or cancellation).
	FramesAborted uint64

	// Dispatches counts submitted kernel dispatches.
	Dispatches uint64

	// Reallocations counts pyramid allocations, including the first.
	Reallocations uint64

	// AllocationFailures counts failed pyramid allocations.
	AllocationFailures uint64

	// Last is the descriptor of the most recently built pyramid.
	Last Descriptor
}
