package video

// DefaultFrameBudget is the number of frames processed per session.
const DefaultFrameBudget = 100

// Sampler decides which frames of a source are passed to the detector.
//
// With a known frame count the stride spreads the budget evenly over the whole
// video. With an unknown count (live streams) a caller supplied stride is used.
// Either way processing stops once the budget is spent.
type Sampler struct {
	budget    int
	stride    int
	processed int
}

// NewSampler creates a sampler for a source.
//
// Arguments:
//   - totalFrames: The source's frame count, or 0 when unknown.
//   - budget: The maximum number of frames to process. Non-positive means DefaultFrameBudget.
//   - fixedStride: The stride used when totalFrames is unknown. Non-positive means 1.
//
// Returns:
//   - *Sampler: The sampler.
//
// @example
// s := video.NewSampler(1000, 100, 1)
// s.Stride() // 10
func NewSampler(totalFrames, budget, fixedStride int) *Sampler {
	if budget <= 0 {
		budget = DefaultFrameBudget
	}
	stride := max(1, fixedStride)
	if totalFrames > 0 {
		stride = max(1, totalFrames/budget)
	}
	return &Sampler{budget: budget, stride: stride}
}

// Stride returns the sampling stride.
func (s *Sampler) Stride() int { return s.stride }

// Budget returns the processed-frame budget.
func (s *Sampler) Budget() int { return s.budget }

// Processed returns how many frames have been marked as processed.
func (s *Sampler) Processed() int { return s.processed }

// Eligible reports whether the frame at index should be processed.
func (s *Sampler) Eligible(index int) bool {
	return !s.Done() && index%s.stride == 0
}

// Mark records that an eligible frame was processed, successfully or not.
func (s *Sampler) Mark() {
	s.processed++
}

// Done reports whether the budget has been spent.
func (s *Sampler) Done() bool {
	return s.processed >= s.budget
}
