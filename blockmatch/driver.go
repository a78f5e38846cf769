package blockmatch

import "github.com/binarydiff/matcher/fixedpoint"

// DefaultSteps returns the default flow-graph step list: the same
// bucket-uniqueness driver applied one level down from the call-graph
// steps, ending in the propagation step that consumes everything the
// feature-based steps could not disambiguate.
func DefaultSteps() []Step {
	return []Step{
		NewPrimeSignature(),
		NewMDIndex(),
		NewHash(),
		NewEntryPoint(),
		NewExitPoint(),
		NewInstructionCount(),
		NewPropagation(),
	}
}

// unmatchedVertices returns the basic-block vertex indices of fg that have
// no basic-block fixed point yet.
func unmatchedVertices(fg interface {
	BasicBlockCount() int
	BasicBlockFixedPoint(uint32) any
}) []uint32 {
	var out []uint32
	for v := uint32(0); v < uint32(fg.BasicBlockCount()); v++ {
		if fg.BasicBlockFixedPoint(v) == nil {
			out = append(out, v)
		}
	}
	return out
}

// RunForPair matches the basic blocks inside a single committed function
// fixed point: each step in steps runs to its own local fixed point (no
// more commits in a pass) before the driver moves to the next step,
// mirroring the call-graph driver's per-step exhaustion before advancing.
// Like that driver, each step gets the steps after it as its drill-down
// list for colliding buckets.
func RunForPair(fp *fixedpoint.FixedPoint, steps []Step) {
	for k, s := range steps {
		for {
			primary := unmatchedVertices(fp.Primary)
			secondary := unmatchedVertices(fp.Secondary)
			if len(primary) == 0 || len(secondary) == 0 {
				break
			}
			if !s.FindFixedPoints(fp, primary, secondary, steps[k+1:]) {
				break
			}
		}
	}
}
