package score

import "github.com/binarydiff/matcher/fixedpoint"

// Histogram tallies, per matching-step name, how many fixed points (function
// and basic-block) were produced by that step.
type Histogram map[string]int

// BuildHistogram walks every fixed point in store and its nested
// basic-block fixed points, incrementing the bucket named by each one's
// matching step.
func BuildHistogram(store *fixedpoint.Store) Histogram {
	h := make(Histogram)
	for _, fp := range store.All() {
		h[fp.MatchingStep()]++
		for _, bb := range fp.BasicBlockFixedPoints() {
			h[bb.MatchingStep()]++
		}
	}
	return h
}

// HistogramForFixedPoint builds a single fixed point's own histogram (its
// matching step plus each nested basic-block match's step), used by the
// driver to refresh one pair's confidence right after it commits rather
// than rebuilding the whole store's histogram.
func HistogramForFixedPoint(fp *fixedpoint.FixedPoint) Histogram {
	h := make(Histogram)
	h[fp.MatchingStep()]++
	for _, bb := range fp.BasicBlockFixedPoints() {
		h[bb.MatchingStep()]++
	}
	return h
}

// StepWeights maps a matching-step name to its scoring weight, used by
// PairConfidence. A step absent from the map weighs 1. DefaultStepWeights
// seeds two entries, basic-block propagation at 0 and call-reference
// matching at 0.75; config overrides for those names replace them.
type StepWeights map[string]float64

// DefaultStepWeights returns a weight of 1 for any step not explicitly
// listed, with the two fixed overrides applied.
func DefaultStepWeights() StepWeights {
	return StepWeights{
		"basic block: propagation":          0.0,
		"function: call reference matching": 0.75,
	}
}

func (w StepWeights) weightFor(step string) float64 {
	if v, ok := w[step]; ok {
		return v
	}
	return 1.0
}

// WeightFor returns the scoring weight for a named matching step, exported
// for callers (e.g. the report package) that want to render the per-step
// weight table without duplicating PairConfidence's lookup logic.
func (w StepWeights) WeightFor(step string) float64 { return w.weightFor(step) }
