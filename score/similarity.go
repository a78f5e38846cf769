package score

import (
	"math"
	"sort"

	"github.com/binarydiff/matcher/fixedpoint"
)

// fraction is a/b clamped to [0,1], treating 0/0 as 1 (nothing to match
// means nothing unmatched).
func fraction(a, b int) float64 {
	if b == 0 {
		return 1
	}
	v := float64(a) / float64(b)
	if v > 1 {
		return 1
	}
	return v
}

// sigmoid is the scorer's fixed confidence-squashing function.
func sigmoid(c float64) float64 {
	return 1 / (1 + math.Exp(-(c-0.5)*10))
}

// FunctionSimilarity computes fp's per-function similarity. If
// matched basic-block and instruction counts equal both sides simultaneously
// the function is considered an exact match (similarity 1); otherwise it is
// the edge/bb/instruction match fractions blended with the two call-graph
// function MD-indices' consistency, scaled by confidence.
func FunctionSimilarity(fp *fixedpoint.FixedPoint, confidence float64) float64 {
	matchedBB := len(fp.BasicBlockFixedPoints())
	pBB, sBB := fp.Primary.BasicBlockCount(), fp.Secondary.BasicBlockCount()

	matchedIns, pIns, sIns := 0, fp.Primary.TotalInstructionCount(), fp.Secondary.TotalInstructionCount()
	for _, bb := range fp.BasicBlockFixedPoints() {
		matchedIns += len(bb.InstructionMatches())
	}

	if matchedBB == pBB && matchedBB == sBB && matchedIns == pIns && matchedIns == sIns {
		return 1
	}

	matchedEdges := matchedEdgeCount(fp)
	edgeFrac := fraction(matchedEdges, fp.Primary.EdgeCount())
	bbFrac := fraction(matchedBB, pBB)
	insFrac := fraction(matchedIns, pIns)

	structural := 0.55*edgeFrac + 0.30*bbFrac + 0.15*insFrac
	if structural > 1 {
		structural = 1
	}

	mdi1, mdi2 := functionMDConsistencyInputs(fp)
	mdConsistency := 1 - math.Abs(mdi1-mdi2)/(1+mdi1+mdi2)

	sim := (structural + mdConsistency) / 2
	return sim * confidence
}

func matchedEdgeCount(fp *fixedpoint.FixedPoint) int {
	bbByPrimary := make(map[uint32]*fixedpoint.BasicBlockFixedPoint, len(fp.BasicBlockFixedPoints()))
	for _, bb := range fp.BasicBlockFixedPoints() {
		bbByPrimary[bb.PrimaryVertex] = bb
	}
	matched := 0
	for e := 0; e < fp.Primary.EdgeCount(); e++ {
		src, dst := fp.Primary.EdgeEndpoints(uint32(e))
		sbb, dbb := bbByPrimary[src], bbByPrimary[dst]
		if sbb == nil || dbb == nil {
			continue
		}
		if _, ok := fp.Secondary.FindEdge(sbb.SecondaryVertex, dbb.SecondaryVertex); ok {
			matched++
		}
	}
	return matched
}

// functionMDConsistencyInputs returns the two sides' whole-function
// MD-index (top-down, full weights) if both are attached to a call graph,
// or (0,0) — perfectly consistent by construction — otherwise.
func functionMDConsistencyInputs(fp *fixedpoint.FixedPoint) (float64, float64) {
	pCG, sCG := fp.Primary.CallGraph(), fp.Secondary.CallGraph()
	if pCG == nil || sCG == nil {
		return 0, 0
	}
	return pCG.FunctionMDTopDown(fp.Primary.CallGraphVertex()), sCG.FunctionMDTopDown(fp.Secondary.CallGraphVertex())
}

// PairConfidence computes c = sum(H_k * w_k) / sum(H_k), squashed through
// the fixed sigmoid. Returns 0 if the histogram is empty. The histogram is
// summed in sorted step-name order: floating-point addition is not
// commutative, and confidence values must be bit-identical across runs the
// same way MD-index sums are.
func PairConfidence(h Histogram, w StepWeights) float64 {
	steps := make([]string, 0, len(h))
	for step := range h {
		steps = append(steps, step)
	}
	sort.Strings(steps)

	var weightedSum, total float64
	for _, step := range steps {
		count := float64(h[step])
		weightedSum += count * w.weightFor(step)
		total += count
	}
	if total == 0 {
		return 0
	}
	return sigmoid(weightedSum / total)
}

// GlobalCounts is the input to GlobalSimilarity: non-library totals on each
// side plus the matched subset, and the call-graph-level MD-index
// consistency term.
type GlobalCounts struct {
	PrimaryFunctions, SecondaryFunctions, MatchedFunctions       int
	PrimaryBasicBlocks, SecondaryBasicBlocks, MatchedBasicBlocks int
	PrimaryEdges, SecondaryEdges, MatchedEdges                   int
	PrimaryInstructions, SecondaryInstructions, MatchedInstrs    int
	MDConsistency                                                float64 // 1 - |mdi1-mdi2|/(1+mdi1+mdi2), whole call graphs
}

// GlobalSimilarity computes the whole-diff similarity, weighting
// edges 0.35, basic blocks 0.25, functions 0.10, instructions 0.10, and
// call-graph MD-index consistency 0.20.
func GlobalSimilarity(g GlobalCounts) float64 {
	edgeFrac := fraction(g.MatchedEdges, g.PrimaryEdges)
	bbFrac := fraction(g.MatchedBasicBlocks, g.PrimaryBasicBlocks)
	fnFrac := fraction(g.MatchedFunctions, g.PrimaryFunctions)
	insFrac := fraction(g.MatchedInstrs, g.PrimaryInstructions)

	return 0.35*edgeFrac + 0.25*bbFrac + 0.10*fnFrac + 0.10*insFrac + 0.20*g.MDConsistency
}
