package bindiff

import (
	"github.com/binarydiff/matcher/blockmatch"
	"github.com/binarydiff/matcher/config"
	"github.com/binarydiff/matcher/fixedpoint"
	"github.com/binarydiff/matcher/matchdriver"
	"github.com/binarydiff/matcher/model"
	"github.com/binarydiff/matcher/score"
	"github.com/binarydiff/matcher/step"
)

// Result is the outcome of one Diff call: the fixed-point store, the
// matching context it was built from (retained so callers can inspect
// per-step caches or re-enter incremental.Rematch), and the two
// whole-diff scores.
type Result struct {
	Store      *fixedpoint.Store
	Context    *step.MatchingContext
	Similarity float64
	Confidence float64
}

// Diff runs the full matching pipeline over two already-constructed call
// graphs: it assumes CalculateTopology
// has already been run on both (and on every attached FlowGraph), builds a
// fresh fixed-point store and matching context, runs the iterative driver
// (matchdriver.Run, which also runs the basic-block matcher, call-reference
// matching and change classification), then scores the whole diff.
//
// cfg supplies the step-weight overrides and the hash-matching step's
// minimum instruction count; a zero-value config.Config falls back to the
// default step order, step weights and hash-matching minimum, but unlike
// config.Default() it does not exclude library functions from the global
// similarity. manual lists any externally-supplied ground-truth
// function pairs for the "function: manual" step; whether and where it
// runs relative to the other call-graph steps is governed by cfg.StepList,
// not hardcoded here.
func Diff(primary, secondary *model.CallGraph, cfg config.Config, manual []step.ManualAssignment) *Result {
	store := fixedpoint.NewStore()
	ctx := step.NewMatchingContext(primary, secondary, store)
	ctx.MinHashInstructions = cfg.MinHashInstructions

	weights := cfg.ResolvedStepWeights()
	opts := matchdriver.Options{
		CallGraphSteps: cfg.ResolvedSteps(manual),
		BlockSteps:     blockmatch.DefaultSteps(),
		StepWeights:    weights,
	}

	matchdriver.Run(ctx, opts)

	similarity, confidence := globalScore(primary, secondary, store, weights, cfg)

	return &Result{Store: store, Context: ctx, Similarity: similarity, Confidence: confidence}
}

// globalScore computes the whole-diff similarity and confidence,
// optionally excluding library functions from the function tallies per
// cfg.ExcludeLibraryFunctions. When either side has no function with a flow
// graph, both are 0.
func globalScore(primary, secondary *model.CallGraph, store *fixedpoint.Store, weights score.StepWeights, cfg config.Config) (float64, float64) {
	pCounts := score.TallyGraph(primary)
	sCounts := score.TallyGraph(secondary)
	matched := score.TallyMatched(store)
	if pCounts.Functions == 0 || sCounts.Functions == 0 {
		return 0, 0
	}

	pFunctions, sFunctions, mFunctions := pCounts.Functions, sCounts.Functions, matched.Functions
	if cfg.ExcludeLibraryFunctions {
		pFunctions = pCounts.NonLibrary().Functions
		sFunctions = sCounts.NonLibrary().Functions
		mFunctions = matched.NonLibrary().Functions
	}

	mdConsistency := 1 - absRatio(primary.MdIndex(), secondary.MdIndex())
	similarity := score.GlobalSimilarity(score.GlobalCounts{
		PrimaryFunctions: pFunctions, SecondaryFunctions: sFunctions, MatchedFunctions: mFunctions,
		PrimaryBasicBlocks: pCounts.BasicBlocks, SecondaryBasicBlocks: sCounts.BasicBlocks, MatchedBasicBlocks: matched.BasicBlocks,
		PrimaryEdges: pCounts.Edges, SecondaryEdges: sCounts.Edges, MatchedEdges: matched.Edges,
		PrimaryInstructions: pCounts.Instructions, SecondaryInstructions: sCounts.Instructions, MatchedInstrs: matched.Instructions,
		MDConsistency: mdConsistency,
	})

	histogram := score.BuildHistogram(store)
	confidence := score.PairConfidence(histogram, weights)

	return similarity, confidence
}

func absRatio(a, b float64) float64 {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d / (1 + a + b)
}
