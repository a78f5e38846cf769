package matchdriver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binarydiff/matcher/classify"
	"github.com/binarydiff/matcher/fixedpoint"
	"github.com/binarydiff/matcher/model"
	"github.com/binarydiff/matcher/step"
)

// buildCallerCallee builds two identical two-function call graphs (a caller
// at base and a callee at base+0x100, one call edge between them), each
// function a single straight-line basic block.
func buildCallerCallee(t *testing.T, base model.Address) (*model.CallGraph, *model.CallGraph) {
	t.Helper()
	build := func(exeHash string) *model.CallGraph {
		verts := []model.CallGraphVertex{
			{Address: base, Name: "caller"},
			{Address: base + 0x100, Name: "callee"},
		}
		g, err := model.NewCallGraph(exeHash, "bin", verts, []model.CallGraphEdge{{Source: 0, Target: 1}})
		require.NoError(t, err)
		for _, addr := range []model.Address{base, base + 0x100} {
			instrs := []model.Instruction{
				{Address: addr, Mnemonic: "push", Bytes: "push"},
				{Address: addr + 1, Mnemonic: "ret", Bytes: "ret"},
			}
			fg, err := model.NewFlowGraph("f", []model.FlowGraphBlock{{Address: addr, InstrStart: 0, InstrEnd: 2}}, nil, instrs, 0)
			require.NoError(t, err)
			require.NoError(t, g.AttachFlowGraph(fg))
		}
		g.CalculateTopology()
		return g
	}
	return build("primary"), build("secondary")
}

func TestRun_ManualPairIsScoredAndClassified(t *testing.T) {
	primary, secondary := buildCallerCallee(t, 0x9000)
	store := fixedpoint.NewStore()
	ctx := step.NewMatchingContext(primary, secondary, store)

	opts := DefaultOptions()
	opts.CallGraphSteps = []step.Step{step.NewManual([]step.ManualAssignment{
		{Primary: 0x9000, Secondary: 0x9000},
		{Primary: 0x9100, Secondary: 0x9100},
	})}

	Run(ctx, opts)

	require.Equal(t, 2, store.Len())
	fp, ok := store.FindByPrimary(0x9000)
	require.True(t, ok)
	assert.Equal(t, 1.0, fp.Similarity(), "identical basic blocks and instructions on both sides is an exact match")
	assert.NotZero(t, fp.Confidence())
	assert.Equal(t, "-------", classify.GetChangeDescription(fp), "identical functions carry no change flags")
}

func TestRun_ManualOnlyStepListLeavesChildUnmatched(t *testing.T) {
	primary, secondary := buildCallerCallee(t, 0xA000)
	store := fixedpoint.NewStore()
	ctx := step.NewMatchingContext(primary, secondary, store)

	opts := DefaultOptions()
	opts.CallGraphSteps = []step.Step{step.NewManual([]step.ManualAssignment{
		{Primary: 0xA000, Secondary: 0xA000},
	})}

	Run(ctx, opts)

	// Only the caller was pinned manually and the call-graph step list holds
	// nothing but the manual step; the caller's blocks carry no call targets,
	// so call-reference matching has nothing to follow and the callee stays
	// unmatched.
	_, ok := store.FindByPrimary(0xA100)
	assert.False(t, ok, "the callee has no call-graph-level feature to match on without a step list beyond manual")
}

// buildCallerWithDuplicateEdge builds a two-function call graph where the
// caller has two parallel edges into the same callee, so the second edge is
// flagged IsDuplicate ("exactly one of a set of parallel edges is
// non-duplicate").
func buildCallerWithDuplicateEdge(t *testing.T, base model.Address) *model.CallGraph {
	t.Helper()
	verts := []model.CallGraphVertex{
		{Address: base, Name: "caller"},
		{Address: base + 0x100, Name: "callee"},
	}
	g, err := model.NewCallGraph("exe", "bin", verts, []model.CallGraphEdge{
		{Source: 0, Target: 1},
		{Source: 0, Target: 1},
	})
	require.NoError(t, err)
	for _, addr := range []model.Address{base, base + 0x100} {
		instrs := []model.Instruction{
			{Address: addr, Mnemonic: "push", Bytes: "push"},
			{Address: addr + 1, Mnemonic: "ret", Bytes: "ret"},
		}
		fg, err := model.NewFlowGraph("f", []model.FlowGraphBlock{{Address: addr, InstrStart: 0, InstrEnd: 2}}, nil, instrs, 0)
		require.NoError(t, err)
		require.NoError(t, g.AttachFlowGraph(fg))
	}
	g.CalculateTopology()
	return g
}

func TestChildrenOfParentsOf_SkipDuplicateEdges(t *testing.T) {
	g := buildCallerWithDuplicateEdge(t, 0xC000)

	callerVertex := g.GetVertex(0xC000)
	require.NotEqual(t, model.InvalidIndex, callerVertex)
	calleeVertex := g.GetVertex(0xC100)
	require.NotEqual(t, model.InvalidIndex, calleeVertex)

	children := childrenOf(g, callerVertex)
	assert.Equal(t, []uint32{calleeVertex}, children, "the duplicate parallel edge must not contribute a second entry to the children set")

	parents := parentsOf(g, calleeVertex)
	assert.Equal(t, []uint32{callerVertex}, parents, "the duplicate parallel edge must not contribute a second entry to the parents set")
}

func TestRun_FullDefaultStepsMatchesBothFunctions(t *testing.T) {
	primary, secondary := buildCallerCallee(t, 0xB000)
	store := fixedpoint.NewStore()
	ctx := step.NewMatchingContext(primary, secondary, store)

	Run(ctx, DefaultOptions())

	require.Equal(t, 2, store.Len())
	_, ok := store.FindByPrimary(0xB000)
	assert.True(t, ok)
	_, ok = store.FindByPrimary(0xB100)
	assert.True(t, ok)
}

func TestChildrenOfParentsOf_SkipSelfLoops(t *testing.T) {
	g, err := model.NewCallGraph("exe", "bin",
		[]model.CallGraphVertex{{Address: 0xD000, Name: "recursive"}},
		[]model.CallGraphEdge{{Source: 0, Target: 0}})
	require.NoError(t, err)
	require.True(t, g.IsCircular(0))

	assert.Empty(t, childrenOf(g, 0), "a recursive function's self-loop must not re-enter its own propagation set")
	assert.Empty(t, parentsOf(g, 0))
}
