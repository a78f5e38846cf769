package incremental

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binarydiff/matcher/fixedpoint"
	"github.com/binarydiff/matcher/matchdriver"
	"github.com/binarydiff/matcher/model"
	"github.com/binarydiff/matcher/step"
)

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

func TestRematch_PreservesManualDiscardsAutomatic(t *testing.T) {
	primary, secondary := buildCallerCallee(t, 0xC000)
	store := fixedpoint.NewStore()
	ctx := step.NewMatchingContext(primary, secondary, store)

	opts := matchdriver.DefaultOptions()
	opts.CallGraphSteps = []step.Step{step.NewManual([]step.ManualAssignment{
		{Primary: 0xC000, Secondary: 0xC000},
	})}
	matchdriver.Run(ctx, opts)

	_, ok := store.FindByPrimary(0xC100)
	require.False(t, ok, "sanity: the callee isn't matched yet with only the manual step running")

	opts.CallGraphSteps = step.DefaultSteps(nil)
	Rematch(ctx, opts)

	manual, ok := store.FindByPrimary(0xC000)
	require.True(t, ok, "manual match must survive the rematch")
	assert.Equal(t, step.ManualStepName, manual.MatchingStep())

	rematched, ok := store.FindByPrimary(0xC100)
	require.True(t, ok, "the callee should be matchable by the default step list after rematch")
	assert.NotEqual(t, step.ManualStepName, rematched.MatchingStep())
}

func TestDiscardedCount_CountsOnlyNonManual(t *testing.T) {
	primary, secondary := buildCallerCallee(t, 0xD000)
	store := fixedpoint.NewStore()
	ctx := step.NewMatchingContext(primary, secondary, store)

	opts := matchdriver.DefaultOptions()
	opts.CallGraphSteps = []step.Step{step.NewManual([]step.ManualAssignment{
		{Primary: 0xD000, Secondary: 0xD000},
	})}
	matchdriver.Run(ctx, opts)
	assert.Equal(t, 0, DiscardedCount(store), "only the manual pair matched so far")

	opts.CallGraphSteps = step.DefaultSteps(nil)
	matchdriver.Run(ctx, opts)
	assert.Equal(t, 1, DiscardedCount(store), "the callee picked up an automatic match on the second run")
}
