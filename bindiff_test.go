package bindiff

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binarydiff/matcher/config"
	"github.com/binarydiff/matcher/fixedpoint"
	"github.com/binarydiff/matcher/incremental"
	"github.com/binarydiff/matcher/matchdriver"
	"github.com/binarydiff/matcher/model"
	"github.com/binarydiff/matcher/score"
	"github.com/binarydiff/matcher/step"
)

// buildSingleton builds a one-function, one-basic-block call graph whose
// sole function has entry address addr and the given mnemonic sequence.
func buildSingleton(t *testing.T, exeHash string, addr model.Address, name string, mnemonics []string) *model.CallGraph {
	t.Helper()
	g, err := model.NewCallGraph(exeHash, "bin", []model.CallGraphVertex{{Address: addr, Name: name}}, nil)
	require.NoError(t, err)

	instrs := make([]model.Instruction, len(mnemonics))
	for i, m := range mnemonics {
		instrs[i] = model.Instruction{Address: addr + model.Address(i), Mnemonic: m, Bytes: m}
	}
	fg, err := model.NewFlowGraph(name, []model.FlowGraphBlock{{Address: addr, InstrStart: 0, InstrEnd: len(instrs)}}, nil, instrs, 0)
	require.NoError(t, err)
	require.NoError(t, g.AttachFlowGraph(fg))
	fg.CalculateTopology()
	g.CalculateTopology()
	return g
}

// Identical singleton functions at the same address match (via the MD-index
// step, which runs first; three instructions are below the hash step's
// minimum) with similarity 1.0 and nonzero confidence.
func TestDiff_IdenticalSingleton(t *testing.T) {
	primary := buildSingleton(t, "p", 0x1000, "sub_1000", []string{"push", "mov", "ret"})
	secondary := buildSingleton(t, "s", 0x1000, "sub_1000", []string{"push", "mov", "ret"})

	result := Diff(primary, secondary, config.Default(), nil)

	require.Equal(t, 1, result.Store.Len())
	fp, ok := result.Store.FindByPrimary(0x1000)
	require.True(t, ok)
	assert.Equal(t, model.Address(0x1000), fp.Secondary.EntryAddress())
	assert.Equal(t, 1.0, fp.Similarity())
	assert.Greater(t, fp.Confidence(), 0.0)
}

// A renamed function at a different address still matches via an
// intrinsic-feature step (MD index or hash), similarity 1.0.
func TestDiff_RenamedFunctionDifferentAddress(t *testing.T) {
	primary := buildSingleton(t, "p", 0x1000, "sub_1000", []string{"push", "mov", "ret"})
	secondary := buildSingleton(t, "s", 0x2000, "my_renamed_func", []string{"push", "mov", "ret"})

	result := Diff(primary, secondary, config.Default(), nil)

	require.Equal(t, 1, result.Store.Len())
	fp, ok := result.Store.FindByPrimary(0x1000)
	require.True(t, ok)
	assert.Equal(t, model.Address(0x2000), fp.Secondary.EntryAddress())
	assert.Equal(t, 1.0, fp.Similarity())
}

// Empty graphs on either side: zero fixed points, zero global similarity,
// no error.
func TestDiff_EmptyGraphs(t *testing.T) {
	primary, err := model.NewCallGraph("p", "bin", nil, nil)
	require.NoError(t, err)
	secondary, err := model.NewCallGraph("s", "bin", nil, nil)
	require.NoError(t, err)
	primary.CalculateTopology()
	secondary.CalculateTopology()

	result := Diff(primary, secondary, config.Default(), nil)

	assert.Equal(t, 0, result.Store.Len())
	assert.Equal(t, 0.0, result.Similarity)
}

func TestBatchRun_PreservesOrderAndMatchesEachPair(t *testing.T) {
	var pairs []Pair
	for i := 0; i < 5; i++ {
		addr := model.Address(0x1000 + i*0x10)
		p := buildSingleton(t, "p", addr, "f", []string{"push", "mov", "mov", "mov", "mov", "mov", "mov", "ret"})
		s := buildSingleton(t, "s", addr, "f", []string{"push", "mov", "mov", "mov", "mov", "mov", "mov", "ret"})
		pairs = append(pairs, Pair{Label: string(rune('a' + i)), Primary: p, Secondary: s})
	}

	results := BatchRun(pairs, config.Default(), 3, nil)

	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, string(rune('a'+i)), r.Label)
		assert.Equal(t, 1, r.Store.Len())
	}
}

func TestBatchRun_ZeroWorkersTreatedAsOne(t *testing.T) {
	p := buildSingleton(t, "p", 0x1000, "f", []string{"push", "ret"})
	s := buildSingleton(t, "s", 0x1000, "f", []string{"push", "ret"})
	results := BatchRun([]Pair{{Label: "x", Primary: p, Secondary: s}}, config.Default(), 0, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].Label)
}

func TestBatchRun_QuitStopsDispatchingNewPairs(t *testing.T) {
	var pairs []Pair
	for i := 0; i < 10; i++ {
		addr := model.Address(0x1000 + i*0x10)
		p := buildSingleton(t, "p", addr, "f", []string{"push", "ret"})
		s := buildSingleton(t, "s", addr, "f", []string{"push", "ret"})
		pairs = append(pairs, Pair{Label: "x", Primary: p, Secondary: s})
	}
	var quit atomic.Bool
	quit.Store(true)

	results := BatchRun(pairs, config.Default(), 2, &quit)

	require.Len(t, results, 10)
	for _, r := range results {
		assert.Nil(t, r.Result, "a pre-set quit flag must stop every worker before it pops a pair")
	}
}

// buildTwoFunctions builds a call graph with two straight-line functions at
// base and base+0x100 and no call edges between them.
func buildTwoFunctions(t *testing.T, exeHash string, base model.Address, first, second []string) *model.CallGraph {
	t.Helper()
	verts := []model.CallGraphVertex{
		{Address: base, Name: "f1"},
		{Address: base + 0x100, Name: "f2"},
	}
	g, err := model.NewCallGraph(exeHash, "bin", verts, nil)
	require.NoError(t, err)
	for i, mnemonics := range [][]string{first, second} {
		addr := verts[i].Address
		instrs := make([]model.Instruction, len(mnemonics))
		for j, m := range mnemonics {
			instrs[j] = model.Instruction{Address: addr + model.Address(j), Mnemonic: m, Bytes: m}
		}
		fg, err := model.NewFlowGraph(verts[i].Name, []model.FlowGraphBlock{{Address: addr, InstrStart: 0, InstrEnd: len(instrs)}}, nil, instrs, 0)
		require.NoError(t, err)
		require.NoError(t, g.AttachFlowGraph(fg))
		fg.CalculateTopology()
	}
	g.CalculateTopology()
	return g
}

// The secondary grew an extra unreachable basic block: the pair still
// matches, carries the structural flag, and similarity lands strictly
// between 0 and 1.
func TestDiff_AddedBasicBlockIsStructuralChange(t *testing.T) {
	buildSide := func(exeHash string, extra bool) *model.CallGraph {
		g, err := model.NewCallGraph(exeHash, "bin", []model.CallGraphVertex{{Address: 0x1000, Name: "f"}}, nil)
		require.NoError(t, err)

		instrs := []model.Instruction{
			{Address: 0x1000, Mnemonic: "push", Bytes: "push"},
			{Address: 0x1001, Mnemonic: "mov", Bytes: "mov"},
			{Address: 0x1002, Mnemonic: "ret", Bytes: "ret"},
		}
		blocks := []model.FlowGraphBlock{
			{Address: 0x1000, InstrStart: 0, InstrEnd: 2},
			{Address: 0x1002, InstrStart: 2, InstrEnd: 3},
		}
		if extra {
			instrs = append(instrs, model.Instruction{Address: 0x1010, Mnemonic: "nop", Bytes: "nop"})
			blocks = append(blocks, model.FlowGraphBlock{Address: 0x1010, InstrStart: 3, InstrEnd: 4})
		}
		fg, err := model.NewFlowGraph("f", blocks,
			[]model.FlowGraphEdge{{Source: 0, Target: 1, Kind: model.EdgeUnconditional}}, instrs, 0)
		require.NoError(t, err)
		require.NoError(t, g.AttachFlowGraph(fg))
		fg.CalculateTopology()
		g.CalculateTopology()
		return g
	}
	primary := buildSide("p", false)
	secondary := buildSide("s", true)

	result := Diff(primary, secondary, config.Default(), nil)

	require.Equal(t, 1, result.Store.Len())
	fp, ok := result.Store.FindByPrimary(0x1000)
	require.True(t, ok)
	assert.True(t, fp.HasFlag(fixedpoint.ChangeStructural))
	assert.Greater(t, fp.Similarity(), 0.0)
	assert.Less(t, fp.Similarity(), 1.0)
}

// Two functions on each side share the same MD-index (both have no call
// edges at all), so the MD-index bucket collides and the hash step —
// reached by drill-down on the colliding subset — disambiguates both
// pairs, which therefore carry its name.
func TestDiff_AmbiguousMDIndexDisambiguatedByHash(t *testing.T) {
	first := []string{"push", "mov", "mov", "mov", "mov", "mov", "mov", "ret"}
	second := []string{"push", "xor", "xor", "xor", "xor", "xor", "xor", "ret"}
	primary := buildTwoFunctions(t, "p", 0x1000, first, second)
	secondary := buildTwoFunctions(t, "s", 0x1000, first, second)

	result := Diff(primary, secondary, config.Default(), nil)

	require.Equal(t, 2, result.Store.Len())
	for _, fp := range result.Store.All() {
		assert.Equal(t, "function: hash matching", fp.MatchingStep())
	}
}

// One match of an already-diffed pair is pinned as manual and the diff is
// rerun incrementally. The manual pair survives untouched; the other is
// discarded and re-derived.
func TestDiff_IncrementalPreservesManualMatches(t *testing.T) {
	first := []string{"push", "mov", "mov", "mov", "mov", "mov", "mov", "ret"}
	second := []string{"push", "xor", "xor", "xor", "xor", "xor", "xor", "ret"}
	primary := buildTwoFunctions(t, "p", 0x1000, first, second)
	secondary := buildTwoFunctions(t, "s", 0x1000, first, second)

	result := Diff(primary, secondary, config.Default(), nil)
	require.Equal(t, 2, result.Store.Len())

	pinned, ok := result.Store.FindByPrimary(0x1000)
	require.True(t, ok)
	pinned.SetMatchingStep(step.ManualStepName)

	incremental.Rematch(result.Context, matchdriver.DefaultOptions())

	require.Equal(t, 2, result.Store.Len())
	survivor, ok := result.Store.FindByPrimary(0x1000)
	require.True(t, ok)
	assert.Same(t, pinned, survivor, "the manual pair must survive the rematch as the same entry")
	assert.Equal(t, step.ManualStepName, survivor.MatchingStep())

	// With the other pair pinned, the remaining bucket is singleton on both
	// sides, so an earlier step than hash matching may claim it; all that is
	// guaranteed is a fresh, non-manual derivation.
	rederived, ok := result.Store.FindByPrimary(0x1100)
	require.True(t, ok)
	assert.NotEqual(t, step.ManualStepName, rederived.MatchingStep())

	histogram := score.BuildHistogram(result.Store)
	assert.Equal(t, 1, histogram[step.ManualStepName])
	assert.Equal(t, 1, histogram[rederived.MatchingStep()])
}
