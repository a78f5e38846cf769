package step

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binarydiff/matcher/fixedpoint"
	"github.com/binarydiff/matcher/model"
)

// buildPair constructs two call graphs, each with functionCount straight-line
// functions of the given mnemonic sequences, entry addresses spaced by 0x100
// starting at base. Flow graphs are attached and topology is run on both.
func buildPair(t *testing.T, base model.Address, mnemonics [][]string) (*model.CallGraph, *model.CallGraph) {
	t.Helper()
	build := func(exeHash string) *model.CallGraph {
		verts := make([]model.CallGraphVertex, len(mnemonics))
		for i := range mnemonics {
			verts[i] = model.CallGraphVertex{Address: base + model.Address(i)*0x100, Name: "sub_x"}
		}
		g, err := model.NewCallGraph(exeHash, "bin", verts, nil)
		require.NoError(t, err)
		for i, ms := range mnemonics {
			instrs := make([]model.Instruction, len(ms))
			addr := verts[i].Address
			for j, m := range ms {
				instrs[j] = model.Instruction{Address: addr + model.Address(j), Mnemonic: m, Bytes: m}
			}
			fg, err := model.NewFlowGraph("f", []model.FlowGraphBlock{{Address: addr, InstrStart: 0, InstrEnd: len(instrs)}}, nil, instrs, 0)
			require.NoError(t, err)
			require.NoError(t, g.AttachFlowGraph(fg))
		}
		g.CalculateTopology()
		return g
	}
	return build("primary"), build("secondary")
}

func allVertices(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}

func TestHashMatching_CommitsUniqueHashBucket(t *testing.T) {
	primary, secondary := buildPair(t, 0x1000, [][]string{
		{"push", "mov", "mov", "mov", "mov", "mov", "mov", "ret"},
		{"push", "xor", "xor", "xor", "xor", "xor", "xor", "ret"},
	})
	ctx := NewMatchingContext(primary, secondary, fixedpoint.NewStore())

	s := NewHashMatching()
	committed := s.FindFixedPoints(ctx, allVertices(2), allVertices(2), nil)
	assert.True(t, committed)
	assert.Equal(t, 2, ctx.Store.Len())
}

func TestHashMatching_SkipsShortFunctions(t *testing.T) {
	primary, secondary := buildPair(t, 0x1000, [][]string{
		{"push", "ret"},
	})
	ctx := NewMatchingContext(primary, secondary, fixedpoint.NewStore())
	s := NewHashMatching()
	committed := s.FindFixedPoints(ctx, allVertices(1), allVertices(1), nil)
	assert.False(t, committed, "below the minimum instruction count, the feature is unusable")
}

func TestAddressSequence_PairsLinearlyWhenCountsMatch(t *testing.T) {
	primary, secondary := buildPair(t, 0x1000, [][]string{
		{"push", "ret"},
		{"mov", "ret"},
	})
	ctx := NewMatchingContext(primary, secondary, fixedpoint.NewStore())
	s := NewAddressSequence()
	committed := s.FindFixedPoints(ctx, allVertices(2), allVertices(2), nil)
	assert.True(t, committed)
	assert.Equal(t, 2, ctx.Store.Len())
}

func TestAddressSequence_RefusesMismatchedCounts(t *testing.T) {
	primary, secondary := buildPair(t, 0x1000, [][]string{
		{"push", "ret"},
		{"mov", "ret"},
	})
	ctx := NewMatchingContext(primary, secondary, fixedpoint.NewStore())
	s := NewAddressSequence()
	committed := s.FindFixedPoints(ctx, allVertices(2), allVertices(1), nil)
	assert.False(t, committed)
}

func TestManual_AlwaysCommitsGivenAddresses(t *testing.T) {
	primary, secondary := buildPair(t, 0x1000, [][]string{
		{"push", "ret"},
	})
	ctx := NewMatchingContext(primary, secondary, fixedpoint.NewStore())
	s := NewManual([]ManualAssignment{{Primary: 0x1000, Secondary: 0x1000}})
	committed := s.FindFixedPoints(ctx, nil, nil, nil)
	assert.True(t, committed)
	fp, ok := ctx.Store.FindByPrimary(0x1000)
	require.True(t, ok)
	assert.Equal(t, "function: manual", fp.MatchingStep())
}

func TestMDIndexTopDown_NoCommitWhenAllFunctionsShareMDIndex(t *testing.T) {
	// Three functions on each side with different bodies but no call edges
	// between them.
	primary, secondary := buildPair(t, 0x2000, [][]string{
		{"push", "ret"},
		{"mov", "mov", "ret"},
		{"xor", "xor", "xor", "ret"},
	})
	ctx := NewMatchingContext(primary, secondary, fixedpoint.NewStore())
	s := NewMDIndexTopDown()
	committed := s.FindFixedPoints(ctx, allVertices(3), allVertices(3), nil)
	// With no call edges at all, every function's MD-index is 0 (no incident
	// edges), so the bucket is NOT unique across all three - this exercises
	// the "no commit without disambiguation" path instead.
	assert.False(t, committed)
}

func buildPairWithEdge(t *testing.T, base model.Address) (*model.CallGraph, *model.CallGraph) {
	t.Helper()
	build := func(exeHash string) *model.CallGraph {
		verts := []model.CallGraphVertex{
			{Address: base, Name: "caller"},
			{Address: base + 0x100, Name: "callee"},
		}
		g, err := model.NewCallGraph(exeHash, "bin", verts, []model.CallGraphEdge{{Source: 0, Target: 1}})
		require.NoError(t, err)
		for _, addr := range []model.Address{base, base + 0x100} {
			instrs := []model.Instruction{{Address: addr, Mnemonic: "push", Bytes: "push"}, {Address: addr + 1, Mnemonic: "ret", Bytes: "ret"}}
			fg, err := model.NewFlowGraph("f", []model.FlowGraphBlock{{Address: addr, InstrStart: 0, InstrEnd: 2}}, nil, instrs, 0)
			require.NoError(t, err)
			require.NoError(t, g.AttachFlowGraph(fg))
		}
		g.CalculateTopology()
		return g
	}
	return build("primary"), build("secondary")
}

func TestEdgeMDTopDown_FiltersToCandidateSubgraph(t *testing.T) {
	primary, secondary := buildPairWithEdge(t, 0x3000)

	ctx := NewMatchingContext(primary, secondary, fixedpoint.NewStore())
	s := NewEdgeMDTopDown()
	committed := s.FindFixedPoints(ctx, allVertices(2), allVertices(2), nil)
	assert.True(t, committed)
	assert.Equal(t, 2, ctx.Store.Len())
}

// buildPairWithStrings is buildPair but additionally stamps a StringRef onto
// one instruction per function, so the "function: string references" step
// has something to bucket.
func buildPairWithStrings(t *testing.T, base model.Address, mnemonics [][]string, refs []string) (*model.CallGraph, *model.CallGraph) {
	t.Helper()
	build := func(exeHash string) *model.CallGraph {
		verts := make([]model.CallGraphVertex, len(mnemonics))
		for i := range mnemonics {
			verts[i] = model.CallGraphVertex{Address: base + model.Address(i)*0x100, Name: "sub_x"}
		}
		g, err := model.NewCallGraph(exeHash, "bin", verts, nil)
		require.NoError(t, err)
		for i, ms := range mnemonics {
			instrs := make([]model.Instruction, len(ms))
			addr := verts[i].Address
			for j, m := range ms {
				instrs[j] = model.Instruction{Address: addr + model.Address(j), Mnemonic: m, Bytes: m}
			}
			if refs[i] != "" {
				instrs[0].StringRef = refs[i]
			}
			fg, err := model.NewFlowGraph("f", []model.FlowGraphBlock{{Address: addr, InstrStart: 0, InstrEnd: len(instrs)}}, nil, instrs, 0)
			require.NoError(t, err)
			require.NoError(t, g.AttachFlowGraph(fg))
		}
		g.CalculateTopology()
		return g
	}
	return build("primary"), build("secondary")
}

func TestStringReferences_CommitsUniqueStringBucket(t *testing.T) {
	primary, secondary := buildPairWithStrings(t, 0x4000,
		[][]string{{"push", "ret"}, {"mov", "ret"}},
		[]string{"hello world", "goodbye world"},
	)
	ctx := NewMatchingContext(primary, secondary, fixedpoint.NewStore())
	s := NewStringReferences()
	committed := s.FindFixedPoints(ctx, allVertices(2), allVertices(2), nil)
	assert.True(t, committed)
	assert.Equal(t, 2, ctx.Store.Len())
}

func TestStringReferences_SkipsFunctionsWithNoStringRefs(t *testing.T) {
	primary, secondary := buildPair(t, 0x5000, [][]string{
		{"push", "ret"},
	})
	ctx := NewMatchingContext(primary, secondary, fixedpoint.NewStore())
	s := NewStringReferences()
	committed := s.FindFixedPoints(ctx, allVertices(1), allVertices(1), nil)
	assert.False(t, committed, "no instruction carries a StringRef, so the feature key is absent")
}

func TestStringReferences_CountsMultiplicityNotJustPresence(t *testing.T) {
	// Two functions reference the exact same string, but with different
	// multiplicities (1x vs 2x); the keyed multiset must distinguish them so
	// they don't collide into one ambiguous bucket.
	primary, err1 := func() (*model.CallGraph, error) {
		verts := []model.CallGraphVertex{{Address: 0x6000, Name: "a"}, {Address: 0x6100, Name: "b"}}
		g, err := model.NewCallGraph("primary", "bin", verts, nil)
		if err != nil {
			return nil, err
		}
		mk := func(addr model.Address, n int) *model.FlowGraph {
			instrs := make([]model.Instruction, n)
			for j := 0; j < n; j++ {
				instrs[j] = model.Instruction{Address: addr + model.Address(j), Mnemonic: "push", Bytes: "push", StringRef: "shared"}
			}
			fg, _ := model.NewFlowGraph("f", []model.FlowGraphBlock{{Address: addr, InstrStart: 0, InstrEnd: n}}, nil, instrs, 0)
			return fg
		}
		require.NoError(t, g.AttachFlowGraph(mk(0x6000, 1)))
		require.NoError(t, g.AttachFlowGraph(mk(0x6100, 2)))
		g.CalculateTopology()
		return g, nil
	}()
	require.NoError(t, err1)

	secondary, err2 := func() (*model.CallGraph, error) {
		verts := []model.CallGraphVertex{{Address: 0x6000, Name: "a"}, {Address: 0x6100, Name: "b"}}
		g, err := model.NewCallGraph("secondary", "bin", verts, nil)
		if err != nil {
			return nil, err
		}
		mk := func(addr model.Address, n int) *model.FlowGraph {
			instrs := make([]model.Instruction, n)
			for j := 0; j < n; j++ {
				instrs[j] = model.Instruction{Address: addr + model.Address(j), Mnemonic: "push", Bytes: "push", StringRef: "shared"}
			}
			fg, _ := model.NewFlowGraph("f", []model.FlowGraphBlock{{Address: addr, InstrStart: 0, InstrEnd: n}}, nil, instrs, 0)
			return fg
		}
		require.NoError(t, g.AttachFlowGraph(mk(0x6000, 2)))
		require.NoError(t, g.AttachFlowGraph(mk(0x6100, 1)))
		g.CalculateTopology()
		return g, nil
	}()
	require.NoError(t, err2)

	ctx := NewMatchingContext(primary, secondary, fixedpoint.NewStore())
	s := NewStringReferences()
	committed := s.FindFixedPoints(ctx, allVertices(2), allVertices(2), nil)
	assert.True(t, committed)
	// Vertex 0 (1x "shared") on primary matches vertex 1 (1x "shared") on
	// secondary, and vertex 1 (2x) matches vertex 0 (2x) - a crossed pairing,
	// not a same-index one.
	fp, ok := ctx.Store.FindByPrimary(0x6000)
	require.True(t, ok)
	assert.Equal(t, model.Address(0x6100), fp.Secondary.EntryAddress())
}

func TestProximityMDIndex_CommitsAcrossCandidateEdges(t *testing.T) {
	primary, secondary := buildPairWithEdge(t, 0x7000)

	ctx := NewMatchingContext(primary, secondary, fixedpoint.NewStore())
	s := NewProximityMDIndex()
	committed := s.FindFixedPoints(ctx, allVertices(2), allVertices(2), nil)
	assert.True(t, committed)
	assert.Equal(t, 2, ctx.Store.Len())
}

func TestProximityMDIndex_NoCommitWhenNoCandidateEdges(t *testing.T) {
	// Candidate set excludes both endpoints of the only edge, so no edge
	// qualifies and the step must not compute or commit anything.
	primary, secondary := buildPairWithEdge(t, 0x8000)
	ctx := NewMatchingContext(primary, secondary, fixedpoint.NewStore())
	s := NewProximityMDIndex()
	committed := s.FindFixedPoints(ctx, nil, nil, nil)
	assert.False(t, committed)
	assert.Equal(t, 0, ctx.Store.Len())
}

func TestDefaultSteps_OmitsManualWhenNoAssignmentsGiven(t *testing.T) {
	steps := DefaultSteps(nil)
	require.NotEmpty(t, steps)
	for _, s := range steps {
		assert.NotEqual(t, ManualStepName, s.Name())
	}
}

func TestDefaultSteps_PrependsManualWhenAssignmentsGiven(t *testing.T) {
	steps := DefaultSteps([]ManualAssignment{{Primary: 0x1000, Secondary: 0x1000}})
	require.NotEmpty(t, steps)
	assert.Equal(t, ManualStepName, steps[0].Name())
}

func TestDefaultStepNames_StartsWithManual(t *testing.T) {
	names := DefaultStepNames()
	require.NotEmpty(t, names)
	assert.Equal(t, ManualStepName, names[0])
}

func TestStepsByName_SkipsManualWithNoAssignments(t *testing.T) {
	steps := StepsByName([]string{ManualStepName, "function: hash matching"}, nil)
	require.Len(t, steps, 1)
	assert.Equal(t, "function: hash matching", steps[0].Name())
}

func TestStepsByName_IncludesManualWithAssignments(t *testing.T) {
	manual := []ManualAssignment{{Primary: 0x1000, Secondary: 0x1000}}
	steps := StepsByName([]string{ManualStepName, "function: hash matching"}, manual)
	require.Len(t, steps, 2)
	assert.Equal(t, ManualStepName, steps[0].Name())
	assert.Equal(t, "function: hash matching", steps[1].Name())
}

func TestStepsByName_SkipsUnrecognizedNames(t *testing.T) {
	steps := StepsByName([]string{"function: hash matching", "function: unknown future step"}, nil)
	require.Len(t, steps, 1)
	assert.Equal(t, "function: hash matching", steps[0].Name())
}

func TestStepsByName_HonorsCustomOrder(t *testing.T) {
	steps := StepsByName([]string{"function: address sequence", "function: hash matching"}, nil)
	require.Len(t, steps, 2)
	assert.Equal(t, "function: address sequence", steps[0].Name())
	assert.Equal(t, "function: hash matching", steps[1].Name())
}

func TestFindFixedPoints_DrillsDownIntoNextStepOnAmbiguousBucket(t *testing.T) {
	// Both functions on each side have MD-index 0 (no call edges), so the
	// MD-index bucket collides; the hash step passed as the remaining list
	// must be tried on just that colliding subset, committing both pairs
	// within the one outer FindFixedPoints call.
	primary, secondary := buildPair(t, 0x9000, [][]string{
		{"push", "mov", "mov", "mov", "mov", "mov", "mov", "ret"},
		{"push", "xor", "xor", "xor", "xor", "xor", "xor", "ret"},
	})
	ctx := NewMatchingContext(primary, secondary, fixedpoint.NewStore())

	s := NewMDIndexTopDown()
	committed := s.FindFixedPoints(ctx, allVertices(2), allVertices(2), []Step{NewHashMatching()})
	assert.True(t, committed, "the drill-down commit must count as a discovery of the outer step")
	assert.Equal(t, 2, ctx.Store.Len())
	for _, fp := range ctx.Store.All() {
		assert.Equal(t, "function: hash matching", fp.MatchingStep(), "drill-down pairs carry the finer step's name")
	}
}

func TestFindFixedPoints_AmbiguousBucketWithNoRemainingStepsCommitsNothing(t *testing.T) {
	primary, secondary := buildPair(t, 0xA000, [][]string{
		{"push", "mov", "mov", "mov", "mov", "mov", "mov", "ret"},
		{"push", "xor", "xor", "xor", "xor", "xor", "xor", "ret"},
	})
	ctx := NewMatchingContext(primary, secondary, fixedpoint.NewStore())

	s := NewMDIndexTopDown()
	committed := s.FindFixedPoints(ctx, allVertices(2), allVertices(2), nil)
	assert.False(t, committed)
	assert.Equal(t, 0, ctx.Store.Len())
}
