package step

import (
	"cmp"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/binarydiff/matcher/bucket"
	"github.com/binarydiff/matcher/model"
	"github.com/binarydiff/matcher/sig"
)

// Step is one call-graph matching step. Implementations
// must be reentrant: all mutable state lives on the MatchingContext, never
// on the step value itself, since one Step instance is shared across every
// invocation in the driver's step list — and a step can be re-entered
// mutually recursively through drill-down while an earlier step is still
// mid-scan.
type Step interface {
	Name() string
	DisplayName() string
	Confidence() float64
	Strict() bool

	// FindFixedPoints buckets primary and secondary candidates (call-graph
	// vertex indices into ctx.Primary / ctx.Secondary) by this step's
	// feature and commits every uniquely-sized bucket pair. remaining holds
	// the steps after this one in the driver's current list: whenever a
	// bucket collides on either side, the step recurses into remaining[0]
	// (with remaining[1:]) on just that colliding subset, so a finer
	// feature gets a chance to split the bucket before the driver ever
	// moves on. It reports whether at least one new fixed point was
	// committed, by this step or any drill-down under it.
	FindFixedPoints(ctx *MatchingContext, primary, secondary []uint32, remaining []Step) bool
}

// drillDown recurses into the next finer step on one ambiguous bucket. It
// is the popped-front recursion of the matching scheme: the colliding
// subset is retried with the rest of the step list, and whatever it cannot
// disambiguate is dropped until the driver's outer loop reaches a finer
// step over the full unmatched population.
func drillDown(ctx *MatchingContext, primary, secondary []uint32, remaining []Step) bool {
	if len(remaining) == 0 {
		return false
	}
	return remaining[0].FindFixedPoints(ctx, primary, secondary, remaining[1:])
}

// roundKey quantizes a float64 feature to 9 decimal digits so that two
// values produced by the same deterministic computation compare equal as
// map keys, while still discriminating genuinely different MD-index values.
func roundKey(v float64) float64 { return math.Round(v*1e9) / 1e9 }

type baseStep struct {
	name        string
	displayName string
	confidence  float64
	strict      bool
}

func (b baseStep) Name() string        { return b.name }
func (b baseStep) DisplayName() string { return b.displayName }
func (b baseStep) Confidence() float64 { return b.confidence }
func (b baseStep) Strict() bool        { return b.strict }

// featureStep wires a baseStep to a feature-extraction function and reuses
// bucket.FindUnique for the commit and drill-down logic; it is the shape of
// every non-edge-keyed, non-linear call-graph step.
type featureStep struct {
	baseStep
	keyOf func(ctx *MatchingContext, g *model.CallGraph, v uint32) (float64, bool)
}

func (s *featureStep) FindFixedPoints(ctx *MatchingContext, primary, secondary []uint32, remaining []Step) bool {
	pKey := func(v uint32) (float64, bool) { return s.keyOf(ctx, ctx.Primary, v) }
	sKey := func(v uint32) (float64, bool) { return s.keyOf(ctx, ctx.Secondary, v) }
	return bucketTwoSided(ctx, primary, secondary, pKey, sKey, func(pv, sv uint32) bool {
		return commitFunctionPair(ctx, s.name, pv, sv)
	}, remaining)
}

// stringFeatureStep is featureStep's string-keyed twin, for steps whose
// natural feature (a name, a joined sequence) is not a float64.
type stringFeatureStep struct {
	baseStep
	keyOf func(ctx *MatchingContext, g *model.CallGraph, v uint32) (string, bool)
}

func (s *stringFeatureStep) FindFixedPoints(ctx *MatchingContext, primary, secondary []uint32, remaining []Step) bool {
	pKey := func(v uint32) (string, bool) { return s.keyOf(ctx, ctx.Primary, v) }
	sKey := func(v uint32) (string, bool) { return s.keyOf(ctx, ctx.Secondary, v) }
	return bucketTwoSided(ctx, primary, secondary, pKey, sKey, func(pv, sv uint32) bool {
		return commitFunctionPair(ctx, s.name, pv, sv)
	}, remaining)
}

// sideVertex tags a vertex index with the call graph it belongs to, so one
// bucket.FindUnique call can key the two sides independently.
type sideVertex struct {
	secondary bool
	v         uint32
}

func sideVertices(vs []uint32, secondary bool) []sideVertex {
	out := make([]sideVertex, len(vs))
	for i, v := range vs {
		out[i] = sideVertex{secondary: secondary, v: v}
	}
	return out
}

func vertexIndices(items []sideVertex) []uint32 {
	out := make([]uint32, len(items))
	for i, it := range items {
		out[i] = it.v
	}
	return out
}

// bucketTwoSided adapts bucket.FindUnique to two independently-keyed vertex
// slices (primary keyed against ctx.Primary, secondary against
// ctx.Secondary). Colliding buckets are retried through drillDown with the
// remaining step list.
func bucketTwoSided[K cmp.Ordered](
	ctx *MatchingContext,
	primary, secondary []uint32,
	pKey, sKey func(uint32) (K, bool),
	commit func(pv, sv uint32) bool,
	remaining []Step,
) bool {
	keyOf := func(it sideVertex) (K, bool) {
		if it.secondary {
			return sKey(it.v)
		}
		return pKey(it.v)
	}
	return bucket.FindUnique(sideVertices(primary, false), sideVertices(secondary, true), keyOf,
		func(p, s sideVertex) bool { return commit(p.v, s.v) },
		func(ambP, ambS []sideVertex) bool {
			return drillDown(ctx, vertexIndices(ambP), vertexIndices(ambS), remaining)
		})
}

// functionInstructionBytes concatenates every instruction byte-string in fg,
// in basic-block vertex order (which is address order), guarding callers
// that need a minimum instruction count before trusting the feature.
func functionInstructionBytes(fg *model.FlowGraph) (string, int) {
	var b strings.Builder
	count := 0
	for v := uint32(0); v < uint32(fg.BasicBlockCount()); v++ {
		for _, instr := range fg.Instructions(v) {
			b.WriteString(instr.Bytes)
			count++
		}
	}
	return b.String(), count
}

func functionMnemonics(fg *model.FlowGraph) []string {
	var out []string
	for v := uint32(0); v < uint32(fg.BasicBlockCount()); v++ {
		for _, instr := range fg.Instructions(v) {
			out = append(out, instr.Mnemonic)
		}
	}
	return out
}

const minHashedInstructions = 8

// NewMDIndexTopDown is the "function: MD index (top-down)" step: functions
// are bucketed by their per-function MD-index under full weights and
// forward BFS levels.
func NewMDIndexTopDown() Step {
	return &featureStep{
		baseStep: baseStep{name: "function: MD index (top-down)", displayName: "MD index matching (top-down)", confidence: 1.0},
		keyOf: func(_ *MatchingContext, g *model.CallGraph, v uint32) (float64, bool) {
			return roundKey(g.FunctionMDTopDown(v)), true
		},
	}
}

// NewMDIndexBottomUp is the bottom-up mirror of NewMDIndexTopDown, using
// reverse BFS levels.
func NewMDIndexBottomUp() Step {
	return &featureStep{
		baseStep: baseStep{name: "function: MD index (bottom-up)", displayName: "MD index matching (bottom-up)", confidence: 1.0},
		keyOf: func(_ *MatchingContext, g *model.CallGraph, v uint32) (float64, bool) {
			return roundKey(g.FunctionMDBottomUp(v)), true
		},
	}
}

// NewHashMatching is the "function: hash matching" step: functions with at
// least minHashedInstructions instructions are bucketed by the hash of their
// concatenated instruction bytes.
func NewHashMatching() Step {
	return &stringFeatureStep{
		baseStep: baseStep{name: "function: hash matching", displayName: "hash matching", confidence: 1.0, strict: true},
		keyOf: func(ctx *MatchingContext, g *model.CallGraph, v uint32) (string, bool) {
			fg := g.FlowGraph(v)
			if fg == nil {
				return "", false
			}
			min := minHashedInstructions
			if ctx.MinHashInstructions > 0 {
				min = ctx.MinHashInstructions
			}
			bytes, n := functionInstructionBytes(fg)
			if n < min {
				return "", false
			}
			return uitoa(sig.HashBytes(bytes)), true
		},
	}
}

// NewPrimeSignature is the "function: prime signature" step: functions are
// bucketed by the modular-ring product of their per-mnemonic primes (the
// product wraps naturally in uint64 arithmetic).
func NewPrimeSignature() Step {
	return &stringFeatureStep{
		baseStep: baseStep{name: "function: prime signature", displayName: "prime signature matching", confidence: 0.9},
		keyOf: func(_ *MatchingContext, g *model.CallGraph, v uint32) (string, bool) {
			fg := g.FlowGraph(v)
			if fg == nil {
				return "", false
			}
			mnemonics := functionMnemonics(fg)
			if len(mnemonics) == 0 {
				return "", false
			}
			product := uint64(1)
			for _, m := range mnemonics {
				product *= sig.MnemonicPrime(m)
			}
			return uitoa(product), true
		},
	}
}

// NewCallSequence is the "function: call sequence" step: functions are
// bucketed by the order-preserving sequence of their resolved callee names.
func NewCallSequence() Step {
	return &stringFeatureStep{
		baseStep: baseStep{name: "function: call sequence", displayName: "call sequence matching", confidence: 0.9},
		keyOf: func(_ *MatchingContext, g *model.CallGraph, v uint32) (string, bool) {
			return callSequenceKey(g, v)
		},
	}
}

func callSequenceKey(g *model.CallGraph, v uint32) (string, bool) {
	fg := g.FlowGraph(v)
	if fg == nil {
		return "", false
	}
	var b strings.Builder
	any := false
	for bv := uint32(0); bv < uint32(fg.BasicBlockCount()); bv++ {
		for _, addr := range fg.CallTargets(bv) {
			cv := g.GetVertex(addr)
			if cv == model.InvalidIndex {
				continue
			}
			b.WriteString(g.GoodName(cv))
			b.WriteByte(';')
			any = true
		}
	}
	if !any {
		return "", false
	}
	return b.String(), true
}

// NewNameHashMatching is the "function: name hash matching" step: only
// functions carrying a non-empty name (model.CallGraph.HasRealName)
// participate, bucketed by the hash of that name.
func NewNameHashMatching() Step {
	return &stringFeatureStep{
		baseStep: baseStep{name: "function: name hash matching", displayName: "name hash matching", confidence: 1.0},
		keyOf: func(_ *MatchingContext, g *model.CallGraph, v uint32) (string, bool) {
			if !g.HasRealName(v) {
				return "", false
			}
			return uitoa(sig.HashBytes(g.Name(v))), true
		},
	}
}

// NewStringReferences is the "function: string references" step: functions
// are bucketed by the multiset of string-reference targets touched by their
// instructions. Each instruction contributes at most one string reference
// (Instruction.StringRef only ever carries the first cross-reference), so a
// function that references the same string from several instructions is
// counted with multiplicity, not deduplicated — two functions differing
// only in how many times they touch a shared string do not collide in this
// bucket.
func NewStringReferences() Step {
	return &stringFeatureStep{
		baseStep: baseStep{name: "function: string references", displayName: "string reference matching", confidence: 0.85},
		keyOf: func(_ *MatchingContext, g *model.CallGraph, v uint32) (string, bool) {
			return stringReferenceKey(g, v)
		},
	}
}

func stringReferenceKey(g *model.CallGraph, v uint32) (string, bool) {
	fg := g.FlowGraph(v)
	if fg == nil {
		return "", false
	}
	counts := map[string]int{}
	for bv := uint32(0); bv < uint32(fg.BasicBlockCount()); bv++ {
		for _, instr := range fg.Instructions(bv) {
			if instr.StringRef != "" {
				counts[instr.StringRef]++
			}
		}
	}
	if len(counts) == 0 {
		return "", false
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(counts[k]))
		b.WriteByte(';')
	}
	return b.String(), true
}

// edgeMDStep is the shape of the edge-keyed steps: the context's per-edge
// feature cache, filtered to edges whose endpoints are
// both currently-relevant candidates, bucketed by feature value, with a
// commit that tries both endpoint pairs.
type edgeMDStep struct {
	baseStep
	inverted bool
}

// NewEdgeMDTopDown is the "function: edge MD index (top-down)" step.
func NewEdgeMDTopDown() Step {
	return &edgeMDStep{baseStep: baseStep{name: "function: edge MD index (top-down)", displayName: "edge MD index matching (top-down)", confidence: 0.9}}
}

// NewEdgeMDBottomUp is the "function: edge MD index (bottom-up)" step.
func NewEdgeMDBottomUp() Step {
	return &edgeMDStep{baseStep: baseStep{name: "function: edge MD index (bottom-up)", displayName: "edge MD index matching (bottom-up)", confidence: 0.9}, inverted: true}
}

func (s *edgeMDStep) FindFixedPoints(ctx *MatchingContext, primary, secondary []uint32, remaining []Step) bool {
	pSet := candidateSet(primary)
	sSet := candidateSet(secondary)

	pEdges := filterEdges(ctx.edgeFeatures(ctx.Primary, s.inverted), pSet)
	sEdges := filterEdges(ctx.edgeFeatures(ctx.Secondary, s.inverted), sSet)

	return bucket.FindUnique(pEdges, sEdges,
		func(e edgeFeature) (float64, bool) { return roundKey(e.value), true },
		func(pe, se edgeFeature) bool {
			a := commitFunctionPair(ctx, s.name, pe.source, se.source)
			b := commitFunctionPair(ctx, s.name, pe.target, se.target)
			return a || b
		},
		func(ambP, ambS []edgeFeature) bool {
			return drillDown(ctx, edgeEndpoints(ambP), edgeEndpoints(ambS), remaining)
		},
	)
}

func filterEdges(edges []edgeFeature, set map[uint32]bool) []edgeFeature {
	out := make([]edgeFeature, 0, len(edges))
	for _, e := range edges {
		if set[e.source] && set[e.target] {
			out = append(out, e)
		}
	}
	return out
}

// edgeEndpoints flattens a colliding edge bucket into the deduplicated set
// of its endpoint function vertices, in first-seen order, so a drill-down
// step can re-bucket the functions behind the colliding edges.
func edgeEndpoints(edges []edgeFeature) []uint32 {
	seen := make(map[uint32]bool, 2*len(edges))
	out := make([]uint32, 0, 2*len(edges))
	for _, e := range edges {
		for _, v := range [2]uint32{e.source, e.target} {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

// proximityMDStep is "function: proximity MD index": an edge-keyed step
// like edgeMDStep, but bucketed by the edge-local proximity MD index
// instead of the whole-graph one. It is a finer-grained disambiguator
// for candidates the plain edge MD-index steps left ambiguous. Unlike
// edgeMDStep it reads CallGraph.GetProximityMD directly rather than going
// through the context's edge-feature cache: the proximity index is itself
// lazily memoized per edge and must never be computed for the whole graph
// up front (worst case O(d_max²) per query), only for the
// edges the current candidate filter actually touches.
type proximityMDStep struct{ baseStep }

// NewProximityMDIndex is the "function: proximity MD index" step.
func NewProximityMDIndex() Step {
	return &proximityMDStep{baseStep{name: "function: proximity MD index", displayName: "proximity MD index matching", confidence: 0.8}}
}

type proximityEdgeRef struct {
	graph          *model.CallGraph
	edge           uint32
	source, target uint32
}

func collectCandidateEdges(g *model.CallGraph, set map[uint32]bool) []proximityEdgeRef {
	var out []proximityEdgeRef
	for e := 0; e < g.EdgeCount(); e++ {
		src, dst := g.EdgeEndpoints(uint32(e))
		if set[src] && set[dst] {
			out = append(out, proximityEdgeRef{graph: g, edge: uint32(e), source: src, target: dst})
		}
	}
	return out
}

func (s *proximityMDStep) FindFixedPoints(ctx *MatchingContext, primary, secondary []uint32, remaining []Step) bool {
	pEdges := collectCandidateEdges(ctx.Primary, candidateSet(primary))
	sEdges := collectCandidateEdges(ctx.Secondary, candidateSet(secondary))

	return bucket.FindUnique(pEdges, sEdges,
		func(r proximityEdgeRef) (float64, bool) { return roundKey(r.graph.GetProximityMD(r.edge)), true },
		func(pr, sr proximityEdgeRef) bool {
			a := commitFunctionPair(ctx, s.name, pr.source, sr.source)
			b := commitFunctionPair(ctx, s.name, pr.target, sr.target)
			return a || b
		},
		func(ambP, ambS []proximityEdgeRef) bool {
			return drillDown(ctx, proximityEndpoints(ambP), proximityEndpoints(ambS), remaining)
		},
	)
}

// proximityEndpoints is edgeEndpoints for proximity edge references.
func proximityEndpoints(refs []proximityEdgeRef) []uint32 {
	seen := make(map[uint32]bool, 2*len(refs))
	out := make([]uint32, 0, 2*len(refs))
	for _, r := range refs {
		for _, v := range [2]uint32{r.source, r.target} {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

// addressSequenceStep is the "function: address sequence" step: a
// last-resort linear pairing of two equally-sized, address-sorted candidate
// sets, used when nothing else has disambiguated them.
type addressSequenceStep struct{ baseStep }

// NewAddressSequence is the "function: address sequence" step.
func NewAddressSequence() Step {
	return &addressSequenceStep{baseStep{name: "function: address sequence", displayName: "address sequence matching", confidence: 0.5}}
}

func (s *addressSequenceStep) FindFixedPoints(ctx *MatchingContext, primary, secondary []uint32, _ []Step) bool {
	if len(primary) == 0 || len(primary) != len(secondary) {
		return false
	}
	p := append([]uint32(nil), primary...)
	sArr := append([]uint32(nil), secondary...)
	sort.Slice(p, func(i, j int) bool { return ctx.Primary.Address(p[i]) < ctx.Primary.Address(p[j]) })
	sort.Slice(sArr, func(i, j int) bool { return ctx.Secondary.Address(sArr[i]) < ctx.Secondary.Address(sArr[j]) })

	committed := false
	for i := range p {
		if commitFunctionPair(ctx, s.name, p[i], sArr[i]) {
			committed = true
		}
	}
	return committed
}

// ManualStepName is the interned name the manual-assignment step commits
// under. The incremental matcher uses it verbatim to decide which
// fixed points are "ground truth" and must survive a re-match.
const ManualStepName = "function: manual"

// ManualAssignment is one externally-supplied (primary, secondary) address
// pair, always trusted.
type ManualAssignment struct {
	Primary, Secondary model.Address
}

// manualStep is the "function: manual" step: external assignments, always
// committed at confidence 1.0.
type manualStep struct {
	baseStep
	assignments []ManualAssignment
}

// NewManual builds the manual-assignment step from a set of (primary,
// secondary) address pairs, typically loaded from a prior diff's result.
func NewManual(assignments []ManualAssignment) Step {
	return &manualStep{baseStep: baseStep{name: ManualStepName, displayName: "manual matching", confidence: 1.0}, assignments: assignments}
}

func (s *manualStep) FindFixedPoints(ctx *MatchingContext, _, _ []uint32, _ []Step) bool {
	committed := false
	for _, a := range s.assignments {
		pv := ctx.Primary.GetVertex(a.Primary)
		sv := ctx.Secondary.GetVertex(a.Secondary)
		if pv == model.InvalidIndex || sv == model.InvalidIndex {
			continue
		}
		if commitFunctionPair(ctx, s.name, pv, sv) {
			committed = true
		}
	}
	return committed
}

func uitoa(v uint64) string { return strconv.FormatUint(v, 10) }

// DefaultSteps returns the default call-graph matching step list, in the
// default order: manual ground truth first (when any
// assignments are supplied), then the intrinsic per-function features from
// strongest to weakest signal, the edge-keyed and proximity variants, and
// finally the linear address-sequence fallback. Callers building a custom
// order from config should treat this as the reference ordering, not a
// mandate — the driver accepts any []Step slice.
func DefaultSteps(manual []ManualAssignment) []Step {
	var steps []Step
	if len(manual) > 0 {
		steps = append(steps, NewManual(manual))
	}
	return append(steps,
		NewMDIndexTopDown(),
		NewMDIndexBottomUp(),
		NewHashMatching(),
		NewPrimeSignature(),
		NewEdgeMDTopDown(),
		NewEdgeMDBottomUp(),
		NewProximityMDIndex(),
		NewStringReferences(),
		NewCallSequence(),
		NewNameHashMatching(),
		NewAddressSequence(),
	)
}

// DefaultStepNames is DefaultSteps' order expressed as step names, with
// ManualStepName always listed first: StepsByName only instantiates it when
// manual assignments are actually supplied, so leaving it in the default
// list costs nothing when there are none and preserves DefaultSteps' old
// behavior of always honoring manual assignments under a config that never
// mentions the step list explicitly. config.Config.StepList defaults to
// this when empty.
func DefaultStepNames() []string {
	steps := DefaultSteps(nil)
	names := make([]string, 0, len(steps)+1)
	names = append(names, ManualStepName)
	for _, s := range steps {
		names = append(names, s.Name())
	}
	return names
}

// registry maps every non-manual call-graph step's stable name (the short
// name persisted in results) to its zero-argument constructor, so the
// config's declared matching-step list can rebuild an arbitrary ordering
// without the driver needing to know about individual step types.
var registry = map[string]func() Step{
	"function: MD index (top-down)":       NewMDIndexTopDown,
	"function: MD index (bottom-up)":      NewMDIndexBottomUp,
	"function: hash matching":             NewHashMatching,
	"function: prime signature":           NewPrimeSignature,
	"function: edge MD index (top-down)":  NewEdgeMDTopDown,
	"function: edge MD index (bottom-up)": NewEdgeMDBottomUp,
	"function: proximity MD index":        NewProximityMDIndex,
	"function: string references":         NewStringReferences,
	"function: call sequence":             NewCallSequence,
	"function: name hash matching":        NewNameHashMatching,
	"function: address sequence":          NewAddressSequence,
}

// StepsByName rebuilds an ordered call-graph step list from a list of step
// names (the config's declared matching-step list): each name is
// looked up in registry and instantiated afresh, in the order given.
// ManualStepName is special-cased to NewManual(manual) and only included
// when manual is non-empty, wherever it appears in names. An unrecognized
// name is skipped rather than erroring, matching the "unknown keys are
// ignored" policy for configuration in general.
func StepsByName(names []string, manual []ManualAssignment) []Step {
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		if name == ManualStepName {
			if len(manual) > 0 {
				steps = append(steps, NewManual(manual))
			}
			continue
		}
		if ctor, ok := registry[name]; ok {
			steps = append(steps, ctor())
		}
	}
	return steps
}
