package blockmatch

import (
	"strconv"
	"strings"

	"github.com/binarydiff/matcher/bucket"
	"github.com/binarydiff/matcher/fixedpoint"
	"github.com/binarydiff/matcher/model"
	"github.com/binarydiff/matcher/sig"
)

// Step is one basic-block (flow-graph) matching step, the block-level
// analogue of step.Step: primary and secondary are basic-block vertex
// indices inside fp.Primary and fp.Secondary. remaining holds the steps
// after this one; a colliding feature bucket is retried through
// remaining[0] on just that subset before the block driver advances.
type Step interface {
	Name() string
	DisplayName() string
	Confidence() float64
	Strict() bool
	FindFixedPoints(fp *fixedpoint.FixedPoint, primary, secondary []uint32, remaining []Step) bool
}

// drillDown recurses into the next finer block step on one ambiguous
// bucket, mirroring the call-graph driver's drill-down one level up.
func drillDown(fp *fixedpoint.FixedPoint, primary, secondary []uint32, remaining []Step) bool {
	if len(remaining) == 0 {
		return false
	}
	return remaining[0].FindFixedPoints(fp, primary, secondary, remaining[1:])
}

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

func isUnmatchedVertex(fg *model.FlowGraph, v uint32) bool { return fg.BasicBlockFixedPoint(v) == nil }

func commitBlockPair(fp *fixedpoint.FixedPoint, stepName string, pv, sv uint32) bool {
	bb, ok := fp.AddBasicBlock(pv, sv, stepName)
	if !ok {
		return false
	}
	alignInstructions(fp, bb)
	return true
}

type featureStep struct {
	baseStep
	keyOf func(fg *model.FlowGraph, v uint32) (string, bool)
}

// sideVertex tags a basic-block vertex with the flow graph it belongs to,
// so one bucket.FindUnique call can key the two sides independently.
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

func (s *featureStep) FindFixedPoints(fp *fixedpoint.FixedPoint, primary, secondary []uint32, remaining []Step) bool {
	keyOf := func(it sideVertex) (string, bool) {
		if it.secondary {
			return s.keyOf(fp.Secondary, it.v)
		}
		return s.keyOf(fp.Primary, it.v)
	}
	return bucket.FindUnique(sideVertices(primary, false), sideVertices(secondary, true), keyOf,
		func(p, se sideVertex) bool {
			return commitBlockPair(fp, s.name, p.v, se.v)
		},
		func(ambP, ambS []sideVertex) bool {
			return drillDown(fp, vertexIndices(ambP), vertexIndices(ambS), remaining)
		})
}

func blockMnemonics(fg *model.FlowGraph, v uint32) []string {
	instrs := fg.Instructions(v)
	out := make([]string, len(instrs))
	for i, instr := range instrs {
		out[i] = instr.Mnemonic
	}
	return out
}

func blockBytes(fg *model.FlowGraph, v uint32) string {
	var b strings.Builder
	for _, instr := range fg.Instructions(v) {
		b.WriteString(instr.Bytes)
	}
	return b.String()
}

// NewPrimeSignature is "basic block: prime signature": blocks bucketed by
// the modular-ring product of their per-mnemonic primes.
func NewPrimeSignature() Step {
	return &featureStep{
		baseStep: baseStep{name: "basic block: prime signature", displayName: "basic block prime signature", confidence: 0.9},
		keyOf: func(fg *model.FlowGraph, v uint32) (string, bool) {
			mnemonics := blockMnemonics(fg, v)
			if len(mnemonics) == 0 {
				return "", false
			}
			product := uint64(1)
			for _, m := range mnemonics {
				product *= sig.MnemonicPrime(m)
			}
			return strconv.FormatUint(product, 10), true
		},
	}
}

// NewMDIndex is "basic block: MD-index": blocks bucketed by their
// vertex-local MD-index (degree fingerprint within the function).
func NewMDIndex() Step {
	return &featureStep{
		baseStep: baseStep{name: "basic block: MD-index", displayName: "basic block MD-index", confidence: 0.85},
		keyOf: func(fg *model.FlowGraph, v uint32) (string, bool) {
			return strconv.FormatFloat(fg.VertexMD(v), 'g', -1, 64), true
		},
	}
}

// NewHash is "basic block: hash": blocks bucketed by the hash of their
// concatenated instruction bytes.
func NewHash() Step {
	return &featureStep{
		baseStep: baseStep{name: "basic block: hash", displayName: "basic block hash", confidence: 1.0, strict: true},
		keyOf: func(fg *model.FlowGraph, v uint32) (string, bool) {
			bytes := blockBytes(fg, v)
			if bytes == "" {
				return "", false
			}
			return strconv.FormatUint(sig.HashBytes(bytes), 10), true
		},
	}
}

// NewEntryPoint is "basic block: entry-point": the entry block of each
// function is trivially a singleton bucket on both sides.
func NewEntryPoint() Step {
	return &featureStep{
		baseStep: baseStep{name: "basic block: entry-point", displayName: "basic block entry point", confidence: 1.0},
		keyOf: func(fg *model.FlowGraph, v uint32) (string, bool) {
			if v != fg.EntryVertex() {
				return "", false
			}
			return "entry", true
		},
	}
}

// NewExitPoint is "basic block: exit-point": blocks with out-degree 0 are
// bucketed together, then disambiguated like any other feature (in
// practice, useful only for single-exit functions).
func NewExitPoint() Step {
	return &featureStep{
		baseStep: baseStep{name: "basic block: exit-point", displayName: "basic block exit point", confidence: 0.7},
		keyOf: func(fg *model.FlowGraph, v uint32) (string, bool) {
			if fg.OutDegree(v) != 0 {
				return "", false
			}
			return "exit", true
		},
	}
}

// NewInstructionCount is "basic block: instruction count": blocks bucketed
// by their instruction count.
func NewInstructionCount() Step {
	return &featureStep{
		baseStep: baseStep{name: "basic block: instruction count", displayName: "basic block instruction count", confidence: 0.6},
		keyOf: func(fg *model.FlowGraph, v uint32) (string, bool) {
			return strconv.Itoa(fg.InstructionCount(v)), true
		},
	}
}

// propagationStep is "basic block: propagation", the terminal step: a
// still-unmatched block is paired with the one unmatched secondary block
// that its matched parents and children point to through their
// counterparts, when exactly one such block exists.
type propagationStep struct{ baseStep }

// NewPropagation builds the terminal propagation step. Its confidence is
// fixed at 0, matching the scorer's explicit per-step weight override for
// this step.
func NewPropagation() Step {
	return &propagationStep{baseStep{name: "basic block: propagation", displayName: "basic block propagation", confidence: 0}}
}

func (s *propagationStep) FindFixedPoints(fp *fixedpoint.FixedPoint, primary, secondary []uint32, _ []Step) bool {
	committed := false
	for _, pv := range primary {
		if !isUnmatchedVertex(fp.Primary, pv) {
			continue
		}
		sv, ok := uniqueMatchedNeighborCounterpart(fp, pv)
		if !ok {
			continue
		}
		if !vertexInSet(secondary, sv) {
			continue
		}
		if commitBlockPair(fp, s.name, pv, sv) {
			committed = true
		}
	}
	return committed
}

func vertexInSet(set []uint32, v uint32) bool {
	for _, x := range set {
		if x == v {
			return true
		}
	}
	return false
}

// uniqueMatchedNeighborCounterpart looks at pv's matched parents and
// children and, through each one's basic-block fixed point, collects the
// still-unmatched secondary blocks standing in the same relation to its
// counterpart (an unmatched parent of a matched child's counterpart, an
// unmatched child of a matched parent's counterpart). If exactly one
// secondary vertex is collected across the whole neighborhood, it returns
// that vertex as the propagation candidate.
func uniqueMatchedNeighborCounterpart(fp *fixedpoint.FixedPoint, pv uint32) (uint32, bool) {
	fg, sg := fp.Primary, fp.Secondary
	candidates := map[uint32]bool{}

	counterpart := func(neighbor uint32) (uint32, bool) {
		bb, _ := fg.BasicBlockFixedPoint(neighbor).(*fixedpoint.BasicBlockFixedPoint)
		if bb == nil {
			return 0, false
		}
		return bb.SecondaryVertex, true
	}
	for _, e := range fg.OutEdges(pv) {
		_, target := fg.EdgeEndpoints(e)
		if st, ok := counterpart(target); ok {
			for _, se := range sg.InEdges(st) {
				if src, _ := sg.EdgeEndpoints(se); isUnmatchedVertex(sg, src) {
					candidates[src] = true
				}
			}
		}
	}
	for _, e := range fg.InEdges(pv) {
		source, _ := fg.EdgeEndpoints(e)
		if ss, ok := counterpart(source); ok {
			for _, se := range sg.OutEdges(ss) {
				if _, dst := sg.EdgeEndpoints(se); isUnmatchedVertex(sg, dst) {
					candidates[dst] = true
				}
			}
		}
	}

	if len(candidates) != 1 {
		return 0, false
	}
	for sv := range candidates {
		return sv, true
	}
	return 0, false
}
