package fixedpoint

import (
	"github.com/binarydiff/matcher/intern"
	"github.com/binarydiff/matcher/model"
)

// ChangeFlag is a bit in a FixedPoint's change-classification bitset. The
// bit order matches the rendered mask "GIOJELC" — G-raph (structural),
// I-nstruction, O-perand, J-ump (branch inversion), E-ntrypoint, L-oop,
// C-all. The letters are historical and kept verbatim from the reference
// tool; see classify.GetChangeDescription for the rendering.
type ChangeFlag int

const (
	ChangeStructural ChangeFlag = 1 << iota
	ChangeInstructions
	ChangeOperands // never set: operand changes are not classified
	ChangeBranchInversion
	ChangeEntryPoint
	ChangeLoops
	ChangeCalls
)

// ChangeCount is the number of classification flags, equal to the mask width.
const ChangeCount = 7

// InstructionMatch pairs one primary and one secondary instruction, by
// address, produced by the in-block LCS alignment.
type InstructionMatch struct {
	Primary   model.Address
	Secondary model.Address
}

// BasicBlockFixedPoint asserts that two basic blocks (identified by their
// vertex index in their respective FlowGraph) are the same, along with the
// step that discovered the pairing and the ordered instruction alignment
// inside it.
type BasicBlockFixedPoint struct {
	PrimaryVertex   uint32
	SecondaryVertex uint32
	step            *string
	instructions    []InstructionMatch
}

// MatchingStep returns the interned name of the step that produced this
// basic-block match.
func (b *BasicBlockFixedPoint) MatchingStep() string { return *b.step }

// SetMatchingStep re-labels this basic-block match with a different step.
func (b *BasicBlockFixedPoint) SetMatchingStep(name string) { b.step = intern.String(name) }

// InstructionMatches returns the ordered instruction alignment for this
// basic-block pair.
func (b *BasicBlockFixedPoint) InstructionMatches() []InstructionMatch { return b.instructions }

// SetInstructionMatches replaces the instruction alignment.
func (b *BasicBlockFixedPoint) SetInstructionMatches(m []InstructionMatch) { b.instructions = m }

// FixedPoint asserts that two functions (primary and secondary FlowGraph)
// are the same. It owns the ordered set of nested BasicBlockFixedPoints and
// the scoring/classification metadata the scorer and classifier fill in
// after the driver commits the pairing.
type FixedPoint struct {
	Primary   *model.FlowGraph
	Secondary *model.FlowGraph

	step       *string
	similarity float64
	confidence float64
	flags      ChangeFlag

	commentsPorted bool

	basicBlocks []*BasicBlockFixedPoint // sorted by (PrimaryVertex, SecondaryVertex)
}

// MatchingStep returns the interned name of the step that produced this
// function match.
func (f *FixedPoint) MatchingStep() string { return *f.step }

// SetMatchingStep re-labels this function match with a different step.
func (f *FixedPoint) SetMatchingStep(name string) { f.step = intern.String(name) }

// Similarity returns the per-pair similarity score in [0,1].
func (f *FixedPoint) Similarity() float64 { return f.similarity }

// SetSimilarity sets the per-pair similarity score. Called only by the scorer.
func (f *FixedPoint) SetSimilarity(v float64) { f.similarity = v }

// Confidence returns the per-pair confidence score in [0,1].
func (f *FixedPoint) Confidence() float64 { return f.confidence }

// SetConfidence sets the per-pair confidence score. Called only by the scorer.
func (f *FixedPoint) SetConfidence(v float64) { f.confidence = v }

// Flags returns the change-classification bitset.
func (f *FixedPoint) Flags() ChangeFlag { return f.flags }

// SetFlags replaces the change-classification bitset wholesale.
func (f *FixedPoint) SetFlags(flags ChangeFlag) { f.flags = flags }

// HasFlag reports whether flag is set.
func (f *FixedPoint) HasFlag(flag ChangeFlag) bool { return f.flags&flag != 0 }

// SetFlag sets flag, leaving all others untouched.
func (f *FixedPoint) SetFlag(flag ChangeFlag) { f.flags |= flag }

// CommentsPorted reports whether comments have been ported for this match.
func (f *FixedPoint) CommentsPorted() bool { return f.commentsPorted }

// SetCommentsPorted sets the comments-ported flag.
func (f *FixedPoint) SetCommentsPorted(v bool) { f.commentsPorted = v }

// BasicBlockFixedPoints returns the nested basic-block matches, ordered by
// (primary vertex, secondary vertex).
func (f *FixedPoint) BasicBlockFixedPoints() []*BasicBlockFixedPoint { return f.basicBlocks }
