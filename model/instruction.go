package model

// Instruction is a single decoded instruction. Operand trees are accepted
// from the front end but not consumed by the matcher; only Address,
// Mnemonic, Bytes and StringRef participate in matching.
type Instruction struct {
	Address  Address
	Size     uint8
	Mnemonic string // interned by the caller; compared by value here
	Bytes    string // raw instruction bytes, used for strict (byte-exact) comparisons

	// StringRef is the referenced string literal's contents, if this
	// instruction has a data cross-reference into a string constant, or ""
	// otherwise. Only the first data cross-reference of an instruction is
	// ever surfaced here; an instruction with several string operands
	// silently loses the rest.
	StringRef string
}

// Comment is a user or front-end-supplied annotation living on the call
// graph, keyed by address (and, for operand comments, an operand index).
type Comment struct {
	Address     Address
	OperandIdx  int
	Text        string
	Type        CommentType
	Repeatable  bool
}

// CommentType classifies a Comment the way the disassembler front end does.
type CommentType uint8

const (
	CommentRegular CommentType = iota
	CommentEnum
	CommentAnterior
	CommentPosterior
	CommentFunction
	CommentLocation
	CommentGlobalRef
	CommentLocalRef
)
