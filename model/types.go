package model

import "fmt"

// Address is a virtual memory address inside a disassembled binary. It is
// large enough to hold any 64-bit address.
type Address uint64

// String renders the address as lower-case hex with a leading 0x. (The
// report writers use their own zero-padded form without the prefix.)
func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// InvalidIndex is the sentinel returned by lookups that fail to find a
// vertex: the maximum value of the index type.
const InvalidIndex = ^uint32(0)

// VertexKind classifies a call-graph vertex the way the (external) front end
// reports it.
type VertexKind uint8

const (
	VertexNormal VertexKind = iota
	VertexLibrary
	VertexThunk
	VertexImported
	VertexInvalid
)

// Vertex bit flags.
const (
	FlagLibrary uint32 = 1 << iota
	FlagStub
	FlagHasRealName
	FlagHasDemangledName
)

// Edge bit flags.
const (
	FlagDuplicateEdge uint32 = 1 << iota
)

// EdgeKind classifies a flow-graph edge. Call-graph edges carry no kind (the
// zero value, EdgeCall, is their only kind).
type EdgeKind uint8

const (
	EdgeCall EdgeKind = iota
	EdgeConditionalTrue
	EdgeConditionalFalse
	EdgeUnconditional
	EdgeSwitch
)

// unsetProximityMD is the memoization sentinel for call-graph edge
// proximity MD-index values; a real MD-index contribution is always >= 0,
// so any negative value is safe as "not computed yet".
const unsetProximityMD = -1.0
