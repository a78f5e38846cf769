package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for program-model construction and mutation.
//
// Callers should branch on these with errors.Is; MalformedInputError and
// InconsistentModelError wrap one of these sentinels with the offending
// Address so the caller can report it without re-deriving it.
var (
	// ErrVerticesNotSorted indicates the input vertex sequence was not in
	// strictly ascending address order.
	ErrVerticesNotSorted = errors.New("model: vertices not strictly sorted by address")

	// ErrDanglingEdge indicates an edge referenced a vertex index outside the
	// vertex table.
	ErrDanglingEdge = errors.New("model: edge endpoint out of range")

	// ErrDuplicateAddress indicates two vertices share the same address.
	ErrDuplicateAddress = errors.New("model: duplicate vertex address")

	// ErrNoSuchVertex indicates an operation referenced an address with no
	// matching vertex.
	ErrNoSuchVertex = errors.New("model: no vertex at address")

	// ErrFlowGraphAlreadyAttached indicates AttachFlowGraph was called on a
	// vertex that already has a flow graph.
	ErrFlowGraphAlreadyAttached = errors.New("model: flow graph already attached")

	// ErrEmptyFlowGraph indicates a flow graph payload had zero basic blocks
	// where at least one (the entry block) is required.
	ErrEmptyFlowGraph = errors.New("model: flow graph has no basic blocks")

	// ErrNoEntryBlock indicates a flow graph's declared entry index did not
	// name a basic block.
	ErrNoEntryBlock = errors.New("model: entry basic block index out of range")
)

// MalformedInputError reports a construction-time defect in a decoded
// payload: out-of-order vertices, dangling edges, or a flow graph attached
// at an address with no call-graph vertex. It always carries the offending
// Address so a caller can report exactly where the payload went wrong, per
// the "no silent corrections" policy. NewFlowGraph does not use it: an empty
// block list or an out-of-range entry index comes back as the bare
// ErrEmptyFlowGraph or ErrNoEntryBlock sentinel, with no address.
type MalformedInputError struct {
	Err     error
	Address Address
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("model: malformed input at %s: %v", e.Address, e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// InconsistentModelError reports an attempted mutation that would violate a
// model invariant: attaching a second flow graph to a vertex. (Matching an
// already-matched vertex is not reported through it: fixedpoint.Store.Add
// returns a false inserted flag instead.)
type InconsistentModelError struct {
	Err     error
	Address Address
}

func (e *InconsistentModelError) Error() string {
	return fmt.Sprintf("model: inconsistent model at %s: %v", e.Address, e.Err)
}

func (e *InconsistentModelError) Unwrap() error { return e.Err }
