package model

// FlowGraph is the control-flow graph of a single function: basic blocks as
// vertices, branches as edges. It shares CallGraph's vertex/edge storage
// shape (see base) and adds the per-function attributes: the
// flat instruction array in layout order, per-basic-block instruction index
// ranges, call-target addresses, loop count, and the transient back-pointers
// the matcher installs (to the owning CallGraph vertex, and to any
// FixedPoint / BasicBlockFixedPoint).
type FlowGraph struct {
	base

	entry uint32 // vertex index of the entry basic block
	name  string

	instructions []Instruction
	instrStart   []int // vertex index -> start offset into instructions
	instrEnd     []int // vertex index -> end offset (exclusive) into instructions

	callTargets [][]Address // vertex index -> call targets made from that block

	edgeKind []EdgeKind // edge index -> kind

	loopCount int

	callGraph       *CallGraph // owning call graph, non-owning back-pointer
	callGraphVertex uint32     // index of this function's vertex in callGraph

	fixedPoint   any   // *fixedpoint.FixedPoint, opaque to avoid an import cycle
	bbFixedPoint []any // vertex index -> *fixedpoint.BasicBlockFixedPoint, opaque
}

// FlowGraphBlock is a decoded basic block ready for NewFlowGraph.
type FlowGraphBlock struct {
	Address     Address
	InstrStart  int // offset into the Instructions slice passed to NewFlowGraph
	InstrEnd    int // exclusive
	CallTargets []Address
}

// FlowGraphEdge is a decoded flow-graph edge.
type FlowGraphEdge struct {
	Source uint32
	Target uint32
	Kind   EdgeKind
}

// NewFlowGraph builds a FlowGraph from a decoded payload: blocks sorted by
// address, the flat instruction array in layout order, edges, and the index
// (into blocks) of the entry basic block. Construction is symmetric with
// NewCallGraph: blocks must be strictly sorted, edges must reference
// existing blocks, and duplicate-edge marking runs immediately. The loop
// count is the number of back-edges found by a DFS over the block graph.
func NewFlowGraph(name string, blocks []FlowGraphBlock, edges []FlowGraphEdge, instructions []Instruction, entryIndex int) (*FlowGraph, error) {
	if len(blocks) == 0 {
		return nil, ErrEmptyFlowGraph
	}
	if entryIndex < 0 || entryIndex >= len(blocks) {
		return nil, ErrNoEntryBlock
	}

	addrs := make([]Address, len(blocks))
	for i, b := range blocks {
		addrs[i] = b.Address
	}
	sources := make([]uint32, len(edges))
	targets := make([]uint32, len(edges))
	for i, e := range edges {
		sources[i] = e.Source
		targets[i] = e.Target
	}
	b, err := buildBase(addrs, sources, targets)
	if err != nil {
		return nil, err
	}

	fg := &FlowGraph{
		base:         b,
		entry:        uint32(entryIndex),
		name:         name,
		instructions: instructions,
		instrStart:   make([]int, len(blocks)),
		instrEnd:     make([]int, len(blocks)),
		callTargets:  make([][]Address, len(blocks)),
		edgeKind:     make([]EdgeKind, len(edges)),
		bbFixedPoint: make([]any, len(blocks)),
	}
	for i, blk := range blocks {
		fg.instrStart[i] = blk.InstrStart
		fg.instrEnd[i] = blk.InstrEnd
		fg.callTargets[i] = blk.CallTargets
	}
	for i, e := range edges {
		fg.edgeKind[i] = e.Kind
	}
	fg.loopCount = countBackEdges(&fg.base, fg.entry)
	return fg, nil
}

// countBackEdges runs an iterative DFS from root and counts edges to an
// ancestor still on the recursion stack (back-edges), the definition of
// "loop count" used throughout the matcher.
func countBackEdges(b *base, root uint32) int {
	n := b.VertexCount()
	const (
		white = iota
		gray
		black
	)
	color := make([]uint8, n)
	// frame tracks (vertex, next out-edge index to examine) for an explicit
	// stack, avoiding recursion on attacker-sized flow graphs.
	type frame struct {
		v   uint32
		pos int
	}
	loops := 0
	// Two passes: first seed from the declared root and any zero-in-degree
	// vertex (the common case), then mop up any vertex still white — a pure
	// cycle with no outside entry point otherwise would never be visited.
	order := make([]uint32, 0, n)
	order = append(order, root)
	for v := uint32(0); v < uint32(n); v++ {
		if v != root && b.InDegree(v) == 0 {
			order = append(order, v)
		}
	}
	for v := uint32(0); v < uint32(n); v++ {
		order = append(order, v)
	}
	for _, start := range order {
		if color[start] != white {
			continue
		}
		stack := []frame{{v: start, pos: 0}}
		color[start] = gray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			outs := b.OutEdges(top.v)
			if top.pos >= len(outs) {
				color[top.v] = black
				stack = stack[:len(stack)-1]
				continue
			}
			e := outs[top.pos]
			top.pos++
			_, target := b.EdgeEndpoints(e)
			switch color[target] {
			case white:
				color[target] = gray
				stack = append(stack, frame{v: target, pos: 0})
			case gray:
				loops++
			}
		}
	}
	return loops
}

// EntryAddress returns the address of the entry basic block.
func (fg *FlowGraph) EntryAddress() Address { return fg.base.Address(fg.entry) }

// EntryVertex returns the vertex index of the entry basic block.
func (fg *FlowGraph) EntryVertex() uint32 { return fg.entry }

// Name returns the function's name, mirrored from its call-graph vertex.
func (fg *FlowGraph) Name() string { return fg.name }

// BasicBlockCount returns the number of basic blocks.
func (fg *FlowGraph) BasicBlockCount() int { return fg.VertexCount() }

// Instructions returns the instructions belonging to basic block v, in
// layout order.
func (fg *FlowGraph) Instructions(v uint32) []Instruction {
	return fg.instructions[fg.instrStart[v]:fg.instrEnd[v]]
}

// InstructionCount returns the number of instructions in basic block v.
func (fg *FlowGraph) InstructionCount(v uint32) int {
	return fg.instrEnd[v] - fg.instrStart[v]
}

// TotalInstructionCount returns the number of instructions across the whole
// function.
func (fg *FlowGraph) TotalInstructionCount() int { return len(fg.instructions) }

// CallTargets returns the call-target addresses made from basic block v.
func (fg *FlowGraph) CallTargets(v uint32) []Address { return fg.callTargets[v] }

// EdgeKind returns the branch kind of edge e.
func (fg *FlowGraph) EdgeKind(e uint32) EdgeKind { return fg.edgeKind[e] }

// LoopCount returns the function's loop count (back-edges found by DFS).
func (fg *FlowGraph) LoopCount() int { return fg.loopCount }

// CallGraph returns the owning call graph, or nil if this FlowGraph has not
// been attached to one yet.
func (fg *FlowGraph) CallGraph() *CallGraph { return fg.callGraph }

// CallGraphVertex returns this function's vertex index in its owning call
// graph. Only valid once attached.
func (fg *FlowGraph) CallGraphVertex() uint32 { return fg.callGraphVertex }

// IsLibrary reports whether the owning call-graph vertex is flagged library.
// Returns false if not yet attached.
func (fg *FlowGraph) IsLibrary() bool {
	if fg.callGraph == nil {
		return false
	}
	return fg.callGraph.IsLibrary(fg.callGraphVertex)
}

// FixedPoint returns the opaque back-pointer to this function's FixedPoint,
// or nil if unmatched.
func (fg *FlowGraph) FixedPoint() any { return fg.fixedPoint }

// SetFixedPoint installs or clears (pass nil) the back-pointer to this
// function's FixedPoint. Called only by the fixedpoint store.
func (fg *FlowGraph) SetFixedPoint(fp any) { fg.fixedPoint = fp }

// BasicBlockFixedPoint returns the opaque back-pointer installed on basic
// block v, or nil if that block is unmatched.
func (fg *FlowGraph) BasicBlockFixedPoint(v uint32) any { return fg.bbFixedPoint[v] }

// SetBasicBlockFixedPoint installs or clears (pass nil) the back-pointer on
// basic block v.
func (fg *FlowGraph) SetBasicBlockFixedPoint(v uint32, bbfp any) { fg.bbFixedPoint[v] = bbfp }

// ResetMatches clears every transient back-pointer on this flow graph and
// its basic blocks, as required before an incremental re-match.
func (fg *FlowGraph) ResetMatches() {
	fg.fixedPoint = nil
	for i := range fg.bbFixedPoint {
		fg.bbFixedPoint[i] = nil
	}
}
