package model

// CallGraph is a directed, possibly multi-edge graph whose vertices are
// functions and whose edges are call sites. Vertices are stored in ascending
// address order (the address doubles as the primary key) and looked up by
// binary search; see base for the shared storage shape.
//
// A CallGraph is built once, from a decoded payload, and is thereafter
// immutable except for: the attached-FlowGraph back-pointer, BFS levels, and
// memoized edge MD-index/proximity values, all of which the matcher installs
// incrementally.
type CallGraph struct {
	base

	names      []string
	demangled  []string
	flags      []uint32
	flowGraphs []*FlowGraph // vertex index -> attached flow graph, nil if none

	mdTopDown   []float64 // edge index -> MD index, forward BFS levels
	mdBottomUp  []float64 // edge index -> MD index, reverse BFS levels
	proximityMD []float64 // edge index -> memoized proximity MD index, unsetProximityMD if unset

	globalMD   float64
	exeHash    string
	exeFile    string
	comments   []Comment
}

// CallGraphVertex is a decoded call-graph vertex ready for NewCallGraph.
type CallGraphVertex struct {
	Address       Address
	Name          string
	DemangledName string // empty if identical to Name or unavailable
	Kind          VertexKind
}

// CallGraphEdge is a decoded call-graph edge: an index pair into the vertex
// slice passed to NewCallGraph.
type CallGraphEdge struct {
	Source uint32
	Target uint32
}

// NewCallGraph builds a CallGraph from a decoded payload. vertices must be
// strictly sorted by Address; edges reference vertices by index. Duplicate-
// edge detection runs immediately, as required by the construction contract.
// Any ordering or dangling-edge violation is reported as a
// *MalformedInputError naming the first offending address.
func NewCallGraph(exeHash, exeFile string, vertices []CallGraphVertex, edges []CallGraphEdge) (*CallGraph, error) {
	addrs := make([]Address, len(vertices))
	for i, v := range vertices {
		addrs[i] = v.Address
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

	g := &CallGraph{
		base:        b,
		names:       make([]string, len(vertices)),
		demangled:   make([]string, len(vertices)),
		flags:       make([]uint32, len(vertices)),
		flowGraphs:  make([]*FlowGraph, len(vertices)),
		mdTopDown:   make([]float64, len(edges)),
		mdBottomUp:  make([]float64, len(edges)),
		proximityMD: make([]float64, len(edges)),
		exeHash:     exeHash,
		exeFile:     exeFile,
	}
	for i, v := range vertices {
		g.names[i] = v.Name
		g.demangled[i] = v.DemangledName
		if v.Name != "" {
			g.flags[i] |= FlagHasRealName
		}
		if v.DemangledName != "" {
			g.flags[i] |= FlagHasDemangledName
		}
		if v.Kind == VertexLibrary {
			g.flags[i] |= FlagLibrary
		}
	}
	for i := range g.proximityMD {
		g.proximityMD[i] = unsetProximityMD
	}
	return g, nil
}

// Name returns the mangled (raw) name of vertex v.
func (g *CallGraph) Name(v uint32) string { return g.names[v] }

// DemangledName returns the demangled name of vertex v, or "" if unavailable.
func (g *CallGraph) DemangledName(v uint32) string { return g.demangled[v] }

// GoodName returns the demangled name when available, the raw name
// otherwise.
func (g *CallGraph) GoodName(v uint32) string {
	if g.demangled[v] != "" {
		return g.demangled[v]
	}
	return g.names[v]
}

// IsLibrary reports whether vertex v is flagged as a library function.
func (g *CallGraph) IsLibrary(v uint32) bool { return g.flags[v]&FlagLibrary != 0 }

// SetLibrary sets or clears the library flag on vertex v.
func (g *CallGraph) SetLibrary(v uint32, library bool) {
	if library {
		g.flags[v] |= FlagLibrary
	} else {
		g.flags[v] &^= FlagLibrary
	}
}

// IsStub reports whether vertex v is flagged as a stub (single-jump) function.
func (g *CallGraph) IsStub(v uint32) bool { return g.flags[v]&FlagStub != 0 }

// SetStub sets or clears the stub flag on vertex v.
func (g *CallGraph) SetStub(v uint32, stub bool) {
	if stub {
		g.flags[v] |= FlagStub
	} else {
		g.flags[v] &^= FlagStub
	}
}

// HasRealName reports whether vertex v has a non-empty name. Any name the
// payload supplies counts, including generated ones such as "sub_1000".
func (g *CallGraph) HasRealName(v uint32) bool { return g.flags[v]&FlagHasRealName != 0 }

// FlowGraph returns the attached flow graph for vertex v, or nil.
func (g *CallGraph) FlowGraph(v uint32) *FlowGraph { return g.flowGraphs[v] }

// AttachFlowGraph associates fg with the call-graph vertex at fg's entry
// address. It fails with ErrNoSuchVertex if no vertex has that address, or
// ErrFlowGraphAlreadyAttached if the vertex already carries a flow graph.
func (g *CallGraph) AttachFlowGraph(fg *FlowGraph) error {
	v := g.GetVertex(fg.EntryAddress())
	if v == InvalidIndex {
		return &MalformedInputError{Err: ErrNoSuchVertex, Address: fg.EntryAddress()}
	}
	if g.flowGraphs[v] != nil {
		return &InconsistentModelError{Err: ErrFlowGraphAlreadyAttached, Address: fg.EntryAddress()}
	}
	g.flowGraphs[v] = fg
	fg.callGraph = g
	fg.callGraphVertex = v
	return nil
}

// DetachFlowGraph removes the flow graph attached to the vertex at addr, if
// any. It is idempotent: detaching an address with no attached flow graph is
// a no-op, not an error.
func (g *CallGraph) DetachFlowGraph(addr Address) {
	v := g.GetVertex(addr)
	if v == InvalidIndex {
		return
	}
	g.flowGraphs[v] = nil
}

// EdgeMDTopDown returns the memoized forward-BFS MD-index contribution of
// edge e. Set by the topology engine.
func (g *CallGraph) EdgeMDTopDown(e uint32) float64 { return g.mdTopDown[e] }

// SetEdgeMDTopDown stores the forward-BFS MD-index contribution of edge e.
func (g *CallGraph) SetEdgeMDTopDown(e uint32, v float64) { g.mdTopDown[e] = v }

// EdgeMDBottomUp returns the memoized reverse-BFS MD-index contribution of
// edge e.
func (g *CallGraph) EdgeMDBottomUp(e uint32) float64 { return g.mdBottomUp[e] }

// SetEdgeMDBottomUp stores the reverse-BFS MD-index contribution of edge e.
func (g *CallGraph) SetEdgeMDBottomUp(e uint32, v float64) { g.mdBottomUp[e] = v }

// ProximityMD returns the memoized proximity MD-index of edge e, or the
// unset sentinel if it has not been computed yet.
func (g *CallGraph) ProximityMD(e uint32) float64 { return g.proximityMD[e] }

// ProximityMDUnset reports whether edge e's proximity MD-index has not yet
// been computed.
func (g *CallGraph) ProximityMDUnset(e uint32) bool { return g.proximityMD[e] == unsetProximityMD }

// SetProximityMD memoizes the proximity MD-index of edge e.
func (g *CallGraph) SetProximityMD(e uint32, v float64) { g.proximityMD[e] = v }

// MdIndex returns the cached whole-graph MD-index.
func (g *CallGraph) MdIndex() float64 { return g.globalMD }

// SetMdIndex stores the whole-graph MD-index, computed by the topology engine.
func (g *CallGraph) SetMdIndex(v float64) { g.globalMD = v }

// ExeHash returns the hex-encoded hash identifying the original executable.
func (g *CallGraph) ExeHash() string { return g.exeHash }

// ExeFilename returns the original input filename.
func (g *CallGraph) ExeFilename() string { return g.exeFile }

// Comments returns the call graph's comments, keyed externally by address.
func (g *CallGraph) Comments() []Comment { return g.comments }

// SetComments replaces the call graph's comment set.
func (g *CallGraph) SetComments(c []Comment) { g.comments = c }
