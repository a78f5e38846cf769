package model

import "sort"

// base is the common compressed-sparse-row-ish storage shared by CallGraph
// and FlowGraph: vertices are kept in a slice sorted by address and looked
// up by binary search; edges live in flat parallel slices, with per-vertex
// adjacency index lists pointing back into them. Both owning types embed
// base and get GetVertex, OutDegree/InDegree, FindEdge, IsCircular and the
// BFS-level accessors for free via method promotion.
//
// base itself never allocates beyond construction time: BFS levels are the
// only fields mutated afterward, and that mutation is confined to the
// topology engine. (The proximity MD-index memo lives on CallGraph.)
type base struct {
	addresses []Address // vertex index -> address, strictly ascending

	edgeSource []uint32 // edge index -> source vertex index
	edgeTarget []uint32 // edge index -> target vertex index
	duplicate  []bool   // edge index -> duplicate-edge flag

	outEdges [][]uint32 // vertex index -> indices into the edge slices, outgoing
	inEdges  [][]uint32 // vertex index -> indices into the edge slices, incoming

	bfsForward []uint32 // vertex index -> forward BFS level
	bfsReverse []uint32 // vertex index -> reverse BFS level
}

// buildBase validates addrs is strictly sorted and edges reference existing
// vertices, then builds the adjacency lists and runs duplicate-edge
// detection. It returns a *MalformedInputError naming the first offending
// address on any violation.
func buildBase(addrs []Address, sources, targets []uint32) (base, error) {
	for i := 1; i < len(addrs); i++ {
		if addrs[i] <= addrs[i-1] {
			return base{}, &MalformedInputError{Err: ErrVerticesNotSorted, Address: addrs[i]}
		}
	}
	n := len(addrs)
	b := base{
		addresses:  addrs,
		edgeSource: sources,
		edgeTarget: targets,
		duplicate:  make([]bool, len(sources)),
		outEdges:   make([][]uint32, n),
		inEdges:    make([][]uint32, n),
	}
	for i := range sources {
		s, t := sources[i], targets[i]
		if int(s) >= n || int(t) >= n {
			addr := Address(0)
			if int(s) < n {
				addr = addrs[s]
			}
			return base{}, &MalformedInputError{Err: ErrDanglingEdge, Address: addr}
		}
		b.outEdges[s] = append(b.outEdges[s], uint32(i))
		b.inEdges[t] = append(b.inEdges[t], uint32(i))
	}
	b.markDuplicates()
	b.bfsForward = make([]uint32, n)
	b.bfsReverse = make([]uint32, n)
	return b, nil
}

// markDuplicates flags, for every edge, whether another edge shares both its
// endpoints: for each edge, scan the out-edges of its source for any other
// edge into the same target. Exactly one of a set of parallel edges is left
// non-duplicate (the first one encountered in edge-index order); only that
// edge survives in downstream matching.
func (b *base) markDuplicates() {
	for _, outs := range b.outEdges {
		seenTarget := make(map[uint32]bool, len(outs))
		for _, e := range outs {
			t := b.edgeTarget[e]
			if seenTarget[t] {
				b.duplicate[e] = true
			} else {
				seenTarget[t] = true
			}
		}
	}
}

// GetVertex returns the vertex index whose address equals addr, or
// InvalidIndex if none matches. Complexity: O(log n).
func (b *base) GetVertex(addr Address) uint32 {
	i := sort.Search(len(b.addresses), func(i int) bool { return b.addresses[i] >= addr })
	if i < len(b.addresses) && b.addresses[i] == addr {
		return uint32(i)
	}
	return InvalidIndex
}

// Address returns the address of the given vertex index.
func (b *base) Address(v uint32) Address { return b.addresses[v] }

// VertexCount returns the number of vertices.
func (b *base) VertexCount() int { return len(b.addresses) }

// EdgeCount returns the number of edges.
func (b *base) EdgeCount() int { return len(b.edgeSource) }

// OutDegree returns the number of outgoing edges of v, including self-loops
// and duplicate edges (degree counts every physical edge).
func (b *base) OutDegree(v uint32) int { return len(b.outEdges[v]) }

// InDegree returns the number of incoming edges of v.
func (b *base) InDegree(v uint32) int { return len(b.inEdges[v]) }

// OutEdges returns the edge indices leaving v.
func (b *base) OutEdges(v uint32) []uint32 { return b.outEdges[v] }

// InEdges returns the edge indices entering v.
func (b *base) InEdges(v uint32) []uint32 { return b.inEdges[v] }

// EdgeEndpoints returns the (source, target) vertex indices of edge e.
func (b *base) EdgeEndpoints(e uint32) (uint32, uint32) { return b.edgeSource[e], b.edgeTarget[e] }

// IsDuplicate reports whether e is a parallel edge of some other edge with
// the same endpoints (only one of such a set is non-duplicate).
func (b *base) IsDuplicate(e uint32) bool { return b.duplicate[e] }

// IsCircular reports whether e is a self-loop (source == target).
func (b *base) IsCircular(e uint32) bool { return b.edgeSource[e] == b.edgeTarget[e] }

// FindEdge returns the first edge index from source to target, and true, or
// (0, false) if no such edge exists. Complexity: O(out-degree(source)).
func (b *base) FindEdge(source, target uint32) (uint32, bool) {
	for _, e := range b.outEdges[source] {
		if b.edgeTarget[e] == target {
			return e, true
		}
	}
	return 0, false
}

// ForwardLevel returns the forward (top-down) BFS level of v.
func (b *base) ForwardLevel(v uint32) uint32 { return b.bfsForward[v] }

// ReverseLevel returns the reverse (bottom-up) BFS level of v.
func (b *base) ReverseLevel(v uint32) uint32 { return b.bfsReverse[v] }

// SetForwardLevel sets the forward BFS level of v. Called only by the
// topology engine.
func (b *base) SetForwardLevel(v uint32, level uint32) { b.bfsForward[v] = level }

// SetReverseLevel sets the reverse BFS level of v. Called only by the
// topology engine.
func (b *base) SetReverseLevel(v uint32, level uint32) { b.bfsReverse[v] = level }
