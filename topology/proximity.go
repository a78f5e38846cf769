package topology

// ProximityMD computes the proximity MD-index of edge e=(u,v): the MD-index
// of the subgraph induced by the vertices within one hop of u or v, using
// truncated degrees (only neighbors also in that induced vertex set count)
// and no level term. Callers are expected to memoize the result themselves
// (model.CallGraph does, with a negative sentinel) — this is deliberately
// uncached here since the worst case is O(d_max^2) per query and it must
// only ever run during re-scoring of candidate matches, never eagerly.
func ProximityMD(g Graph, e uint32) float64 {
	u, v := g.EdgeEndpoints(e)
	neighborhood := closedNeighborhood(g, u, v)

	type endpoints struct{ source, target uint32 }
	var inducedEdges []endpoints
	truncatedIn := make(map[uint32]int, len(neighborhood))
	truncatedOut := make(map[uint32]int, len(neighborhood))
	for w := range neighborhood {
		for _, oe := range g.OutEdges(w) {
			_, target := g.EdgeEndpoints(oe)
			if !neighborhood[target] {
				continue
			}
			// Duplicate (parallel) edges still count toward the truncated
			// degree — degree counts every physical edge — but only the
			// non-duplicate edge of a parallel set contributes to the
			// induced-subgraph edge list, matching the "only one survives
			// in downstream matching" invariant.
			truncatedOut[w]++
			truncatedIn[target]++
			if g.IsDuplicate(oe) {
				continue
			}
			inducedEdges = append(inducedEdges, endpoints{source: w, target: target})
		}
	}

	w := VertexLocalWeights.sqrt()
	contributions := make([]float64, 0, len(inducedEdges))
	for _, ie := range inducedEdges {
		denom := w[0]*float64(truncatedIn[ie.source]) +
			w[1]*float64(truncatedOut[ie.source]) +
			w[2]*float64(truncatedIn[ie.target]) +
			w[3]*float64(truncatedOut[ie.target])
		if denom == 0 {
			contributions = append(contributions, 0)
			continue
		}
		contributions = append(contributions, 1/denom)
	}
	return sumSorted(contributions)
}

// closedNeighborhood returns {u, v} union every vertex reachable from u or v
// by a single in- or out-edge.
func closedNeighborhood(g Graph, u, v uint32) map[uint32]bool {
	set := map[uint32]bool{u: true, v: true}
	for _, root := range [2]uint32{u, v} {
		for _, e := range g.OutEdges(root) {
			_, t := g.EdgeEndpoints(e)
			set[t] = true
		}
		for _, e := range g.InEdges(root) {
			s, _ := g.EdgeEndpoints(e)
			set[s] = true
		}
	}
	return set
}
