package topology

// CalculateForwardLevels runs a breadth-first search starting from every
// vertex with zero *effective* in-degree (a self-loop alone does not count:
// a vertex whose only in-edge is a self-loop still seeds the search) and
// assigns each newly discovered vertex the next integer level. Vertices
// unreachable from any seed keep level 0.
func CalculateForwardLevels(g Graph) {
	n := g.VertexCount()
	visited := make([]bool, n)
	queue := make([]uint32, 0, n)

	for v := uint32(0); v < uint32(n); v++ {
		g.SetForwardLevel(v, 0)
		if effectiveInDegree(g, v) == 0 {
			queue = append(queue, v)
			visited[v] = true
		}
	}

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, e := range g.OutEdges(v) {
			_, target := g.EdgeEndpoints(e)
			if visited[target] {
				continue
			}
			visited[target] = true
			g.SetForwardLevel(target, g.ForwardLevel(v)+1)
			queue = append(queue, target)
		}
	}
}

// CalculateReverseLevels is CalculateForwardLevels with edges inverted:
// seeds are vertices with zero effective out-degree, and levels propagate
// along in-edges.
func CalculateReverseLevels(g Graph) {
	n := g.VertexCount()
	visited := make([]bool, n)
	queue := make([]uint32, 0, n)

	for v := uint32(0); v < uint32(n); v++ {
		g.SetReverseLevel(v, 0)
		if effectiveOutDegree(g, v) == 0 {
			queue = append(queue, v)
			visited[v] = true
		}
	}

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, e := range g.InEdges(v) {
			source, _ := g.EdgeEndpoints(e)
			if visited[source] {
				continue
			}
			visited[source] = true
			g.SetReverseLevel(source, g.ReverseLevel(v)+1)
			queue = append(queue, source)
		}
	}
}

// effectiveInDegree counts in-edges excluding self-loops, so that a vertex
// whose only incoming edge is a self-loop is still treated as a BFS seed.
func effectiveInDegree(g Graph, v uint32) int {
	n := 0
	for _, e := range g.InEdges(v) {
		if !g.IsCircular(e) {
			n++
		}
	}
	return n
}

// effectiveOutDegree is effectiveInDegree's mirror for reverse BFS seeding.
func effectiveOutDegree(g Graph, v uint32) int {
	n := 0
	for _, e := range g.OutEdges(v) {
		if !g.IsCircular(e) {
			n++
		}
	}
	return n
}
