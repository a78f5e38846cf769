package topology

import (
	"math"
	"sort"
)

// Weights is a 6-element array of the prime numbers (or zero) that weigh,
// in order: in-degree(source), out-degree(source), in-degree(target),
// out-degree(target), level(source), level(target).
type Weights [6]float64

// FullGraphWeights are the default weights for whole-graph and per-edge
// MD-indices.
var FullGraphWeights = Weights{2, 3, 5, 7, 11, 13}

// VertexLocalWeights zero out the level terms, so a vertex's MD-index is a
// pure degree fingerprint that survives BFS-level perturbations elsewhere in
// the graph.
var VertexLocalWeights = Weights{2, 3, 5, 7, 0, 0}

// sqrt returns √w for each weight; EdgeMD recomputes it on every call.
func (w Weights) sqrt() (out [6]float64) {
	for i, v := range w {
		out[i] = math.Sqrt(v)
	}
	return out
}

// EdgeMD returns the MD-index contribution of edge e: 1/ed(u,v) where ed is
// the weighted sum of degrees and levels of its endpoints, or 0 if ed is 0.
// inverted selects the reverse BFS level instead of the forward one.
func EdgeMD(g Graph, e uint32, inverted bool, w Weights) float64 {
	source, target := g.EdgeEndpoints(e)
	sw := w.sqrt()

	levelSource := float64(g.ForwardLevel(source))
	levelTarget := float64(g.ForwardLevel(target))
	if inverted {
		levelSource = float64(g.ReverseLevel(source))
		levelTarget = float64(g.ReverseLevel(target))
	}

	ed := sw[0]*float64(g.InDegree(source)) +
		sw[1]*float64(g.OutDegree(source)) +
		sw[2]*float64(g.InDegree(target)) +
		sw[3]*float64(g.OutDegree(target)) +
		sw[4]*levelSource +
		sw[5]*levelTarget

	if ed == 0 {
		return 0
	}
	return 1 / ed
}

// sumSorted sums contributions in ascending order, since floating-point
// addition is not commutative and determinism within an implementation
// depends on a fixed summation order.
func sumSorted(contributions []float64) float64 {
	sort.Float64s(contributions)
	total := 0.0
	for _, c := range contributions {
		total += c
	}
	return total
}

// GraphMD returns the whole-graph MD-index: the sorted sum of every edge's
// MD-index contribution.
func GraphMD(g Graph, inverted bool, w Weights) float64 {
	n := g.EdgeCount()
	contributions := make([]float64, n)
	for e := 0; e < n; e++ {
		contributions[e] = EdgeMD(g, uint32(e), inverted, w)
	}
	return sumSorted(contributions)
}

// VertexMD returns vertex v's MD-index: the sorted sum of the MD-index
// contributions of its incident edges (in-edges then out-edges).
func VertexMD(g Graph, v uint32, inverted bool, w Weights) float64 {
	ins := g.InEdges(v)
	outs := g.OutEdges(v)
	contributions := make([]float64, 0, len(ins)+len(outs))
	for _, e := range ins {
		contributions = append(contributions, EdgeMD(g, e, inverted, w))
	}
	for _, e := range outs {
		contributions = append(contributions, EdgeMD(g, e, inverted, w))
	}
	return sumSorted(contributions)
}
