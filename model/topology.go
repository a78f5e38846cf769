package model

import "github.com/binarydiff/matcher/topology"

// CalculateTopology runs both BFS sweeps and populates every edge's
// top-down/bottom-up MD-index plus the whole-graph MD-index. Must be called
// once after construction, before any matching step runs.
func (g *CallGraph) CalculateTopology() {
	topology.CalculateForwardLevels(&g.base)
	topology.CalculateReverseLevels(&g.base)

	for e := 0; e < g.EdgeCount(); e++ {
		g.SetEdgeMDTopDown(uint32(e), topology.EdgeMD(&g.base, uint32(e), false, topology.FullGraphWeights))
		g.SetEdgeMDBottomUp(uint32(e), topology.EdgeMD(&g.base, uint32(e), true, topology.FullGraphWeights))
	}
	g.SetMdIndex(topology.GraphMD(&g.base, false, topology.FullGraphWeights))
}

// VertexMD returns vertex v's MD-index using the vertex-local weights (no
// level term), so it stays stable under BFS-level perturbations elsewhere
// in the graph.
func (g *CallGraph) VertexMD(v uint32) float64 {
	return topology.VertexMD(&g.base, v, false, topology.VertexLocalWeights)
}

// FunctionMDTopDown returns the per-function MD-index used by the
// "function: MD index (top-down)" matching step: the sorted sum of v's
// incident edge contributions under full weights and forward BFS levels.
func (g *CallGraph) FunctionMDTopDown(v uint32) float64 {
	return topology.VertexMD(&g.base, v, false, topology.FullGraphWeights)
}

// FunctionMDBottomUp is FunctionMDTopDown's mirror using reverse BFS levels,
// for the "function: MD index (bottom-up)" step.
func (g *CallGraph) FunctionMDBottomUp(v uint32) float64 {
	return topology.VertexMD(&g.base, v, true, topology.FullGraphWeights)
}

// CalculateTopology runs both BFS sweeps over this function's flow graph.
// Flow graphs are small enough that per-edge MD-index is computed on demand
// by the matching steps rather than cached eagerly.
func (fg *FlowGraph) CalculateTopology() {
	topology.CalculateForwardLevels(&fg.base)
	topology.CalculateReverseLevels(&fg.base)
}

// EdgeMD returns the MD-index of flow-graph edge e.
func (fg *FlowGraph) EdgeMD(e uint32, inverted bool) float64 {
	return topology.EdgeMD(&fg.base, e, inverted, topology.FullGraphWeights)
}

// VertexMD returns the MD-index of flow-graph vertex v using vertex-local
// weights.
func (fg *FlowGraph) VertexMD(v uint32) float64 {
	return topology.VertexMD(&fg.base, v, false, topology.VertexLocalWeights)
}

// GraphMD returns the whole-flow-graph MD-index.
func (fg *FlowGraph) GraphMD() float64 {
	return topology.GraphMD(&fg.base, false, topology.FullGraphWeights)
}
