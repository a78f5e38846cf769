// Package topology computes the graph invariants the matching steps key on:
// forward/reverse BFS levels and the MD-index family (per-edge, per-vertex,
// whole-graph, and the edge-local "proximity" variant).
//
// The MD-index of an edge (u, v) is
//
//	ed(u,v) = √p1·in(u) + √p2·out(u) + √p3·in(v) + √p4·out(v) + √p5·lvl(u) + √p6·lvl(v)
//	contribution = 1/ed(u,v) if ed(u,v) > 0, else 0
//
// with two weight sets — FullGraphWeights (2,3,5,7,11,13), used for whole-
// graph and per-edge indices, and VertexLocalWeights (2,3,5,7,0,0), which
// zeroes the level term so a vertex's MD-index survives BFS-level
// perturbations that a distant edit can otherwise propagate across the
// whole graph. Summation always sorts contributions ascending first:
// floating-point addition is not commutative, and determinism within one
// implementation depends on a fixed summation order.
//
// Every function in this package operates against the Graph interface
// rather than a concrete model type, so both model.CallGraph and
// model.FlowGraph (which both embed the same vertex/edge storage) can be fed
// through it unchanged.
package topology
