// Package model holds the in-memory program representation that the matcher
// operates on: a CallGraph (functions as vertices, call sites as edges) and,
// per function, a FlowGraph (basic blocks as vertices, branches as edges).
//
// Both graph kinds share the same storage shape: vertices are kept in a slice
// sorted by address and addressed by binary search, while edges live in a
// flat slice with parallel adjacency index lists per vertex. This
// compressed-sparse-row shape keeps address lookups and degree queries at
// O(log n) and O(1) respectively — both are on the hot path of the topology
// engine and the matching steps.
//
// A CallGraph and its FlowGraphs are built once from an externally decoded
// payload (the disassembler front-end is out of scope for this module) and
// are then immutable except for a small number of back-pointers: CallGraph
// vertex → attached FlowGraph (installed when the payload is loaded), and,
// installed by the matcher, FlowGraph vertex → containing
// BasicBlockFixedPoint and FlowGraph → containing FixedPoint. When a diff is
// re-run in incremental mode, the matcher's back-pointers are reset for every
// discarded fixed point; those of kept manual matches stay in place.
package model
