package topology

// Graph is the minimal surface the topology engine needs from a program
// model graph. model.CallGraph and model.FlowGraph both satisfy it via
// method promotion from their shared embedded storage.
type Graph interface {
	VertexCount() int
	EdgeCount() int
	OutDegree(v uint32) int
	InDegree(v uint32) int
	OutEdges(v uint32) []uint32
	InEdges(v uint32) []uint32
	EdgeEndpoints(e uint32) (source, target uint32)
	IsCircular(e uint32) bool
	IsDuplicate(e uint32) bool
	ForwardLevel(v uint32) uint32
	ReverseLevel(v uint32) uint32
	SetForwardLevel(v uint32, level uint32)
	SetReverseLevel(v uint32, level uint32)
}
