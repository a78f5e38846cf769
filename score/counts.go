package score

import (
	"github.com/binarydiff/matcher/fixedpoint"
	"github.com/binarydiff/matcher/model"
)

// Counts tallies functions, basic blocks, instructions and edges; only the
// function count has a separate library tally.
type Counts struct {
	Functions        int
	LibraryFunctions int
	BasicBlocks      int
	Instructions     int
	Edges            int
}

// TallyGraph tallies every function attached to a flow graph in g, including
// library functions. Call NonLibrary() to get the non-library subset.
func TallyGraph(g *model.CallGraph) Counts {
	var c Counts
	for v := 0; v < g.VertexCount(); v++ {
		fg := g.FlowGraph(uint32(v))
		if fg == nil {
			continue
		}
		c.Functions++
		if g.IsLibrary(uint32(v)) {
			c.LibraryFunctions++
		}
		c.BasicBlocks += fg.BasicBlockCount()
		c.Instructions += fg.TotalInstructionCount()
		c.Edges += fg.EdgeCount()
	}
	return c
}

// TallyMatched tallies the functions, basic blocks, instructions and edges
// that participate in store's fixed points. Edges count as matched only
// when both endpoints are matched basic blocks and the counterpart edge
// exists between them in the secondary flow graph.
func TallyMatched(store *fixedpoint.Store) Counts {
	var c Counts
	for _, fp := range store.All() {
		c.Functions++
		if fp.Primary.IsLibrary() {
			c.LibraryFunctions++
		}
		c.BasicBlocks += len(fp.BasicBlockFixedPoints())

		bbByPrimary := make(map[uint32]*fixedpoint.BasicBlockFixedPoint, len(fp.BasicBlockFixedPoints()))
		for _, bb := range fp.BasicBlockFixedPoints() {
			c.Instructions += len(bb.InstructionMatches())
			bbByPrimary[bb.PrimaryVertex] = bb
		}

		for e := 0; e < fp.Primary.EdgeCount(); e++ {
			src, dst := fp.Primary.EdgeEndpoints(uint32(e))
			sbb, dbb := bbByPrimary[src], bbByPrimary[dst]
			if sbb == nil || dbb == nil {
				continue
			}
			if _, ok := fp.Secondary.FindEdge(sbb.SecondaryVertex, dbb.SecondaryVertex); ok {
				c.Edges++
			}
		}
	}
	return c
}

// NonLibrary returns c with the library-function-only portion of Functions
// subtracted out; basic blocks/instructions/edges are not separately split
// by library status — the library filter operates at function granularity.
func (c Counts) NonLibrary() Counts {
	c.Functions -= c.LibraryFunctions
	return c
}
