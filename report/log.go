package report

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/binarydiff/matcher/fixedpoint"
	"github.com/binarydiff/matcher/model"
	"github.com/binarydiff/matcher/score"
)

// formatAddress renders an Address as lowercase hex, zero-padded to 16
// digits, the format shared by every text output in this package.
func formatAddress(addr model.Address) string {
	return fmt.Sprintf("%016x", uint64(addr))
}

// WriteLog writes the full per-diff text report (filenames, call-graph
// MD-indices, counts, matching-step histogram, global similarity and
// confidence, one block per fixed point with its nested basic-block and
// instruction matches, then the two unmatched-function sections).
func WriteLog(w io.Writer, primary, secondary *model.CallGraph, store *fixedpoint.Store, weights score.StepWeights) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%s\n%s\n", primary.ExeFilename(), secondary.ExeFilename())
	fmt.Fprintf(bw, "call graph1 MD index %v\n", primary.MdIndex())
	fmt.Fprintf(bw, "call graph2 MD index %v\n\n", secondary.MdIndex())

	pCounts := score.TallyGraph(primary)
	sCounts := score.TallyGraph(secondary)
	matched := score.TallyMatched(store)

	fmt.Fprintln(bw, " --------- statistics ---------")
	writeStatLine(bw, "functions primary non-library", pCounts.NonLibrary().Functions)
	writeStatLine(bw, "functions primary library", pCounts.LibraryFunctions)
	writeStatLine(bw, "functions secondary non-library", sCounts.NonLibrary().Functions)
	writeStatLine(bw, "functions secondary library", sCounts.LibraryFunctions)
	writeStatLine(bw, "basic blocks primary", pCounts.BasicBlocks)
	writeStatLine(bw, "basic blocks secondary", sCounts.BasicBlocks)
	writeStatLine(bw, "instructions primary", pCounts.Instructions)
	writeStatLine(bw, "instructions secondary", sCounts.Instructions)
	writeStatLine(bw, "edges primary", pCounts.Edges)
	writeStatLine(bw, "edges secondary", sCounts.Edges)
	writeStatLine(bw, "matched functions", matched.Functions)
	writeStatLine(bw, "matched basic blocks", matched.BasicBlocks)
	writeStatLine(bw, "matched instructions", matched.Instructions)
	writeStatLine(bw, "matched edges", matched.Edges)
	fmt.Fprintln(bw)

	histogram := score.BuildHistogram(store)
	for _, name := range sortedKeys(histogram) {
		writeStatLine(bw, name, histogram[name])
	}
	fmt.Fprintln(bw)

	mdConsistency := mdIndexConsistency(primary.MdIndex(), secondary.MdIndex())
	similarity := score.GlobalSimilarity(score.GlobalCounts{
		PrimaryFunctions: pCounts.NonLibrary().Functions, SecondaryFunctions: sCounts.NonLibrary().Functions,
		MatchedFunctions:   matched.NonLibrary().Functions,
		PrimaryBasicBlocks: pCounts.BasicBlocks, SecondaryBasicBlocks: sCounts.BasicBlocks, MatchedBasicBlocks: matched.BasicBlocks,
		PrimaryEdges: pCounts.Edges, SecondaryEdges: sCounts.Edges, MatchedEdges: matched.Edges,
		PrimaryInstructions: pCounts.Instructions, SecondaryInstructions: sCounts.Instructions, MatchedInstrs: matched.Instructions,
		MDConsistency: mdConsistency,
	})
	confidence := score.PairConfidence(histogram, weights)
	fmt.Fprintf(bw, "similarity: %v\nconfidence: %v\n\n", similarity, confidence)

	fmt.Fprintln(bw, "individual confidence values used: ")
	for _, name := range sortedKeys(histogram) {
		writeStatLineF(bw, name, weights.WeightFor(name))
	}
	fmt.Fprintln(bw)

	fmt.Fprintf(bw, " --------- matched %d of %d/%d (%d/%d) ------------ \n",
		store.Len(), pCounts.NonLibrary().Functions, sCounts.NonLibrary().Functions,
		pCounts.LibraryFunctions, sCounts.LibraryFunctions)
	for _, fp := range store.All() {
		writeFixedPoint(bw, fp)
	}

	fmt.Fprintf(bw, " --------- unmatched primary (%d) ------------ \n", primary.VertexCount()-store.Len())
	writeUnmatched(bw, primary)
	fmt.Fprintf(bw, " --------- unmatched secondary (%d) ------------ \n", secondary.VertexCount()-store.Len())
	writeUnmatched(bw, secondary)

	return bw.Flush()
}

func writeStatLine(w *bufio.Writer, name string, value int) {
	fmt.Fprintf(w, "%s%s:%7d\n", name, dots(name), value)
}

func writeStatLineF(w *bufio.Writer, name string, value float64) {
	fmt.Fprintf(w, "%s%s:%7.2f\n", name, dots(name), value)
}

func dots(name string) string {
	n := 60 - len(name)
	if n < 1 {
		n = 1
	}
	return strings.Repeat(".", n)
}

func sortedKeys(h score.Histogram) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mdIndexConsistency(a, b float64) float64 {
	return 1 - math.Abs(a-b)/(1+a+b)
}

func writeFixedPoint(w *bufio.Writer, fp *fixedpoint.FixedPoint) {
	p, s := fp.Primary, fp.Secondary
	fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%v\t%v\t%v\t%v\t%s\t%q\t%q\n",
		formatAddress(p.EntryAddress()), formatAddress(s.EntryAddress()),
		fp.Similarity(), fp.Confidence(),
		p.CallGraph().FunctionMDTopDown(p.CallGraphVertex()), s.CallGraph().FunctionMDTopDown(s.CallGraphVertex()),
		p.IsLibrary(), s.IsLibrary(), fp.MatchingStep(), p.Name(), s.Name())
	fmt.Fprintf(w, "\t%d\t%d\t%d\n", len(fp.BasicBlockFixedPoints()), p.BasicBlockCount(), s.BasicBlockCount())

	for _, bb := range fp.BasicBlockFixedPoints() {
		instr1 := p.InstructionCount(bb.PrimaryVertex)
		instr2 := s.InstructionCount(bb.SecondaryVertex)
		fmt.Fprintf(w, "\t%s\t%s\t%s\n", formatAddress(p.Address(bb.PrimaryVertex)), formatAddress(s.Address(bb.SecondaryVertex)), bb.MatchingStep())
		fmt.Fprintf(w, "\t\t%d\t%d\t%d\n", len(bb.InstructionMatches()), instr1, instr2)
		for _, m := range bb.InstructionMatches() {
			fmt.Fprintf(w, "\t\t%s\t%s\n", formatAddress(m.Primary), formatAddress(m.Secondary))
		}
	}
}

func writeUnmatched(w *bufio.Writer, g *model.CallGraph) {
	for v := 0; v < g.VertexCount(); v++ {
		fg := g.FlowGraph(uint32(v))
		if fg == nil || fg.FixedPoint() != nil {
			continue
		}
		fmt.Fprintf(w, "%s\t%v\t%v\t%s\n", formatAddress(fg.EntryAddress()), g.IsLibrary(uint32(v)), g.FunctionMDTopDown(uint32(v)), g.GoodName(uint32(v)))
	}
}
