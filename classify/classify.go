package classify

import (
	"github.com/binarydiff/matcher/fixedpoint"
	"github.com/binarydiff/matcher/model"
)

// Classify sets fp's change-classification bit flags by inspecting its
// matched basic blocks and their instruction alignments. It is read-only on
// the store: it only ever writes fp's own Flags.
func Classify(fp *fixedpoint.FixedPoint) {
	p, s := fp.Primary, fp.Secondary
	var flags fixedpoint.ChangeFlag

	bbByPrimary := make(map[uint32]*fixedpoint.BasicBlockFixedPoint)
	for _, bb := range fp.BasicBlockFixedPoints() {
		bbByPrimary[bb.PrimaryVertex] = bb
	}

	if p.BasicBlockCount() != s.BasicBlockCount() ||
		p.EdgeCount() != s.EdgeCount() ||
		anyPrimaryEdgeUnmatched(p, bbByPrimary) {
		flags |= fixedpoint.ChangeStructural
	}

	for _, bb := range fp.BasicBlockFixedPoints() {
		matched := len(bb.InstructionMatches())
		pCount := p.InstructionCount(bb.PrimaryVertex)
		sCount := s.InstructionCount(bb.SecondaryVertex)

		if matched != pCount || matched != sCount {
			flags |= fixedpoint.ChangeInstructions
		}
		if isBranchInversion(p, s, bb, pCount, sCount, matched) {
			flags |= fixedpoint.ChangeBranchInversion
		}
		if !callsAlign(p, s, bb) {
			flags |= fixedpoint.ChangeCalls
		}
	}

	if !entryPointMatches(fp, bbByPrimary) {
		flags |= fixedpoint.ChangeEntryPoint
	}
	if p.LoopCount() != s.LoopCount() {
		flags |= fixedpoint.ChangeLoops
	}

	fp.SetFlags(flags)
}

func anyPrimaryEdgeUnmatched(p *model.FlowGraph, bbByPrimary map[uint32]*fixedpoint.BasicBlockFixedPoint) bool {
	for e := 0; e < p.EdgeCount(); e++ {
		src, dst := p.EdgeEndpoints(uint32(e))
		if bbByPrimary[src] == nil || bbByPrimary[dst] == nil {
			return true
		}
	}
	return false
}

// isBranchInversion detects a jz/jnz-style terminator swap: both sides miss
// exactly one instruction from the match, out-degrees agree and indicate a
// conditional branch (>=2), and the unmatched instruction is each side's
// block terminator.
func isBranchInversion(p, s *model.FlowGraph, bb *fixedpoint.BasicBlockFixedPoint, pCount, sCount, matched int) bool {
	pDelta := pCount - matched
	sDelta := sCount - matched
	if pDelta != 1 || sDelta != 1 {
		return false
	}
	outP := p.OutDegree(bb.PrimaryVertex)
	outS := s.OutDegree(bb.SecondaryVertex)
	if outP != outS || outP < 2 {
		return false
	}
	return unmatchedInstructionIsTerminator(p.Instructions(bb.PrimaryVertex), bb.InstructionMatches(), true) &&
		unmatchedInstructionIsTerminator(s.Instructions(bb.SecondaryVertex), bb.InstructionMatches(), false)
}

func unmatchedInstructionIsTerminator(instrs []model.Instruction, matches []fixedpoint.InstructionMatch, primarySide bool) bool {
	if len(instrs) == 0 {
		return false
	}
	terminator := instrs[len(instrs)-1].Address
	for _, m := range matches {
		addr := m.Secondary
		if primarySide {
			addr = m.Primary
		}
		if addr == terminator {
			return false
		}
	}
	return true
}

// callsAlign reports whether every call made from bb's primary block
// resolves, in order, to a callee already matched to bb's corresponding
// secondary call target.
func callsAlign(p, s *model.FlowGraph, bb *fixedpoint.BasicBlockFixedPoint) bool {
	pCG, sCG := p.CallGraph(), s.CallGraph()
	if pCG == nil || sCG == nil {
		return true
	}
	pTargets := p.CallTargets(bb.PrimaryVertex)
	sTargets := s.CallTargets(bb.SecondaryVertex)
	if len(pTargets) != len(sTargets) {
		return false
	}
	for i := range pTargets {
		pv := pCG.GetVertex(pTargets[i])
		sv := sCG.GetVertex(sTargets[i])
		// Call sites into addresses outside the call graph (imports resolved
		// elsewhere) are skipped, not flagged.
		if pv == model.InvalidIndex || sv == model.InvalidIndex {
			continue
		}
		pCallee := pCG.FlowGraph(pv)
		sCallee := sCG.FlowGraph(sv)
		if pCallee == nil || sCallee == nil {
			return false
		}
		calleeFP, _ := pCallee.FixedPoint().(*fixedpoint.FixedPoint)
		if calleeFP == nil || calleeFP.Secondary != sCallee {
			return false
		}
	}
	return true
}

func entryPointMatches(fp *fixedpoint.FixedPoint, bbByPrimary map[uint32]*fixedpoint.BasicBlockFixedPoint) bool {
	entry, ok := bbByPrimary[fp.Primary.EntryVertex()]
	if !ok || entry.SecondaryVertex != fp.Secondary.EntryVertex() {
		return false
	}
	matched := len(entry.InstructionMatches())
	return matched == fp.Primary.InstructionCount(entry.PrimaryVertex) &&
		matched == fp.Secondary.InstructionCount(entry.SecondaryVertex)
}

// GetChangeDescription renders fp's classification as the traditional
// 7-character mask "GIOJELC" — one position per flag in bit order, '-'
// where the flag is not set.
func GetChangeDescription(fp *fixedpoint.FixedPoint) string {
	mask := []byte("GIOJELC")
	for i := 0; i < fixedpoint.ChangeCount; i++ {
		if !fp.HasFlag(fixedpoint.ChangeFlag(1) << i) {
			mask[i] = '-'
		}
	}
	return string(mask)
}
