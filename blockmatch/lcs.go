package blockmatch

import (
	"github.com/binarydiff/matcher/fixedpoint"
	"github.com/binarydiff/matcher/model"
)

// alignInstructions runs the Longest Common Subsequence algorithm over bb's
// two instruction sequences (mnemonic equality, or byte-wise equality for
// strict steps) and stores the resulting index pairs as the block's
// instruction matches.
func alignInstructions(fp *fixedpoint.FixedPoint, bb *fixedpoint.BasicBlockFixedPoint) {
	pInstrs := fp.Primary.Instructions(bb.PrimaryVertex)
	sInstrs := fp.Secondary.Instructions(bb.SecondaryVertex)
	strict := bb.MatchingStep() == "basic block: hash"

	equal := func(a, b model.Instruction) bool {
		if strict {
			return a.Bytes == b.Bytes
		}
		return a.Mnemonic == b.Mnemonic
	}

	pairs := longestCommonSubsequence(pInstrs, sInstrs, equal)
	matches := make([]fixedpoint.InstructionMatch, len(pairs))
	for i, p := range pairs {
		matches[i] = fixedpoint.InstructionMatch{
			Primary:   pInstrs[p[0]].Address,
			Secondary: sInstrs[p[1]].Address,
		}
	}
	bb.SetInstructionMatches(matches)
}

// longestCommonSubsequence returns, as (i, j) index pairs into a and b, the
// longest common subsequence under equal. Standard O(len(a)*len(b))
// dynamic-programming table with backtrace.
func longestCommonSubsequence(a, b []model.Instruction, equal func(model.Instruction, model.Instruction) bool) [][2]int {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return nil
	}
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if equal(a[i], b[j]) {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var pairs [][2]int
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case equal(a[i], b[j]):
			pairs = append(pairs, [2]int{i, j})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}
