package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// straightLineFlowGraph builds a single-block function from a flat mnemonic
// sequence, one instruction per mnemonic.
func straightLineFlowGraph(entry Address, mnemonics []string) (*FlowGraph, error) {
	instrs := make([]Instruction, len(mnemonics))
	for i, m := range mnemonics {
		instrs[i] = Instruction{Address: entry + Address(i), Mnemonic: m, Bytes: m}
	}
	return NewFlowGraph("f", []FlowGraphBlock{{Address: entry, InstrStart: 0, InstrEnd: len(instrs)}}, nil, instrs, 0)
}

func TestNewFlowGraph_RejectsEmpty(t *testing.T) {
	_, err := NewFlowGraph("f", nil, nil, nil, 0)
	assert.ErrorIs(t, err, ErrEmptyFlowGraph)
}

func TestNewFlowGraph_RejectsBadEntry(t *testing.T) {
	_, err := NewFlowGraph("f", []FlowGraphBlock{{Address: 1}}, nil, nil, 5)
	assert.ErrorIs(t, err, ErrNoEntryBlock)
}

func TestFlowGraph_LoopCount(t *testing.T) {
	// 0 -> 1 -> 2, with a back-edge 2 -> 1 (a one-block loop body).
	fg, err := NewFlowGraph("f",
		[]FlowGraphBlock{{Address: 0x10}, {Address: 0x20}, {Address: 0x30}},
		[]FlowGraphEdge{
			{Source: 0, Target: 1, Kind: EdgeUnconditional},
			{Source: 1, Target: 2, Kind: EdgeConditionalFalse},
			{Source: 2, Target: 1, Kind: EdgeUnconditional},
		},
		nil, 0,
	)
	require.NoError(t, err)
	assert.Equal(t, 1, fg.LoopCount())
}

func TestFlowGraph_ResetMatches(t *testing.T) {
	fg, err := straightLineFlowGraph(0x1000, []string{"push", "mov", "ret"})
	require.NoError(t, err)

	fg.SetFixedPoint("sentinel")
	fg.SetBasicBlockFixedPoint(0, "sentinel-bb")
	fg.ResetMatches()
	assert.Nil(t, fg.FixedPoint())
	assert.Nil(t, fg.BasicBlockFixedPoint(0))
}

func TestFlowGraph_InstructionSlicing(t *testing.T) {
	fg, err := straightLineFlowGraph(0x1000, []string{"push", "mov", "ret"})
	require.NoError(t, err)
	assert.Equal(t, 3, fg.InstructionCount(0))
	assert.Equal(t, "mov", fg.Instructions(0)[1].Mnemonic)
}
