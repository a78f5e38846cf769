package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/binarydiff/matcher/model"
)

// payload is a JSON stand-in for the on-disk binary container a
// disassembler front end would produce. Nothing upstream of this file is
// part of the matching core: it exists so the CLI has something concrete to
// read given no disassembler front end is part of this module. A real
// deployment replaces loadPayload with a reader for the actual container
// format; the shape below mirrors exactly the fields the matcher consumes.
type payload struct {
	ExeHash     string              `json:"exe_hash"`
	ExeFilename string              `json:"exe_filename"`
	Vertices    []payloadVertex     `json:"vertices"`
	Edges       []payloadEdge       `json:"edges"`
	Functions   []payloadFlowGraph  `json:"functions"`
	Comments    []payloadComment    `json:"comments,omitempty"`
}

type payloadVertex struct {
	Address       uint64 `json:"address"`
	Name          string `json:"name"`
	DemangledName string `json:"demangled_name,omitempty"`
	Kind          string `json:"kind"` // "normal", "library", "thunk", "imported", "invalid"
}

type payloadEdge struct {
	Source uint32 `json:"source"`
	Target uint32 `json:"target"`
}

type payloadFlowGraph struct {
	EntryAddress uint64                  `json:"entry_address"`
	Blocks       []payloadBlock          `json:"blocks"`
	Edges        []payloadFlowGraphEdge  `json:"edges"`
	Instructions []payloadInstruction    `json:"instructions"`
	EntryIndex   int                     `json:"entry_index"`
}

type payloadBlock struct {
	Address     uint64   `json:"address"`
	InstrStart  int      `json:"instr_start"`
	InstrEnd    int      `json:"instr_end"`
	CallTargets []uint64 `json:"call_targets,omitempty"`
}

type payloadFlowGraphEdge struct {
	Source uint32 `json:"source"`
	Target uint32 `json:"target"`
	Kind   string `json:"kind"` // "true", "false", "unconditional", "switch"
}

type payloadInstruction struct {
	Address   uint64 `json:"address"`
	Size      uint8  `json:"size"`
	Mnemonic  string `json:"mnemonic"`
	Bytes     string `json:"bytes"`
	StringRef string `json:"string_ref,omitempty"`
}

type payloadComment struct {
	Address    uint64 `json:"address"`
	OperandIdx int    `json:"operand_idx"`
	Text       string `json:"text"`
	Type       string `json:"type"`
	Repeatable bool   `json:"repeatable"`
}

func vertexKind(s string) model.VertexKind {
	switch s {
	case "library":
		return model.VertexLibrary
	case "thunk":
		return model.VertexThunk
	case "imported":
		return model.VertexImported
	case "invalid":
		return model.VertexInvalid
	default:
		return model.VertexNormal
	}
}

func edgeKind(s string) model.EdgeKind {
	switch s {
	case "true":
		return model.EdgeConditionalTrue
	case "false":
		return model.EdgeConditionalFalse
	case "switch":
		return model.EdgeSwitch
	default:
		return model.EdgeUnconditional
	}
}

func commentType(s string) model.CommentType {
	switch s {
	case "enum":
		return model.CommentEnum
	case "anterior":
		return model.CommentAnterior
	case "posterior":
		return model.CommentPosterior
	case "function":
		return model.CommentFunction
	case "location":
		return model.CommentLocation
	case "global_ref":
		return model.CommentGlobalRef
	case "local_ref":
		return model.CommentLocalRef
	default:
		return model.CommentRegular
	}
}

// loadPayload reads a JSON payload file at path and builds its CallGraph,
// with every function's FlowGraph already constructed and attached,
// topology already calculated on both, ready for bindiff.Diff.
func loadPayload(path string) (*model.CallGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}

	vertices := make([]model.CallGraphVertex, len(p.Vertices))
	for i, v := range p.Vertices {
		vertices[i] = model.CallGraphVertex{
			Address:       model.Address(v.Address),
			Name:          v.Name,
			DemangledName: v.DemangledName,
			Kind:          vertexKind(v.Kind),
		}
	}
	edges := make([]model.CallGraphEdge, len(p.Edges))
	for i, e := range p.Edges {
		edges[i] = model.CallGraphEdge{Source: e.Source, Target: e.Target}
	}

	cg, err := model.NewCallGraph(p.ExeHash, p.ExeFilename, vertices, edges)
	if err != nil {
		return nil, fmt.Errorf("%q: build call graph: %w", path, err)
	}

	comments := make([]model.Comment, len(p.Comments))
	for i, c := range p.Comments {
		comments[i] = model.Comment{
			Address:    model.Address(c.Address),
			OperandIdx: c.OperandIdx,
			Text:       c.Text,
			Type:       commentType(c.Type),
			Repeatable: c.Repeatable,
		}
	}
	cg.SetComments(comments)

	for _, fn := range p.Functions {
		instrs := make([]model.Instruction, len(fn.Instructions))
		for i, in := range fn.Instructions {
			instrs[i] = model.Instruction{
				Address:   model.Address(in.Address),
				Size:      in.Size,
				Mnemonic:  in.Mnemonic,
				Bytes:     in.Bytes,
				StringRef: in.StringRef,
			}
		}
		blocks := make([]model.FlowGraphBlock, len(fn.Blocks))
		for i, b := range fn.Blocks {
			targets := make([]model.Address, len(b.CallTargets))
			for j, t := range b.CallTargets {
				targets[j] = model.Address(t)
			}
			blocks[i] = model.FlowGraphBlock{
				Address:     model.Address(b.Address),
				InstrStart:  b.InstrStart,
				InstrEnd:    b.InstrEnd,
				CallTargets: targets,
			}
		}
		fgEdges := make([]model.FlowGraphEdge, len(fn.Edges))
		for i, e := range fn.Edges {
			fgEdges[i] = model.FlowGraphEdge{Source: e.Source, Target: e.Target, Kind: edgeKind(e.Kind)}
		}

		v := cg.GetVertex(model.Address(fn.EntryAddress))
		if v == model.InvalidIndex {
			return nil, fmt.Errorf("%q: function 0x%x has no matching call-graph vertex", path, fn.EntryAddress)
		}
		fg, err := model.NewFlowGraph(cg.Name(v), blocks, fgEdges, instrs, fn.EntryIndex)
		if err != nil {
			return nil, fmt.Errorf("%q: build flow graph for 0x%x: %w", path, fn.EntryAddress, err)
		}
		if err := cg.AttachFlowGraph(fg); err != nil {
			return nil, fmt.Errorf("%q: attach flow graph for 0x%x: %w", path, fn.EntryAddress, err)
		}
		fg.CalculateTopology()
	}

	cg.CalculateTopology()
	return cg, nil
}
