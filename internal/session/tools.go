package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrOperationNotAllowed is returned when a tool does not expose an operation.
var ErrOperationNotAllowed = errors.New("operation not allowed for this tool")

// ErrUnknownTool is returned by ParseTool.
var ErrUnknownTool = errors.New("unknown tool")

// Tool names one page tool. Each tool exposes a subset of operations.
type Tool string

const (
	ToolOrganize    Tool = "organize"
	ToolRotate      Tool = "rotate"
	ToolRemove      Tool = "remove"
	ToolExtract     Tool = "extract"
	ToolSplit       Tool = "split"
	ToolSign        Tool = "sign"
	ToolWatermark   Tool = "watermark"
	ToolRedact      Tool = "redact"
	ToolPageNumbers Tool = "page-numbers"
)

// Op is one engine operation a tool may expose.
type Op string

const (
	OpRotate    Op = "rotate"
	OpRotateAll Op = "rotate_all"
	OpDelete    Op = "delete"
	OpRestore   Op = "restore"
	OpDuplicate Op = "duplicate"
	OpReorder   Op = "reorder"
	OpMove      Op = "move"
	OpUndo      Op = "undo"
	OpRedo      Op = "redo"
	OpSelect    Op = "select"
	OpOverlay   Op = "overlay"

	OpCompileStructural Op = "compile_structural"
	OpCompileSelection  Op = "compile_selection"
	OpCompileRemoval    Op = "compile_removal"
	OpSplit             Op = "split"
)

var undoOps = []Op{OpUndo, OpRedo}

func ops(groups ...[]Op) map[Op]bool {
	m := map[Op]bool{}
	for _, g := range groups {
		for _, op := range g {
			m[op] = true
		}
	}
	return m
}

var profiles = map[Tool]map[Op]bool{
	ToolOrganize: ops(undoOps, []Op{OpRotate, OpRotateAll, OpDelete, OpRestore, OpDuplicate, OpReorder, OpMove, OpCompileStructural}),
	ToolRotate:   ops(undoOps, []Op{OpRotate, OpRotateAll, OpCompileStructural}),
	ToolRemove:   ops(undoOps, []Op{OpSelect, OpDelete, OpRestore, OpCompileRemoval, OpCompileStructural}),
	ToolExtract:  ops([]Op{OpSelect, OpCompileSelection}),
	ToolSplit:    ops([]Op{OpSelect, OpSplit}),

	ToolSign:        ops([]Op{OpOverlay, OpCompileStructural}),
	ToolWatermark:   ops([]Op{OpOverlay, OpCompileStructural}),
	ToolRedact:      ops([]Op{OpOverlay, OpCompileStructural}),
	ToolPageNumbers: ops([]Op{OpOverlay, OpCompileStructural}),
}

// ParseTool validates a tool name.
func ParseTool(s string) (Tool, error) {
	t := Tool(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := profiles[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
	}
	return t, nil
}

// Allows reports whether t exposes op.
func (t Tool) Allows(op Op) bool { return profiles[t][op] }

// Ops lists the operations t exposes, sorted.
func (t Tool) Ops() []Op {
	out := make([]Op, 0, len(profiles[t]))
	for op := range profiles[t] {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t Tool) require(op Op) error {
	if !t.Allows(op) {
		return fmt.Errorf("%s in %s tool: %w", op, t, ErrOperationNotAllowed)
	}
	return nil
}
