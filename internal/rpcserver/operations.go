package rpcserver

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Operation identifies one RPC tool.
type Operation int

const (
	OpAccountKPI Operation = iota + 1
	OpDetectSuspicious
	OpScoreAccount
	OpSuggestParams
	OpOverview

	opEnd
)

var operationNames = map[Operation]string{
	OpAccountKPI:       "get_account_kpi",
	OpDetectSuspicious: "detect_suspicious",
	OpScoreAccount:     "score_account",
	OpSuggestParams:    "suggest_detection_params",
	OpOverview:         "get_overview",
}

// Operations lists every operation in declaration order.
func Operations() []Operation {
	ops := make([]Operation, 0, int(opEnd)-1)
	for op := OpAccountKPI; op < opEnd; op++ {
		ops = append(ops, op)
	}
	return ops
}

// String returns the tool name clients call.
func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

type operationEntry struct {
	tool    mcp.Tool
	handler server.ToolHandlerFunc
}

// operationTable maps each operation to its tool definition and handler.
func (h *Handlers) operationTable() map[Operation]operationEntry {
	return map[Operation]operationEntry{
		OpAccountKPI:       {ToolAccountKPI, h.HandleAccountKPI},
		OpDetectSuspicious: {ToolDetectSuspicious, h.HandleDetectSuspicious},
		OpScoreAccount:     {ToolScoreAccount, h.HandleScoreAccount},
		OpSuggestParams:    {ToolSuggestParams, h.HandleSuggestParams},
		OpOverview:         {ToolOverview, h.HandleOverview},
	}
}

// validateTable checks that every operation has exactly one entry whose tool
// name matches the operation name.
func validateTable(table map[Operation]operationEntry) error {
	for _, op := range Operations() {
		entry, ok := table[op]
		if !ok {
			return fmt.Errorf("operation %s has no handler", op)
		}
		if entry.handler == nil {
			return fmt.Errorf("operation %s has a nil handler", op)
		}
		if entry.tool.Name != op.String() {
			return fmt.Errorf("operation %s is bound to tool %q", op, entry.tool.Name)
		}
	}
	if len(table) != len(Operations()) {
		return fmt.Errorf("operation table has %d entries, want %d", len(table), len(Operations()))
	}
	return nil
}
