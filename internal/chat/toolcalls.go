package chat

import (
	"encoding/json"
	"fmt"

	"github.com/kurious/kurio/internal/model"
)

// Tool-call record statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
)

// ToolCallRecord is one reconciled tool invocation: the request merged
// with its result by correlation id. Records whose result never arrived
// stay in the running state.
type ToolCallRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Input  any    `json:"input,omitempty"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
}

// ReconcileToolCalls builds one record per distinct tool invocation from
// the full ordered message sequence of a turn. Requests are collected
// first (last write wins on duplicate correlation ids, insertion order
// preserved); results are then merged in by correlation id. Results with
// no matching request are ignored.
func ReconcileToolCalls(msgs []model.Message) []ToolCallRecord {
	var order []string
	records := make(map[string]*ToolCallRecord)
	synthesized := 0

	for _, msg := range msgs {
		for _, tc := range msg.ToolCalls {
			id := tc.ID
			if id == "" {
				synthesized++
				id = fmt.Sprintf("tool-%d", synthesized)
			}
			name := tc.Function.Name
			if name == "" {
				name = tc.Tool
			}
			if name == "" {
				name = "tool"
			}
			if _, seen := records[id]; !seen {
				order = append(order, id)
			}
			records[id] = &ToolCallRecord{
				ID:     id,
				Name:   name,
				Input:  parseArguments(tc.Function.Arguments),
				Status: StatusRunning,
			}
		}
	}

	for _, msg := range msgs {
		if msg.ToolCallID == "" {
			continue
		}
		rec, ok := records[msg.ToolCallID]
		if !ok {
			continue
		}
		rec.Output = FlattenContent(msg.Content)
		rec.Status = StatusCompleted
	}

	out := make([]ToolCallRecord, 0, len(order))
	for _, id := range order {
		out = append(out, *records[id])
	}
	return out
}

// parseArguments decodes a tool call's JSON argument payload; payloads
// that are not valid JSON are kept as raw strings.
func parseArguments(args string) any {
	if args == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(args), &v); err != nil {
		return args
	}
	return v
}
