package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectDiags(diags *[]Diagnostic) DiagnosticSink {
	return func(d Diagnostic) { *diags = append(*diags, d) }
}

func TestApplyTextIsIdempotent(t *testing.T) {
	acc := NewAccumulator(nil)
	part := Part{ID: "p1", Type: PartText, Text: "Hello, I'll take a look."}

	acc.ApplyPart("m1", RoleAssistant, part)
	acc.ApplyPart("m1", RoleAssistant, part)

	msg, ok := acc.Message("m1")
	require.True(t, ok)
	assert.Equal(t, "Hello, I'll take a look.", msg.Text)
}

func TestTextCarriesCumulativeValue(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "p1", Type: PartText, Text: "Let me"})
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "p1", Type: PartText, Text: "Let me check the file"})

	msg, _ := acc.Message("m1")
	assert.Equal(t, "Let me check the file", msg.Text)
}

func TestToolCallUpsertKeepsArrivalOrder(t *testing.T) {
	acc := NewAccumulator(nil)
	for _, id := range []string{"c3", "c1", "c2"} {
		acc.ApplyPart("m1", RoleAssistant, Part{
			ID: "p-" + id, Type: PartTool, CallID: id, Tool: "bash",
			State: &ToolState{Status: ToolRunning},
		})
	}

	msg, _ := acc.Message("m1")
	calls := msg.ToolCalls()
	require.Len(t, calls, 3)
	assert.Equal(t, "c3", calls[0].ID)
	assert.Equal(t, "c1", calls[1].ID)
	assert.Equal(t, "c2", calls[2].ID)
}

func TestToolCallReapplyMergesInPlace(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.ApplyPart("m1", RoleAssistant, Part{
		ID: "p1", Type: PartTool, CallID: "c1", Tool: "read",
		State: &ToolState{Status: ToolRunning, Title: "Reading main.go"},
	})
	acc.ApplyPart("m1", RoleAssistant, Part{
		ID: "p2", Type: PartTool, CallID: "c1",
		State: &ToolState{Status: ToolCompleted, Output: "package main"},
	})

	msg, _ := acc.Message("m1")
	require.Len(t, msg.ToolCalls(), 1, "re-application of a known id must never duplicate")
	call, ok := msg.ToolCall("c1")
	require.True(t, ok)
	assert.Equal(t, ToolCompleted, call.Status)
	assert.Equal(t, "package main", call.Result)
	assert.Equal(t, "Reading main.go", call.Title)
}

func TestBackwardTransitionRejectedWithDiagnostic(t *testing.T) {
	var diags []Diagnostic
	acc := NewAccumulator(collectDiags(&diags))

	for _, s := range []ToolStatus{ToolPending, ToolRunning, ToolCompleted} {
		acc.ApplyPart("m1", RoleAssistant, Part{
			ID: "p1", Type: PartTool, CallID: "c1", Tool: "bash",
			State: &ToolState{Status: s},
		})
	}
	// Late-arriving stale snapshot must not clobber the terminal state.
	acc.ApplyPart("m1", RoleAssistant, Part{
		ID: "p2", Type: PartTool, CallID: "c1",
		State: &ToolState{Status: ToolPending},
	})

	msg, _ := acc.Message("m1")
	call, _ := msg.ToolCall("c1")
	assert.Equal(t, ToolCompleted, call.Status)
	require.Len(t, diags, 1)
	assert.Equal(t, DiagRejectedTransition, diags[0].Code)
}

func TestOrphanToolResultDropped(t *testing.T) {
	var diags []Diagnostic
	acc := NewAccumulator(collectDiags(&diags))

	result := "orphaned"
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "p1", Type: PartToolResult, CallID: "missing", Result: &result})

	msg, ok := acc.Message("m1")
	require.True(t, ok)
	assert.Empty(t, msg.ToolCalls())
	require.Len(t, diags, 1)
	assert.Equal(t, DiagOrphanToolResult, diags[0].Code)
}

func TestUnknownPartKindIsNoOp(t *testing.T) {
	var diags []Diagnostic
	acc := NewAccumulator(collectDiags(&diags))

	acc.ApplyPart("m1", RoleAssistant, Part{ID: "p1", Type: PartKind("hologram")})

	_, ok := acc.Message("m1")
	assert.False(t, ok, "unknown parts must not create messages")
	require.Len(t, diags, 1)
	assert.Equal(t, DiagUnknownPart, diags[0].Code)
}

func TestMalformedPartIsNoOp(t *testing.T) {
	var diags []Diagnostic
	acc := NewAccumulator(collectDiags(&diags))

	// tool part with no callID
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "p1", Type: PartTool, State: &ToolState{Status: ToolRunning}})
	// file part with no url
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "p2", Type: PartFile, Filename: "a.png"})

	_, ok := acc.Message("m1")
	assert.False(t, ok)
	require.Len(t, diags, 2)
	assert.Equal(t, DiagMalformedPart, diags[0].Code)
	assert.Equal(t, DiagMalformedPart, diags[1].Code)
}

func TestStepDeduplicatedByID(t *testing.T) {
	acc := NewAccumulator(nil)
	cost1, cost2 := 0.001, 0.0025

	acc.ApplyPart("m1", RoleAssistant, Part{ID: "s1", Type: PartStepStart, Snapshot: "abc"})
	acc.ApplyPart("m1", RoleAssistant, Part{
		ID: "s2", Type: PartStepFinish, Reason: "tool-use", Cost: &cost1,
		Tokens: &TokenInfo{Input: 10, Output: 5},
	})
	// refined re-send of the same finish step
	acc.ApplyPart("m1", RoleAssistant, Part{
		ID: "s2", Type: PartStepFinish, Reason: "tool-use", Cost: &cost2,
		Tokens: &TokenInfo{Input: 12, Output: 6},
	})

	msg, _ := acc.Message("m1")
	require.Len(t, msg.Steps, 2)
	assert.Equal(t, StepPhaseStart, msg.Steps[0].Phase)
	assert.Equal(t, cost2, *msg.Steps[1].Cost)
	assert.Equal(t, cost2, msg.TotalCost(), "refined steps must not double count")
	assert.Equal(t, TokenInfo{Input: 12, Output: 6}, msg.TotalTokens())
}

func TestReasoningReapplyUpdatesInPlace(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "r1", Type: PartReasoning, Text: "thinking"})
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "r1", Type: PartReasoning, Text: "thinking harder"})
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "r2", Type: PartReasoning, Text: "done"})

	msg, _ := acc.Message("m1")
	require.Len(t, msg.Reasoning, 2)
	assert.Equal(t, "thinking harder", msg.Reasoning[0].Text)
	assert.Equal(t, "done", msg.Reasoning[1].Text)
}

func TestAgentRetryCompactionFacets(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "a1", Type: PartAgent, Name: "build"})
	acc.ApplyPart("m1", RoleAssistant, Part{
		ID: "rt1", Type: PartRetry, Attempt: 2,
		Error: &RetryError{Name: "overloaded", Message: "try again"},
		Time:  &TimeRange{Start: 1700000000000},
	})
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "cp1", Type: PartCompaction, Auto: true})

	msg, _ := acc.Message("m1")
	assert.Equal(t, "build", msg.Agent)
	require.Len(t, msg.Retries, 1)
	assert.Equal(t, 2, msg.Retries[0].Attempt)
	assert.Equal(t, int64(1700000000000), msg.Retries[0].CreatedAt)
	assert.True(t, msg.Compacted)
	assert.True(t, msg.CompactionAuto)
}
