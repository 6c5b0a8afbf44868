package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockOrderWithinMessage(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "r1", Type: PartReasoning, Text: "hmm"})
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "t1", Type: PartText, Text: "checking now"})
	acc.ApplyPart("m1", RoleAssistant, Part{
		ID: "p1", Type: PartTool, CallID: "c1", Tool: "grep",
		State: &ToolState{Status: ToolRunning},
	})

	turns := GroupTurns(acc.Messages())
	require.Len(t, turns, 1)
	blocks := turns[0].Blocks
	require.Len(t, blocks, 3)
	assert.Equal(t, BlockReasoning, blocks[0].Kind)
	assert.Equal(t, BlockText, blocks[1].Kind)
	assert.Equal(t, BlockTool, blocks[2].Kind)
}

func TestGroupingMergesParentLinkedMessages(t *testing.T) {
	acc := NewAccumulator(nil)

	acc.ApplyPart("m1", RoleAssistant, Part{ID: "t1", Type: PartText, Text: "Let me check", Time: &TimeRange{Start: 1000}})
	acc.ApplyPart("m1", RoleAssistant, Part{
		ID: "p1", Type: PartTool, CallID: "a", Tool: "read",
		State: &ToolState{Status: ToolCompleted, Output: "contents"},
	})
	acc.Attach("m1", "X")

	acc.ApplyPart("m2", RoleAssistant, Part{ID: "t2", Type: PartText, Text: "Based on results, done", Time: &TimeRange{Start: 2000}})
	acc.Attach("m2", "X")

	turns := GroupTurns(acc.Messages())
	require.Len(t, turns, 1, "messages sharing a parent id form one turn")

	turn := turns[0]
	assert.Equal(t, "m1", turn.ID, "turn identity comes from the first sorted message")
	assert.Equal(t, int64(1000), turn.CreatedAt)

	blocks := turn.Blocks
	require.Len(t, blocks, 3)
	assert.Equal(t, "Let me check", blocks[0].Text)
	assert.Equal(t, BlockTool, blocks[1].Kind)
	assert.Equal(t, "a", blocks[1].Tool.ID)
	assert.Equal(t, "Based on results, done", blocks[2].Text)
}

func TestUserMessagesAreSingletonGroups(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.ApplyPart("u1", RoleUser, Part{ID: "t1", Type: PartText, Text: "fix the bug"})
	acc.ApplyPart("u2", RoleUser, Part{ID: "t2", Type: PartText, Text: "and add a test"})
	acc.Attach("u1", "X")
	acc.Attach("u2", "X")

	turns := GroupTurns(acc.Messages())
	require.Len(t, turns, 2, "user messages never merge, parent id or not")
	assert.Equal(t, RoleUser, turns[0].Role)
}

func TestTurnOrderIsFirstSeenNotTimestamp(t *testing.T) {
	acc := NewAccumulator(nil)
	// Later-created message arrives first; group order must follow arrival.
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "t1", Type: PartText, Text: "second in time", Time: &TimeRange{Start: 5000}})
	acc.ApplyPart("m2", RoleAssistant, Part{ID: "t2", Type: PartText, Text: "first in time", Time: &TimeRange{Start: 1000}})

	turns := GroupTurns(acc.Messages())
	require.Len(t, turns, 2)
	assert.Equal(t, "m1", turns[0].ID)
	assert.Equal(t, "m2", turns[1].ID)
}

func TestIntraGroupSortByCreatedAt(t *testing.T) {
	acc := NewAccumulator(nil)
	// Arrival order m2 then m1, but m1 was created earlier.
	acc.ApplyPart("m2", RoleAssistant, Part{ID: "t2", Type: PartText, Text: "later", Time: &TimeRange{Start: 2000}})
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "t1", Type: PartText, Text: "earlier", Time: &TimeRange{Start: 1000}})
	acc.Attach("m1", "X")
	acc.Attach("m2", "X")

	turns := GroupTurns(acc.Messages())
	require.Len(t, turns, 1)
	blocks := turns[0].Blocks
	require.Len(t, blocks, 2)
	assert.Equal(t, "earlier", blocks[0].Text)
	assert.Equal(t, "later", blocks[1].Text)
	assert.Equal(t, "m1", turns[0].ID)
}

func TestMissingTimestampsFallBackToArrivalOrder(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "t1", Type: PartText, Text: "one"})
	acc.ApplyPart("m2", RoleAssistant, Part{ID: "t2", Type: PartText, Text: "two"})
	acc.Attach("m1", "X")
	acc.Attach("m2", "X")

	turns := GroupTurns(acc.Messages())
	require.Len(t, turns, 1)
	assert.Equal(t, "one", turns[0].Blocks[0].Text)
	assert.Equal(t, "two", turns[0].Blocks[1].Text)
}

func TestTokenAndCostAggregation(t *testing.T) {
	acc := NewAccumulator(nil)
	costA, costB := 0.002, 0.003

	acc.ApplyPart("m1", RoleAssistant, Part{
		ID: "s1", Type: PartStepFinish, Cost: &costA,
		Tokens: &TokenInfo{Input: 10, Output: 5},
	})
	acc.Attach("m1", "X")
	acc.ApplyPart("m2", RoleAssistant, Part{
		ID: "s2", Type: PartStepFinish, Cost: &costB,
		Tokens: &TokenInfo{Input: 7, Output: 3},
	})
	acc.Attach("m2", "X")

	turns := GroupTurns(acc.Messages())
	require.Len(t, turns, 1)
	assert.Equal(t, 17, turns[0].Tokens.Input)
	assert.Equal(t, 8, turns[0].Tokens.Output)
	assert.InDelta(t, 0.005, turns[0].Cost, 1e-9)
}

func TestEmptyGroupRendersPlaceholderBlock(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.ApplyPart("m1", RoleAssistant, Part{ID: "s1", Type: PartStepStart, Snapshot: "abc"})

	turns := GroupTurns(acc.Messages())
	require.Len(t, turns, 1)
	require.Len(t, turns[0].Blocks, 1)
	assert.Equal(t, BlockText, turns[0].Blocks[0].Kind)
	assert.Empty(t, turns[0].Blocks[0].Text)
}

func TestTurnStatusFromToolTerminality(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.ApplyPart("m1", RoleAssistant, Part{
		ID: "p1", Type: PartTool, CallID: "c1", Tool: "bash",
		State: &ToolState{Status: ToolRunning},
	})

	turns := GroupTurns(acc.Messages())
	require.Len(t, turns, 1)
	assert.Equal(t, TurnRunning, turns[0].Status())

	acc.ApplyPart("m1", RoleAssistant, Part{
		ID: "p2", Type: PartTool, CallID: "c1",
		State: &ToolState{Status: ToolCompleted, Output: "ok"},
	})
	turns = GroupTurns(acc.Messages())
	assert.Equal(t, TurnComplete, turns[0].Status())
}
