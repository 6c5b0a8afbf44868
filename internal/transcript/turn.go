package transcript

import "sort"

// BlockKind names a merged content block.
type BlockKind string

const (
	BlockText      BlockKind = "text"
	BlockReasoning BlockKind = "reasoning"
	BlockTool      BlockKind = "tool"
	BlockFile      BlockKind = "file"
)

// Block is one unit of renderable turn content. Exactly one payload field
// matching Kind is set.
type Block struct {
	Kind      BlockKind
	Text      string
	Reasoning *ReasoningEntry
	Tool      *ToolCall
	File      *FileRef
}

// TurnStatus is derived purely from tool-call terminality; no timers.
type TurnStatus string

const (
	TurnRunning  TurnStatus = "running"
	TurnComplete TurnStatus = "complete"
)

// Turn is the merge of one or more messages forming one logical
// conversational step. It is derived on demand and never stored.
type Turn struct {
	ID        string
	Role      Role
	CreatedAt int64
	Blocks    []Block

	Cost           float64
	Tokens         TokenInfo
	Agent          string
	Compacted      bool
	CompactionAuto bool
	Steps          []Step
	Patches        []Patch
	Subtasks       []Subtask
	Retries        []Retry

	// Last constituent message, for liveness signals.
	Last *Message
}

// Status reports running while any merged tool call is non-terminal.
func (t *Turn) Status() TurnStatus {
	for _, b := range t.Blocks {
		if b.Kind == BlockTool && !b.Tool.Status.Terminal() {
			return TurnRunning
		}
	}
	return TurnComplete
}

// GroupTurns partitions messages into turns and merges each group.
//
// Grouping: user messages are singleton groups; assistant messages group by
// parent id when they have one, otherwise they stand alone. Turn order is
// the first-seen order of group keys, deliberately not re-sorted by
// timestamp so the transcript stays stable under streaming arrival.
func GroupTurns(messages []*Message) []*Turn {
	var keys []string
	groups := make(map[string][]*Message)

	for _, m := range messages {
		var key string
		switch {
		case m.Role == RoleUser:
			key = "user/" + m.ID
		case m.ParentID != "":
			key = "turn/" + m.ParentID
		default:
			key = "msg/" + m.ID
		}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], m)
	}

	turns := make([]*Turn, 0, len(keys))
	for _, key := range keys {
		turns = append(turns, mergeGroup(groups[key]))
	}
	return turns
}

// mergeGroup merges one group into a turn. Constituents are ordered by
// createdAt with arrival order breaking ties (and standing in entirely when
// no timestamps are present), then each contributes content in the fixed
// sub-order reasoning, text, tool calls, files — reconstructing the
// think/act/continue narrative across backend message boundaries.
func mergeGroup(group []*Message) *Turn {
	sorted := make([]*Message, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt < sorted[j].CreatedAt
		}
		return sorted[i].arrival < sorted[j].arrival
	})

	first := sorted[0]
	turn := &Turn{
		ID:        first.ID,
		Role:      first.Role,
		CreatedAt: first.CreatedAt,
		Last:      sorted[len(sorted)-1],
	}

	for _, m := range sorted {
		for i := range m.Reasoning {
			turn.Blocks = append(turn.Blocks, Block{Kind: BlockReasoning, Reasoning: &m.Reasoning[i]})
		}
		if m.Text != "" {
			turn.Blocks = append(turn.Blocks, Block{Kind: BlockText, Text: m.Text})
		}
		for _, call := range m.ToolCalls() {
			turn.Blocks = append(turn.Blocks, Block{Kind: BlockTool, Tool: call})
		}
		for i := range m.Files {
			turn.Blocks = append(turn.Blocks, Block{Kind: BlockFile, File: &m.Files[i]})
		}

		// Metrics are summed exactly once per contributing message, from
		// per-message derivations, never from merged output.
		turn.Cost += m.TotalCost()
		turn.Tokens.Add(m.TotalTokens())

		turn.Steps = append(turn.Steps, m.Steps...)
		turn.Patches = append(turn.Patches, m.Patches...)
		turn.Subtasks = append(turn.Subtasks, m.Subtasks...)
		turn.Retries = append(turn.Retries, m.Retries...)

		if m.Agent != "" {
			turn.Agent = m.Agent
		}
		if m.Compacted {
			turn.Compacted = true
			turn.CompactionAuto = turn.CompactionAuto || m.CompactionAuto
		}
	}

	// A renderable unit must always exist.
	if len(turn.Blocks) == 0 {
		turn.Blocks = append(turn.Blocks, Block{Kind: BlockText, Text: ""})
	}
	return turn
}
