package transcript

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ReasoningEntry is one thinking span within a message.
type ReasoningEntry struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	StartedAt *int64 `json:"startedAt,omitempty"`
	EndedAt   *int64 `json:"endedAt,omitempty"`
}

// StepPhase marks whether a step entry opened or closed the step.
type StepPhase string

const (
	StepPhaseStart  StepPhase = "start"
	StepPhaseFinish StepPhase = "finish"
)

// Step is one agent step boundary. Finish entries carry usage.
type Step struct {
	ID       string     `json:"id"`
	Phase    StepPhase  `json:"phase"`
	Snapshot string     `json:"snapshot,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	Cost     *float64   `json:"cost,omitempty"`
	Tokens   *TokenInfo `json:"tokens,omitempty"`
	Time     *TimeRange `json:"time,omitempty"`
}

type Patch struct {
	ID    string   `json:"id"`
	Hash  string   `json:"hash,omitempty"`
	Files []string `json:"files,omitempty"`
}

type Subtask struct {
	ID          string `json:"id"`
	Prompt      string `json:"prompt,omitempty"`
	Description string `json:"description,omitempty"`
	Agent       string `json:"agent,omitempty"`
}

type Retry struct {
	ID        string      `json:"id"`
	Attempt   int         `json:"attempt"`
	Error     *RetryError `json:"error,omitempty"`
	CreatedAt int64       `json:"createdAt,omitempty"`
}

// Message is the mutable accumulation unit, one per backend-assigned message
// id. Facet slices keep arrival order; tool calls additionally keep a keyed
// index so re-application merges in place instead of duplicating.
type Message struct {
	ID          string
	Role        Role
	ParentID    string
	CreatedAt   int64
	CompletedAt *int64

	Text           string
	Reasoning      []ReasoningEntry
	Files          []FileRef
	Steps          []Step
	Patches        []Patch
	Subtasks       []Subtask
	Retries        []Retry
	Agent          string
	Compacted      bool
	CompactionAuto bool

	toolOrder []string
	toolCalls map[string]*ToolCall

	arrival int
}

// ToolCall returns the call with the given id, if present.
func (m *Message) ToolCall(id string) (*ToolCall, bool) {
	c, ok := m.toolCalls[id]
	return c, ok
}

// ToolCalls returns the message's calls in arrival order.
func (m *Message) ToolCalls() []*ToolCall {
	out := make([]*ToolCall, 0, len(m.toolOrder))
	for _, id := range m.toolOrder {
		out = append(out, m.toolCalls[id])
	}
	return out
}

// TotalCost derives the message cost from its finished steps. Deriving on
// read keeps re-sent step parts from double counting.
func (m *Message) TotalCost() float64 {
	var cost float64
	for _, s := range m.Steps {
		if s.Phase == StepPhaseFinish && s.Cost != nil {
			cost += *s.Cost
		}
	}
	return cost
}

// TotalTokens derives token usage from finished steps, same rationale as
// TotalCost.
func (m *Message) TotalTokens() TokenInfo {
	var tokens TokenInfo
	for _, s := range m.Steps {
		if s.Phase == StepPhaseFinish && s.Tokens != nil {
			tokens.Add(*s.Tokens)
		}
	}
	return tokens
}

// Accumulator owns per-message state for one session. It performs no I/O,
// takes no locks, and assumes the caller serializes ApplyPart invocations
// (one ordered event source per session).
type Accumulator struct {
	messages map[string]*Message
	order    []string
	sink     DiagnosticSink
}

// NewAccumulator returns an empty accumulator. sink may be nil.
func NewAccumulator(sink DiagnosticSink) *Accumulator {
	return &Accumulator{
		messages: make(map[string]*Message),
		sink:     sink,
	}
}

func (a *Accumulator) report(d *Diagnostic) {
	if d != nil && a.sink != nil {
		a.sink(*d)
	}
}

// Message returns the accumulated message for id, if any.
func (a *Accumulator) Message(id string) (*Message, bool) {
	m, ok := a.messages[id]
	return m, ok
}

// Messages returns all messages in first-reference order.
func (a *Accumulator) Messages() []*Message {
	out := make([]*Message, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.messages[id])
	}
	return out
}

// Attach records the parent linking a message into its logical turn. The
// upstream envelope delivers it separately from parts.
func (a *Accumulator) Attach(messageID, parentID string) {
	if m, ok := a.messages[messageID]; ok {
		m.ParentID = parentID
	}
}

func (a *Accumulator) getOrCreate(messageID string, role Role, part Part) *Message {
	if m, ok := a.messages[messageID]; ok {
		return m
	}
	m := &Message{
		ID:        messageID,
		Role:      role,
		toolCalls: make(map[string]*ToolCall),
		arrival:   len(a.order),
	}
	if part.Time != nil {
		m.CreatedAt = part.Time.Start
	}
	a.messages[messageID] = m
	a.order = append(a.order, messageID)
	return m
}

// ApplyPart decodes one part and folds it into the message it addresses.
// The message is created on first reference. Malformed or unknown parts
// mutate nothing; tool status violations leave the prior call state intact.
func (a *Accumulator) ApplyPart(messageID string, role Role, part Part) {
	update := DecodePart(part)
	if update.Diag != nil {
		if update.Diag.MessageID == "" {
			update.Diag.MessageID = messageID
		}
		a.report(update.Diag)
	}
	if update.Kind == UpdateNone {
		return
	}

	m := a.getOrCreate(messageID, role, part)

	switch update.Kind {
	case UpdateText:
		// Text parts carry the cumulative value, so overwrite is the
		// idempotent application.
		m.Text = update.Text
		if update.TextEndedAt != nil {
			m.CompletedAt = update.TextEndedAt
		}

	case UpdateReasoning:
		a.upsertReasoning(m, update.Reasoning)

	case UpdateFile:
		a.upsertFile(m, update.File)

	case UpdateToolCall:
		a.upsertToolCall(m, part.ID, update.Tool)

	case UpdateToolResult:
		a.patchToolResult(m, part.ID, update.ToolResult)

	case UpdateStep:
		a.upsertStep(m, update.Step)

	case UpdatePatch:
		m.Patches = upsertByID(m.Patches, *update.Patch, func(p Patch) string { return p.ID })

	case UpdateSubtask:
		m.Subtasks = upsertByID(m.Subtasks, *update.Subtask, func(s Subtask) string { return s.ID })

	case UpdateRetry:
		m.Retries = upsertByID(m.Retries, *update.Retry, func(r Retry) string { return r.ID })

	case UpdateAgent:
		m.Agent = update.Agent

	case UpdateCompaction:
		m.Compacted = true
		m.CompactionAuto = update.CompactionAuto
	}
}

func (a *Accumulator) upsertReasoning(m *Message, entry *ReasoningEntry) {
	for i := range m.Reasoning {
		if m.Reasoning[i].ID == entry.ID {
			m.Reasoning[i] = *entry
			return
		}
	}
	m.Reasoning = append(m.Reasoning, *entry)
}

func (a *Accumulator) upsertFile(m *Message, ref *FileRef) {
	if ref.ID != "" {
		for i := range m.Files {
			if m.Files[i].ID == ref.ID {
				m.Files[i] = *ref
				return
			}
		}
	}
	m.Files = append(m.Files, *ref)
}

func (a *Accumulator) upsertToolCall(m *Message, partID string, in *ToolCall) {
	if existing, ok := m.toolCalls[in.ID]; ok {
		if !existing.Merge(in) {
			a.report(&Diagnostic{
				Code:      DiagRejectedTransition,
				MessageID: m.ID,
				PartID:    partID,
				Detail:    string(existing.Status) + " -> " + string(in.Status),
			})
		}
		return
	}
	m.toolCalls[in.ID] = in
	m.toolOrder = append(m.toolOrder, in.ID)
}

func (a *Accumulator) patchToolResult(m *Message, partID string, patch *ToolResultPatch) {
	existing, ok := m.toolCalls[patch.CallID]
	if !ok {
		// No safe merge target; drop the fragment.
		a.report(&Diagnostic{
			Code:      DiagOrphanToolResult,
			MessageID: m.ID,
			PartID:    partID,
			Detail:    "no tool call with id " + patch.CallID,
		})
		return
	}
	if !existing.Merge(&ToolCall{ID: patch.CallID, Status: ToolCompleted, Result: patch.Result}) {
		a.report(&Diagnostic{
			Code:      DiagRejectedTransition,
			MessageID: m.ID,
			PartID:    partID,
			Detail:    string(existing.Status) + " -> " + string(ToolCompleted),
		})
	}
}

// upsertStep de-duplicates by id keeping the most recent entry: a step may
// be re-sent with refined token counts before its phase closes.
func (a *Accumulator) upsertStep(m *Message, step *Step) {
	for i := range m.Steps {
		if m.Steps[i].ID == step.ID {
			m.Steps[i] = *step
			return
		}
	}
	m.Steps = append(m.Steps, *step)
}

func upsertByID[T any](items []T, item T, id func(T) string) []T {
	key := id(item)
	for i := range items {
		if id(items[i]) == key {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}
