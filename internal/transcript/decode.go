package transcript

// UpdateKind names the message facet a decoded part mutates.
type UpdateKind int

const (
	UpdateNone UpdateKind = iota
	UpdateText
	UpdateReasoning
	UpdateFile
	UpdateToolCall
	UpdateToolResult
	UpdateStep
	UpdatePatch
	UpdateSubtask
	UpdateAgent
	UpdateRetry
	UpdateCompaction
)

// Update is the normalized outcome of decoding one part: exactly which facet
// to touch plus the payload for it. Kind is UpdateNone when the part was
// unknown or malformed; Diag then carries the reason.
type Update struct {
	Kind UpdateKind

	Text           string
	TextEndedAt    *int64
	Reasoning      *ReasoningEntry
	File           *FileRef
	Tool           *ToolCall
	ToolResult     *ToolResultPatch
	Step           *Step
	Patch          *Patch
	Subtask        *Subtask
	Agent          string
	Retry          *Retry
	CompactionAuto bool

	Diag *Diagnostic
}

// ToolResultPatch is a legacy tool-result fragment: it carries no lifecycle
// state of its own and must be merged against an existing call by id.
type ToolResultPatch struct {
	CallID string
	Result string
}

func noop(code DiagCode, p Part, detail string) Update {
	return Update{Kind: UpdateNone, Diag: &Diagnostic{
		Code:      code,
		MessageID: p.MessageID,
		PartID:    p.ID,
		Detail:    detail,
	}}
}

// DecodePart classifies one raw part. The switch is exhaustive over the
// closed kind set; anything else yields a no-op update with a diagnostic,
// never a fault.
func DecodePart(p Part) Update {
	switch p.Type {
	case PartText:
		var end *int64
		if p.Time != nil {
			end = p.Time.End
		}
		return Update{Kind: UpdateText, Text: p.Text, TextEndedAt: end}

	case PartReasoning:
		if p.ID == "" {
			return noop(DiagMalformedPart, p, "reasoning part without id")
		}
		entry := &ReasoningEntry{ID: p.ID, Text: p.Text}
		if p.Time != nil {
			entry.StartedAt = &p.Time.Start
			entry.EndedAt = p.Time.End
		}
		return Update{Kind: UpdateReasoning, Reasoning: entry}

	case PartFile:
		if p.URL == "" {
			return noop(DiagMalformedPart, p, "file part without url")
		}
		return Update{Kind: UpdateFile, File: &FileRef{
			ID:       p.ID,
			Mime:     p.Mime,
			URL:      p.URL,
			Filename: p.Filename,
			Source:   p.Source,
		}}

	case PartTool:
		if p.CallID == "" {
			return noop(DiagMalformedPart, p, "tool part without callID")
		}
		if p.State == nil {
			return noop(DiagMalformedPart, p, "tool part without state")
		}
		return Update{Kind: UpdateToolCall, Tool: toolFromState(p.CallID, p.Tool, p.State)}

	case PartToolInvocation:
		if p.ToolInvocation == nil || p.ToolInvocation.ToolCallID == "" {
			return noop(DiagMalformedPart, p, "tool-invocation part without call id")
		}
		return Update{Kind: UpdateToolCall, Tool: toolFromInvocation(p.ToolInvocation)}

	case PartToolResult:
		if p.CallID == "" {
			return noop(DiagMalformedPart, p, "tool-result part without callID")
		}
		result := ""
		if p.Result != nil {
			result = *p.Result
		}
		return Update{Kind: UpdateToolResult, ToolResult: &ToolResultPatch{
			CallID: p.CallID,
			Result: result,
		}}

	case PartStepStart:
		if p.ID == "" {
			return noop(DiagMalformedPart, p, "step-start part without id")
		}
		return Update{Kind: UpdateStep, Step: &Step{
			ID:       p.ID,
			Phase:    StepPhaseStart,
			Snapshot: p.Snapshot,
			Time:     p.Time,
		}}

	case PartStepFinish:
		if p.ID == "" {
			return noop(DiagMalformedPart, p, "step-finish part without id")
		}
		return Update{Kind: UpdateStep, Step: &Step{
			ID:       p.ID,
			Phase:    StepPhaseFinish,
			Snapshot: p.Snapshot,
			Reason:   p.Reason,
			Cost:     p.Cost,
			Tokens:   p.Tokens,
			Time:     p.Time,
		}}

	case PartPatch:
		if p.ID == "" {
			return noop(DiagMalformedPart, p, "patch part without id")
		}
		return Update{Kind: UpdatePatch, Patch: &Patch{ID: p.ID, Hash: p.Hash, Files: p.Files}}

	case PartSubtask:
		if p.ID == "" {
			return noop(DiagMalformedPart, p, "subtask part without id")
		}
		return Update{Kind: UpdateSubtask, Subtask: &Subtask{
			ID:          p.ID,
			Prompt:      p.Prompt,
			Description: p.Description,
			Agent:       p.Agent,
		}}

	case PartAgent:
		if p.Name == "" {
			return noop(DiagMalformedPart, p, "agent part without name")
		}
		return Update{Kind: UpdateAgent, Agent: p.Name}

	case PartRetry:
		if p.ID == "" {
			return noop(DiagMalformedPart, p, "retry part without id")
		}
		retry := &Retry{ID: p.ID, Attempt: p.Attempt, Error: p.Error}
		if p.Time != nil {
			retry.CreatedAt = p.Time.Start
		}
		return Update{Kind: UpdateRetry, Retry: retry}

	case PartCompaction:
		return Update{Kind: UpdateCompaction, CompactionAuto: p.Auto}

	default:
		return noop(DiagUnknownPart, p, "unknown part kind "+string(p.Type))
	}
}

func toolFromState(callID, name string, st *ToolState) *ToolCall {
	call := &ToolCall{
		ID:          callID,
		Name:        name,
		Status:      st.Status,
		Args:        st.Input,
		ArgsRaw:     st.Raw,
		Result:      st.Output,
		Error:       st.Error,
		Title:       st.Title,
		Attachments: st.Attachments,
		Metadata:    st.Metadata,
	}
	if call.Status == "" {
		call.Status = ToolPending
	}
	if st.Time != nil {
		start := st.Time.Start
		call.StartedAt = &start
		call.EndedAt = st.Time.End
	}
	return call
}

// toolFromInvocation maps the legacy shape onto the current lifecycle:
// state=="running" is running, a defined result with no explicit running
// state is completed, and neither means the call is still pending.
func toolFromInvocation(inv *ToolInvocation) *ToolCall {
	call := &ToolCall{
		ID:     inv.ToolCallID,
		Name:   inv.ToolName,
		Args:   inv.Args,
		Status: ToolPending,
	}
	switch {
	case inv.State == "running":
		call.Status = ToolRunning
	case inv.Result != nil:
		call.Status = ToolCompleted
		call.Result = *inv.Result
	}
	return call
}
