package transcript

// PartKind discriminates the streamed part union. The set is closed: the
// decoder switches exhaustively over it and anything else is reported as an
// unknown part.
type PartKind string

const (
	PartText       PartKind = "text"
	PartReasoning  PartKind = "reasoning"
	PartFile       PartKind = "file"
	PartTool       PartKind = "tool"
	PartStepStart  PartKind = "step-start"
	PartStepFinish PartKind = "step-finish"
	PartPatch      PartKind = "patch"
	PartSubtask    PartKind = "subtask"
	PartAgent      PartKind = "agent"
	PartRetry      PartKind = "retry"
	PartCompaction PartKind = "compaction"

	// Legacy tool shapes still emitted by older agent builds.
	PartToolInvocation PartKind = "tool-invocation"
	PartToolResult     PartKind = "tool-result"
)

// Part is one fragment of the agent's streaming protocol. It is a flat
// tagged union keyed by Type; only the fields for the matching kind are
// populated.
type Part struct {
	ID        string   `json:"id"`
	MessageID string   `json:"messageID,omitempty"`
	SessionID string   `json:"sessionID,omitempty"`
	Type      PartKind `json:"type"`

	// text / reasoning
	Text string     `json:"text,omitempty"`
	Time *TimeRange `json:"time,omitempty"`

	// tool (current shape)
	Tool   string     `json:"tool,omitempty"`
	CallID string     `json:"callID,omitempty"`
	State  *ToolState `json:"state,omitempty"`

	// tool-invocation (legacy shape)
	ToolInvocation *ToolInvocation `json:"toolInvocation,omitempty"`
	// tool-result (legacy shape) reuses CallID
	Result *string `json:"result,omitempty"`

	// file
	Mime     string      `json:"mime,omitempty"`
	URL      string      `json:"url,omitempty"`
	Filename string      `json:"filename,omitempty"`
	Source   *FileSource `json:"source,omitempty"`

	// step-start / step-finish
	Snapshot string     `json:"snapshot,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	Cost     *float64   `json:"cost,omitempty"`
	Tokens   *TokenInfo `json:"tokens,omitempty"`

	// patch
	Hash  string   `json:"hash,omitempty"`
	Files []string `json:"files,omitempty"`

	// subtask
	Prompt      string `json:"prompt,omitempty"`
	Description string `json:"description,omitempty"`
	Agent       string `json:"agent,omitempty"`

	// agent
	Name string `json:"name,omitempty"`

	// retry
	Attempt int         `json:"attempt,omitempty"`
	Error   *RetryError `json:"error,omitempty"`

	// compaction
	Auto bool `json:"auto,omitempty"`
}

// ToolState carries the lifecycle payload of a tool part. Raw holds the
// partial argument JSON while the call is still pending.
type ToolState struct {
	Status      ToolStatus     `json:"status"`
	Input       map[string]any `json:"input,omitempty"`
	Raw         string         `json:"raw,omitempty"`
	Output      string         `json:"output,omitempty"`
	Title       string         `json:"title,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Attachments []FileRef      `json:"attachments,omitempty"`
	Time        *TimeRange     `json:"time,omitempty"`
}

// ToolInvocation is the legacy tool part payload.
type ToolInvocation struct {
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args,omitempty"`
	State      string         `json:"state,omitempty"`
	Result     *string        `json:"result,omitempty"`
}

// TimeRange tracks start/end in epoch milliseconds. End is nil while the
// span is still open.
type TimeRange struct {
	Start int64  `json:"start"`
	End   *int64 `json:"end,omitempty"`
}

type TokenInfo struct {
	Input     int       `json:"input"`
	Output    int       `json:"output"`
	Reasoning int       `json:"reasoning"`
	Cache     CacheInfo `json:"cache"`
}

type CacheInfo struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

// Add accumulates o into t field by field.
func (t *TokenInfo) Add(o TokenInfo) {
	t.Input += o.Input
	t.Output += o.Output
	t.Reasoning += o.Reasoning
	t.Cache.Read += o.Cache.Read
	t.Cache.Write += o.Cache.Write
}

type FileSource struct {
	Type string `json:"type,omitempty"`
	Path string `json:"path,omitempty"`
}

// FileRef is a file carried by a file part or a completed tool state.
type FileRef struct {
	ID       string      `json:"id,omitempty"`
	Mime     string      `json:"mime,omitempty"`
	URL      string      `json:"url,omitempty"`
	Filename string      `json:"filename,omitempty"`
	Source   *FileSource `json:"source,omitempty"`
}

type RetryError struct {
	Name        string `json:"name,omitempty"`
	Message     string `json:"message,omitempty"`
	StatusCode  *int   `json:"statusCode,omitempty"`
	IsRetryable *bool  `json:"isRetryable,omitempty"`
}
