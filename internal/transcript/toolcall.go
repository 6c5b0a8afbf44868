package transcript

// ToolStatus is the lifecycle state of one tool invocation.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// statusRank orders statuses for the monotonic transition guard:
// pending < running < completed|error. The two terminal states share a rank
// so neither can replace the other.
var statusRank = map[ToolStatus]int{
	ToolPending:   0,
	ToolRunning:   1,
	ToolCompleted: 2,
	ToolError:     2,
}

// Known reports whether s is a member of the lifecycle.
func (s ToolStatus) Known() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether s admits no further forward movement.
func (s ToolStatus) Terminal() bool {
	return s == ToolCompleted || s == ToolError
}

// CanTransition is the (current, incoming) transition table. Same-status
// refinement is always allowed; otherwise the incoming status must rank
// strictly forward and the current status must not be terminal.
func CanTransition(current, incoming ToolStatus) bool {
	if !incoming.Known() {
		return false
	}
	if incoming == current {
		return true
	}
	if current.Terminal() {
		return false
	}
	return statusRank[incoming] > statusRank[current]
}

// ToolCall tracks one tool invocation inside a message.
type ToolCall struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ArgsRaw     string         `json:"argsRaw,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
	Status      ToolStatus     `json:"status"`
	Result      string         `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Title       string         `json:"title,omitempty"`
	StartedAt   *int64         `json:"startedAt,omitempty"`
	EndedAt     *int64         `json:"endedAt,omitempty"`
	Attachments []FileRef      `json:"attachments,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Merge applies in onto c with last-write-wins per field. A status change is
// gated through CanTransition; when rejected, no field of c is touched and
// Merge reports false. The raw partial-argument buffer is dropped as soon as
// the call leaves pending.
func (c *ToolCall) Merge(in *ToolCall) bool {
	if in.Status != "" && !CanTransition(c.Status, in.Status) {
		return false
	}
	if in.Status != "" {
		c.Status = in.Status
	}
	if in.Name != "" {
		c.Name = in.Name
	}
	if in.Args != nil {
		c.Args = in.Args
	}
	if in.ArgsRaw != "" {
		c.ArgsRaw = in.ArgsRaw
	}
	if in.Result != "" {
		c.Result = in.Result
	}
	if in.Error != "" {
		c.Error = in.Error
	}
	if in.Title != "" {
		c.Title = in.Title
	}
	if in.StartedAt != nil {
		c.StartedAt = in.StartedAt
	}
	if in.EndedAt != nil {
		c.EndedAt = in.EndedAt
	}
	if in.Attachments != nil {
		c.Attachments = in.Attachments
	}
	if in.Metadata != nil {
		c.Metadata = in.Metadata
	}
	if c.Status != ToolPending {
		c.ArgsRaw = ""
	}
	return true
}
