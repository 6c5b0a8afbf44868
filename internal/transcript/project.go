package transcript

import "strings"

// ProjectedTurn is the framework-neutral payload handed to the rendering
// collaborator. Every field is representable in plain JSON; times are epoch
// milliseconds.
type ProjectedTurn struct {
	ID        string           `json:"id"`
	Role      string           `json:"role"`
	CreatedAt int64            `json:"createdAt"`
	Status    string           `json:"status"`
	Blocks    []ProjectedBlock `json:"blocks"`
	Meta      TurnMeta         `json:"meta"`
}

// ProjectedBlock is one typed content block. Type selects which optional
// fields are meaningful.
type ProjectedBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	// tool_call
	CallID    string         `json:"callId,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Status    string         `json:"status,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Title     string         `json:"title,omitempty"`
	StartedAt *int64         `json:"startedAt,omitempty"`
	EndedAt   *int64         `json:"endedAt,omitempty"`

	// file
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	Mime     string `json:"mime,omitempty"`
	Media    string `json:"media,omitempty"`

	// generic named blocks (patch, subtask)
	Name string         `json:"name,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// TurnMeta is the aggregated metadata envelope.
type TurnMeta struct {
	Cost           float64          `json:"cost"`
	Tokens         ProjectedTokens  `json:"tokens"`
	Agent          string           `json:"agent,omitempty"`
	Compacted      bool             `json:"compacted,omitempty"`
	CompactionAuto bool             `json:"compactionAuto,omitempty"`
	Retries        []ProjectedRetry `json:"retries,omitempty"`
	Steps          []ProjectedStep  `json:"steps,omitempty"`
}

type ProjectedTokens struct {
	Input      int `json:"input"`
	Output     int `json:"output"`
	Reasoning  int `json:"reasoning"`
	CacheRead  int `json:"cacheRead"`
	CacheWrite int `json:"cacheWrite"`
}

type ProjectedRetry struct {
	ID        string `json:"id"`
	Attempt   int    `json:"attempt"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}

type ProjectedStep struct {
	ID     string          `json:"id"`
	Phase  string          `json:"phase"`
	Reason string          `json:"reason,omitempty"`
	Cost   float64         `json:"cost,omitempty"`
	Tokens ProjectedTokens `json:"tokens,omitempty"`
}

// ProjectTurns projects every turn in order.
func ProjectTurns(turns []*Turn) []ProjectedTurn {
	out := make([]ProjectedTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, ProjectTurn(t))
	}
	return out
}

// ProjectTurn converts one merged turn into its interchange form. It is a
// pure read; re-projecting at any point, including mid-stream, is safe.
func ProjectTurn(t *Turn) ProjectedTurn {
	p := ProjectedTurn{
		ID:        t.ID,
		Role:      string(t.Role),
		CreatedAt: t.CreatedAt,
		Status:    string(t.Status()),
		Blocks:    make([]ProjectedBlock, 0, len(t.Blocks)+len(t.Patches)+len(t.Subtasks)),
		Meta: TurnMeta{
			Cost:           t.Cost,
			Tokens:         projectTokens(t.Tokens),
			Agent:          t.Agent,
			Compacted:      t.Compacted,
			CompactionAuto: t.CompactionAuto,
		},
	}

	for _, b := range t.Blocks {
		p.Blocks = append(p.Blocks, projectBlock(b))
	}
	for _, patch := range t.Patches {
		p.Blocks = append(p.Blocks, ProjectedBlock{
			Type: "patch",
			Name: patch.Hash,
			Data: map[string]any{"files": patch.Files},
		})
	}
	for _, sub := range t.Subtasks {
		p.Blocks = append(p.Blocks, ProjectedBlock{
			Type: "subtask",
			Name: sub.Agent,
			Text: sub.Description,
			Data: map[string]any{"prompt": sub.Prompt},
		})
	}

	for _, r := range t.Retries {
		pr := ProjectedRetry{ID: r.ID, Attempt: r.Attempt, CreatedAt: r.CreatedAt}
		if r.Error != nil {
			pr.Error = r.Error.Name + ": " + r.Error.Message
		}
		p.Meta.Retries = append(p.Meta.Retries, pr)
	}
	for _, s := range t.Steps {
		ps := ProjectedStep{ID: s.ID, Phase: string(s.Phase), Reason: s.Reason}
		if s.Cost != nil {
			ps.Cost = *s.Cost
		}
		if s.Tokens != nil {
			ps.Tokens = projectTokens(*s.Tokens)
		}
		p.Meta.Steps = append(p.Meta.Steps, ps)
	}
	return p
}

func projectBlock(b Block) ProjectedBlock {
	switch b.Kind {
	case BlockReasoning:
		return ProjectedBlock{
			Type:      "reasoning",
			Text:      b.Reasoning.Text,
			StartedAt: b.Reasoning.StartedAt,
			EndedAt:   b.Reasoning.EndedAt,
		}
	case BlockTool:
		return ProjectedBlock{
			Type:      "tool_call",
			CallID:    b.Tool.ID,
			Tool:      b.Tool.Name,
			Status:    string(b.Tool.Status),
			Args:      b.Tool.Args,
			Result:    b.Tool.Result,
			Error:     b.Tool.Error,
			Title:     b.Tool.Title,
			StartedAt: b.Tool.StartedAt,
			EndedAt:   b.Tool.EndedAt,
		}
	case BlockFile:
		return ProjectedBlock{
			Type:     "file",
			URL:      b.File.URL,
			Filename: b.File.Filename,
			Mime:     b.File.Mime,
			Media:    mediaKind(b.File.Mime),
		}
	default:
		return ProjectedBlock{Type: "text", Text: b.Text}
	}
}

func projectTokens(t TokenInfo) ProjectedTokens {
	return ProjectedTokens{
		Input:      t.Input,
		Output:     t.Output,
		Reasoning:  t.Reasoning,
		CacheRead:  t.Cache.Read,
		CacheWrite: t.Cache.Write,
	}
}

// mediaKind buckets a mime type for the renderer.
func mediaKind(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "image"
	case strings.HasPrefix(mime, "audio/"):
		return "audio"
	case strings.HasPrefix(mime, "video/"):
		return "video"
	case strings.HasPrefix(mime, "text/"), mime == "application/json":
		return "text"
	default:
		return "binary"
	}
}
