package relay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"agentdeck/internal/transcript"
)

func TestFormatBlockquote(t *testing.T) {
	assert.Equal(t, "> one\n> two", formatBlockquote("one\n\ntwo\n"))
}

func TestRemoveExcessiveNewLine(t *testing.T) {
	assert.Equal(t, "a\n\nb", removeExcessiveNewLine("\na\n\n\n\nb\n"))
}

func TestChunkMessage(t *testing.T) {
	t.Run("short content stays whole", func(t *testing.T) {
		chunks := chunkMessage("hello", 100)
		assert.Equal(t, []string{"hello"}, chunks)
	})

	t.Run("splits on line boundaries", func(t *testing.T) {
		content := strings.Repeat("aaaa\n", 10) + "bbbb"
		chunks := chunkMessage(content, 25)
		assert.Greater(t, len(chunks), 1)
		for _, chunk := range chunks {
			assert.LessOrEqual(t, len(chunk), 25)
		}
		assert.Equal(t, strings.ReplaceAll(content, "\n", ""), strings.ReplaceAll(strings.Join(chunks, ""), "\n", ""))
	})

	t.Run("hard cuts oversized lines", func(t *testing.T) {
		chunks := chunkMessage(strings.Repeat("x", 50), 20)
		assert.Len(t, chunks, 3)
	})
}

func TestRenderBlock(t *testing.T) {
	tests := []struct {
		name  string
		block transcript.ProjectedBlock
		want  string
	}{
		{
			name:  "text",
			block: transcript.ProjectedBlock{Type: "text", Text: "hello\n\n\nworld"},
			want:  "hello\n\nworld",
		},
		{
			name:  "tool call",
			block: transcript.ProjectedBlock{Type: "tool_call", Tool: "bash", Status: "completed"},
			want:  "Tool: bash [completed]",
		},
		{
			name:  "tool call with title and error",
			block: transcript.ProjectedBlock{Type: "tool_call", Tool: "bash", Title: "ls", Status: "error", Error: "exit 1"},
			want:  "Tool: bash (ls) [error]\n> exit 1",
		},
		{
			name:  "file",
			block: transcript.ProjectedBlock{Type: "file", Filename: "shot.png", Media: "image"},
			want:  "File: shot.png (image)",
		},
		{
			name:  "patch",
			block: transcript.ProjectedBlock{Type: "patch", Name: "deadbeef"},
			want:  "Patch: deadbeef",
		},
		{
			name:  "subtask",
			block: transcript.ProjectedBlock{Type: "subtask", Name: "explore", Text: "scan the repo"},
			want:  "Subtask [explore]: scan the repo",
		},
		{
			name:  "empty reasoning is dropped",
			block: transcript.ProjectedBlock{Type: "reasoning"},
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderBlock(tt.block))
		})
	}
}

func TestRenderMeta(t *testing.T) {
	assert.Empty(t, renderMeta(transcript.TurnMeta{}))

	meta := transcript.TurnMeta{
		Cost:   0.0125,
		Tokens: transcript.ProjectedTokens{Input: 100, Output: 40},
		Agent:  "build",
	}
	footer := renderMeta(meta)
	assert.Contains(t, footer, "cost $0.0125")
	assert.Contains(t, footer, "tokens 100 in / 40 out")
	assert.Contains(t, footer, "agent build")
}

func TestRenderTurn(t *testing.T) {
	t.Run("user turn", func(t *testing.T) {
		turn := transcript.ProjectedTurn{
			Role:   "user",
			Blocks: []transcript.ProjectedBlock{{Type: "text", Text: "fix the tests"}},
		}
		assert.Equal(t, "**You:** fix the tests", RenderTurn(turn))
	})

	t.Run("running assistant turn gets a working marker", func(t *testing.T) {
		turn := transcript.ProjectedTurn{
			Role:   "assistant",
			Status: "running",
			Blocks: []transcript.ProjectedBlock{
				{Type: "reasoning", Text: "thinking"},
				{Type: "tool_call", Tool: "bash", Status: "running"},
			},
		}
		out := RenderTurn(turn)
		assert.Contains(t, out, "> *thinking*")
		assert.Contains(t, out, "Tool: bash [running]")
		assert.Contains(t, out, "*working...*")
	})

	t.Run("complete turn with footer", func(t *testing.T) {
		turn := transcript.ProjectedTurn{
			Role:   "assistant",
			Status: "complete",
			Blocks: []transcript.ProjectedBlock{{Type: "text", Text: "done"}},
			Meta:   transcript.TurnMeta{Cost: 0.5},
		}
		out := RenderTurn(turn)
		assert.NotContains(t, out, "working")
		assert.Contains(t, out, "done")
		assert.Contains(t, out, "cost $0.5000")
	})
}

func TestRenderTranscript(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, []string{"Transcript is empty."}, RenderTranscript(nil))
	})

	t.Run("turns are separated", func(t *testing.T) {
		turns := []transcript.ProjectedTurn{
			{Role: "user", Blocks: []transcript.ProjectedBlock{{Type: "text", Text: "hi"}}},
			{Role: "assistant", Status: "complete", Blocks: []transcript.ProjectedBlock{{Type: "text", Text: "hello"}}},
		}
		chunks := RenderTranscript(turns)
		assert.Len(t, chunks, 1)
		assert.Equal(t, "**You:** hi\n\nhello", chunks[0])
	})
}
