package relay

import (
	"fmt"
	"regexp"
	"strings"

	"agentdeck/internal/transcript"
)

// Discord caps messages at 2000 characters; stay under it with headroom for
// mention prefixes and code fences added by callers.
const maxMessageLength = 1800

// formatBlockquote prefixes every non-blank line with a quote marker.
func formatBlockquote(text string) string {
	text = strings.TrimRight(text, "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line != "" { // skip blank lines
			out = append(out, "> "+line)
		}
	}
	return strings.Join(out, "\n")
}

func removeExcessiveNewLine(text string) string {
	text = regexp.MustCompile(`\n\n+`).ReplaceAllString(text, "\n\n")
	return strings.Trim(text, "\n")
}

// chunkMessage splits content into Discord-sized pieces, preferring line
// boundaries over hard cuts.
func chunkMessage(content string, limit int) []string {
	if len(content) <= limit {
		return []string{content}
	}

	var chunks []string
	var current strings.Builder
	for _, line := range strings.Split(content, "\n") {
		for len(line) > limit {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, line[:limit])
			line = line[limit:]
		}
		if current.Len()+len(line)+1 > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// renderBlock formats one transcript block as Discord markdown.
func renderBlock(b transcript.ProjectedBlock) string {
	switch b.Type {
	case "reasoning":
		if b.Text == "" {
			return ""
		}
		return formatBlockquote("*" + removeExcessiveNewLine(b.Text) + "*")
	case "tool_call":
		label := b.Tool
		if b.Title != "" {
			label = fmt.Sprintf("%s (%s)", b.Tool, b.Title)
		}
		line := fmt.Sprintf("Tool: %s [%s]", label, b.Status)
		if b.Error != "" {
			line += "\n> " + b.Error
		}
		return line
	case "file":
		if b.Filename != "" {
			return fmt.Sprintf("File: %s (%s)", b.Filename, b.Media)
		}
		return fmt.Sprintf("File: %s (%s)", b.URL, b.Media)
	case "patch":
		return fmt.Sprintf("Patch: %s", b.Name)
	case "subtask":
		if b.Text != "" {
			return fmt.Sprintf("Subtask [%s]: %s", b.Name, b.Text)
		}
		return fmt.Sprintf("Subtask [%s]", b.Name)
	default:
		return removeExcessiveNewLine(b.Text)
	}
}

// renderMeta formats the turn footer, or returns "" when there is nothing
// worth showing.
func renderMeta(meta transcript.TurnMeta) string {
	var parts []string
	if meta.Cost > 0 {
		parts = append(parts, fmt.Sprintf("cost $%.4f", meta.Cost))
	}
	total := meta.Tokens.Input + meta.Tokens.Output + meta.Tokens.Reasoning
	if total > 0 {
		parts = append(parts, fmt.Sprintf("tokens %d in / %d out", meta.Tokens.Input, meta.Tokens.Output))
	}
	if meta.Agent != "" {
		parts = append(parts, "agent "+meta.Agent)
	}
	if len(meta.Retries) > 0 {
		parts = append(parts, fmt.Sprintf("%d retries", len(meta.Retries)))
	}
	if meta.Compacted {
		parts = append(parts, "compacted")
	}
	if len(parts) == 0 {
		return ""
	}
	return "-# " + strings.Join(parts, " | ")
}

// RenderTurn formats one projected turn as a Discord message body.
func RenderTurn(turn transcript.ProjectedTurn) string {
	var sections []string
	if turn.Role == "user" {
		for _, b := range turn.Blocks {
			if b.Type == "text" && b.Text != "" {
				sections = append(sections, "**You:** "+removeExcessiveNewLine(b.Text))
			}
		}
		return strings.Join(sections, "\n")
	}

	for _, b := range turn.Blocks {
		if rendered := renderBlock(b); rendered != "" {
			sections = append(sections, rendered)
		}
	}
	if turn.Status == "running" {
		sections = append(sections, "*working...*")
	}
	if footer := renderMeta(turn.Meta); footer != "" {
		sections = append(sections, footer)
	}
	return strings.Join(sections, "\n")
}

// RenderTranscript formats a whole session transcript, already chunked for
// sending.
func RenderTranscript(turns []transcript.ProjectedTurn) []string {
	var sections []string
	for _, turn := range turns {
		if rendered := RenderTurn(turn); rendered != "" {
			sections = append(sections, rendered)
		}
	}
	if len(sections) == 0 {
		return []string{"Transcript is empty."}
	}
	return chunkMessage(strings.Join(sections, "\n\n"), maxMessageLength)
}
