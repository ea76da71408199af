package agent

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/crystaldolphin/metadolphin/internal/bus"
)

//go:embed prompts/system.tmpl
var systemPromptText string

var systemPrompt = template.Must(template.New("system").Option("missingkey=error").Parse(systemPromptText))

type promptData struct {
	History  string
	Question string
}

// BuildPrompt renders the single user turn that opens every conversation.
func BuildPrompt(history, question string) (string, error) {
	var sb strings.Builder
	if err := systemPrompt.Execute(&sb, promptData{History: history, Question: question}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return sb.String(), nil
}

// FormatHistory flattens the last limit thread turns into "User: ..." and
// "Assistant: ..." lines. limit <= 0 keeps every turn.
func FormatHistory(turns []bus.Turn, limit int) string {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		role := "User"
		if t.FromBot {
			role = "Assistant"
		}
		lines = append(lines, role+": "+t.Text)
	}
	return strings.Join(lines, "\n")
}
