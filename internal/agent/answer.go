package agent

import "github.com/google/uuid"

// Response is the packaged answer to one question.
type Response struct {
	ID       string   `json:"id" yaml:"id"`
	Question string   `json:"question" yaml:"question"`
	Answer   string   `json:"answer" yaml:"answer"`
	Sources  []string `json:"sources" yaml:"sources"`
}

// NewResponse assembles a Response with a fresh id. Sources lists each
// distinct tool consulted, in first-use order.
func NewResponse(question, answer string, toolsUsed []string) Response {
	sources := make([]string, 0, len(toolsUsed))
	seen := make(map[string]bool, len(toolsUsed))
	for _, t := range toolsUsed {
		if !seen[t] {
			seen[t] = true
			sources = append(sources, t)
		}
	}
	return Response{
		ID:       uuid.NewString(),
		Question: question,
		Answer:   answer,
		Sources:  sources,
	}
}
