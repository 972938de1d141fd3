package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/tools"

	"github.com/chalklabs/chalk-core/core/llms"
)

const searchResultLimit = 5

type searchTool struct {
	retriever Retriever
	subject   string
}

// NewSearchTool wraps a retriever as an agent tool scoped to one subject.
func NewSearchTool(retriever Retriever, subject string) tools.Tool {
	return &searchTool{retriever: retriever, subject: subject}
}

func (t *searchTool) Name() string { return "search_knowledge_base" }

func (t *searchTool) Description() string {
	return "Search the subject's reference material for definitions, theorems and worked examples. Input should be a search query."
}

func (t *searchTool) Call(ctx context.Context, input string) (string, error) {
	results, err := t.retriever.Search(ctx, t.subject, input, searchResultLimit)
	if err != nil {
		return "", err
	}
	return formatResults(results), nil
}

// NewGeneratorTool exposes the retriever to a response generator as a
// function tool. The context is bound at construction and scopes every
// search to the response that registered the tool.
func NewGeneratorTool(ctx context.Context, retriever Retriever, subject string) llms.Tool {
	return llms.NewTool(
		"search_knowledge_base",
		"Search the subject's reference material for definitions, theorems and worked examples.",
		map[string]llms.ParameterBase{
			"query": {Type: "string", Description: "What to search for"},
		},
		func(parameters struct {
			Query string `json:"query"`
		}) (string, error) {
			results, err := retriever.Search(ctx, subject, parameters.Query, searchResultLimit)
			if err != nil {
				return "", err
			}
			return formatResults(results), nil
		})
}

func formatResults(results []Result) string {
	if len(results) == 0 {
		return "No relevant material found."
	}

	var sb strings.Builder
	for i, r := range results {
		preview := r.Content
		if len(preview) > 400 {
			preview = preview[:400] + "..."
		}
		sb.WriteString(fmt.Sprintf("[%d] %s (score %.2f):\n%s\n\n", i+1, r.Title, r.Score, preview))
	}
	return sb.String()
}
