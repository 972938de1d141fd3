// Package classify categorizes incoming questions so response instructions
// can be tailored before generation starts.
package classify

import (
	"context"
	_ "embed"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/chalklabs/chalk-core/core/llms"
)

//go:embed classifierinstructions.tmpl
var classifierInstructions string

type Category string

const (
	CategoryConceptExplanation Category = "concept_explanation"
	CategoryWorkedExample      Category = "worked_example"
	CategoryHintRequest        Category = "hint_request"
	CategoryAnswerCheck        Category = "answer_check"
	CategorySmallTalk          Category = "small_talk"
)

// Classification is the schema the model fills in.
type Classification struct {
	Category    string `json:"category" jsonschema:"title=Category,description=The kind of help the student is asking for,enum=concept_explanation,enum=worked_example,enum=hint_request,enum=answer_check,enum=small_talk"`
	NeedsVisual bool   `json:"needsVisual" jsonschema:"title=NeedsVisual,description=Whether a canvas drawing or diagram would help answer the question"`
}

// Result is a validated classification.
type Result struct {
	Category    Category
	NeedsVisual bool
}

// StructuredPromptFunc issues a prompt constrained to the Classification
// schema.
type StructuredPromptFunc func(ctx context.Context, prompt string, opts ...llms.PromptOption) (*Classification, error)

type Classifier struct {
	prompt StructuredPromptFunc
}

func NewClassifier(prompt StructuredPromptFunc) *Classifier {
	return &Classifier{prompt: prompt}
}

// Classify categorizes a question, optionally in the context of prior
// conversation turns and the tools available to the answering model.
func (c *Classifier) Classify(ctx context.Context, question string, opts ...ClassifyOption) (*Result, error) {
	options := ClassifyOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "classify question")
	defer span.End()

	instructions := classifierInstructions
	for _, tool := range options.Tools {
		instructions += fmt.Sprintf("- %s: %s\n", tool.Function.Name, tool.Function.Description)
	}

	promptOpts := []llms.PromptOption{llms.WithInstructions(instructions)}
	if len(options.History) > 0 {
		promptOpts = append(promptOpts, llms.WithMessages(options.History...))
	}

	resp, err := c.prompt(ctx, question, promptOpts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		return nil, fmt.Errorf("failed to prompt question classifier: %w", err)
	}

	category, err := toCategory(resp.Category)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unusable classification")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("question.category", string(category)),
		attribute.Bool("question.needs_visual", resp.NeedsVisual),
	)
	return &Result{Category: category, NeedsVisual: resp.NeedsVisual}, nil
}

func toCategory(classification string) (Category, error) {
	switch classification {
	case "concept_explanation":
		return CategoryConceptExplanation, nil
	case "worked_example":
		return CategoryWorkedExample, nil
	case "hint_request":
		return CategoryHintRequest, nil
	case "answer_check":
		return CategoryAnswerCheck, nil
	case "small_talk":
		return CategorySmallTalk, nil
	default:
		return "", fmt.Errorf("unknown question category: %s", classification)
	}
}

type ClassifyOption func(*ClassifyOptions)

type ClassifyOptions struct {
	History []llms.Message
	Tools   []llms.Tool
}

func WithTools(tools []llms.Tool) ClassifyOption {
	return func(o *ClassifyOptions) {
		o.Tools = tools
	}
}

func WithHistory(history []llms.Message) ClassifyOption {
	return func(o *ClassifyOptions) {
		o.History = history
	}
}
