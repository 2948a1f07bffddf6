package recommender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/imkonsowa/catalog-recommender/metrics"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

const DialectPostgres = "PostgreSQL"

type ComposerOptions struct {
	Dialect string
	TopK    int
	// Fallback replaces a generation the guard rejects with the template query.
	Fallback bool
}

type Composer struct {
	llm     llms.Model
	schema  Schema
	guard   Guard
	prompt  prompts.PromptTemplate
	options ComposerOptions
	logger  *slog.Logger
}

func NewComposer(llm llms.Model, schema Schema, options ComposerOptions) (*Composer, error) {
	if options.Dialect == "" {
		options.Dialect = DialectPostgres
	}
	if !strings.EqualFold(options.Dialect, DialectPostgres) {
		return nil, fmt.Errorf("unsupported dialect %q, only %s is supported", options.Dialect, DialectPostgres)
	}
	if options.TopK < 1 {
		return nil, fmt.Errorf("top k must be positive, got %d", options.TopK)
	}

	return &Composer{
		llm:     llm,
		schema:  schema,
		guard:   Guard{Schema: schema, TopK: options.TopK},
		prompt:  prompts.NewPromptTemplate(ComposerPrompt, composerInputs),
		options: options,
		logger:  slog.Default().With("stage", "compose"),
	}, nil
}

var composerInputs = []string{
	"input", "dialect", "top_k", "table_info", "table", "columns", "categories",
	"category_column", "title_column", "details_column", "brand_column",
}

func (c *Composer) promptValues(slots AttributeSlots) map[string]any {
	categories := make([]string, len(c.schema.Categories))
	for i, category := range c.schema.Categories {
		categories[i] = "'" + string(category) + "'"
	}

	return map[string]any{
		"input":           slots.Stringify(),
		"dialect":         c.options.Dialect,
		"top_k":           c.options.TopK,
		"table_info":      c.schema.Describe(),
		"table":           c.schema.Table,
		"columns":         strings.Join(c.schema.Selectable, ", "),
		"categories":      strings.Join(categories, ", "),
		"category_column": c.schema.Filters[SlotCategory].Column,
		"title_column":    c.schema.Filters[SlotProductName].Column,
		"details_column":  c.schema.Filters[SlotSubject].Column,
		"brand_column":    c.schema.Filters[SlotBrand].Column,
	}
}

// Compose asks the query model for a statement, strips what is not SQL and
// runs the guard over it. Rejections are never retried.
func (c *Composer) Compose(ctx context.Context, slots AttributeSlots) (ComposedQuery, error) {
	prompt, err := c.prompt.Format(c.promptValues(slots))
	if err != nil {
		return "", fmt.Errorf("%w: failed to render prompt: %w", ErrComposition, err)
	}

	generated, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, llms.WithTemperature(0))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: failed to generate query: %w", ErrComposition, err)
	}

	query, err := c.guard.Check(Sanitize(generated), slots)
	if err == nil {
		return query, nil
	}
	if !c.options.Fallback || !errors.Is(err, ErrComposition) {
		return "", err
	}

	c.logger.Warn("generated query rejected, using template", "reason", err)
	metrics.ComposerFallbacks.Inc()

	return c.Template(slots)
}

// Template composes the statement without a model call.
func (c *Composer) Template(slots AttributeSlots) (ComposedQuery, error) {
	return c.guard.Check(c.schema.Template(slots, c.options.TopK), slots)
}
