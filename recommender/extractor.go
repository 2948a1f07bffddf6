package recommender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/tmc/langchaingo/llms"
)

// extractedSlots mirrors the JSON the parser model is told to produce.
// Pointers tell null apart from a missing key.
type extractedSlots struct {
	Category    *string `json:"category"`
	ProductName *string `json:"product_name"`
	Subject     *string `json:"subject"`
	Color       *string `json:"color"`
	Brand       *string `json:"brand"`
}

var emptyMarkers = map[string]bool{
	"":              true,
	"null":          true,
	"none":          true,
	"n/a":           true,
	"na":            true,
	"unknown":       true,
	"not specified": true,
	"not mentioned": true,
	"unspecified":   true,
	"any":           true,
	"-":             true,
}

func cleanSlot(value *string) string {
	if value == nil {
		return ""
	}
	v := strings.TrimSpace(*value)
	if emptyMarkers[strings.ToLower(v)] {
		return ""
	}

	return v
}

type Extractor struct {
	llm    llms.Model
	retry  RetryPolicy
	logger *slog.Logger
}

func NewExtractor(llm llms.Model, retry RetryPolicy) *Extractor {
	return &Extractor{
		llm:    llm,
		retry:  retry,
		logger: slog.Default().With("stage", "extract"),
	}
}

// Extract reads the slots out of question with one parser model completion.
// Provider failures are retried per the policy; a response that does not
// decode into valid slots is not.
func (e *Extractor) Extract(ctx context.Context, question string) (AttributeSlots, error) {
	prompt := fmt.Sprintf("Extract the product attributes from this shopping query and return only valid JSON: %q", question)

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(ExtractorSysPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}

	var slots AttributeSlots
	err := e.retry.Do(ctx, func() error {
		content, err := e.llm.GenerateContent(
			ctx,
			messages,
			llms.WithJSONMode(),
			llms.WithTemperature(0),
		)
		if err != nil {
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			return fmt.Errorf("%w: failed to generate content: %w", ErrExtraction, err)
		}
		if len(content.Choices) == 0 {
			return retry.Unrecoverable(fmt.Errorf("%w: empty response", ErrExtraction))
		}

		parsed, err := e.parse(content.Choices[0].Content)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		slots = parsed

		return nil
	})
	if err != nil {
		return AttributeSlots{}, err
	}

	return slots, nil
}

func (e *Extractor) parse(payload string) (AttributeSlots, error) {
	var raw extractedSlots
	if err := json.Unmarshal([]byte(Sanitize(payload)), &raw); err != nil {
		return AttributeSlots{}, fmt.Errorf("%w: response is not a JSON object: %v", ErrExtraction, err)
	}

	slots := AttributeSlots{
		ProductName: cleanSlot(raw.ProductName),
		Subject:     cleanSlot(raw.Subject),
		Color:       cleanSlot(raw.Color),
		Brand:       cleanSlot(raw.Brand),
	}

	if category := cleanSlot(raw.Category); category != "" {
		parsed, ok := ParseCategory(category)
		if !ok {
			e.logger.Warn("dropping category outside the catalog", "category", category)
		}
		slots.Category = parsed
	}

	if err := slots.Validate(); err != nil {
		return AttributeSlots{}, err
	}

	return slots, nil
}
