package recommender

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/imkonsowa/catalog-recommender/models"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

const (
	MaxRecommendations = 5
	NoResultsMessage   = "No relevant items found."
)

type Recommendation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// RecommendationList is the answer for one question, most relevant first.
type RecommendationList []Recommendation

func (l RecommendationList) String() string {
	if len(l) == 0 {
		return NoResultsMessage
	}

	var b strings.Builder
	for i, item := range l {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- Product name: %s, URL: %s", item.Title, item.URL)
	}

	return b.String()
}

var itemLine = regexp.MustCompile(`(?i)^\s*(?:[-*•]\s*|\d+[.)]\s*)?(?:\*\*)?product name(?:\*\*)?\s*:(?:\*\*)?\s*(.+?)\s*,\s*(?:\*\*)?url(?:\*\*)?\s*:(?:\*\*)?\s*(\S.*?)\s*$`)

// markdownLink matches [text](target).
var markdownLink = regexp.MustCompile(`^\[[^\]]*\]\(([^)\s]+)\)`)

type Synthesizer struct {
	chain  *chains.LLMChain
	logger *slog.Logger
}

func NewSynthesizer(llm llms.Model) *Synthesizer {
	prompt := prompts.NewPromptTemplate(SynthesizerPrompt, []string{"question", "result", "max_items"})

	return &Synthesizer{
		chain:  chains.NewLLMChain(llm, prompt),
		logger: slog.Default().With("stage", "synthesize"),
	}
}

// Synthesize picks up to five of rows for question. Without rows the model is
// not asked and the list is empty.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, rows []models.ProductRow) (RecommendationList, error) {
	if len(rows) == 0 {
		return RecommendationList{}, nil
	}

	answer, err := chains.Predict(ctx, s.chain, map[string]any{
		"question":  question,
		"result":    stringifyRows(rows),
		"max_items": MaxRecommendations,
	}, chains.WithTemperature(0))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: failed to generate answer: %w", ErrSynthesis, err)
	}

	list := parseRecommendations(answer, rows)
	if len(list) == 0 {
		s.logger.Warn("answer has no usable items", "rows", len(rows))
		return nil, fmt.Errorf("%w: answer does not list any of the retrieved items", ErrSynthesis)
	}

	return list, nil
}

func stringifyRows(rows []models.ProductRow) string {
	parts := make([]string, len(rows))
	for i, row := range rows {
		parts[i] = row.Stringify()
	}

	return "[" + strings.Join(parts, ", ") + "]"
}

// parseRecommendations keeps the listed items that are among rows, in the
// order the model gave them. Titles are taken from the row.
func parseRecommendations(answer string, rows []models.ProductRow) RecommendationList {
	byURL := make(map[string]models.ProductRow, len(rows))
	for _, row := range rows {
		if _, ok := byURL[row.URL]; !ok {
			byURL[row.URL] = row
		}
	}

	limit := min(MaxRecommendations, len(rows))
	list := make(RecommendationList, 0, limit)
	seen := make(map[string]bool)

	for _, line := range strings.Split(answer, "\n") {
		if len(list) == limit {
			break
		}
		match := itemLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		url := match[2]
		if link := markdownLink.FindStringSubmatch(url); link != nil {
			url = link[1]
		}
		url = strings.Trim(url, "[]<>()*`.,;")
		row, ok := byURL[url]
		if !ok || seen[url] {
			continue
		}
		seen[url] = true
		list = append(list, Recommendation{Title: row.Title, URL: row.URL})
	}

	return list
}
