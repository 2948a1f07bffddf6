package recommender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/imkonsowa/catalog-recommender/metrics"
	"github.com/imkonsowa/catalog-recommender/models"
)

type State string

const (
	StateReceived             State = "received"
	StateExtractingAttributes State = "extract"
	StateComposingQuery       State = "compose"
	StateExecutingQuery       State = "execute"
	StateSynthesizing         State = "synthesize"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
)

type AttributeExtractor interface {
	Extract(ctx context.Context, question string) (AttributeSlots, error)
}

type QueryComposer interface {
	Compose(ctx context.Context, slots AttributeSlots) (ComposedQuery, error)
}

type QueryExecutor interface {
	Execute(ctx context.Context, query ComposedQuery) ([]models.ProductRow, error)
}

type ResultSynthesizer interface {
	Synthesize(ctx context.Context, question string, rows []models.ProductRow) (RecommendationList, error)
}

// Pipeline answers questions by running the four stages in order. It holds no
// per-request state and is safe for concurrent use.
type Pipeline struct {
	extractor    AttributeExtractor
	composer     QueryComposer
	executor     QueryExecutor
	synthesizer  ResultSynthesizer
	stageTimeout time.Duration
}

func NewPipeline(
	extractor AttributeExtractor,
	composer QueryComposer,
	executor QueryExecutor,
	synthesizer ResultSynthesizer,
	stageTimeout time.Duration,
) *Pipeline {
	return &Pipeline{
		extractor:    extractor,
		composer:     composer,
		executor:     executor,
		synthesizer:  synthesizer,
		stageTimeout: stageTimeout,
	}
}

// run is the state of one Answer call.
type run struct {
	pipeline *Pipeline
	question string
	state    State
	logger   *slog.Logger

	slots AttributeSlots
	query ComposedQuery
	rows  []models.ProductRow
	list  RecommendationList
}

// Answer turns question into the formatted recommendation list. Any failure
// is a *StageError naming the stage that failed.
func (p *Pipeline) Answer(ctx context.Context, question string) (string, error) {
	r := &run{
		pipeline: p,
		question: strings.TrimSpace(question),
		state:    StateReceived,
		logger:   slog.Default().With("component", "pipeline"),
	}
	if id, ok := RequestID(ctx); ok {
		r.logger = r.logger.With("request_id", id)
	}

	if r.question == "" {
		return "", r.fail(StateReceived, ErrEmptyQuestion)
	}

	steps := []struct {
		state State
		fn    func(ctx context.Context) error
	}{
		{StateExtractingAttributes, r.extract},
		{StateComposingQuery, r.compose},
		{StateExecutingQuery, r.execute},
		{StateSynthesizing, r.synthesize},
	}

	for _, step := range steps {
		if err := r.step(ctx, step.state, step.fn); err != nil {
			return "", err
		}
	}

	r.transition(StateCompleted)
	metrics.Answers.WithLabelValues("completed").Inc()

	return r.list.String(), nil
}

func (r *run) step(ctx context.Context, state State, fn func(ctx context.Context) error) error {
	r.transition(state)

	stageCtx := ctx
	cancel := func() {}
	if r.pipeline.stageTimeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, r.pipeline.stageTimeout)
	}
	defer cancel()

	started := time.Now()
	err := fn(stageCtx)
	metrics.StageDuration.WithLabelValues(string(state)).Observe(time.Since(started).Seconds())

	if err == nil {
		return nil
	}

	switch {
	case ctx.Err() != nil:
		err = fmt.Errorf("%w: %w", errCanceled, err)
	case errors.Is(stageCtx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("%w after %s: %w", ErrStageTimeout, r.pipeline.stageTimeout, err)
	}

	return r.fail(state, err)
}

func (r *run) transition(state State) {
	r.logger.Debug("pipeline transition", "from", r.state, "to", state)
	r.state = state
}

func (r *run) fail(state State, err error) error {
	stageErr := &StageError{Stage: state, Err: err}

	r.logger.Error("pipeline failed", "stage", state, "reason", stageErr.Cause(), "error", err)
	metrics.StageFailures.WithLabelValues(string(state), stageErr.Cause()).Inc()
	metrics.Answers.WithLabelValues("failed").Inc()
	r.state = StateFailed

	return stageErr
}

func (r *run) extract(ctx context.Context) error {
	slots, err := r.pipeline.extractor.Extract(ctx, r.question)
	if err != nil {
		return err
	}
	r.slots = slots
	r.logger.Info("extracted attributes",
		"category", slots.Category,
		"product_name", slots.ProductName,
		"subject", slots.Subject,
		"color", slots.Color,
		"brand", slots.Brand,
	)

	return nil
}

func (r *run) compose(ctx context.Context) error {
	query, err := r.pipeline.composer.Compose(ctx, r.slots)
	if err != nil {
		return err
	}
	r.query = query
	r.logger.Debug("composed query", "query", query.String())

	return nil
}

func (r *run) execute(ctx context.Context) error {
	rows, err := r.pipeline.executor.Execute(ctx, r.query)
	if err != nil {
		return err
	}
	r.rows = rows
	r.logger.Info("executed query", "rows", len(rows))

	return nil
}

func (r *run) synthesize(ctx context.Context) error {
	list, err := r.pipeline.synthesizer.Synthesize(ctx, r.question, r.rows)
	if err != nil {
		return err
	}
	r.list = list

	return nil
}

type requestIDKey struct{}

// WithRequestID tags ctx so pipeline logs can be matched to the request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}
