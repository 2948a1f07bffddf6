package recommender

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/imkonsowa/catalog-recommender/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const footwearAttributes = `{"category": "Footwear", "product_name": "shoes", "subject": "women", "color": "red", "brand": null}`

type pipelineFixture struct {
	parser  *stubLLM
	query   *stubLLM
	context *stubLLM
	catalog *stubCatalog
}

func newPipelineFixture(rows []models.ProductRow) *pipelineFixture {
	return &pipelineFixture{
		parser:  newStubLLM(footwearAttributes),
		query:   newStubLLM("```sql\n" + footwearQuery + "\n```"),
		context: newStubLLM(listAnswer(0, 1, 2, 3, 4, 5)),
		catalog: &stubCatalog{rows: rows},
	}
}

func (f *pipelineFixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()

	composer, err := NewComposer(f.query, DefaultSchema(), ComposerOptions{TopK: 20})
	require.NoError(t, err)

	return NewPipeline(
		NewExtractor(f.parser, fastRetry),
		composer,
		NewExecutor(f.catalog, fastRetry, isConnReset),
		NewSynthesizer(f.context),
		time.Second,
	)
}

func TestPipeline_Answer(t *testing.T) {
	f := newPipelineFixture(shoeRows)

	answer, err := f.pipeline(t).Answer(context.Background(), "red women's shoes")
	require.NoError(t, err)
	assert.Equal(t, listAnswer(0, 1, 2, 3, 4), answer)

	require.Len(t, f.catalog.queries, 1)
	assert.Equal(t, footwearQuery, f.catalog.queries[0])
	assert.Equal(t, 1, f.parser.Calls())
	assert.Equal(t, 1, f.query.Calls())
	assert.Equal(t, 1, f.context.Calls())
}

func TestPipeline_Deterministic(t *testing.T) {
	p := newPipelineFixture(shoeRows).pipeline(t)

	first, err := p.Answer(context.Background(), "red women's shoes")
	require.NoError(t, err)
	second, err := p.Answer(context.Background(), "red women's shoes")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPipeline_ConcurrentAnswers(t *testing.T) {
	const callers = 32

	f := newPipelineFixture(shoeRows)
	p := f.pipeline(t)

	answers := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			answers[i], errs[i] = p.Answer(WithRequestID(context.Background(), "req"), "red women's shoes")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, listAnswer(0, 1, 2, 3, 4), answers[i])
	}
	assert.Equal(t, callers, f.parser.Calls())
	assert.Equal(t, callers, f.query.Calls())
	assert.Equal(t, callers, f.context.Calls())
	assert.Len(t, f.catalog.queries, callers)
}

func TestPipeline_NoRows(t *testing.T) {
	f := newPipelineFixture(nil)

	answer, err := f.pipeline(t).Answer(context.Background(), "red women's shoes")
	require.NoError(t, err)
	assert.Equal(t, NoResultsMessage, answer)
	assert.Equal(t, 0, f.context.Calls())
}

func TestPipeline_EmptyQuestion(t *testing.T) {
	f := newPipelineFixture(shoeRows)

	_, err := f.pipeline(t).Answer(context.Background(), "   ")

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StateReceived, stageErr.Stage)
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Equal(t, 0, f.parser.Calls())
}

func TestPipeline_StageFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *pipelineFixture)
		stage    State
		sentinel error
	}{
		{
			name:     "extraction",
			setup:    func(f *pipelineFixture) { f.parser.responses = []string{"not json"} },
			stage:    StateExtractingAttributes,
			sentinel: ErrExtraction,
		},
		{
			name:     "composition",
			setup:    func(f *pipelineFixture) { f.query.responses = []string{"DELETE FROM products"} },
			stage:    StateComposingQuery,
			sentinel: ErrComposition,
		},
		{
			name:     "execution",
			setup:    func(f *pipelineFixture) { f.catalog.errs = []error{errors.New("syntax error at or near")} },
			stage:    StateExecutingQuery,
			sentinel: ErrExecution,
		},
		{
			name:     "synthesis",
			setup:    func(f *pipelineFixture) { f.context.responses = []string{"nothing to recommend"} },
			stage:    StateSynthesizing,
			sentinel: ErrSynthesis,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPipelineFixture(shoeRows)
			tt.setup(f)

			answer, err := f.pipeline(t).Answer(context.Background(), "red women's shoes")
			assert.Empty(t, answer)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tt.stage, stageErr.Stage)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.sentinel.Error(), stageErr.Cause())
			assert.False(t, stageErr.Timeout())
		})
	}
}

func TestPipeline_FailureStopsLaterStages(t *testing.T) {
	f := newPipelineFixture(shoeRows)
	f.query.responses = []string{"SELECT * FROM products"}

	_, err := f.pipeline(t).Answer(context.Background(), "red women's shoes")
	require.Error(t, err)
	assert.Empty(t, f.catalog.queries)
	assert.Equal(t, 0, f.context.Calls())
}

func TestPipeline_StageTimeout(t *testing.T) {
	f := newPipelineFixture(shoeRows)
	f.query.block = true

	composer, err := NewComposer(f.query, DefaultSchema(), ComposerOptions{TopK: 20})
	require.NoError(t, err)
	p := NewPipeline(NewExtractor(f.parser, NoRetry), composer, NewExecutor(f.catalog, NoRetry, nil), NewSynthesizer(f.context), 20*time.Millisecond)

	_, err = p.Answer(context.Background(), "red women's shoes")

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StateComposingQuery, stageErr.Stage)
	assert.True(t, stageErr.Timeout())
	assert.ErrorIs(t, err, ErrStageTimeout)
	assert.Equal(t, ErrStageTimeout.Error(), stageErr.Cause())
}

func TestPipeline_CallerCancel(t *testing.T) {
	f := newPipelineFixture(shoeRows)
	f.parser.block = true

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := f.pipeline(t).Answer(ctx, "red women's shoes")

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StateExtractingAttributes, stageErr.Stage)
	assert.False(t, stageErr.Timeout())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "request canceled", stageErr.Cause())
}

func TestRequestID(t *testing.T) {
	_, ok := RequestID(context.Background())
	assert.False(t, ok)

	id, ok := RequestID(WithRequestID(context.Background(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
}
