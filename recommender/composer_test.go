package recommender

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const footwearQuery = "SELECT _id, title, url FROM products WHERE category = 'Footwear' AND title ILIKE '%shoe%' " +
	"AND product_details::text ILIKE '%women%' AND product_details::text ILIKE '%red%' LIMIT 20"

func newTestComposer(t *testing.T, llm *stubLLM, fallback bool) *Composer {
	t.Helper()

	composer, err := NewComposer(llm, DefaultSchema(), ComposerOptions{TopK: 20, Fallback: fallback})
	require.NoError(t, err)

	return composer
}

func TestSchemaTemplate(t *testing.T) {
	schema := DefaultSchema()

	t.Run("all slots", func(t *testing.T) {
		assert.Equal(t, footwearQuery, schema.Template(footwearSlots, 20))
	})

	t.Run("no category filter without category", func(t *testing.T) {
		got := schema.Template(AttributeSlots{ProductName: "wallet", Color: "blue"}, 20)
		assert.Equal(t, "SELECT _id, title, url FROM products WHERE title ILIKE '%wallet%' AND product_details::text ILIKE '%blue%' LIMIT 20", got)
		assert.NotContains(t, got, "category")
	})

	t.Run("escapes literals", func(t *testing.T) {
		got := schema.Template(AttributeSlots{ProductName: "O'Neill 50%_off"}, 5)
		assert.Equal(t, `SELECT _id, title, url FROM products WHERE title ILIKE '%O''Neill 50\%\_off%' LIMIT 5`, got)
	})
}

func TestSingular(t *testing.T) {
	tests := map[string]string{
		"shoes":    "shoe",
		"Watches":  "Watch",
		"brushes":  "brush",
		"boxes":    "box",
		"dress":    "dress",
		"bus":      "bus",
		"backpack": "backpack",
		"wallets":  "wallet",
	}

	for in, want := range tests {
		assert.Equal(t, want, singular(in), in)
	}
}

func TestNewComposer_RejectsOtherDialects(t *testing.T) {
	_, err := NewComposer(newStubLLM(), DefaultSchema(), ComposerOptions{Dialect: "T-SQL", TopK: 20})
	assert.Error(t, err)

	_, err = NewComposer(newStubLLM(), DefaultSchema(), ComposerOptions{TopK: 0})
	assert.Error(t, err)
}

func TestComposer_Compose(t *testing.T) {
	t.Run("footwear question", func(t *testing.T) {
		llm := newStubLLM(footwearQuery)
		composer := newTestComposer(t, llm, false)

		query, err := composer.Compose(context.Background(), footwearSlots)
		require.NoError(t, err)
		assert.Equal(t, footwearQuery, query.String())
		assert.Equal(t, 1, llm.Calls())

		prompt := llm.Prompt(0)
		assert.Contains(t, prompt, "Category: Footwear")
		assert.Contains(t, prompt, "Product name: shoes")
		assert.Contains(t, prompt, "PostgreSQL")
		assert.Contains(t, prompt, "'Bags, Wallets & Belts'")
	})

	t.Run("fenced output is sanitized", func(t *testing.T) {
		llm := newStubLLM("```postgresql\n" + footwearQuery + "\n```")
		composer := newTestComposer(t, llm, false)

		query, err := composer.Compose(context.Background(), footwearSlots)
		require.NoError(t, err)
		assert.Equal(t, footwearQuery, query.String())
	})

	t.Run("no category slot gives no category filter", func(t *testing.T) {
		slots := AttributeSlots{ProductName: "wallet", Color: "blue"}
		llm := newStubLLM("SELECT _id, title, url FROM products WHERE title ILIKE '%wallet%' AND product_details::text ILIKE '%blue%'")
		composer := newTestComposer(t, llm, false)

		query, err := composer.Compose(context.Background(), slots)
		require.NoError(t, err)
		assert.NotContains(t, query.String(), "category")
		assert.NotContains(t, llm.Prompt(0), "Category:")
	})

	t.Run("invented category is rejected", func(t *testing.T) {
		slots := AttributeSlots{ProductName: "wallet", Color: "blue"}
		llm := newStubLLM("SELECT _id, title, url FROM products WHERE category = 'Bags, Wallets & Belts' AND title ILIKE '%wallet%'")
		composer := newTestComposer(t, llm, false)

		_, err := composer.Compose(context.Background(), slots)
		assert.ErrorIs(t, err, ErrComposition)
	})

	t.Run("rejection is not retried", func(t *testing.T) {
		llm := newStubLLM("DROP TABLE products")
		composer := newTestComposer(t, llm, false)

		_, err := composer.Compose(context.Background(), footwearSlots)
		assert.ErrorIs(t, err, ErrComposition)
		assert.Equal(t, 1, llm.Calls())
	})

	t.Run("rejection falls back to template", func(t *testing.T) {
		llm := newStubLLM("SELECT TOP 20 _id, title, url FROM products")
		composer := newTestComposer(t, llm, true)

		query, err := composer.Compose(context.Background(), footwearSlots)
		require.NoError(t, err)
		assert.Equal(t, footwearQuery, query.String())
		assert.Equal(t, 1, llm.Calls())
	})

	t.Run("provider failure", func(t *testing.T) {
		llm := newStubLLM()
		llm.errs = []error{errors.New("connection refused")}
		composer := newTestComposer(t, llm, true)

		_, err := composer.Compose(context.Background(), footwearSlots)
		assert.ErrorIs(t, err, ErrComposition)
	})
}
