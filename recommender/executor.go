package recommender

import (
	"context"
	"fmt"

	"github.com/avast/retry-go/v4"
	"github.com/imkonsowa/catalog-recommender/models"
)

// Catalog runs a read-only statement against the catalog store.
type Catalog interface {
	Query(ctx context.Context, query string) ([]models.ProductRow, error)
}

type Executor struct {
	catalog   Catalog
	retry     RetryPolicy
	transient func(error) bool
}

// NewExecutor retries only the errors transient reports true for; a statement
// the store rejects is reported at once.
func NewExecutor(catalog Catalog, policy RetryPolicy, transient func(error) bool) *Executor {
	if transient == nil {
		transient = func(error) bool { return false }
	}

	return &Executor{
		catalog:   catalog,
		retry:     policy,
		transient: transient,
	}
}

// Execute returns the matching rows; no match is an empty slice, not an error.
func (e *Executor) Execute(ctx context.Context, query ComposedQuery) ([]models.ProductRow, error) {
	var rows []models.ProductRow

	err := e.retry.Do(ctx, func() error {
		result, err := e.catalog.Query(ctx, query.String())
		if err != nil {
			if ctx.Err() != nil {
				return retry.Unrecoverable(ctx.Err())
			}
			err = fmt.Errorf("%w: %w", ErrExecution, err)
			if !e.transient(err) {
				return retry.Unrecoverable(err)
			}
			return err
		}
		rows = result

		return nil
	})
	if err != nil {
		return nil, err
	}

	if rows == nil {
		rows = []models.ProductRow{}
	}

	return rows, nil
}
