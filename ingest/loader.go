package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/imkonsowa/catalog-recommender/models"
	"github.com/lib/pq"
)

var ErrNotArray = errors.New("catalog file is not a JSON array")

// Stats reports how far a Load got. Committed counts rows in batches that
// were committed, so it stays valid when Load fails.
type Stats struct {
	Read      int
	Committed int
	Batches   int
}

// Loader writes catalog records into the products table with COPY, one
// transaction per batch.
type Loader struct {
	db        *sql.DB
	table     string
	batchSize int
	logger    *slog.Logger
}

func NewLoader(db *sql.DB, table string, batchSize int) *Loader {
	if batchSize < 1 {
		batchSize = 500
	}

	return &Loader{
		db:        db,
		table:     table,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "ingest", "table", table),
	}
}

// Load streams the JSON array in r into the table. A batch is committed as a
// whole or not at all; the first batch that fails is rolled back and ends
// the load. Rows of earlier batches stay committed.
func (l *Loader) Load(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats

	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return stats, fmt.Errorf("failed to read catalog file: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return stats, ErrNotArray
	}

	batch := make([]models.Product, 0, l.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := l.insertBatch(ctx, batch); err != nil {
			return fmt.Errorf("batch %d failed, %d rows committed before it: %w", stats.Batches+1, stats.Committed, err)
		}
		stats.Batches++
		stats.Committed += len(batch)
		l.logger.Info("batch committed", "batch", stats.Batches, "rows", len(batch), "committed", stats.Committed)
		batch = batch[:0]

		return nil
	}

	for dec.More() {
		var record Record
		if err := dec.Decode(&record); err != nil {
			return stats, fmt.Errorf("failed to decode record %d: %w", stats.Read+1, err)
		}
		stats.Read++

		product, err := record.ToProduct()
		if err != nil {
			return stats, err
		}
		batch = append(batch, product)

		if len(batch) == l.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	if _, err := dec.Token(); err != nil {
		return stats, fmt.Errorf("failed to read catalog file: %w", err)
	}
	if err := flush(); err != nil {
		return stats, err
	}

	return stats, nil
}

func (l *Loader) insertBatch(ctx context.Context, batch []models.Product) (err error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				l.logger.Error("failed to roll back batch", "err", rbErr)
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(l.table, (&models.Product{}).Columns()...))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range batch {
		if _, err = stmt.ExecContext(ctx, batch[i].Values()...); err != nil {
			return fmt.Errorf("row %s: %w", batch[i].ID, err)
		}
	}
	if _, err = stmt.ExecContext(ctx); err != nil {
		return err
	}

	return tx.Commit()
}
