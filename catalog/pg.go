package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/imkonsowa/catalog-recommender/models"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const columnsQuery = "SELECT column_name FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position"

type Pg struct {
	db *gorm.DB
}

func newLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  true,
		},
	)
}

func NewPg(connStr string) (*Pg, error) {
	return open(postgres.Open(connStr))
}

// NewPgFromConn wraps an already opened connection pool.
func NewPgFromConn(conn *sql.DB) (*Pg, error) {
	return open(postgres.New(postgres.Config{Conn: conn}))
}

func open(dialector gorm.Dialector) (*Pg, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger(),
	})
	if err != nil {
		return nil, err
	}

	return &Pg{db: db}, nil
}

func (p *Pg) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

func (p *Pg) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

// Query runs a generated statement inside a read-only transaction.
func (p *Pg) Query(ctx context.Context, query string) ([]models.ProductRow, error) {
	rows := make([]models.ProductRow, 0)

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Raw(query).Scan(&rows).Error
	}, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}

	return rows, nil
}

// Columns lists the column names of table in declaration order.
func (p *Pg) Columns(ctx context.Context, table string) ([]string, error) {
	var columns []string
	if err := p.db.WithContext(ctx).Raw(columnsQuery, table).Scan(&columns).Error; err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}

	return columns, nil
}

// IsTransient reports whether err is a connectivity problem worth one more try.
// Errors reported by the server about the statement itself are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception, 57P: operator intervention
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
