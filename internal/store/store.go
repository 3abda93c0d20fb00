// Package store persists normalized notices into Postgres. The three record
// variants share one wide table discriminated by entry_type; the flattening
// of the in-memory union onto that table lives here and nowhere else.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN      string
	Table    string
	MaxConns int32
}

type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store writes notice rows and the run ledger into Postgres.
type Store struct {
	pool    querier
	table   string
	builder sq.StatementBuilderType
	logger  *zap.Logger
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "fda_notices"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{
		pool:    pool,
		table:   table,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger:  logger,
	}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool querier, table string, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "fda_notices"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{
		pool:    pool,
		table:   table,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger:  logger,
	}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	return s.pool.Ping(ctx)
}

// Upsert writes one record inside a single transaction. The key is
// source_url when the record has one, otherwise the (entry_type, title,
// date) tuple of its variant. Re-running with unchanged input rewrites the
// existing row instead of growing the table.
func (s *Store) Upsert(ctx context.Context, rec notices.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("refuse to persist invalid record: %w", err)
	}
	cols := columnsFor(rec)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	// Rollback after a successful commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := s.findExisting(ctx, tx, rec)
	switch {
	case err == nil:
		query, args, buildErr := s.builder.Update(s.table).SetMap(cols).Where(sq.Eq{"id": id}).ToSql()
		if buildErr != nil {
			return fmt.Errorf("build update: %w", buildErr)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("update notice %d: %w", id, err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		query, args, buildErr := s.builder.Insert(s.table).SetMap(cols).ToSql()
		if buildErr != nil {
			return fmt.Errorf("build insert: %w", buildErr)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert notice: %w", err)
		}
	default:
		return fmt.Errorf("locate existing notice: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func (s *Store) findExisting(ctx context.Context, tx pgx.Tx, rec notices.Record) (int64, error) {
	sel := s.builder.Select("id").From(s.table)
	if rec.SourceURL != nil && *rec.SourceURL != "" {
		sel = sel.Where(sq.Eq{"source_url": *rec.SourceURL})
	} else {
		title, titleCol, dateCol, date := keyTuple(rec)
		sel = sel.Where(sq.Eq{
			"entry_type": string(rec.Type),
			titleCol:     title,
			dateCol:      date,
		})
	}
	query, args, err := sel.OrderBy("id").Limit(1).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build lookup: %w", err)
	}
	var id int64
	if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// keyTuple picks the variant's title and date columns for the fallback
// upsert key.
func keyTuple(rec notices.Record) (title, titleCol, dateCol string, date any) {
	switch {
	case rec.Alert != nil:
		return rec.Alert.Title, "alert_title", "date_issued", dateKey(rec.Alert.DateIssued)
	case rec.PressRelease != nil:
		return rec.PressRelease.Title, "press_release_title", "press_release_date", dateKey(rec.PressRelease.Date)
	default:
		return rec.Recall.ProductName, "product_name", "date_recall_issued", dateKey(rec.Recall.DateIssued)
	}
}

// dateKey unwraps the pointer so a missing date becomes an untyped nil,
// which renders as IS NULL instead of a never-matching "= NULL".
func dateKey(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// columnsFor flattens the union onto the wide column set. Every variant
// column is present so an update cannot leave stale values from a previous
// classification of the same row.
func columnsFor(rec notices.Record) map[string]any {
	cols := map[string]any{
		"entry_type":             string(rec.Type),
		"source_url":             rec.SourceURL,
		"pdf_path":               rec.PDFPath,
		"all_text":               textOrNil(rec.AllText),
		"date_recall_issued":     nil,
		"product_name":           nil,
		"product_type":           nil,
		"manufacturer":           nil,
		"recalling_firm":         nil,
		"batch_numbers":          nil,
		"manufacturing_date":     nil,
		"expiry_date":            nil,
		"reason_for_recall":      nil,
		"date_issued":            nil,
		"alert_title":            nil,
		"alert_pdf_filename":     nil,
		"press_release_title":    nil,
		"press_release_date":     nil,
		"press_release_pdf_link": nil,
	}
	switch {
	case rec.Recall != nil:
		f := rec.Recall
		cols["date_recall_issued"] = f.DateIssued
		cols["product_name"] = textOrNil(f.ProductName)
		cols["product_type"] = f.ProductType
		cols["manufacturer"] = f.Manufacturer
		cols["recalling_firm"] = f.RecallingFirm
		cols["batch_numbers"] = f.BatchNumbers
		cols["manufacturing_date"] = f.ManufacturingDate
		cols["expiry_date"] = f.ExpiryDate
		cols["reason_for_recall"] = f.Reason
	case rec.Alert != nil:
		f := rec.Alert
		cols["date_issued"] = f.DateIssued
		cols["alert_title"] = textOrNil(f.Title)
		cols["alert_pdf_filename"] = textOrNil(f.PDFFilename)
	case rec.PressRelease != nil:
		f := rec.PressRelease
		cols["press_release_title"] = textOrNil(f.Title)
		cols["press_release_date"] = f.Date
		cols["press_release_pdf_link"] = f.PDFLink
	}
	return cols
}

func textOrNil(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// Stats summarizes table contents for the stats command.
type Stats struct {
	Total  int64
	ByType map[notices.Category]int64
}

// Stats counts stored notices grouped by entry_type.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if s == nil || s.pool == nil {
		return Stats{}, fmt.Errorf("record store is not configured")
	}
	query, args, err := s.builder.
		Select("entry_type", "COUNT(*)").
		From(s.table).
		GroupBy("entry_type").
		OrderBy("entry_type").
		ToSql()
	if err != nil {
		return Stats{}, fmt.Errorf("build stats query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	out := Stats{ByType: map[notices.Category]int64{}}
	for rows.Next() {
		var (
			entryType string
			count     int64
		)
		if err := rows.Scan(&entryType, &count); err != nil {
			return Stats{}, fmt.Errorf("scan stats row: %w", err)
		}
		out.ByType[notices.Category(entryType)] = count
		out.Total += count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate stats rows: %w", err)
	}
	return out, nil
}

// Purge deletes every notice row and resets the id sequence. It returns the
// number of rows removed. The run ledger is left alone; it is history, not
// state.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("record store is not configured")
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table))
	if err != nil {
		return 0, fmt.Errorf("purge notices: %w", err)
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("ALTER SEQUENCE %s_id_seq RESTART WITH 1", s.table)); err != nil {
		return 0, fmt.Errorf("reset id sequence: %w", err)
	}
	return tag.RowsAffected(), nil
}
