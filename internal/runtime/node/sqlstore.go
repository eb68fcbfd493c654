package node

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"github.com/drblury/streamsearch/internal/runtime/protocol"
)

const itemsTable = "search_items"

const (
	colSeq        = "seq"
	colID         = "id"
	colSearchText = "search_text"
)

var schemas = map[string]string{
	DriverSQLite: `
	CREATE TABLE IF NOT EXISTS search_items (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT '',
		score REAL NOT NULL DEFAULT 0,
		published TIMESTAMP NOT NULL,
		search_text TEXT NOT NULL
	);`,
	DriverPostgres: `
	CREATE TABLE IF NOT EXISTS search_items (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT '',
		score DOUBLE PRECISION NOT NULL DEFAULT 0,
		published TIMESTAMPTZ NOT NULL,
		search_text TEXT NOT NULL
	);`,
}

// containsFunc is the substring position function of each dialect.
var containsFunc = map[string]string{
	DriverSQLite:   "INSTR",
	DriverPostgres: "STRPOS",
}

type itemRow struct {
	Seq        int64     `db:"seq" goqu:"skipinsert"`
	ID         string    `db:"id"`
	Title      string    `db:"title"`
	Summary    string    `db:"summary"`
	Content    string    `db:"content"`
	Link       string    `db:"link"`
	Author     string    `db:"author"`
	Image      string    `db:"image"`
	Score      float64   `db:"score"`
	Published  time.Time `db:"published"`
	SearchText string    `db:"search_text"`
}

func toRow(item protocol.AtomEntry) itemRow {
	published := item.Published
	if published.IsZero() {
		published = time.Now()
	}
	return itemRow{
		ID:         item.ID,
		Title:      item.Title,
		Summary:    item.Summary,
		Content:    item.Content,
		Link:       item.Link,
		Author:     item.Author,
		Image:      item.Image,
		Score:      item.Score,
		Published:  published.UTC(),
		SearchText: strings.ToLower(item.Text()),
	}
}

func (r itemRow) entry() protocol.AtomEntry {
	return protocol.AtomEntry{
		ID:        r.ID,
		Title:     r.Title,
		Summary:   r.Summary,
		Content:   r.Content,
		Link:      r.Link,
		Author:    r.Author,
		Image:     r.Image,
		Score:     r.Score,
		Published: r.Published.UTC(),
	}
}

// SQLStore keeps items in SQLite or PostgreSQL.
type SQLStore struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
	driver  string
}

// OpenSQLStore connects to the database and creates the items table. An
// empty SQLite DSN opens an in-memory database.
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	schema, ok := schemas[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if dsn == "" {
		if driver != DriverSQLite {
			return nil, fmt.Errorf("%s: DSN is required", driver)
		}
		dsn = ":memory:"
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s item store: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	return NewSQLStore(ctx, db, driver, schema)
}

// NewSQLStore wraps an open database. schema is executed once; pass "" when
// the table already exists.
func NewSQLStore(ctx context.Context, db *sqlx.DB, driver, schema string) (*SQLStore, error) {
	if _, ok := containsFunc[driver]; !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if schema != "" {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return nil, fmt.Errorf("create %s: %w", itemsTable, err)
		}
	}
	return &SQLStore{db: db, dialect: goqu.Dialect(driver), driver: driver}, nil
}

func (s *SQLStore) Add(ctx context.Context, item protocol.AtomEntry) error {
	query, args, err := s.dialect.Insert(itemsTable).
		Prepared(true).
		Rows(toRow(item)).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert item %q: %w", item.ID, err)
	}
	return nil
}

func (s *SQLStore) Recent(ctx context.Context, query string, limit int) ([]protocol.AtomEntry, error) {
	terms := Terms(query)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	where := make([]goqu.Expression, 0, len(terms))
	for _, term := range terms {
		where = append(where, goqu.Func(containsFunc[s.driver], goqu.C(colSearchText), term).Gt(0))
	}

	sql, args, err := s.dialect.From(itemsTable).
		Prepared(true).
		Select(&itemRow{}).
		Where(where...).
		Order(goqu.C(colSeq).Desc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	items := make([]protocol.AtomEntry, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.entry())
	}
	return items, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
