package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"ingres/internal/domain"
	"ingres/internal/structured"
)

// DefaultTable holds one JSONB document per record.
const DefaultTable = "groundwater_records"

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store is the Postgres-backed Structured Store. Records are kept as JSONB
// documents with whatever field names the source used; filters probe the
// alias table's key names case-insensitively.
type Store struct {
	DB      *sql.DB
	table   string
	aliases structured.AliasTable
	logger  *log.Logger
}

var (
	_ domain.RecordStore  = (*Store)(nil)
	_ domain.RecordWriter = (*Store)(nil)
)

// New wraps an open database handle.
func New(db *sql.DB, table string, aliases structured.AliasTable, logger *log.Logger) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	}
	return &Store{DB: db, table: table, aliases: aliases, logger: logger}, nil
}

// Open connects with dsn, pings and ensures the table exists.
func Open(ctx context.Context, dsn, table string, aliases structured.AliasTable, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := New(db, table, aliases, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Name() string { return "postgres" }

// EnsureSchema creates the records table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id BIGSERIAL PRIMARY KEY,
  doc JSONB NOT NULL
)`, s.table))
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Find translates a filter into SQL over the JSONB documents.
func (s *Store) Find(ctx context.Context, f domain.Filter) ([]domain.Record, error) {
	query, args := s.buildFind(f)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var rec domain.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Printf("skipping undecodable record: %v", err)
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *Store) buildFind(f domain.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if region := domain.CanonicalRegion(f.Region); region != "" {
		keys := arg(pq.Array(s.aliases.Keys(structured.FieldRegion)))
		pattern := arg("%" + escapeLike(region) + "%")
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_each_text(doc) kv WHERE lower(kv.key) = ANY(%s) AND lower(btrim(kv.value)) LIKE %s)", keys, pattern))
	}
	if period := strings.TrimSpace(f.Period); period != "" {
		keys := arg(pq.Array(s.aliases.Keys(structured.FieldPeriod)))
		value := arg(period)
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_each_text(doc) kv WHERE lower(kv.key) = ANY(%s) AND btrim(kv.value) = %s)", keys, value))
	}
	if terms := structured.Terms(f.Text); len(terms) > 0 {
		t := arg(pq.Array(terms))
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_each(doc) kv, unnest(%s::text[]) term WHERE jsonb_typeof(kv.value) = 'string' AND lower(kv.value #>> '{}') LIKE '%%' || term || '%%')", t))
	} else if strings.TrimSpace(f.Text) != "" {
		where = append(where, "FALSE")
	}

	q := "SELECT doc FROM " + s.table
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}
	return q, args
}

// Replace swaps every record in one transaction.
func (s *Store) Replace(ctx context.Context, records []domain.Record) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.table); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+s.table+" (doc) VALUES ($1)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for i, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, raw); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	s.logger.Printf("replaced records with %d rows", len(records))
	return nil
}

func (s *Store) Close() error { return s.DB.Close() }

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
