package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
	"github.com/xela07ax/guardian-demo/internal/audit"
	"github.com/xela07ax/guardian-demo/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS policy_events (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	address    TEXT NOT NULL DEFAULT '',
	payload    JSONB NOT NULL,
	timestamp  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS policy_events_ts_idx ON policy_events (timestamp DESC);`

// Количество колонок в таблице policy_events
const numFields = 5

const maxListLimit = 500

type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo открывает пул database/sql поверх pgx. Соединение проверяется в main через Ping.
func NewAuditRepo(connString string, maxConns, minConns int) (*AuditRepo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if minConns > 0 {
		db.SetMaxIdleConns(minConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	return &AuditRepo{db: db}, nil
}

func (r *AuditRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Migrate создает таблицу аудита, если ее еще нет.
func (r *AuditRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate policy_events: %w", err)
	}
	return nil
}

func (r *AuditRepo) Close() error {
	return r.db.Close()
}

// WriteBatch реализует audit.Storage: одна вставка на всю пачку.
func (r *AuditRepo) WriteBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}
	query, vals := buildInsert(records)
	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write %d audit records: %w", len(records), err)
	}
	return nil
}

// buildInsert динамически строит запрос для пакетной вставки.
// Повторная доставка той же записи игнорируется (ON CONFLICT по id).
func buildInsert(records []audit.Record) (string, []any) {
	var sb strings.Builder
	vals := make([]any, 0, len(records)*numFields)

	for i, rec := range records {
		if i > 0 {
			sb.WriteString(",")
		}
		p := i * numFields
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", p+1, p+2, p+3, p+4, p+5)
		vals = append(vals, rec.ID, string(rec.Type), rec.Address, []byte(rec.Payload), rec.Timestamp)
	}

	query := "INSERT INTO policy_events (id, type, address, payload, timestamp) VALUES " +
		sb.String() + " ON CONFLICT (id) DO NOTHING"
	return query, vals
}

// ListFilter: фильтры выборки истории. Пустые поля не фильтруют.
type ListFilter struct {
	Type    domain.EventType
	Address string
	Limit   int
}

// ListRecent возвращает записи аудита, свежие первыми.
func (r *AuditRepo) ListRecent(ctx context.Context, f ListFilter) ([]audit.Record, error) {
	query, args := buildList(f)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	defer rows.Close()

	out := make([]audit.Record, 0)
	for rows.Next() {
		var (
			rec     audit.Record
			typ     string
			payload []byte
		)
		if err := rows.Scan(&rec.ID, &typ, &rec.Address, &payload, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan audit row: %w", err)
		}
		rec.Type = domain.EventType(typ)
		rec.Payload = payload
		out = append(out, rec)
	}
	return out, rows.Err()
}

func buildList(f ListFilter) (string, []any) {
	limit := f.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	var (
		conds []string
		args  []any
	)
	if f.Type != "" {
		args = append(args, string(f.Type))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.Address != "" {
		args = append(args, f.Address)
		conds = append(conds, fmt.Sprintf("address = $%d", len(args)))
	}

	query := "SELECT id, type, address, payload, timestamp FROM policy_events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))
	return query, args
}
