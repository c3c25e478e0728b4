// Package legacy reads lead rows from the pre-CRM contact database so they
// can be backfilled into the lead store.
package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"github.com/wolfman30/estate-crm/internal/leads"
	"github.com/wolfman30/estate-crm/pkg/logging"
)

const defaultTable = "contacts"

// Reader implements leads.LegacySource over database/sql.
type Reader struct {
	db     *sql.DB
	table  string
	logger *logging.Logger
}

// Open connects to the legacy database using the lib/pq driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("legacy: database url is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("legacy: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("legacy: ping: %w", err)
	}
	return db, nil
}

func NewReader(db *sql.DB, logger *logging.Logger) *Reader {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reader{db: db, table: defaultTable, logger: logger}
}

// WithTable overrides the source table. Only simple identifiers are accepted.
func (r *Reader) WithTable(table string) *Reader {
	if isIdentifier(table) {
		r.table = table
	}
	return r
}

// FetchLeads returns every legacy row ordered by creation time.
func (r *Reader) FetchLeads(ctx context.Context) ([]leads.LegacyRecord, error) {
	query := `SELECT id, name, phone, email, budget, notes, created_at FROM ` + r.table + ` ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("legacy: query %s: %w", r.table, err)
	}
	defer rows.Close()

	var out []leads.LegacyRecord
	for rows.Next() {
		var (
			id                                int64
			name, phone, email, budget, notes sql.NullString
			createdAt                         sql.NullTime
		)
		if err := rows.Scan(&id, &name, &phone, &email, &budget, &notes, &createdAt); err != nil {
			return nil, fmt.Errorf("legacy: scan: %w", err)
		}
		out = append(out, leads.LegacyRecord{
			ID:        strconv.FormatInt(id, 10),
			Name:      name.String,
			Phone:     phone.String,
			Email:     email.String,
			Budget:    budget.String,
			Notes:     notes.String,
			CreatedAt: createdAt.Time,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("legacy: rows: %w", err)
	}
	r.logger.Info("legacy leads fetched", "table", r.table, "count", len(out))
	return out, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case c >= '0' && c <= '9' && i > 0:
		case c == '.' && i > 0:
		default:
			return false
		}
	}
	return true
}
