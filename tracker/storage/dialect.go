package storage

import (
	"fmt"
	"strings"
)

// Dialect captures the SQL differences between the supported backends
type Dialect struct {
	Name      string
	Driver    string
	Timestamp string
	Float     string
	BigInt    string
	numbered  bool
}

var (
	// Postgres is served by lib/pq
	Postgres = Dialect{
		Name:      "postgres",
		Driver:    "postgres",
		Timestamp: "TIMESTAMPTZ",
		Float:     "DOUBLE PRECISION",
		BigInt:    "BIGINT",
		numbered:  true,
	}

	// SQLite is served by modernc.org/sqlite
	SQLite = Dialect{
		Name:      "sqlite",
		Driver:    "sqlite",
		Timestamp: "DATETIME",
		Float:     "REAL",
		BigInt:    "INTEGER",
	}
)

// DialectFor returns the dialect of a backend name
func DialectFor(backend string) (Dialect, error) {
	switch backend {
	case Postgres.Name:
		return Postgres, nil
	case SQLite.Name:
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported storage backend %q", backend)
}

// Placeholder returns the n-th (1-based) bind parameter
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Placeholders returns count bind parameters starting at from, comma separated
func (d Dialect) Placeholders(from, count int) string {
	ps := make([]string, count)
	for i := range ps {
		ps[i] = d.Placeholder(from + i)
	}
	return strings.Join(ps, ", ")
}

// whereBuilder accumulates filter clauses with dialect placeholders
type whereBuilder struct {
	d       Dialect
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, w.d.Placeholder(len(w.args))))
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}
