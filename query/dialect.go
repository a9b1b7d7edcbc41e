package query

import (
	"strconv"
	"strings"
)

const (
	PostgresName = "postgres"
	GenericName  = "generic"
)

// Dialect supplies the backend-specific pieces of compiled fragments.
type Dialect interface {
	Name() string
	// Placeholder renders the nth (1-based) parameter marker.
	Placeholder(n int) string
	QuoteIdent(name string) string
	// NullSafeEquals is the operator for null-safe (in)equality.
	NullSafeEquals(negate bool) string
	// FloatType is the type name used to cast to double precision.
	FloatType() string
}

type (
	postgresDialect struct{}
	genericDialect  struct{}
)

var (
	// Postgres targets PostgreSQL and CockroachDB.
	Postgres Dialect = postgresDialect{}
	// Generic uses ? markers and SQLite spellings.
	Generic Dialect = genericDialect{}
)

func (postgresDialect) Name() string { return PostgresName }

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) QuoteIdent(name string) string { return quoteDouble(name) }

func (postgresDialect) NullSafeEquals(negate bool) string {
	if negate {
		return "IS DISTINCT FROM"
	}
	return "IS NOT DISTINCT FROM"
}

func (postgresDialect) FloatType() string { return "FLOAT8" }

func (genericDialect) Name() string { return GenericName }

func (genericDialect) Placeholder(int) string { return "?" }

func (genericDialect) QuoteIdent(name string) string { return quoteDouble(name) }

func (genericDialect) NullSafeEquals(negate bool) string {
	if negate {
		return "IS NOT"
	}
	return "IS"
}

func (genericDialect) FloatType() string { return "REAL" }

func quoteDouble(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
