package sqlstore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/value"
)

func columnType(k value.Kind) (string, error) {
	switch k {
	case value.KindInt:
		return "INT8", nil
	case value.KindFloat:
		return "FLOAT8", nil
	case value.KindString:
		return "TEXT", nil
	case value.KindBool:
		return "BOOL", nil
	case value.KindTime:
		return "TIMESTAMPTZ", nil
	}
	return "", fmt.Errorf("no column type for kind %s", k)
}

// createTableSQL renders the DDL of def. The primary key is a BIGSERIAL so the backend
// allocates increasing keys.
func createTableSQL(d query.Dialect, def schema.TableDef) (string, error) {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	sb.WriteString(d.QuoteIdent(def.Name))
	sb.WriteString(" (")
	for i, c := range def.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.QuoteIdent(c.Name))
		if c.Name == def.PrimaryKey {
			sb.WriteString(" BIGSERIAL PRIMARY KEY")
			continue
		}
		typ, err := columnType(c.Kind)
		if err != nil {
			return "", err
		}
		sb.WriteString(" ")
		sb.WriteString(typ)
	}
	sb.WriteString(")")
	return sb.String(), nil
}

func quoteList(d query.Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// sortedColumns returns the column names of r in a stable order.
func sortedColumns(r value.Row) []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// insertSQL renders an INSERT of vals returning the primary key.
func insertSQL(d query.Dialect, def schema.TableDef, vals value.Row) (string, []any) {
	table := d.QuoteIdent(def.Name)
	pk := d.QuoteIdent(def.PrimaryKey)
	if len(vals) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", table, pk), nil
	}
	cols := sortedColumns(vals)
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		marks[i] = d.Placeholder(i + 1)
		args[i] = vals[c].Native()
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		table, quoteList(d, cols), strings.Join(marks, ", "), pk), args
}

// updateSQL renders an UPDATE of vals on one key. With now set, updated_at is moved
// to now only when some other written column actually differs from its stored value.
func updateSQL(d query.Dialect, def schema.TableDef, key int64, vals value.Row, now *value.Value) (string, []any) {
	cols := sortedColumns(vals)
	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	var changed []string
	for _, c := range cols {
		args = append(args, vals[c].Native())
		mark := d.Placeholder(len(args))
		sets = append(sets, d.QuoteIdent(c)+" = "+mark)
		if !schema.IsTimestampColumn(c) {
			changed = append(changed, d.QuoteIdent(c)+" "+d.NullSafeEquals(true)+" "+mark)
		}
	}
	if now != nil && len(changed) > 0 {
		args = append(args, now.Native())
		updated := d.QuoteIdent(schema.UpdatedAt)
		sets = append(sets, fmt.Sprintf("%s = CASE WHEN %s THEN %s ELSE %s END",
			updated, strings.Join(changed, " OR "), d.Placeholder(len(args)), updated))
	}
	args = append(args, key)
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		d.QuoteIdent(def.Name), strings.Join(sets, ", "), d.QuoteIdent(def.PrimaryKey), d.Placeholder(len(args))), args
}

// selectSQL renders the scan of scope. Rows come back in key order unless the scope
// orders them, and ties of an order are also broken by key, as in the memory engine.
func selectSQL(d query.Dialect, def schema.TableDef, columns []string, scope query.Scope) (string, []any, error) {
	frag, err := query.Compile(scope.Condition(), d, def.Name)
	if err != nil {
		return "", nil, err
	}
	table := d.QuoteIdent(def.Name)
	qualified := make([]string, len(columns))
	for i, c := range columns {
		qualified[i] = table + "." + d.QuoteIdent(c)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s WHERE %s ORDER BY ", strings.Join(qualified, ", "), table, frag.SQL)
	if !scope.Order().IsEmpty() {
		order, err := query.CompileOrder(scope.Order(), d, def.Name)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(order)
		sb.WriteString(", ")
	}
	sb.WriteString(table + "." + d.QuoteIdent(def.PrimaryKey) + " ASC")
	if scope.HasLimit() {
		fmt.Fprintf(&sb, " LIMIT %d", scope.Limit())
	}
	return sb.String(), frag.Args(), nil
}

func countSQL(d query.Dialect, def schema.TableDef, cond query.Condition) (string, []any, error) {
	frag, err := query.Compile(cond, d, def.Name)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", d.QuoteIdent(def.Name), frag.SQL), frag.Args(), nil
}

// aggregateSQL renders agg over the rows matching cond. Sums are cast to DECIMAL so
// integer and float sums decode the same way.
func aggregateSQL(d query.Dialect, def schema.TableDef, agg query.Aggregate, cond query.Condition) (string, []any, error) {
	expr, err := query.CompileAggregate(agg, d, def.Name)
	if err != nil {
		return "", nil, err
	}
	if agg.Func == query.Sum {
		expr = "CAST(" + expr + " AS DECIMAL)"
	}
	frag, err := query.Compile(cond, d, def.Name)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s", expr, d.QuoteIdent(def.Name), frag.SQL), frag.Args(), nil
}
