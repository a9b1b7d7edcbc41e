package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
)

// Fragment is compiled backend text plus its parameters. The nth placeholder in SQL
// corresponds to Params[n-1], which always equals Params(c) for the compiled condition.
type Fragment struct {
	SQL    string
	Params []value.Value
}

// Args returns the parameters as driver values.
func (f Fragment) Args() []any {
	args := make([]any, len(f.Params))
	for i, p := range f.Params {
		args[i] = p.Native()
	}
	return args
}

var ErrUnqualifiedAssociation = errors.New("association conditions need a qualified table")

var binaryOps = map[Comparator]string{
	OpLarger:        ">",
	OpLargerEquals:  ">=",
	OpSmaller:       "<",
	OpSmallerEquals: "<=",
}

// Compile renders c as a WHERE fragment for d. Columns are qualified with table
// unless table is empty. Negations are wrapped in COALESCE(..., FALSE) so a NULL
// comparison negates to false, as it does in Evaluate.
func Compile(c Condition, d Dialect, table string) (Fragment, error) {
	cp := &compiler{d: d}
	qual := ""
	if table != "" {
		qual = d.QuoteIdent(table)
	}
	sql, err := cp.cond(c, qual)
	if err != nil {
		return Fragment{}, err
	}
	return Fragment{SQL: sql, Params: cp.params}, nil
}

type compiler struct {
	d       Dialect
	params  []value.Value
	aliases int
}

func (cp *compiler) param(v value.Value) string {
	cp.params = append(cp.params, v)
	return cp.d.Placeholder(len(cp.params))
}

func (cp *compiler) alias() string {
	cp.aliases++
	return "r" + strconv.Itoa(cp.aliases)
}

func (cp *compiler) column(qual, column string) string {
	if qual == "" {
		return cp.d.QuoteIdent(column)
	}
	return qual + "." + cp.d.QuoteIdent(column)
}

func (cp *compiler) source(s Source, qual string) (string, error) {
	return sourceSQL(cp.d, s, cp.column(qual, s.Column))
}

func sourceSQL(d Dialect, s Source, col string) (string, error) {
	if s.Func == "" {
		return col, nil
	}
	f, ok := Functions[s.Func]
	if !ok {
		return "", fmt.Errorf("derived function %q: %w", s.Func, ErrFuncNotFound)
	}
	tmpl, ok := f.SQL[d.Name()]
	if !ok {
		return "", fmt.Errorf("derived function %q has no %s form: %w", s.Func, d.Name(), utils.ErrUnsupportedShape)
	}
	return strings.ReplaceAll(tmpl, "{col}", col), nil
}

func (cp *compiler) cond(c Condition, qual string) (string, error) {
	if IsTrue(c) {
		return "TRUE", nil
	}
	switch t := c.(type) {
	case *Comparison:
		return cp.comparison(t, qual)
	case *And:
		return cp.list(t.Terms, " AND ", "TRUE", qual)
	case *Or:
		return cp.list(t.Terms, " OR ", "FALSE", qual)
	case *Xor:
		return cp.xor(t.Terms, qual)
	case *Not:
		inner, err := cp.cond(t.Term, qual)
		if err != nil {
			return "", err
		}
		return negated(inner), nil
	case *Association:
		return cp.association(t, qual)
	}
	return "", fmt.Errorf("cannot compile condition %T", c)
}

func negated(sql string) string {
	return "NOT COALESCE(" + sql + ", FALSE)"
}

func (cp *compiler) list(terms []Condition, sep, empty, qual string) (string, error) {
	if len(terms) == 0 {
		return empty, nil
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		s, err := cp.cond(t, qual)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// xor has no native form: it becomes OR over "term i holds and every other term does
// not", so the fragment grows quadratically with the number of terms.
func (cp *compiler) xor(terms []Condition, qual string) (string, error) {
	switch len(terms) {
	case 0:
		return "FALSE", nil
	case 1:
		return cp.cond(terms[0], qual)
	}
	clauses := make([]string, len(terms))
	for i := range terms {
		parts := make([]string, len(terms))
		for j, t := range terms {
			s, err := cp.cond(t, qual)
			if err != nil {
				return "", err
			}
			if i == j {
				parts[j] = s
			} else {
				parts[j] = negated(s)
			}
		}
		clauses[i] = "(" + strings.Join(parts, " AND ") + ")"
	}
	return "(" + strings.Join(clauses, " OR ") + ")", nil
}

func (cp *compiler) comparison(c *Comparison, qual string) (string, error) {
	expr, err := cp.source(c.Source, qual)
	if err != nil {
		return "", err
	}
	switch c.Op {
	case OpIs:
		return expr + " " + cp.d.NullSafeEquals(false) + " " + cp.param(c.Operand), nil
	case OpIsNot:
		return expr + " " + cp.d.NullSafeEquals(true) + " " + cp.param(c.Operand), nil
	case OpIsNull:
		return expr + " IS NULL", nil
	case OpIsNotNull:
		return expr + " IS NOT NULL", nil
	case OpLike:
		return expr + " LIKE " + cp.param(likeParam(c.Operand)) + ` ESCAPE '\'`, nil
	case OpIn:
		if len(c.Operands) == 0 {
			return "FALSE", nil
		}
		marks := make([]string, len(c.Operands))
		for i, o := range c.Operands {
			marks[i] = cp.param(o)
		}
		return expr + " IN (" + strings.Join(marks, ", ") + ")", nil
	}
	if op, ok := binaryOps[c.Op]; ok {
		return expr + " " + op + " " + cp.param(c.Operand), nil
	}
	return "", fmt.Errorf("cannot compile comparator %s", c.Op)
}

func likeParam(v value.Value) value.Value {
	if v.Kind != value.KindString {
		return v
	}
	return value.String(escapeLike(v.S))
}

func (cp *compiler) association(a *Association, qual string) (string, error) {
	if qual == "" {
		return "", ErrUnqualifiedAssociation
	}
	switch a.Kind {
	case BelongsToKind:
		t := cp.alias()
		inner, err := cp.cond(a.Cond, t)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s IN (SELECT %s FROM %s %s WHERE %s)",
			cp.column(qual, a.Column), cp.column(t, a.TargetKey), cp.d.QuoteIdent(a.Target), t, inner), nil
	case HasOneKind, HasManyKind:
		t := cp.alias()
		inner, err := cp.cond(a.Cond, t)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s WHERE %s = %s AND %s)",
			cp.d.QuoteIdent(a.Target), t, cp.column(t, a.ForeignKey), cp.column(qual, a.OwnerKey), inner), nil
	case HasManyThroughKind:
		j := cp.alias()
		t := cp.alias()
		inner, err := cp.cond(a.Cond, t)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s IN (SELECT %s FROM %s %s WHERE %s IN (SELECT %s FROM %s %s WHERE %s))",
			cp.column(qual, a.OwnerKey), cp.column(j, a.JoinOwnerColumn), cp.d.QuoteIdent(a.JoinTable), j,
			cp.column(j, a.JoinTargetColumn), cp.column(t, a.TargetKey), cp.d.QuoteIdent(a.Target), t, inner), nil
	}
	return "", fmt.Errorf("cannot compile association %s", a.Kind)
}

// Params returns the parameters of c in placeholder order without rendering any text.
func Params(c Condition) []value.Value {
	var out []value.Value
	collectParams(c, &out)
	return out
}

func collectParams(c Condition, out *[]value.Value) {
	if IsTrue(c) {
		return
	}
	switch t := c.(type) {
	case *Comparison:
		switch t.Op {
		case OpIsNull, OpIsNotNull:
		case OpIn:
			*out = append(*out, t.Operands...)
		case OpLike:
			*out = append(*out, likeParam(t.Operand))
		default:
			*out = append(*out, t.Operand)
		}
	case *And:
		for _, x := range t.Terms {
			collectParams(x, out)
		}
	case *Or:
		for _, x := range t.Terms {
			collectParams(x, out)
		}
	case *Xor:
		if len(t.Terms) == 1 {
			collectParams(t.Terms[0], out)
			return
		}
		for range t.Terms {
			for _, x := range t.Terms {
				collectParams(x, out)
			}
		}
	case *Not:
		collectParams(t.Term, out)
	case *Association:
		collectParams(t.Cond, out)
	}
}
