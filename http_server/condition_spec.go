package http_server

import (
	"context"
	"fmt"

	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/store"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
)

type (
	// ConditionSpec is the JSON form of a condition tree. Op is a comparator name
	// ("is", "larger", "in", ...), a connective ("and", "or", "xor", "not") or an
	// association ("belongs_to", "has_one", "has_many", "has_many_through").
	ConditionSpec struct {
		Op     string          `json:"op" validate:"required"`
		Column string          `json:"column"`
		Func   string          `json:"func"`
		Value  any             `json:"value"`
		Values []any           `json:"values"`
		Terms  []ConditionSpec `json:"terms"`

		Target           string         `json:"target"`
		TargetKey        string         `json:"target_key"`
		ForeignKey       string         `json:"foreign_key"`
		OwnerKey         string         `json:"owner_key"`
		JoinTable        string         `json:"join_table"`
		JoinOwnerColumn  string         `json:"join_owner_column"`
		JoinTargetColumn string         `json:"join_target_column"`
		Where            *ConditionSpec `json:"where"`
	}

	OrderSpec struct {
		Column string `json:"column" validate:"required"`
		Func   string `json:"func"`
		Desc   bool   `json:"desc"`
	}

	ScopeSpec struct {
		Where   *ConditionSpec `json:"where"`
		Order   []OrderSpec    `json:"order"`
		Limit   *int           `json:"limit"`
		Columns []string       `json:"columns"`
	}
)

// specDecoder resolves operand kinds against table definitions, fetching each at most once.
type specDecoder struct {
	ctx  context.Context
	st   store.Store
	defs map[string]schema.TableDef
}

func newSpecDecoder(ctx context.Context, st store.Store) *specDecoder {
	return &specDecoder{ctx: ctx, st: st, defs: map[string]schema.TableDef{}}
}

func (d *specDecoder) def(table string) (schema.TableDef, error) {
	table = value.CanonicalName(table)
	if def, ok := d.defs[table]; ok {
		return def, nil
	}
	def, err := d.st.TableDef(d.ctx, table)
	if err != nil {
		return schema.TableDef{}, err
	}
	d.defs[table] = def
	return def, nil
}

// source builds the source and the kind its operands convert to.
func (d *specDecoder) source(table, column, fn string) (query.Source, value.Kind, error) {
	def, err := d.def(table)
	if err != nil {
		return query.Source{}, value.KindNull, err
	}
	col, err := def.Column(column)
	if err != nil {
		return query.Source{}, value.KindNull, err
	}
	if fn == "" {
		return query.Col(col.Name), col.Kind, nil
	}
	f, ok := query.Functions[fn]
	if !ok {
		return query.Source{}, value.KindNull, fmt.Errorf("derived function %q: %w", fn, query.ErrFuncNotFound)
	}
	return query.Fn(fn, col.Name), f.Kind, nil
}

// Condition decodes spec against table. A nil spec is query.True.
func (d *specDecoder) Condition(table string, spec *ConditionSpec) (query.Condition, error) {
	if spec == nil {
		return query.True, nil
	}
	switch spec.Op {
	case "and", "or", "xor":
		terms := make([]query.Condition, len(spec.Terms))
		for i := range spec.Terms {
			term, err := d.Condition(table, &spec.Terms[i])
			if err != nil {
				return nil, err
			}
			terms[i] = term
		}
		switch spec.Op {
		case "and":
			return query.AllOf(terms...), nil
		case "or":
			return query.AnyOf(terms...), nil
		}
		return query.OneOf(terms...), nil
	case "not":
		if len(spec.Terms) != 1 {
			return nil, fmt.Errorf("not takes exactly one term: %w", utils.ErrUnsupportedShape)
		}
		term, err := d.Condition(table, &spec.Terms[0])
		if err != nil {
			return nil, err
		}
		return query.Negate(term), nil
	case "belongs_to", "has_one", "has_many", "has_many_through":
		return d.association(table, spec)
	}
	return d.comparison(table, spec)
}

func (d *specDecoder) comparison(table string, spec *ConditionSpec) (query.Condition, error) {
	op, err := query.ParseComparator(spec.Op)
	if err != nil {
		return nil, err
	}
	if op == query.OpTrue {
		return query.True, nil
	}
	src, kind, err := d.source(table, spec.Column, spec.Func)
	if err != nil {
		return nil, err
	}
	switch op {
	case query.OpIsNull, query.OpIsNotNull:
		return query.Compare(src, op, value.Null()), nil
	case query.OpLike:
		kind = value.KindString
	case query.OpIn:
		list := make([]value.Value, len(spec.Values))
		for i, x := range spec.Values {
			v, err := value.FromJSON(x, kind)
			if err != nil {
				return nil, fmt.Errorf("error in FromJSON for %s: %w", src, err)
			}
			list[i] = v
		}
		return query.InSource(src, list)
	}
	v, err := value.FromJSON(spec.Value, kind)
	if err != nil {
		return nil, fmt.Errorf("error in FromJSON for %s: %w", src, err)
	}
	return query.Compare(src, op, v), nil
}

func (d *specDecoder) association(table string, spec *ConditionSpec) (query.Condition, error) {
	if spec.Target == "" {
		return nil, fmt.Errorf("%s needs a target: %w", spec.Op, utils.ErrUnsupportedShape)
	}
	where, err := d.Condition(spec.Target, spec.Where)
	if err != nil {
		return nil, err
	}
	switch spec.Op {
	case "belongs_to":
		return query.BelongsTo(spec.Column, spec.Target, spec.TargetKey, where), nil
	case "has_one":
		return query.HasOne(spec.Target, spec.ForeignKey, spec.OwnerKey, where), nil
	case "has_many":
		return query.HasMany(spec.Target, spec.ForeignKey, spec.OwnerKey, where), nil
	}
	return query.HasManyThrough(spec.JoinTable, spec.JoinOwnerColumn, spec.JoinTargetColumn, spec.OwnerKey, spec.Target, spec.TargetKey, where), nil
}

// Scope decodes the where, order and limit of spec against table.
func (d *specDecoder) Scope(table string, spec ScopeSpec) (query.Scope, error) {
	cond, err := d.Condition(table, spec.Where)
	if err != nil {
		return query.Scope{}, err
	}
	scope := query.NewScope(cond)

	var orders []query.Order
	for _, o := range spec.Order {
		src, _, err := d.source(table, o.Column, o.Func)
		if err != nil {
			return query.Scope{}, err
		}
		dir := query.Ascending
		if o.Desc {
			dir = query.Descending
		}
		orders = append(orders, query.OrderBySource(src, dir))
	}
	if len(orders) > 0 {
		scope = scope.WithOrder(query.Combine(orders...))
	}
	if spec.Limit != nil {
		scope = scope.WithLimit(*spec.Limit)
	}
	return scope, nil
}
