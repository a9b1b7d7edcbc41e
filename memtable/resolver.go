package memtable

import (
	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/value"
)

// Resolver resolves association conditions against the engine's own tables.
func (e *Engine) Resolver() query.Resolver {
	return engineResolver{e}
}

type engineResolver struct {
	e *Engine
}

func (er engineResolver) Exists(table string, c query.Condition) (bool, error) {
	t, err := er.e.Table(table)
	if err != nil {
		return false, err
	}
	_, ok, err := t.FindFirst(query.NewScope(c), er)
	return ok, err
}

func (er engineResolver) ValuesByForeignKey(table, column, condColumn string, condValue value.Value) ([]value.Value, error) {
	t, err := er.e.Table(table)
	if err != nil {
		return nil, err
	}
	return t.ValuesByForeignKey(column, condColumn, condValue)
}
