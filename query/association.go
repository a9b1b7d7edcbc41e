package query

import (
	"fmt"

	"github.com/danthegoodman1/recordstore/value"
)

type AssociationKind int

const (
	// BelongsToKind: the owner row holds a foreign key to the target's key.
	BelongsToKind AssociationKind = iota
	// HasOneKind: a target row holds a foreign key to the owner's key.
	HasOneKind
	// HasManyKind: like HasOneKind, any of several target rows may match.
	HasManyKind
	// HasManyThroughKind: a join table pairs owner keys with target keys.
	HasManyThroughKind
)

func (k AssociationKind) String() string {
	switch k {
	case BelongsToKind:
		return "belongs_to"
	case HasOneKind:
		return "has_one"
	case HasManyKind:
		return "has_many"
	case HasManyThroughKind:
		return "has_many_through"
	}
	return fmt.Sprintf("association(%d)", int(k))
}

// Association holds when a related row satisfies Cond. Which fields are used depends
// on Kind; see the constructors.
type Association struct {
	Kind AssociationKind
	Cond Condition

	// BelongsTo: owner column holding the target key.
	Column string
	// Target table and its key column.
	Target    string
	TargetKey string
	// HasOne/HasMany: target column holding the owner key.
	ForeignKey string
	// Owner's key column, for HasOne/HasMany/HasManyThrough.
	OwnerKey string
	// HasManyThrough join table.
	JoinTable        string
	JoinOwnerColumn  string
	JoinTargetColumn string
}

// BelongsTo: owner.column references target.targetKey and that target row matches cond.
func BelongsTo(column, target, targetKey string, cond Condition) Condition {
	return &Association{
		Kind:      BelongsToKind,
		Column:    value.CanonicalName(column),
		Target:    value.CanonicalName(target),
		TargetKey: value.CanonicalName(targetKey),
		Cond:      orTrue(cond),
	}
}

// HasOne: a target row with target.foreignKey = owner.ownerKey matches cond.
func HasOne(target, foreignKey, ownerKey string, cond Condition) Condition {
	return hasAssoc(HasOneKind, target, foreignKey, ownerKey, cond)
}

// HasMany: some target row with target.foreignKey = owner.ownerKey matches cond.
func HasMany(target, foreignKey, ownerKey string, cond Condition) Condition {
	return hasAssoc(HasManyKind, target, foreignKey, ownerKey, cond)
}

func hasAssoc(kind AssociationKind, target, foreignKey, ownerKey string, cond Condition) Condition {
	return &Association{
		Kind:       kind,
		Target:     value.CanonicalName(target),
		ForeignKey: value.CanonicalName(foreignKey),
		OwnerKey:   value.CanonicalName(ownerKey),
		Cond:       orTrue(cond),
	}
}

// HasManyThrough: some target row reachable through joinTable
// (joinOwnerColumn = owner.ownerKey, joinTargetColumn = target.targetKey) matches cond.
func HasManyThrough(joinTable, joinOwnerColumn, joinTargetColumn, ownerKey, target, targetKey string, cond Condition) Condition {
	return &Association{
		Kind:             HasManyThroughKind,
		JoinTable:        value.CanonicalName(joinTable),
		JoinOwnerColumn:  value.CanonicalName(joinOwnerColumn),
		JoinTargetColumn: value.CanonicalName(joinTargetColumn),
		OwnerKey:         value.CanonicalName(ownerKey),
		Target:           value.CanonicalName(target),
		TargetKey:        value.CanonicalName(targetKey),
		Cond:             orTrue(cond),
	}
}

func orTrue(c Condition) Condition {
	if c == nil {
		return True
	}
	return c
}

// Tables lists every table an association inside c reaches, nested ones included.
func Tables(c Condition) []string {
	seen := map[string]bool{}
	var out []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	var walk func(Condition)
	walk = func(c Condition) {
		switch t := c.(type) {
		case *And:
			for _, x := range t.Terms {
				walk(x)
			}
		case *Or:
			for _, x := range t.Terms {
				walk(x)
			}
		case *Xor:
			for _, x := range t.Terms {
				walk(x)
			}
		case *Not:
			walk(t.Term)
		case *Association:
			add(t.JoinTable)
			add(t.Target)
			walk(t.Cond)
		}
	}
	walk(c)
	return out
}
