package query

import (
	"errors"
	"testing"

	"github.com/danthegoodman1/recordstore/value"
)

// mapResolver keeps tables as key -> row.
type mapResolver map[string]map[int64]value.Row

func (m mapResolver) Exists(table string, c Condition) (bool, error) {
	for _, row := range m[table] {
		ok, err := Evaluate(c, row, m)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (m mapResolver) ValuesByForeignKey(table, column, condColumn string, condValue value.Value) ([]value.Value, error) {
	var out []value.Value
	for _, row := range m[table] {
		if value.Equal(row[condColumn], condValue) {
			out = append(out, row[column])
		}
	}
	return out, nil
}

func fixture() mapResolver {
	return mapResolver{
		"authors": {
			1: {"id": value.Int(1), "name": value.String("ada")},
			2: {"id": value.Int(2), "name": value.String("bob")},
		},
		"posts": {
			10: {"id": value.Int(10), "author_id": value.Int(1), "title": value.String("engines")},
			11: {"id": value.Int(11), "author_id": value.Int(3), "title": value.String("orphan")},
		},
		"groups": {
			100: {"id": value.Int(100), "name": value.String("admins")},
		},
		"memberships": {
			1: {"id": value.Int(1), "user_id": value.Int(2), "group_id": value.Int(100)},
			2: {"id": value.Int(2), "user_id": value.Int(2), "group_id": value.Int(404)},
		},
	}
}

func TestBelongsTo(t *testing.T) {
	r := fixture()
	c := BelongsTo("author_id", "authors", "id", Is("name", value.String("ada")))

	ok, err := Evaluate(c, r["posts"][10], r)
	if err != nil || !ok {
		t.Fatalf("expected post 10 to belong to ada, got %v %v", ok, err)
	}
	// the author of post 11 does not exist: no association, no error
	ok, err = Evaluate(c, r["posts"][11], r)
	if err != nil || ok {
		t.Fatalf("expected vanished author to be no match, got %v %v", ok, err)
	}
}

func TestHasMany(t *testing.T) {
	r := fixture()
	c := HasMany("posts", "author_id", "id", Like("title", "eng%"))
	ok, err := Evaluate(c, r["authors"][1], r)
	if err != nil || !ok {
		t.Fatal("ada has a matching post")
	}
	ok, err = Evaluate(c, r["authors"][2], r)
	if err != nil || ok {
		t.Fatal("bob has no posts")
	}
}

func TestHasManyThrough(t *testing.T) {
	r := fixture()
	c := HasManyThrough("memberships", "user_id", "group_id", "id", "groups", "id", Is("name", value.String("admins")))
	ok, err := Evaluate(c, r["authors"][2], r)
	if err != nil || !ok {
		t.Fatalf("bob is an admin, got %v %v", ok, err)
	}
	ok, err = Evaluate(c, r["authors"][1], r)
	if err != nil || ok {
		t.Fatal("ada is in no group")
	}
}

func TestAssociationNeedsResolver(t *testing.T) {
	_, err := Matches(HasOne("posts", "author_id", "id", nil), value.Row{"id": value.Int(1)})
	if !errors.Is(err, ErrNoResolver) {
		t.Fatalf("expected ErrNoResolver, got %v", err)
	}
}

func TestTables(t *testing.T) {
	c := AllOf(
		HasManyThrough("memberships", "user_id", "group_id", "id", "groups", "id", nil),
		Negate(HasMany("posts", "author_id", "id", BelongsTo("author_id", "authors", "id", nil))),
	)
	got := Tables(c)
	want := []string{"memberships", "groups", "posts", "authors"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestAssociationsUseDeclaredTargetKey(t *testing.T) {
	r := mapResolver{
		"groups": {
			1: {"id": value.Int(1), "code": value.Int(2), "name": value.String("guests")},
			2: {"id": value.Int(2), "code": value.Int(1), "name": value.String("admins")},
		},
		"grants": {
			1: {"id": value.Int(1), "user_id": value.Int(7), "group_code": value.Int(1)},
		},
	}
	user := value.Row{"id": value.Int(7), "group_code": value.Int(1)}

	ok, err := Evaluate(BelongsTo("group_code", "groups", "code", Is("name", value.String("admins"))), user, r)
	if err != nil || !ok {
		t.Fatalf("group_code 1 is the admins code, got %v %v", ok, err)
	}
	ok, err = Evaluate(BelongsTo("group_code", "groups", "code", Is("name", value.String("guests"))), user, r)
	if err != nil || ok {
		t.Fatalf("the guests row has id 1 but code 2, got %v %v", ok, err)
	}

	through := HasManyThrough("grants", "user_id", "group_code", "id", "groups", "code", Is("name", value.String("admins")))
	ok, err = Evaluate(through, user, r)
	if err != nil || !ok {
		t.Fatalf("expected the grant to reach admins by code, got %v %v", ok, err)
	}
	through = HasManyThrough("grants", "user_id", "group_code", "id", "groups", "code", Is("name", value.String("guests")))
	ok, err = Evaluate(through, user, r)
	if err != nil || ok {
		t.Fatalf("expected no guests grant, got %v %v", ok, err)
	}
}
