package query

// NoLimit is the Limit of an unbounded scope.
const NoLimit = -1

// Scope bundles an optional condition, order and limit. The zero Scope matches every
// row, in key order, without a limit. Scopes are immutable; the With methods copy.
type Scope struct {
	cond     Condition
	order    Order
	limit    int
	hasLimit bool
}

func NewScope(c Condition) Scope {
	return Scope{cond: c}
}

func (s Scope) WithCondition(c Condition) Scope {
	s.cond = c
	return s
}

// Where narrows the scope by ANDing c onto its condition.
func (s Scope) Where(c Condition) Scope {
	s.cond = AllOf(s.cond, c)
	return s
}

func (s Scope) WithOrder(o Order) Scope {
	s.order = o
	return s
}

// WithLimit sets the limit; NoLimit (or any negative value) removes it.
func (s Scope) WithLimit(limit int) Scope {
	if limit < 0 {
		s.limit, s.hasLimit = 0, false
		return s
	}
	s.limit, s.hasLimit = limit, true
	return s
}

// Condition returns the scope's condition, True when none was set.
func (s Scope) Condition() Condition {
	if s.cond == nil {
		return True
	}
	return s.cond
}

func (s Scope) Order() Order {
	return s.order
}

func (s Scope) Limit() int {
	if !s.hasLimit {
		return NoLimit
	}
	return s.limit
}

func (s Scope) HasLimit() bool {
	return s.hasLimit
}
