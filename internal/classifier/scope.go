package classifier

import "strings"

// relation is a name visible in a FROM clause.
type relation struct {
	// table is the canonical base table, or empty for derived tables and
	// common table expression references.
	table string
}

// scope holds the relations of one SELECT block and the common table
// expressions of one WITH clause. Lookups fall through to parent scopes so
// correlated references resolve to enclosing queries.
type scope struct {
	relations map[string]*relation
	order     []*relation
	ctes      map[string]struct{}
	parent    *scope
}

func newScope(parent *scope) *scope {
	return &scope{
		relations: make(map[string]*relation),
		ctes:      make(map[string]struct{}),
		parent:    parent,
	}
}

func (s *scope) addRelation(name string, rel *relation) {
	if s == nil || rel == nil {
		return
	}
	key := normalizeName(name)
	if key == "" {
		return
	}
	s.relations[key] = rel
	s.order = append(s.order, rel)
}

func (s *scope) addCTE(name string) {
	if s == nil {
		return
	}
	s.ctes[normalizeName(name)] = struct{}{}
}

// lookup resolves a qualifier against this scope and its ancestors.
func (s *scope) lookup(name string) (*relation, bool) {
	key := normalizeName(name)
	for cur := s; cur != nil; cur = cur.parent {
		if rel, ok := cur.relations[key]; ok {
			return rel, true
		}
	}
	return nil, false
}

func (s *scope) hasCTE(name string) bool {
	key := normalizeName(name)
	for cur := s; cur != nil; cur = cur.parent {
		if _, ok := cur.ctes[key]; ok {
			return true
		}
	}
	return false
}

// single returns the only relation of this block, if there is exactly one.
func (s *scope) single() (*relation, bool) {
	if s == nil || len(s.order) != 1 {
		return nil, false
	}
	return s.order[0], true
}

func normalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
