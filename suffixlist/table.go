// Package suffixlist holds public suffix rules in the form the suffix
// resolver consumes: an immutable mapping from a normalized, dot-separated
// suffix to the kind of rule anchored there.
package suffixlist

import (
	"fmt"
	"strings"
)

// Kind is the type of rule stored for a suffix.
type Kind int8

const (
	// Wildcard marks a "*.suffix" rule: every child of the key is itself
	// a public suffix.
	Wildcard Kind = -1

	// Exact marks a plain "suffix" rule.
	Exact Kind = 0

	// Exception marks a "!suffix" rule overriding a wildcard; the key is
	// a registrable domain.
	Exception Kind = 1
)

func (k Kind) String() string {
	switch k {
	case Wildcard:
		return "wildcard"
	case Exact:
		return "exact"
	case Exception:
		return "exception"
	}
	return fmt.Sprintf("Kind(%d)", int8(k))
}

// Rules answers rule lookups for normalized suffix strings. Keys are
// matched exactly; wildcard semantics are encoded in which keys exist.
type Rules interface {
	Lookup(suffix string) (Kind, bool)
}

// Snapshotter is implemented by Rules whose contents can change. A
// resolver walking several suffixes of one name resolves against a single
// Snapshot so that every lookup sees the same table.
type Snapshotter interface {
	Snapshot() Rules
}

// Table is an immutable Rules implementation backed by a map. It can be
// shared by any number of goroutines.
type Table struct {
	rules map[string]Kind
	tlds  int
}

// NewTable creates a table holding a copy of rules.
func NewTable(rules map[string]Kind) *Table {
	t := &Table{rules: make(map[string]Kind, len(rules))}
	for suffix, kind := range rules {
		t.rules[suffix] = kind
		if !strings.Contains(suffix, ".") {
			t.tlds++
		}
	}
	return t
}

// Lookup returns the rule kind stored for suffix.
func (t *Table) Lookup(suffix string) (Kind, bool) {
	if t == nil {
		return 0, false
	}
	kind, ok := t.rules[suffix]
	return kind, ok
}

// Len returns the number of keys in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// TLDCount returns the number of single-label keys.
func (t *Table) TLDCount() int {
	if t == nil {
		return 0
	}
	return t.tlds
}
