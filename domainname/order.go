package domainname

// Ordering is the result of comparing two names in the domain hierarchy.
// A subdomain sorts before its ancestors; names on different branches
// are Incomparable.
type Ordering int8

const (
	Less         Ordering = -1
	Equal        Ordering = 0
	Greater      Ordering = 1
	Incomparable Ordering = 2
)

func (o Ordering) String() string {
	switch o {
	case Less:
		return "less"
	case Equal:
		return "equal"
	case Greater:
		return "greater"
	}
	return "incomparable"
}

// Reverse returns the ordering seen from the other operand.
func (o Ordering) Reverse() Ordering {
	switch o {
	case Less:
		return Greater
	case Greater:
		return Less
	}
	return o
}

// Truth is a three-valued boolean. Relations over Incomparable names are
// Unknown, which is neither true nor false.
type Truth int8

const (
	Unknown Truth = iota
	False
	True
)

func truth(b bool) Truth {
	if b {
		return True
	}
	return False
}

// Bool returns the boolean value and whether it is known.
func (t Truth) Bool() (value, known bool) {
	return t == True, t != Unknown
}

func (t Truth) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	}
	return "unknown"
}

// Compare orders a against b. a is Less when it is a subdomain of b and
// Greater when it is an ancestor of b.
func Compare(a, b *DomainName) Ordering {
	return compareHostnames(a.hostname, b.hostname)
}

func compareHostnames(a, b string) Ordering {
	switch {
	case a == b:
		return Equal
	case isSubdomain(a, b):
		return Less
	case isSubdomain(b, a):
		return Greater
	}
	return Incomparable
}

// isSubdomain reports whether child ends with "." + parent.
func isSubdomain(child, parent string) bool {
	n := len(child) - len(parent)
	return n > 1 && child[n-1] == '.' && child[n:] == parent
}

// Compare orders d against other.
func (d *DomainName) Compare(other *DomainName) Ordering {
	return Compare(d, other)
}

// Equal reports whether both names have the same normalized host name.
func (d *DomainName) Equal(other *DomainName) bool {
	return other != nil && d.hostname == other.hostname
}

// Less reports whether d is a proper subdomain of other.
func (d *DomainName) Less(other *DomainName) Truth {
	return relation(Compare(d, other), Less)
}

// LessOrEqual reports whether d is other or one of its subdomains.
func (d *DomainName) LessOrEqual(other *DomainName) Truth {
	return relation(Compare(d, other), Less, Equal)
}

// Greater reports whether d is a proper ancestor of other.
func (d *DomainName) Greater(other *DomainName) Truth {
	return relation(Compare(d, other), Greater)
}

// GreaterOrEqual reports whether d is other or one of its ancestors.
func (d *DomainName) GreaterOrEqual(other *DomainName) Truth {
	return relation(Compare(d, other), Greater, Equal)
}

func relation(o Ordering, accept ...Ordering) Truth {
	if o == Incomparable {
		return Unknown
	}
	for _, a := range accept {
		if o == a {
			return True
		}
	}
	return False
}

// Compare parses both host names and orders a against b.
func (p *Parser) Compare(a, b string) (Ordering, error) {
	da, err := p.Parse(a)
	if err != nil {
		return Incomparable, err
	}
	db, err := p.Parse(b)
	if err != nil {
		return Incomparable, err
	}
	return Compare(da, db), nil
}
