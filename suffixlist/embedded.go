package suffixlist

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// probeLabel is a label that no public suffix rule names. Prepending it to
// a key reveals whether a wildcard rule covers the key's children.
const probeLabel = "hostclass-probe"

type embedded struct{}

// Embedded returns rules backed by the public suffix list compiled into
// golang.org/x/net/publicsuffix. It is used when no list is configured.
func Embedded() Rules {
	return embedded{}
}

func (embedded) Lookup(suffix string) (Kind, bool) {
	if suffix == "" || suffix == "local" {
		return 0, false
	}

	if isWildcard(suffix) {
		return Wildcard, true
	}

	ps, icann := publicsuffix.PublicSuffix(suffix)
	dot := strings.IndexByte(suffix, '.')

	if ps == suffix {
		// unlisted TLDs match the implicit "*" rule, which is not ICANN
		if dot < 0 && !icann {
			return 0, false
		}
		return Exact, true
	}

	if dot >= 0 {
		parent := suffix[dot+1:]
		if ps == parent && isWildcard(parent) {
			return Exception, true
		}
	}

	return 0, false
}

func isWildcard(suffix string) bool {
	probe := probeLabel + "." + suffix
	ps, _ := publicsuffix.PublicSuffix(probe)
	return ps == probe
}
