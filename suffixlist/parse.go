package suffixlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"hostclass/normalization"
)

// ErrSyntax is returned for rule lines the parser does not understand.
var ErrSyntax = errors.New("suffix list syntax error")

const (
	icannBegin = "// ===BEGIN ICANN DOMAINS==="
	icannEnd   = "// ===END ICANN DOMAINS==="
)

type parseOptions struct {
	icannOnly bool
}

// ParseOption configures Parse.
type ParseOption func(*parseOptions)

// ICANNOnly keeps only the rules of the ICANN section of the list and
// drops privately registered suffixes.
func ICANNOnly() ParseOption {
	return func(o *parseOptions) {
		o.icannOnly = true
	}
}

// Parse reads a list in the publicsuffix.org format.
//
// Everything after "//" is a comment and only the first whitespace
// separated token of a line is a rule. "a.b" is stored as Exact, "*.a.b"
// as Wildcard and "!a.b" as Exception, all keyed by the normalized "a.b".
// The "local" rule is skipped. The TLD of every rule is registered as
// Exact unless it has a rule of its own, and a Wildcard is never
// downgraded by an Exact rule for the same key.
func Parse(r io.Reader, opts ...ParseOption) (*Table, error) {
	var o parseOptions
	for _, opt := range opts {
		opt(&o)
	}

	rules := make(map[string]Kind)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	inICANN := false

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, icannBegin) {
			inICANN = true
			continue
		}
		if strings.HasPrefix(line, icannEnd) {
			inICANN = false
			continue
		}

		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if o.icannOnly && !inICANN {
			continue
		}

		rule := fields[0]
		if rule == "local" {
			continue
		}

		suffix, kind, ok := splitRule(rule)
		if !ok {
			return nil, fmt.Errorf("%w: line %d: %q", ErrSyntax, lineNum, rule)
		}

		key, err := normalization.NormalizeDomain(suffix)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrSyntax, lineNum, err)
		}

		// an implicit TLD is a public suffix itself, never a registrable domain
		tld := key[strings.LastIndexByte(key, '.')+1:]
		if _, exists := rules[tld]; !exists {
			rules[tld] = Exact
		}

		if old, exists := rules[key]; exists && old == Wildcard && kind == Exact {
			continue
		}
		rules[key] = kind
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read suffix list: %w", err)
	}

	return NewTable(rules), nil
}

// ParseFile parses the list stored at path.
func ParseFile(path string, opts ...ParseOption) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f, opts...)
}

// splitRule separates the rule marker from the suffix it applies to.
func splitRule(rule string) (string, Kind, bool) {
	kind := Exact
	switch {
	case strings.HasPrefix(rule, "!"):
		rule = rule[1:]
		kind = Exception
		// an exception always names a child of some wildcard
		if !strings.Contains(rule, ".") {
			return "", 0, false
		}
	case strings.HasPrefix(rule, "*."):
		rule = rule[2:]
		kind = Wildcard
	}

	if rule == "" || strings.ContainsAny(rule, "!*") {
		return "", 0, false
	}

	return rule, kind, true
}
