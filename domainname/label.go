package domainname

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"hostclass/normalization"
	"hostclass/punycode"
)

// Label is a single dot-separated component of a host name. Its methods
// classify it in the terms of RFC 5890.
type Label string

var ldhPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)

// IsASCII reports whether the label is pure ASCII.
func (l Label) IsASCII() bool {
	for i := 0; i < len(l); i++ {
		if l[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// IsLDH reports whether the label consists of letters, digits and inner
// hyphens and is at most 63 octets long.
func (l Label) IsLDH() bool {
	return ldhPattern.MatchString(string(l))
}

// IsRLDH reports a reserved LDH label: hyphens in the third and fourth
// position.
func (l Label) IsRLDH() bool {
	return l.hasReservedHyphens() && l.IsLDH()
}

// IsNRLDH reports an LDH label that is not reserved.
func (l Label) IsNRLDH() bool {
	return !l.hasReservedHyphens() && l.IsLDH()
}

// IsXN reports an LDH label carrying the "xn--" prefix. The prefix is
// matched case-insensitively, so "XN--" and "Xn--" labels qualify too.
func (l Label) IsXN() bool {
	return len(l) >= len(punycode.ACEPrefix) &&
		strings.EqualFold(string(l[:len(punycode.ACEPrefix)]), punycode.ACEPrefix) &&
		l.IsLDH()
}

// IsA reports an XN label whose payload is valid Punycode.
func (l Label) IsA() bool {
	if !l.IsXN() {
		return false
	}
	_, err := punycode.Decode(string(l[len(punycode.ACEPrefix):]))
	return err == nil
}

// IsNFC reports whether the label is in Unicode normalization form C.
func (l Label) IsNFC() bool {
	return normalization.Default.IsNFC(string(l))
}

// IsU reports a Unicode label: valid UTF-8 with at least one non-ASCII
// code point, NFC, not starting with a combining mark. BiDi rules are not
// checked.
func (l Label) IsU() bool {
	s := string(l)
	if !utf8.ValidString(s) || l.IsASCII() || !l.IsNFC() {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s)
	return !normalization.Default.IsCombiningMark(r)
}

func (l Label) hasReservedHyphens() bool {
	return len(l) >= 4 && l[2] == '-' && l[3] == '-'
}
