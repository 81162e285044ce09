package normalization

import (
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Unicode is the normalization capability the hostname pipeline depends on.
type Unicode interface {
	// NFC returns s in Normalization Form C.
	NFC(s string) string

	// IsNFC reports whether s is already in Normalization Form C.
	IsNFC(s string) bool

	// IsCombiningMark reports whether r has general category Mn, Mc or Me.
	IsCombiningMark(r rune) bool
}

// Default is backed by golang.org/x/text and the standard Unicode tables.
var Default Unicode = textUnicode{}

type textUnicode struct{}

func (textUnicode) NFC(s string) string {
	return norm.NFC.String(s)
}

func (textUnicode) IsNFC(s string) bool {
	return norm.NFC.IsNormalString(s)
}

func (textUnicode) IsCombiningMark(r rune) bool {
	return unicode.In(r, unicode.Mn, unicode.Mc, unicode.Me)
}
