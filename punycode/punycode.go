// Package punycode implements the Bootstring encoding of RFC 3492 with the
// parameter set used for IDNA. All state is kept in uint32 and every step
// that could leave that range fails with ErrOverflow instead of wrapping.
package punycode

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Bootstring parameters for Punycode (RFC 3492 section 5).
const (
	base        = 36
	tmin        = 1
	tmax        = 26
	skew        = 38
	damp        = 700
	initialBias = 72
	initialN    = 0x80
	delimiter   = '-'

	maxUint32 = math.MaxUint32

	// ACEPrefix marks a label holding a Punycode payload.
	ACEPrefix = "xn--"
)

var (
	// ErrOverflow is returned when the variable-length integers would not
	// fit into 32 bits. It usually means adversarial input.
	ErrOverflow = errors.New("punycode: overflow")

	// ErrInvalidInput is returned by Decode for malformed payloads.
	ErrInvalidInput = errors.New("punycode: invalid input")
)

// Encode converts the code points of s to Punycode. Basic code points are
// copied in order; the delimiter follows them only when non-basic code
// points remain to be encoded. All-ASCII input is therefore returned
// unchanged and Decode does not invert it: Decode reads a payload without
// a delimiter as deltas only. Round trips hold for input containing at
// least one non-basic code point.
func Encode(s string) (string, error) {
	input := []rune(s)

	var out strings.Builder
	out.Grow(len(s) + 8)

	for _, r := range input {
		if r < initialN {
			out.WriteByte(byte(r))
		}
	}

	b := uint32(out.Len())
	h := b
	total := uint32(len(input))

	if b > 0 && h < total {
		out.WriteByte(delimiter)
	}

	n := uint32(initialN)
	delta := uint32(0)
	bias := uint32(initialBias)

	for h < total {
		// smallest code point not yet handled
		m := uint32(maxUint32)
		for _, r := range input {
			if cp := uint32(r); cp >= n && cp < m {
				m = cp
			}
		}

		if (m-n) > (maxUint32-delta)/(h+1) {
			return "", ErrOverflow
		}
		delta += (m - n) * (h + 1)
		n = m

		for _, r := range input {
			cp := uint32(r)
			if cp < n {
				if delta == maxUint32 {
					return "", ErrOverflow
				}
				delta++
				continue
			}
			if cp != n {
				continue
			}

			q := delta
			for k := uint32(base); ; k += base {
				t := threshold(k, bias)
				if q < t {
					break
				}
				out.WriteByte(encodeDigit(t + (q-t)%(base-t)))
				q = (q - t) / (base - t)
			}
			out.WriteByte(encodeDigit(q))

			bias = adapt(delta, h+1, h == b)
			delta = 0
			h++
		}

		if delta == maxUint32 || n == maxUint32 {
			return "", ErrOverflow
		}
		delta++
		n++
	}

	return out.String(), nil
}

// Decode converts a Punycode payload (without the ACE prefix) back to
// Unicode.
func Decode(s string) (string, error) {
	var output []rune

	pos := 0
	if i := strings.LastIndexByte(s, delimiter); i >= 0 {
		for j := 0; j < i; j++ {
			if s[j] >= initialN {
				return "", fmt.Errorf("%w: non-basic code point in basic section", ErrInvalidInput)
			}
			output = append(output, rune(s[j]))
		}
		pos = i + 1
	}

	n := uint32(initialN)
	i := uint32(0)
	bias := uint32(initialBias)

	for pos < len(s) {
		oldi := i
		w := uint32(1)
		for k := uint32(base); ; k += base {
			if pos >= len(s) {
				return "", fmt.Errorf("%w: truncated integer", ErrInvalidInput)
			}
			digit, ok := decodeDigit(s[pos])
			pos++
			if !ok {
				return "", fmt.Errorf("%w: invalid digit %q", ErrInvalidInput, s[pos-1])
			}
			if digit > (maxUint32-i)/w {
				return "", ErrOverflow
			}
			i += digit * w

			t := threshold(k, bias)
			if digit < t {
				break
			}
			if w > maxUint32/(base-t) {
				return "", ErrOverflow
			}
			w *= base - t
		}

		x := uint32(len(output) + 1)
		bias = adapt(i-oldi, x, oldi == 0)

		if i/x > maxUint32-n {
			return "", ErrOverflow
		}
		n += i / x
		i %= x

		if n > utf8.MaxRune || (n >= 0xD800 && n <= 0xDFFF) {
			return "", fmt.Errorf("%w: code point %#x out of range", ErrInvalidInput, n)
		}

		output = append(output, 0)
		copy(output[i+1:], output[i:])
		output[i] = rune(n)
		i++
	}

	return string(output), nil
}

// EncodeHostname Punycode-encodes every label of name that contains a
// non-ASCII code point and prefixes it with "xn--". ASCII-only names are
// returned unchanged.
func EncodeHostname(name string) (string, error) {
	if isASCII(name) {
		return name, nil
	}

	labels := strings.Split(name, ".")
	for i, label := range labels {
		if isASCII(label) {
			continue
		}
		encoded, err := Encode(label)
		if err != nil {
			return "", fmt.Errorf("label %d: %w", i, err)
		}
		labels[i] = ACEPrefix + encoded
	}

	return strings.Join(labels, "."), nil
}

// threshold clamps k-bias into [tmin, tmax].
func threshold(k, bias uint32) uint32 {
	switch {
	case k <= bias:
		return tmin
	case k >= bias+tmax:
		return tmax
	}
	return k - bias
}

func adapt(delta, numPoints uint32, first bool) uint32 {
	if first {
		delta /= damp
	} else {
		delta /= 2
	}
	delta += delta / numPoints

	k := uint32(0)
	for delta > ((base-tmin)*tmax)/2 {
		delta /= base - tmin
		k += base
	}

	return k + (base-tmin+1)*delta/(delta+skew)
}

// encodeDigit maps 0..25 to 'a'..'z' and 26..35 to '0'..'9'.
func encodeDigit(d uint32) byte {
	if d < 26 {
		return byte('a' + d)
	}
	return byte('0' + d - 26)
}

func decodeDigit(c byte) (uint32, bool) {
	switch {
	case c >= '0' && c <= '9':
		return uint32(c-'0') + 26, true
	case c >= 'A' && c <= 'Z':
		return uint32(c - 'A'), true
	case c >= 'a' && c <= 'z':
		return uint32(c - 'a'), true
	}
	return 0, false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
