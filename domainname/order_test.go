package domainname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	p := newTestParser(t)

	tests := []struct {
		x, y string
		want Ordering
	}{
		{"foo.com", "abc.foo.com", Greater},
		{"COM", "abc.foo.com", Greater},
		{"abc.def.foo.com", "foo.com", Less},
		{"abc.def.foo.com", "ABC.def.FOO.com", Equal},
		{"abc.def.foo.com", "bar.com", Incomparable},
		{"oo.com", "foo.com", Incomparable},
	}

	for _, tt := range tests {
		t.Run(tt.x+"/"+tt.y, func(t *testing.T) {
			dx, err := p.Parse(tt.x)
			require.NoError(t, err)
			dy, err := p.Parse(tt.y)
			require.NoError(t, err)

			pairs := []struct {
				a, b *DomainName
				want Ordering
			}{
				{dx, dy, tt.want},
				{dy, dx, tt.want.Reverse()},
			}

			for _, pair := range pairs {
				a, b := pair.a, pair.b
				assert.Equal(t, pair.want, a.Compare(b))

				switch pair.want {
				case Greater:
					assert.Equal(t, True, a.Greater(b))
					assert.Equal(t, True, a.GreaterOrEqual(b))
					assert.False(t, a.Equal(b))
					assert.Equal(t, False, a.LessOrEqual(b))
					assert.Equal(t, False, a.Less(b))
				case Less:
					assert.Equal(t, True, a.Less(b))
					assert.Equal(t, True, a.LessOrEqual(b))
					assert.False(t, a.Equal(b))
					assert.Equal(t, False, a.GreaterOrEqual(b))
					assert.Equal(t, False, a.Greater(b))
				case Equal:
					assert.Equal(t, False, a.Less(b))
					assert.Equal(t, True, a.LessOrEqual(b))
					assert.True(t, a.Equal(b))
					assert.Equal(t, True, a.GreaterOrEqual(b))
					assert.Equal(t, False, a.Greater(b))
				case Incomparable:
					assert.Equal(t, Unknown, a.Less(b))
					assert.Equal(t, Unknown, a.LessOrEqual(b))
					assert.False(t, a.Equal(b))
					assert.Equal(t, Unknown, a.GreaterOrEqual(b))
					assert.Equal(t, Unknown, a.Greater(b))
				}
			}

			got, err := p.Compare(tt.x, tt.y)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompareProperties(t *testing.T) {
	p := newTestParser(t)
	hosts := []string{"com", "example.com", "www.example.com", "example.org", "b.c.kyoto.jp", "c.kyoto.jp", "::1", "10.0.0.1"}

	for _, x := range hosts {
		dx, err := p.Parse(x)
		require.NoError(t, err)
		assert.Equal(t, Equal, dx.Compare(dx), x)

		for _, y := range hosts {
			dy, err := p.Parse(y)
			require.NoError(t, err)
			assert.Equal(t, dx.Compare(dy), dy.Compare(dx).Reverse(), "%s vs %s", x, y)
		}
	}
}

func TestCompareParseError(t *testing.T) {
	got, err := newTestParser(t).Compare(".com", "com")
	assert.Error(t, err)
	assert.Equal(t, Incomparable, got)
}

func TestTruth(t *testing.T) {
	value, known := Unknown.Bool()
	assert.False(t, value)
	assert.False(t, known)

	value, known = True.Bool()
	assert.True(t, value)
	assert.True(t, known)

	value, known = False.Bool()
	assert.False(t, value)
	assert.True(t, known)

	var zero Truth
	assert.Equal(t, Unknown, zero)
	assert.Equal(t, "unknown", zero.String())
}

func TestOrderingString(t *testing.T) {
	assert.Equal(t, "less", Less.String())
	assert.Equal(t, "equal", Equal.String())
	assert.Equal(t, "greater", Greater.String())
	assert.Equal(t, "incomparable", Incomparable.String())
	assert.Equal(t, Incomparable, Incomparable.Reverse())
}
