package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		epoch   int
		release []int
		tag     string
	}{
		{"1.2.0", 0, []int{1, 2, 0}, ""},
		{"1.2", 0, []int{1, 2}, ""},
		{"0.0.1", 0, []int{0, 0, 1}, ""},
		{"2!1.0", 2, []int{1, 0}, ""},
		{"1.2.0rc1", 0, []int{1, 2, 0}, "rc1"},
		{"1.2.0.post1", 0, []int{1, 2, 0}, "post1"},
		{"10.20.30", 0, []int{10, 20, 30}, ""},
	}

	for _, tt := range tests {
		v, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.epoch, v.Epoch, tt.in)
		assert.Equal(t, tt.release, v.Release, tt.in)
		assert.Equal(t, tt.tag, v.Tag, tt.in)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "x!1.0", "..."} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"2.0.0", "1.9.9", 1},
		{"1.10.0", "1.9.0", 1},
		{"1!1.0", "2.0", 1},
		{"1.2.0rc1", "1.2.0", -1},
		{"1.2.0rc1", "1.2.0rc2", -1},
		{"1.2.0", "1.2.0.post1", 1},
	}

	for _, tt := range tests {
		got := MustParse(tt.a).Compare(MustParse(tt.b))
		assert.Equal(t, tt.want, got, "%s vs %s", tt.a, tt.b)
	}
}

func TestConstraintMatch(t *testing.T) {
	tests := []struct {
		constraint string
		version    string
		want       bool
	}{
		{"==1.2.0", "1.2.0", true},
		{"==1.2.0", "1.2.1", false},
		{"!=1.2.0", "1.2.1", true},
		{"!=1.2.0", "1.2.0", false},
		{">=1.0.0", "1.0.0", true},
		{">=1.0.0", "0.9.9", false},
		{">1.0.0", "1.0.0", false},
		{"<2.0.0", "1.9.9", true},
		{"<=2.0.0", "2.0.0", true},
		{"~=1.2.0", "1.2.5", true},
		{"~=1.2.0", "1.3.0", false},
		{"~=1.2.0", "1.1.9", false},
		{"~=1.2", "1.9.0", true},
		{"~=1.2", "2.0.0", false},
		{"any", "0.0.1", true},
	}

	for _, tt := range tests {
		c, err := ParseConstraint(tt.constraint)
		require.NoError(t, err, tt.constraint)
		assert.Equal(t, tt.want, c.Match(MustParse(tt.version)), "%s vs %s", tt.constraint, tt.version)
	}
}

func TestParseConstraintWildcard(t *testing.T) {
	// "==1.2.*" converts to a compatible-release constraint on 1.2.0.
	c, err := ParseConstraint("==1.2.*")
	require.NoError(t, err)
	assert.Equal(t, OpCompatible, c.Op)
	assert.True(t, c.Match(MustParse("1.2.9")))
	assert.False(t, c.Match(MustParse("1.3.0")))
}

func TestSetPin(t *testing.T) {
	set := func(exprs ...string) Set {
		var s Set
		for _, e := range exprs {
			c, err := ParseConstraint(e)
			require.NoError(t, err)
			s = append(s, c)
		}
		return s
	}

	v, ok := set("==1.2.0").Pin()
	require.True(t, ok)
	assert.Equal(t, "1.2.0", v.Raw)

	// A compatible range plus a pin inside it still pins.
	v, ok = set("==1.2.0", ">=1.0.0").Pin()
	require.True(t, ok)
	assert.Equal(t, "1.2.0", v.Raw)

	// Conflicting pins do not pin.
	_, ok = set("==1.2.0", "==1.3.0").Pin()
	assert.False(t, ok)

	// No equality constraint: nothing to pin.
	_, ok = set(">=1.0.0").Pin()
	assert.False(t, ok)

	// A pin outside a bound does not pin.
	_, ok = set("==1.2.0", ">=2.0.0").Pin()
	assert.False(t, ok)
}

func TestSetSatisfiable(t *testing.T) {
	set := func(exprs ...string) Set {
		var s Set
		for _, e := range exprs {
			c, err := ParseConstraint(e)
			require.NoError(t, err)
			s = append(s, c)
		}
		return s
	}

	assert.True(t, set("==1.2.0", ">=1.0.0").Satisfiable())
	assert.False(t, set("==1.2.0", "==1.3.0").Satisfiable())
	assert.False(t, set(">=2.0.0", "<1.0.0").Satisfiable())
	assert.False(t, set(">1.0.0", "<=1.0.0").Satisfiable())
	assert.True(t, set(">=1.0.0", "<=1.0.0").Satisfiable())
	assert.False(t, set("==1.2.0", "!=1.2.0").Satisfiable())
	assert.False(t, set("~=1.2.0", "~=2.0.0").Satisfiable())
	assert.True(t, set("~=1.2.0", "~=1.2.3").Satisfiable())
	assert.True(t, set("any").Satisfiable())
}

func TestSetMaxMatching(t *testing.T) {
	c, err := ParseConstraint(">=1.0.0")
	require.NoError(t, err)
	s := Set{c}

	v, ok := s.MaxMatching([]string{"1.0.0", "1.4.0", "2.0.0", "0.9.0", "garbage"})
	require.True(t, ok)
	assert.Equal(t, "2.0.0", v.Raw)

	_, ok = s.MaxMatching([]string{"0.1.0", "0.2.0"})
	assert.False(t, ok)
}
