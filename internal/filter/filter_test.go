package filter

import (
	"errors"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"
)

func TestCompile_Malformed(t *testing.T) {
	for _, raw := range []string{
		"foo=bar",
		"(foo=bar",
		"(=bar)",
		"(foo)",
		"(&)",
		"(foo=bar))",
		"(foo=b(ar)",
		"(foo>=ba*r)",
		"(foo=bar\\",
	} {
		_, err := Compile(raw)
		require.Error(t, err, "expected %q to be rejected", raw)
		require.True(t, errors.Is(err, ErrMalformedFilter), "expected ErrMalformedFilter for %q", raw)
	}
}

func TestFilter_Matches(t *testing.T) {
	props := Properties{
		"objectclass":     []string{"db.Pool", "io.Closer"},
		"foo":             "bar",
		"Service.Ranking": 10,
		"version":         "1.4.2",
		"enabled":         true,
		"weight":          2.5,
		"name":            "primary pool",
		"path":            "a(b)*c",
	}

	cases := []struct {
		filter string
		want   bool
	}{
		{"", true},
		{"(foo=bar)", true},
		{"(FOO=bar)", true},
		{"(foo=baz)", false},
		{"(missing=*)", false},
		{"(foo=*)", true},
		{"(objectclass=db.Pool)", true},
		{"(objectclass=io.Reader)", false},
		{"(service.ranking>=10)", true},
		{"(service.ranking>=11)", false},
		{"(service.ranking<=9)", false},
		{"(version>=1.4.0)", true},
		{"(version>=1.10.0)", false},
		{"(version<=1.10.0)", true},
		{"(enabled=true)", true},
		{"(enabled=false)", false},
		{"(weight>=2)", true},
		{"(name~=PrimaryPool)", true},
		{"(name=pri*ool)", true},
		{"(name=*pool)", true},
		{"(name=*sec*)", false},
		{"(path=a\\(b\\)\\*c)", true},
		{"(&(foo=bar)(service.ranking>=5))", true},
		{"(&(foo=bar)(service.ranking>=50))", false},
		{"(|(foo=baz)(enabled=true))", true},
		{"(!(foo=bar))", false},
		{" ( & (foo=bar) (enabled=true) ) ", true},
	}
	for _, tc := range cases {
		f, err := Compile(tc.filter)
		require.NoError(t, err, tc.filter)
		require.Equal(t, tc.want, f.Matches(props), tc.filter)
	}
}

func TestEvaluator_FailsClosed(t *testing.T) {
	e := NewEvaluator(testr.New(t))

	require.False(t, e.Matches("(foo=bar", Properties{"foo": "bar"}))
	// Served from cache the second time.
	require.False(t, e.Matches("(foo=bar", Properties{"foo": "bar"}))
	require.True(t, e.Matches("(foo=bar)", Properties{"foo": "bar"}))

	f1, err := e.Compile("(foo=bar)")
	require.NoError(t, err)
	f2, err := e.Compile("(foo=bar)")
	require.NoError(t, err)
	require.Same(t, f1, f2)
}
