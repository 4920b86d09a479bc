package fabscope

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGenerates6CharAlphanumeric(t *testing.T) {
	t.Parallel()

	s, err := New()
	require.NoError(t, err)
	require.Len(t, s, 6)
	require.True(t, Valid(s))
}

func TestNewIsUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[Scope]bool)
	for i := 0; i < 1000; i++ {
		s, err := New()
		require.NoError(t, err)
		require.False(t, seen[s], "duplicate scope generated: %s", s)
		seen[s] = true
	}
}

func TestRootIsValid(t *testing.T) {
	t.Parallel()

	require.True(t, Root.IsRoot())
	require.True(t, Valid(Root))
	require.Equal(t, "000000", Root.String())
}

func TestValidRejectsWrongLength(t *testing.T) {
	t.Parallel()

	require.False(t, Valid(Scope("abc")))
	require.False(t, Valid(Scope("abcdefg")))
}

func TestValidRejectsNonAlphanumeric(t *testing.T) {
	t.Parallel()

	require.False(t, Valid(Scope("abc-de")))
	require.False(t, Valid(Scope("ab_cde")))
}
