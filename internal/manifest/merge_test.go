package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeepMergeScalarOverrideWins(t *testing.T) {
	t.Parallel()

	base, err := ToStruct(map[string]any{"level": "info", "retries": int64(3)})
	require.NoError(t, err)

	override, err := ToStruct(map[string]any{"level": "debug"})
	require.NoError(t, err)

	merged := DeepMerge(base, override)
	require.Equal(t, "debug", merged.Fields["level"].GetStringValue())
	require.Equal(t, int64(3), int64(merged.Fields["retries"].GetNumberValue()))
}

func TestDeepMergeRecursesIntoSubMaps(t *testing.T) {
	t.Parallel()

	base, err := ToStruct(map[string]any{
		"nested": map[string]any{"a": "1", "b": "2"},
	})
	require.NoError(t, err)

	override, err := ToStruct(map[string]any{
		"nested": map[string]any{"b": "override"},
	})
	require.NoError(t, err)

	merged := DeepMerge(base, override)
	nested := merged.Fields["nested"].GetStructValue()
	require.Equal(t, "1", nested.Fields["a"].GetStringValue())
	require.Equal(t, "override", nested.Fields["b"].GetStringValue())
}

func TestDeepMergeReplacesArraysWhole(t *testing.T) {
	t.Parallel()

	base, err := ToStruct(map[string]any{
		"items": []any{"a", "b", "c"},
	})
	require.NoError(t, err)

	override, err := ToStruct(map[string]any{
		"items": []any{"x"},
	})
	require.NoError(t, err)

	merged := DeepMerge(base, override)
	values := merged.Fields["items"].GetListValue().GetValues()
	require.Len(t, values, 1)
	require.Equal(t, "x", values[0].GetStringValue())
}

func TestDeepMergeDoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	base, err := ToStruct(map[string]any{"level": "info"})
	require.NoError(t, err)

	override, err := ToStruct(map[string]any{"level": "debug"})
	require.NoError(t, err)

	_ = DeepMerge(base, override)
	require.Equal(t, "info", base.Fields["level"].GetStringValue())
	require.Equal(t, "debug", override.Fields["level"].GetStringValue())
}

func TestMergeChainPrecedenceOrder(t *testing.T) {
	t.Parallel()

	manifestDefault, err := ToStruct(map[string]any{"level": "info", "a": "1"})
	require.NoError(t, err)

	userEntry, err := ToStruct(map[string]any{"level": "debug"})
	require.NoError(t, err)

	override, err := ToStruct(map[string]any{"level": "trace"})
	require.NoError(t, err)

	merged := MergeChain(manifestDefault, userEntry, override)
	require.Equal(t, "trace", merged.Fields["level"].GetStringValue())
	require.Equal(t, "1", merged.Fields["a"].GetStringValue())
}

func TestMergeChainAssociativeForDisjointKeys(t *testing.T) {
	t.Parallel()

	a, err := ToStruct(map[string]any{"a": "1"})
	require.NoError(t, err)
	b, err := ToStruct(map[string]any{"b": "2"})
	require.NoError(t, err)
	c, err := ToStruct(map[string]any{"c": "3"})
	require.NoError(t, err)

	left := DeepMerge(DeepMerge(a, b), c)
	right := DeepMerge(a, DeepMerge(b, c))

	require.Equal(t, left.Fields["a"].GetStringValue(), right.Fields["a"].GetStringValue())
	require.Equal(t, left.Fields["b"].GetStringValue(), right.Fields["b"].GetStringValue())
	require.Equal(t, left.Fields["c"].GetStringValue(), right.Fields["c"].GetStringValue())
}
