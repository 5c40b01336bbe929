package text

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	current, err := ToYamlFile("current", map[string]any{"replicas": 1, "image": "caikit:0.0.1"})
	require.NoError(t, err)

	next, err := ToYamlFile("next", map[string]any{"replicas": 2, "image": "caikit:0.0.1"})
	require.NoError(t, err)

	diff := Diff(current, next, 1)
	require.Contains(t, diff, "--- current")
	require.Contains(t, diff, "+++ next")
	require.Contains(t, diff, "-replicas: 1")
	require.Contains(t, diff, "+replicas: 2")

	require.Empty(t, Diff(current, current, 1))
}
