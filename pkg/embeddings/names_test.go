package embeddings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFullname(t *testing.T) {
	cases := []struct {
		Name     string
		Release  string
		Values   Values
		Expected string
	}{
		{
			Name:     "release prefixes chart name",
			Release:  "prod",
			Expected: "prod-caikit-embeddings",
		},
		{
			Name:     "release containing chart name",
			Release:  "caikit-embeddings-prod",
			Expected: "caikit-embeddings-prod",
		},
		{
			Name:     "name override",
			Release:  "prod",
			Values:   Values{NameOverride: "embed"},
			Expected: "prod-embed",
		},
		{
			Name:     "fullname override",
			Release:  "prod",
			Values:   Values{FullnameOverride: "embeddings"},
			Expected: "embeddings",
		},
		{
			Name:     "truncated without trailing dash",
			Release:  strings.Repeat("a", 55),
			Expected: strings.Repeat("a", 55) + "-caikit",
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			actual := Fullname(tc.Release, tc.Values)
			require.Equal(t, tc.Expected, actual)
			require.LessOrEqual(t, len(actual), 63)
			require.False(t, strings.HasSuffix(actual, "-"))
		})
	}
}

func TestClaimName(t *testing.T) {
	require.Equal(t, "prod-caikit-embeddings", ClaimName("prod", Values{}))
	require.Equal(t, "shared", ClaimName("prod", Values{Persistence: Persistence{ClaimName: "shared"}}))
}

func TestMetadata(t *testing.T) {
	metadata, err := Metadata()
	require.NoError(t, err)
	require.Equal(t, "caikit-embeddings", metadata.Name)
	require.NotEmpty(t, metadata.Version)
	require.NotEmpty(t, metadata.AppVersion)
}
