// Package image describes how the runtime container image is built.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"path"
	"regexp"
	"slices"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/davidmdm/x/xerr"
)

// ConfigFilesEnv is the variable the runtime reads its configuration file path from.
const ConfigFilesEnv = "CONFIG_FILES"

// Recipe is an ordered container build: start from BaseImage, install the dependencies
// listed in Manifest, copy the repository into Workdir and run Cmd by default.
type Recipe struct {
	BaseImage      string
	Workdir        string
	Manifest       string
	InstallCommand []string
	Env            map[string]string
	Cmd            []string
}

func DefaultRecipe() Recipe {
	return Recipe{
		BaseImage:      "python:3.11-slim",
		Workdir:        "/caikit",
		Manifest:       "requirements.txt",
		InstallCommand: []string{"pip", "install", "--no-cache-dir", "-r", "requirements.txt"},
		Env:            map[string]string{ConfigFilesEnv: "runtime_config.yaml"},
		Cmd:            []string{"python", "-m", "caikit.runtime"},
	}
}

func (recipe Recipe) Validate() error {
	var errs []error
	if recipe.BaseImage == "" {
		errs = append(errs, errors.New("base image is required"))
	}
	if recipe.Manifest == "" {
		errs = append(errs, errors.New("dependency manifest is required"))
	} else if clean := path.Clean(recipe.Manifest); path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		errs = append(errs, fmt.Errorf("dependency manifest must be within the build context: %q", recipe.Manifest))
	}
	for _, field := range [][2]string{
		{"base image", recipe.BaseImage},
		{"workdir", recipe.Workdir},
		{"dependency manifest", recipe.Manifest},
	} {
		if isMultiline(field[1]) {
			errs = append(errs, fmt.Errorf("%s must be a single line: %q", field[0], field[1]))
		}
	}
	if len(recipe.InstallCommand) == 0 {
		errs = append(errs, errors.New("install command is required"))
	}
	if recipe.Workdir != "" && !path.IsAbs(recipe.Workdir) {
		errs = append(errs, fmt.Errorf("workdir must be absolute: %q", recipe.Workdir))
	}
	if recipe.Env[ConfigFilesEnv] == "" {
		errs = append(errs, fmt.Errorf("%s must be set", ConfigFilesEnv))
	}
	for _, name := range slices.Sorted(maps.Keys(recipe.Env)) {
		if !envName.MatchString(name) {
			errs = append(errs, fmt.Errorf("invalid env name: %q", name))
		}
		if isMultiline(recipe.Env[name]) {
			errs = append(errs, fmt.Errorf("env %s must be a single line: %q", name, recipe.Env[name]))
		}
	}
	if len(recipe.Cmd) == 0 {
		errs = append(errs, errors.New("command is required"))
	}
	return xerr.MultiErrOrderedFrom("invalid recipe", errs...)
}

var envName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func isMultiline(value string) bool {
	return strings.ContainsAny(value, "\r\n")
}

// envValue quotes values the Dockerfile parser would otherwise split or unescape.
func envValue(value string) string {
	if value != "" && !strings.ContainsAny(value, " \t\"'\\") {
		return value
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value) + `"`
}

func funcs() template.FuncMap {
	result := sprig.TxtFuncMap()
	result["envValue"] = envValue
	return result
}

var dockerfile = template.Must(
	template.New("Dockerfile").
		Funcs(funcs()).
		Parse(`FROM {{ .BaseImage }}
{{- with .Workdir }}

WORKDIR {{ . }}
{{- end }}

COPY {{ .Manifest }} {{ if eq (dir .Manifest) "." }}.{{ else }}{{ dir .Manifest }}/{{ end }}
RUN {{ toJson .InstallCommand }}

COPY . .
{{ range $key, $value := .Env }}
ENV {{ $key }}={{ envValue $value }}
{{- end }}

CMD {{ toJson .Cmd }}
`),
)

// Dockerfile renders the recipe. Identical recipes render identical bytes.
func (recipe Recipe) Dockerfile() ([]byte, error) {
	if err := recipe.Validate(); err != nil {
		return nil, err
	}

	var buffer bytes.Buffer
	if err := dockerfile.Execute(&buffer, recipe); err != nil {
		return nil, fmt.Errorf("failed to render Dockerfile: %w", err)
	}
	return buffer.Bytes(), nil
}
