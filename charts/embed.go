// Package charts embeds the caikit-embeddings Helm chart so that it can be
// rendered without a chart repository.
package charts

import (
	"embed"
	"io/fs"
)

//go:embed all:caikit-embeddings
var files embed.FS

// Name of the embedded chart. It is also the container name of the runtime.
const Name = "caikit-embeddings"

// FS returns the chart rooted at its own directory.
func FS() fs.FS {
	sub, err := fs.Sub(files, Name)
	if err != nil {
		panic(err)
	}
	return sub
}

// DefaultValues returns the raw content of the chart's values.yaml.
func DefaultValues() []byte {
	data, err := fs.ReadFile(files, Name+"/values.yaml")
	if err != nil {
		panic(err)
	}
	return data
}

// ChartYAML returns the raw content of the chart's Chart.yaml.
func ChartYAML() []byte {
	data, err := fs.ReadFile(files, Name+"/Chart.yaml")
	if err != nil {
		panic(err)
	}
	return data
}
