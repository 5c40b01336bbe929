package helm

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"

	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/chartutil"
	"helm.sh/helm/v3/pkg/engine"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/yaml"

	"github.com/davidmdm/x/xerr"

	"github.com/caikit/caikit-embeddings-deploy/internal"
)

// LoadChartFromZippedArchive loads a packaged chart such as the output of "helm package".
func LoadChartFromZippedArchive(data []byte) (chart *Chart, err error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer func() {
		err = xerr.MultiErrFrom("", err, gz.Close())
	}()

	archive := tar.NewReader(gz)

	var files []*loader.BufferedFile
	for {
		header, err := archive.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate through archive: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}

		content, err := io.ReadAll(archive)
		if err != nil {
			return nil, err
		}

		files = append(files, &loader.BufferedFile{
			Name: header.Name,
			Data: content,
		})
	}

	return loadFiles(files)
}

// LoadChartFromFS loads a chart from a filesystem. The chart may be nested in
// one or more directories; everything above the nearest Chart.yaml is ignored.
func LoadChartFromFS(fsys fs.FS) (*Chart, error) {
	files, err := getAllFilesFromDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to get files from FS: %w", err)
	}
	return loadFiles(files)
}

func loadFiles(files []*loader.BufferedFile) (*Chart, error) {
	stripToChart(files)

	underlyingChart, err := loader.LoadFiles(files)
	if err != nil {
		return nil, err
	}

	var values []byte
	for _, f := range files {
		if f.Name == "values.yaml" {
			values = f.Data
		}
	}

	return &Chart{
		Chart:  underlyingChart,
		Values: values,
	}, nil
}

type Chart struct {
	*chart.Chart
	Values []byte
}

// Render executes the chart templates for the release and returns the resulting
// resources sorted by canonical name. Templates that render to nothing are dropped.
func (chart Chart) Render(release, namespace string, values any) ([]*unstructured.Unstructured, error) {
	opts := chartutil.ReleaseOptions{
		Name:      release,
		Namespace: namespace,
		IsInstall: true,
	}

	capabilities := chartutil.DefaultCapabilities.Copy()

	valueMap, err := asMap(values)
	if err != nil {
		return nil, fmt.Errorf("failed to convert values to map: %w", err)
	}

	renderValues, err := chartutil.ToRenderValues(chart.Chart, valueMap, opts, capabilities)
	if err != nil {
		return nil, err
	}

	rendered, err := engine.Engine{}.Render(chart.Chart, renderValues)
	if err != nil {
		return nil, err
	}

	var results []*unstructured.Unstructured

	for name, content := range rendered {
		if ext := path.Ext(name); ext != ".yaml" && ext != ".yml" {
			continue
		}

		var resource unstructured.Unstructured
		if err := yaml.Unmarshal([]byte(content), &resource.Object); err != nil {
			return nil, fmt.Errorf("%s: %w\n%s", name, err, content)
		}
		if resource.Object == nil {
			continue
		}
		if resource.GetNamespace() == "" && namespace != "" {
			resource.SetNamespace(namespace)
		}
		results = append(results, &resource)
	}

	slices.SortFunc(results, func(a, b *unstructured.Unstructured) int {
		return strings.Compare(internal.Canonical(a), internal.Canonical(b))
	})

	return results, nil
}

func asMap(values any) (map[string]any, error) {
	if values == nil {
		return map[string]any{}, nil
	}

	if m, ok := values.(map[string]any); ok {
		return m, nil
	}

	type Mapper interface {
		ToMap() (map[string]any, error)
	}
	if v, ok := values.(Mapper); ok {
		return v.ToMap()
	}

	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	err = json.Unmarshal(data, &m)
	return m, err
}

// stripToChart modifies the names of the files such that it removes the segments
// prior to the nearest Chart.yaml. This is done so that helm can recognize these files
// as a chart. Usually when they are loaded in from the filesystem or archive their exists
// a number (usually 1) folders to contain the chart. We need to strip those away.
func stripToChart(files []*loader.BufferedFile) {
	idx := -1
	for _, file := range files {
		file.Name = path.Clean(file.Name)
		if path.Base(file.Name) != "Chart.yaml" {
			continue
		}
		if length := len(strings.Split(file.Name, "/")); idx == -1 || length < idx {
			idx = length
		}
	}
	if idx == -1 {
		return
	}

	for _, file := range files {
		file.Name = strings.Join(strings.Split(file.Name, "/")[idx-1:], "/")
	}
}

func getAllFilesFromDir(fsys fs.FS, p string) ([]*loader.BufferedFile, error) {
	entries, err := fs.ReadDir(fsys, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read dir at %s: %w", p, err)
	}

	var results []*loader.BufferedFile
	for _, entry := range entries {
		filepath := path.Join(p, entry.Name())
		if entry.IsDir() {
			subEntries, err := getAllFilesFromDir(fsys, filepath)
			if err != nil {
				return nil, err
			}
			results = append(results, subEntries...)
			continue
		}

		content, err := fs.ReadFile(fsys, filepath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file at %s: %w", filepath, err)
		}

		results = append(results, &loader.BufferedFile{
			Name: filepath,
			Data: content,
		})
	}

	return results, nil
}
