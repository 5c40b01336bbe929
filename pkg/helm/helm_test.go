package helm

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
	"helm.sh/helm/v3/pkg/chart/loader"

	"github.com/caikit/caikit-embeddings-deploy/charts"
	"github.com/caikit/caikit-embeddings-deploy/internal"
)

func archive(t *testing.T, fsys fs.FS, prefix string) []byte {
	t.Helper()

	var buffer bytes.Buffer
	gz := gzip.NewWriter(&buffer)
	tw := tar.NewWriter(gz)

	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		if err := tw.WriteHeader(&tar.Header{Name: prefix + "/" + path, Mode: 0o644, Size: int64(len(data)), Typeflag: tar.TypeReg}); err != nil {
			return err
		}
		_, err = tw.Write(data)
		return err
	})
	require.NoError(t, err)

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	return buffer.Bytes()
}

func TestLoadChartFromFS(t *testing.T) {
	chart, err := LoadChartFromFS(charts.FS())
	require.NoError(t, err)
	require.Equal(t, charts.Name, chart.Name())
	require.Equal(t, charts.DefaultValues(), chart.Values)
}

func TestLoadChartFromZippedArchive(t *testing.T) {
	chart, err := LoadChartFromZippedArchive(archive(t, charts.FS(), "caikit-embeddings"))
	require.NoError(t, err)
	require.Equal(t, charts.Name, chart.Name())

	_, err = LoadChartFromZippedArchive([]byte("not an archive"))
	require.ErrorContains(t, err, "failed to create gzip reader")
}

func TestRender(t *testing.T) {
	chart, err := LoadChartFromFS(charts.FS())
	require.NoError(t, err)

	resources, err := chart.Render("prod", "models", map[string]any{"replicaCount": 3})
	require.NoError(t, err)
	require.Equal(t, []string{"models.apps.v1.deployment.prod-caikit-embeddings"}, internal.CanonicalNameList(resources))

	deployment := resources[0].Object
	require.Equal(t, int64(3), deployment["spec"].(map[string]any)["replicas"])

	resources, err = chart.Render("prod", "models", struct {
		Autoscaling map[string]any `json:"autoscaling"`
	}{
		Autoscaling: map[string]any{"enabled": true},
	})
	require.NoError(t, err)
	require.NotContains(t, resources[0].Object["spec"], "replicas")
}

func TestStripToChart(t *testing.T) {
	files := []*loader.BufferedFile{
		{Name: "dist/charts/caikit-embeddings/Chart.yaml"},
		{Name: "dist/charts/caikit-embeddings/templates/deployment.yaml"},
		{Name: "dist/charts/caikit-embeddings/charts/sub/Chart.yaml"},
	}

	stripToChart(files)

	require.Equal(t, "Chart.yaml", files[0].Name)
	require.Equal(t, "templates/deployment.yaml", files[1].Name)
	require.Equal(t, "charts/sub/Chart.yaml", files[2].Name)
}
