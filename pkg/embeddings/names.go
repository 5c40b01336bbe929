package embeddings

import (
	"cmp"
	"fmt"
	"strings"
	"sync"

	"helm.sh/helm/v3/pkg/chart"
	"sigs.k8s.io/yaml"

	"github.com/caikit/caikit-embeddings-deploy/charts"
	"github.com/caikit/caikit-embeddings-deploy/internal"
)

// Metadata returns the embedded chart's Chart.yaml.
var Metadata = sync.OnceValues(func() (*chart.Metadata, error) {
	var metadata chart.Metadata
	if err := yaml.Unmarshal(charts.ChartYAML(), &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse Chart.yaml: %w", err)
	}
	if err := metadata.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Chart.yaml: %w", err)
	}
	return &metadata, nil
})

const maxNameLength = 63

func truncate(value string) string {
	if len(value) > maxNameLength {
		value = value[:maxNameLength]
	}
	return strings.TrimSuffix(value, "-")
}

// Name is the chart name unless overridden.
func Name(values Values) string {
	return truncate(cmp.Or(values.NameOverride, charts.Name))
}

// Fullname names the release's resources. It follows the chart's helper: the override if any,
// the release name alone when it already contains the chart name, and release-chart otherwise.
func Fullname(release string, values Values) string {
	if values.FullnameOverride != "" {
		return truncate(values.FullnameOverride)
	}
	name := cmp.Or(values.NameOverride, charts.Name)
	if strings.Contains(release, name) {
		return truncate(release)
	}
	return truncate(release + "-" + name)
}

// ClaimName is the PersistentVolumeClaim backing the models volume.
func ClaimName(release string, values Values) string {
	return cmp.Or(values.Persistence.ClaimName, Fullname(release, values))
}

func selectorLabels(release string, values Values) map[string]string {
	return map[string]string{
		"app.kubernetes.io/name":     Name(values),
		"app.kubernetes.io/instance": release,
	}
}

func labels(release string, values Values, metadata *chart.Metadata) map[string]string {
	result := selectorLabels(release, values)
	result["helm.sh/chart"] = truncate(strings.ReplaceAll(metadata.Name+"-"+metadata.Version, "+", "_"))
	result[internal.LabelManagedBy] = internal.ManagedBy
	if metadata.AppVersion != "" {
		result["app.kubernetes.io/version"] = metadata.AppVersion
	}
	return result
}

func imageReference(values Values, metadata *chart.Metadata) string {
	return values.Image.Repository + ":" + cmp.Or(values.Image.Tag, metadata.AppVersion)
}
