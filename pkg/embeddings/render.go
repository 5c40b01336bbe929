package embeddings

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/caikit/caikit-embeddings-deploy/charts"
	"github.com/caikit/caikit-embeddings-deploy/internal"
	"github.com/caikit/caikit-embeddings-deploy/pkg/helm"
)

// Render returns every resource of the release: the Deployment, and depending on the
// values its Service, HorizontalPodAutoscaler and PersistentVolumeClaim.
func Render(release, namespace string, values Values) ([]*unstructured.Unstructured, error) {
	if err := values.Validate(); err != nil {
		return nil, err
	}

	deployment, err := Deployment(release, namespace, values)
	if err != nil {
		return nil, fmt.Errorf("failed to build deployment: %w", err)
	}

	configs := []any{deployment}

	if values.Service.Enabled {
		service, err := Service(release, namespace, values)
		if err != nil {
			return nil, fmt.Errorf("failed to build service: %w", err)
		}
		configs = append(configs, service)
	}

	if values.Autoscaling.Enabled {
		autoscaler, err := HorizontalPodAutoscaler(release, namespace, values)
		if err != nil {
			return nil, fmt.Errorf("failed to build autoscaler: %w", err)
		}
		configs = append(configs, autoscaler)
	}

	if values.Persistence.Create {
		claim, err := PersistentVolumeClaim(release, namespace, values)
		if err != nil {
			return nil, fmt.Errorf("failed to build persistent volume claim: %w", err)
		}
		configs = append(configs, claim)
	}

	resources := make([]*unstructured.Unstructured, len(configs))
	for i, config := range configs {
		if resources[i], err = toUnstructured(config); err != nil {
			return nil, err
		}
	}

	slices.SortFunc(resources, func(a, b *unstructured.Unstructured) int {
		return strings.Compare(internal.Canonical(a), internal.Canonical(b))
	})

	return resources, nil
}

var embeddedChart = sync.OnceValues(func() (*helm.Chart, error) {
	return helm.LoadChartFromFS(charts.FS())
})

// RenderHelm renders the values through the embedded Helm chart.
func RenderHelm(release, namespace string, values Values) ([]*unstructured.Unstructured, error) {
	if err := values.Validate(); err != nil {
		return nil, err
	}

	chart, err := embeddedChart()
	if err != nil {
		return nil, fmt.Errorf("failed to load chart: %w", err)
	}

	return chart.Render(release, namespace, values)
}

func toUnstructured(config any) (*unstructured.Unstructured, error) {
	data, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resource: %w", err)
	}

	var resource unstructured.Unstructured
	if err := resource.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("failed to decode resource: %w", err)
	}

	return &resource, nil
}
