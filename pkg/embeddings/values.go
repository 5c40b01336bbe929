package embeddings

import (
	"errors"
	"fmt"
	"path"
	"slices"

	"helm.sh/helm/v3/pkg/chartutil"
	"helm.sh/helm/v3/pkg/strvals"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	corev1ac "k8s.io/client-go/applyconfigurations/core/v1"
	"sigs.k8s.io/yaml"

	"github.com/davidmdm/x/xerr"

	"github.com/caikit/caikit-embeddings-deploy/charts"
	"github.com/caikit/caikit-embeddings-deploy/pkg/runtimeenv"
)

// Values is the typed form of the chart's values.yaml.
type Values struct {
	ReplicaCount     int32                                             `json:"replicaCount"`
	Image            Image                                             `json:"image"`
	ImagePullSecrets []corev1ac.LocalObjectReferenceApplyConfiguration `json:"imagePullSecrets,omitempty"`
	NameOverride     string                                            `json:"nameOverride,omitempty"`
	FullnameOverride string                                            `json:"fullnameOverride,omitempty"`
	PodAnnotations   map[string]string                                 `json:"podAnnotations,omitempty"`
	ContainerPort    int32                                             `json:"containerPort"`
	Service          ServiceValues                                     `json:"service"`
	Resources        *corev1ac.ResourceRequirementsApplyConfiguration  `json:"resources,omitempty"`
	Autoscaling      Autoscaling                                       `json:"autoscaling"`
	NodeSelector     map[string]string                                 `json:"nodeSelector,omitempty"`
	Tolerations      []corev1ac.TolerationApplyConfiguration           `json:"tolerations,omitempty"`
	Affinity         *corev1ac.AffinityApplyConfiguration              `json:"affinity,omitempty"`
	Persistence      Persistence                                       `json:"persistence"`
	Env              runtimeenv.Flags                                  `json:"env"`
}

type Image struct {
	Repository string            `json:"repository"`
	Tag        string            `json:"tag,omitempty"`
	PullPolicy corev1.PullPolicy `json:"pullPolicy"`
}

type ServiceValues struct {
	Enabled     bool               `json:"enabled"`
	Type        corev1.ServiceType `json:"type,omitempty"`
	Port        int32              `json:"port"`
	Annotations map[string]string  `json:"annotations,omitempty"`
}

type Autoscaling struct {
	Enabled                           bool  `json:"enabled"`
	MinReplicas                       int32 `json:"minReplicas"`
	MaxReplicas                       int32 `json:"maxReplicas"`
	TargetCPUUtilizationPercentage    int32 `json:"targetCPUUtilizationPercentage,omitempty"`
	TargetMemoryUtilizationPercentage int32 `json:"targetMemoryUtilizationPercentage,omitempty"`
}

type Persistence struct {
	ClaimName        string                              `json:"claimName,omitempty"`
	Create           bool                                `json:"create"`
	Size             string                              `json:"size,omitempty"`
	StorageClassName string                              `json:"storageClassName,omitempty"`
	AccessModes      []corev1.PersistentVolumeAccessMode `json:"accessModes,omitempty"`
	MountPath        string                              `json:"mountPath"`
}

// ToMap returns the values as the generic document the Helm engine consumes.
func (values Values) ToMap() (map[string]any, error) {
	data, err := yaml.Marshal(values)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// DefaultValues returns the chart defaults.
func DefaultValues() (Values, error) {
	return LoadValues(nil, nil)
}

// LoadValues coalesces the overlays on top of the chart defaults, later overlays taking
// precedence, then applies the --set style expressions. Unknown keys are rejected and the
// result is validated.
func LoadValues(overlays [][]byte, sets []string) (Values, error) {
	merged, err := MergeValues(overlays, sets)
	if err != nil {
		return Values{}, err
	}

	data, err := yaml.Marshal(merged)
	if err != nil {
		return Values{}, fmt.Errorf("failed to encode values: %w", err)
	}

	var values Values
	if err := yaml.UnmarshalStrict(data, &values); err != nil {
		return Values{}, fmt.Errorf("failed to decode values: %w", err)
	}

	if err := values.Validate(); err != nil {
		return Values{}, err
	}

	return values, nil
}

// MergeValues builds the values document without decoding it into Values.
func MergeValues(overlays [][]byte, sets []string) (map[string]any, error) {
	var base map[string]any
	if err := yaml.Unmarshal(charts.DefaultValues(), &base); err != nil {
		return nil, fmt.Errorf("failed to parse chart values: %w", err)
	}

	for i, overlay := range overlays {
		var values map[string]any
		if err := yaml.Unmarshal(overlay, &values); err != nil {
			return nil, fmt.Errorf("failed to parse values document %d: %w", i+1, err)
		}
		base = chartutil.CoalesceTables(values, base)
	}

	for _, set := range sets {
		if err := strvals.ParseInto(set, base); err != nil {
			return nil, fmt.Errorf("failed to parse --set %q: %w", set, err)
		}
	}

	return base, nil
}

var pullPolicies = []corev1.PullPolicy{corev1.PullAlways, corev1.PullIfNotPresent, corev1.PullNever}

var serviceTypes = []corev1.ServiceType{"", corev1.ServiceTypeClusterIP, corev1.ServiceTypeNodePort, corev1.ServiceTypeLoadBalancer}

// Validate reports every problem with the values at once.
func (values Values) Validate() error {
	var errs []error

	if values.Image.Repository == "" {
		errs = append(errs, errors.New("image.repository is required"))
	}
	if !slices.Contains(pullPolicies, values.Image.PullPolicy) {
		errs = append(errs, fmt.Errorf("image.pullPolicy must be one of Always, IfNotPresent or Never: got %q", values.Image.PullPolicy))
	}
	if values.ReplicaCount < 0 {
		errs = append(errs, fmt.Errorf("replicaCount must not be negative: got %d", values.ReplicaCount))
	}
	if err := validatePort("containerPort", values.ContainerPort); err != nil {
		errs = append(errs, err)
	}

	if values.Service.Enabled {
		if err := validatePort("service.port", values.Service.Port); err != nil {
			errs = append(errs, err)
		}
		if !slices.Contains(serviceTypes, values.Service.Type) {
			errs = append(errs, fmt.Errorf("service.type must be one of ClusterIP, NodePort or LoadBalancer: got %q", values.Service.Type))
		}
	}

	if scaling := values.Autoscaling; scaling.Enabled {
		if scaling.MinReplicas < 1 {
			errs = append(errs, fmt.Errorf("autoscaling.minReplicas must be at least 1: got %d", scaling.MinReplicas))
		}
		if scaling.MaxReplicas < scaling.MinReplicas {
			errs = append(errs, fmt.Errorf("autoscaling.maxReplicas must not be less than minReplicas: got %d < %d", scaling.MaxReplicas, scaling.MinReplicas))
		}
		if scaling.TargetCPUUtilizationPercentage < 0 || scaling.TargetMemoryUtilizationPercentage < 0 {
			errs = append(errs, errors.New("autoscaling utilization targets must not be negative"))
		}
	}

	if mountPath := values.Persistence.MountPath; !path.IsAbs(mountPath) {
		errs = append(errs, fmt.Errorf("persistence.mountPath must be an absolute path: got %q", mountPath))
	}
	if values.Persistence.Create {
		if _, err := resource.ParseQuantity(values.Persistence.Size); err != nil {
			errs = append(errs, fmt.Errorf("persistence.size: %w", err))
		}
	}

	return xerr.MultiErrOrderedFrom("invalid values", errs...)
}

func validatePort(name string, port int32) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535: got %d", name, port)
	}
	return nil
}
