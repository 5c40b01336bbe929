package embeddings

import (
	"helm.sh/helm/v3/pkg/chart"
	corev1 "k8s.io/api/core/v1"
	appsv1ac "k8s.io/client-go/applyconfigurations/apps/v1"
	corev1ac "k8s.io/client-go/applyconfigurations/core/v1"
	metav1ac "k8s.io/client-go/applyconfigurations/meta/v1"

	"github.com/caikit/caikit-embeddings-deploy/charts"
)

const (
	portName   = "http"
	volumeName = "models"
)

// Deployment builds the runtime Deployment: one container serving HTTP with the models
// volume mounted from a PersistentVolumeClaim. Replicas are left unset when an autoscaler
// owns them.
func Deployment(release, namespace string, values Values) (*appsv1ac.DeploymentApplyConfiguration, error) {
	metadata, err := Metadata()
	if err != nil {
		return nil, err
	}

	name := Fullname(release, values)
	selector := selectorLabels(release, values)

	spec := appsv1ac.DeploymentSpec().
		WithSelector(metav1ac.LabelSelector().WithMatchLabels(selector)).
		WithTemplate(podTemplate(release, values, metadata))

	if !values.Autoscaling.Enabled {
		spec.WithReplicas(values.ReplicaCount)
	}

	return appsv1ac.Deployment(name, namespace).
		WithLabels(labels(release, values, metadata)).
		WithSpec(spec), nil
}

func podTemplate(release string, values Values, metadata *chart.Metadata) *corev1ac.PodTemplateSpecApplyConfiguration {
	template := corev1ac.PodTemplateSpec().WithLabels(selectorLabels(release, values))
	if len(values.PodAnnotations) > 0 {
		template.WithAnnotations(values.PodAnnotations)
	}

	spec := corev1ac.PodSpec().
		WithContainers(container(values, metadata)).
		WithVolumes(
			corev1ac.Volume().
				WithName(volumeName).
				WithPersistentVolumeClaim(
					corev1ac.PersistentVolumeClaimVolumeSource().WithClaimName(ClaimName(release, values)),
				),
		)

	for i := range values.ImagePullSecrets {
		spec.WithImagePullSecrets(&values.ImagePullSecrets[i])
	}
	if len(values.NodeSelector) > 0 {
		spec.WithNodeSelector(values.NodeSelector)
	}
	if !isEmptyAffinity(values.Affinity) {
		spec.WithAffinity(values.Affinity)
	}
	for i := range values.Tolerations {
		spec.WithTolerations(&values.Tolerations[i])
	}

	return template.WithSpec(spec)
}

func container(values Values, metadata *chart.Metadata) *corev1ac.ContainerApplyConfiguration {
	result := corev1ac.Container().
		WithName(charts.Name).
		WithImage(imageReference(values, metadata)).
		WithPorts(
			corev1ac.ContainerPort().
				WithName(portName).
				WithContainerPort(values.ContainerPort).
				WithProtocol(corev1.ProtocolTCP),
		).
		WithVolumeMounts(
			corev1ac.VolumeMount().
				WithName(volumeName).
				WithMountPath(values.Persistence.MountPath),
		)

	result.WithImagePullPolicy(values.Image.PullPolicy)

	for _, env := range values.Env.EnvVars() {
		result.WithEnv(corev1ac.EnvVar().WithName(env.Name).WithValue(env.Value))
	}

	if !isEmptyResources(values.Resources) {
		result.WithResources(values.Resources)
	}

	return result
}

func isEmptyAffinity(affinity *corev1ac.AffinityApplyConfiguration) bool {
	return affinity == nil || (affinity.NodeAffinity == nil && affinity.PodAffinity == nil && affinity.PodAntiAffinity == nil)
}

func isEmptyResources(resources *corev1ac.ResourceRequirementsApplyConfiguration) bool {
	return resources == nil || (len(ptrValue(resources.Limits)) == 0 && len(ptrValue(resources.Requests)) == 0 && len(resources.Claims) == 0)
}

func ptrValue[T any](value *T) T {
	if value == nil {
		var zero T
		return zero
	}
	return *value
}
