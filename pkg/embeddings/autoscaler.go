package embeddings

import (
	autoscalingv2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	autoscalingv2ac "k8s.io/client-go/applyconfigurations/autoscaling/v2"
)

// HorizontalPodAutoscaler scales the runtime Deployment on cpu and memory utilization.
// Targets left at zero are not emitted.
func HorizontalPodAutoscaler(release, namespace string, values Values) (*autoscalingv2ac.HorizontalPodAutoscalerApplyConfiguration, error) {
	metadata, err := Metadata()
	if err != nil {
		return nil, err
	}

	name := Fullname(release, values)
	scaling := values.Autoscaling

	spec := autoscalingv2ac.HorizontalPodAutoscalerSpec().
		WithScaleTargetRef(
			autoscalingv2ac.CrossVersionObjectReference().
				WithAPIVersion("apps/v1").
				WithKind("Deployment").
				WithName(name),
		).
		WithMinReplicas(scaling.MinReplicas).
		WithMaxReplicas(scaling.MaxReplicas)

	targets := []struct {
		resource corev1.ResourceName
		value    int32
	}{
		{resource: corev1.ResourceCPU, value: scaling.TargetCPUUtilizationPercentage},
		{resource: corev1.ResourceMemory, value: scaling.TargetMemoryUtilizationPercentage},
	}

	for _, target := range targets {
		if target.value == 0 {
			continue
		}
		spec.WithMetrics(
			autoscalingv2ac.MetricSpec().
				WithType(autoscalingv2.ResourceMetricSourceType).
				WithResource(
					autoscalingv2ac.ResourceMetricSource().
						WithName(target.resource).
						WithTarget(
							autoscalingv2ac.MetricTarget().
								WithType(autoscalingv2.UtilizationMetricType).
								WithAverageUtilization(target.value),
						),
				),
		)
	}

	return autoscalingv2ac.HorizontalPodAutoscaler(name, namespace).
		WithLabels(labels(release, values, metadata)).
		WithSpec(spec), nil
}
