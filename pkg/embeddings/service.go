package embeddings

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	corev1ac "k8s.io/client-go/applyconfigurations/core/v1"
)

// Service exposes the runtime's http port inside the cluster.
func Service(release, namespace string, values Values) (*corev1ac.ServiceApplyConfiguration, error) {
	metadata, err := Metadata()
	if err != nil {
		return nil, err
	}

	service := corev1ac.Service(Fullname(release, values), namespace).
		WithLabels(labels(release, values, metadata)).
		WithSpec(
			corev1ac.ServiceSpec().
				WithSelector(selectorLabels(release, values)).
				WithPorts(
					corev1ac.ServicePort().
						WithName(portName).
						WithProtocol(corev1.ProtocolTCP).
						WithPort(values.Service.Port).
						WithTargetPort(intstr.FromString(portName)),
				),
		)

	if values.Service.Type != "" {
		service.Spec.WithType(values.Service.Type)
	}
	if len(values.Service.Annotations) > 0 {
		service.WithAnnotations(values.Service.Annotations)
	}

	return service, nil
}
