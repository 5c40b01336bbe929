package embeddings

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	corev1ac "k8s.io/client-go/applyconfigurations/core/v1"
)

// PersistentVolumeClaim provisions the models volume. Without it the Deployment expects
// the claim named by persistence.claimName to already exist.
func PersistentVolumeClaim(release, namespace string, values Values) (*corev1ac.PersistentVolumeClaimApplyConfiguration, error) {
	metadata, err := Metadata()
	if err != nil {
		return nil, err
	}

	size, err := resource.ParseQuantity(values.Persistence.Size)
	if err != nil {
		return nil, fmt.Errorf("invalid persistence size: %w", err)
	}

	accessModes := values.Persistence.AccessModes
	if len(accessModes) == 0 {
		accessModes = []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce}
	}

	spec := corev1ac.PersistentVolumeClaimSpec().
		WithAccessModes(accessModes...).
		WithResources(
			corev1ac.VolumeResourceRequirements().
				WithRequests(corev1.ResourceList{corev1.ResourceStorage: size}),
		)

	if values.Persistence.StorageClassName != "" {
		spec.WithStorageClassName(values.Persistence.StorageClassName)
	}

	return corev1ac.PersistentVolumeClaim(ClaimName(release, values), namespace).
		WithLabels(labels(release, values, metadata)).
		WithSpec(spec), nil
}
