package embeddings

import (
	"testing"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"

	"github.com/caikit/caikit-embeddings-deploy/pkg/runtimeenv"
)

func TestDefaultValues(t *testing.T) {
	values, err := DefaultValues()
	require.NoError(t, err)

	require.Equal(t, int32(1), values.ReplicaCount)
	require.Equal(t, "quay.io/caikit/caikit-embeddings", values.Image.Repository)
	require.Equal(t, corev1.PullIfNotPresent, values.Image.PullPolicy)
	require.Equal(t, int32(8080), values.ContainerPort)
	require.True(t, values.Service.Enabled)
	require.False(t, values.Autoscaling.Enabled)
	require.Equal(t, "/mnt/models", values.Persistence.MountPath)
	require.Equal(t, runtimeenv.Flags{}, values.Env)
	require.True(t, isEmptyResources(values.Resources))
	require.True(t, isEmptyAffinity(values.Affinity))
}

func TestLoadValuesPrecedence(t *testing.T) {
	values, err := LoadValues(
		[][]byte{
			[]byte("replicaCount: 2\nimage:\n  tag: v1\n"),
			[]byte("image:\n  tag: v2\nenv:\n  IPEX_OPTIMIZE: \"on\"\n  USE_XPU: true\n"),
		},
		[]string{"replicaCount=4", "persistence.mountPath=/models"},
	)
	require.NoError(t, err)

	require.Equal(t, int32(4), values.ReplicaCount)
	require.Equal(t, "v2", values.Image.Tag)
	require.Equal(t, "quay.io/caikit/caikit-embeddings", values.Image.Repository)
	require.Equal(t, "/models", values.Persistence.MountPath)
	require.Equal(t, runtimeenv.Flags{IPEXOptimize: true, UseXPU: true}, values.Env)
}

func TestLoadValuesNumericToggles(t *testing.T) {
	values, err := LoadValues(nil, []string{"env.USE_XPU=1", "env.PT2_COMPILE=0"})
	require.NoError(t, err)
	require.Equal(t, runtimeenv.Flags{UseXPU: true}, values.Env)

	values, err = LoadValues([][]byte{[]byte("env:\n  IPEX_OPTIMIZE: 1\n  PT2_COMPILE: 0\n")}, nil)
	require.NoError(t, err)
	require.Equal(t, runtimeenv.Flags{IPEXOptimize: true}, values.Env)
}

func TestLoadValuesResources(t *testing.T) {
	values, err := LoadValues(
		[][]byte{[]byte("resources:\n  limits:\n    cpu: \"2\"\n    memory: 8Gi\n")},
		nil,
	)
	require.NoError(t, err)
	require.False(t, isEmptyResources(values.Resources))

	limits := *values.Resources.Limits
	require.Equal(t, "8Gi", limits.Memory().String())
	require.Equal(t, "2", limits.Cpu().String())
}

func TestLoadValuesErrors(t *testing.T) {
	cases := []struct {
		Name    string
		Overlay string
		Sets    []string
		Errors  []string
	}{
		{
			Name:    "unknown key",
			Overlay: "replicas: 2\n",
			Errors:  []string{`unknown field "replicas"`},
		},
		{
			Name:    "malformed document",
			Overlay: "replicaCount: [\n",
			Errors:  []string{"failed to parse values document 1"},
		},
		{
			Name: "malformed set",
			Sets: []string{"image.tag"},
			Errors: []string{
				`failed to parse --set "image.tag"`,
			},
		},
		{
			Name: "every violation reported",
			Overlay: `
replicaCount: -1
containerPort: 0
image:
  repository: ""
  pullPolicy: Sometimes
service:
  type: ExternalName
  port: 70000
persistence:
  mountPath: models
  create: true
  size: lots
`,
			Errors: []string{
				"image.repository is required",
				`image.pullPolicy must be one of Always, IfNotPresent or Never: got "Sometimes"`,
				"replicaCount must not be negative: got -1",
				"containerPort must be between 1 and 65535: got 0",
				"service.port must be between 1 and 65535: got 70000",
				`service.type must be one of ClusterIP, NodePort or LoadBalancer: got "ExternalName"`,
				`persistence.mountPath must be an absolute path: got "models"`,
				"persistence.size",
			},
		},
		{
			Name:    "empty pull policy",
			Overlay: "image:\n  pullPolicy: \"\"\n",
			Errors:  []string{`image.pullPolicy must be one of Always, IfNotPresent or Never: got ""`},
		},
		{
			Name:    "autoscaling bounds",
			Overlay: "autoscaling:\n  enabled: true\n  minReplicas: 0\n  maxReplicas: -1\n",
			Errors: []string{
				"autoscaling.minReplicas must be at least 1: got 0",
				"autoscaling.maxReplicas must not be less than minReplicas: got -1 < 0",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			var overlays [][]byte
			if tc.Overlay != "" {
				overlays = append(overlays, []byte(tc.Overlay))
			}

			_, err := LoadValues(overlays, tc.Sets)
			require.Error(t, err)
			for _, msg := range tc.Errors {
				require.Contains(t, err.Error(), msg)
			}
		})
	}
}

func TestAutoscalingBoundsIgnoredWhenDisabled(t *testing.T) {
	_, err := LoadValues([][]byte{[]byte("autoscaling:\n  minReplicas: 0\n  maxReplicas: 0\n")}, nil)
	require.NoError(t, err)
}
