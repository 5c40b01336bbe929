package embeddings

import (
	"testing"

	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/caikit/caikit-embeddings-deploy/internal"
)

type renderFunc func(release, namespace string, values Values) ([]*unstructured.Unstructured, error)

var engines = map[string]renderFunc{
	"native": Render,
	"helm":   RenderHelm,
}

func mustLoad(t *testing.T, overlay string, sets ...string) Values {
	t.Helper()
	var overlays [][]byte
	if overlay != "" {
		overlays = append(overlays, []byte(overlay))
	}
	values, err := LoadValues(overlays, sets)
	require.NoError(t, err)
	return values
}

func findDeployment(t *testing.T, resources []*unstructured.Unstructured) *unstructured.Unstructured {
	t.Helper()
	deployment, ok := internal.Find(resources, func(resource *unstructured.Unstructured) bool {
		return resource.GetKind() == "Deployment"
	})
	require.True(t, ok, "no deployment rendered")
	return deployment
}

func firstContainer(t *testing.T, deployment *unstructured.Unstructured) map[string]any {
	t.Helper()
	containers, _, err := unstructured.NestedSlice(deployment.Object, "spec", "template", "spec", "containers")
	require.NoError(t, err)
	require.Len(t, containers, 1)
	return containers[0].(map[string]any)
}

func TestReplicas(t *testing.T) {
	for name, render := range engines {
		t.Run(name, func(t *testing.T) {
			resources, err := render("embeddings", "default", mustLoad(t, "", "autoscaling.enabled=false", "replicaCount=2"))
			require.NoError(t, err)

			replicas, found, err := unstructured.NestedInt64(findDeployment(t, resources).Object, "spec", "replicas")
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, int64(2), replicas)

			resources, err = render("embeddings", "default", mustLoad(t, "", "autoscaling.enabled=true", "replicaCount=2"))
			require.NoError(t, err)

			_, found, err = unstructured.NestedFieldNoCopy(findDeployment(t, resources).Object, "spec", "replicas")
			require.NoError(t, err)
			require.False(t, found)
		})
	}
}

func TestOptionalBlocks(t *testing.T) {
	cases := []struct {
		Name    string
		Overlay string
		Path    []string
	}{
		{
			Name:    "pod annotations",
			Overlay: "podAnnotations:\n  prometheus.io/scrape: \"true\"\n",
			Path:    []string{"spec", "template", "metadata", "annotations"},
		},
		{
			Name:    "node selector",
			Overlay: "nodeSelector:\n  accelerator: intel-xpu\n",
			Path:    []string{"spec", "template", "spec", "nodeSelector"},
		},
		{
			Name: "affinity",
			Overlay: `
affinity:
  nodeAffinity:
    requiredDuringSchedulingIgnoredDuringExecution:
      nodeSelectorTerms:
        - matchExpressions:
            - key: accelerator
              operator: In
              values: [intel-xpu]
`,
			Path: []string{"spec", "template", "spec", "affinity"},
		},
		{
			Name:    "tolerations",
			Overlay: "tolerations:\n  - key: gpu\n    operator: Exists\n    effect: NoSchedule\n",
			Path:    []string{"spec", "template", "spec", "tolerations"},
		},
		{
			Name:    "image pull secrets",
			Overlay: "imagePullSecrets:\n  - name: quay\n",
			Path:    []string{"spec", "template", "spec", "imagePullSecrets"},
		},
	}

	for engine, render := range engines {
		t.Run(engine, func(t *testing.T) {
			defaults, err := render("embeddings", "default", mustLoad(t, ""))
			require.NoError(t, err)

			for _, tc := range cases {
				t.Run(tc.Name, func(t *testing.T) {
					_, found, err := unstructured.NestedFieldNoCopy(findDeployment(t, defaults).Object, tc.Path...)
					require.NoError(t, err)
					require.False(t, found, "block present without values")

					resources, err := render("embeddings", "default", mustLoad(t, tc.Overlay))
					require.NoError(t, err)

					value, found, err := unstructured.NestedFieldNoCopy(findDeployment(t, resources).Object, tc.Path...)
					require.NoError(t, err)
					require.True(t, found, "block missing with values")
					require.NotEmpty(t, value)
				})
			}
		})
	}
}

func TestContainerResources(t *testing.T) {
	for engine, render := range engines {
		t.Run(engine, func(t *testing.T) {
			resources, err := render("embeddings", "default", mustLoad(t, ""))
			require.NoError(t, err)
			require.NotContains(t, firstContainer(t, findDeployment(t, resources)), "resources")

			resources, err = render("embeddings", "default", mustLoad(t, "resources:\n  requests:\n    memory: 4Gi\n"))
			require.NoError(t, err)

			memory, found, err := unstructured.NestedString(firstContainer(t, findDeployment(t, resources)), "resources", "requests", "memory")
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, "4Gi", memory)
		})
	}
}

func TestEnginesAgreeOnPodSpec(t *testing.T) {
	values := mustLoad(
		t,
		"image:\n  tag: v1.2.3\nenv:\n  IPEX_OPTIMIZE: \"true\"\n  PT2_COMPILE: \"false\"\npersistence:\n  claimName: shared-models\n  mountPath: /data\n",
	)

	native, err := Render("prod", "models", values)
	require.NoError(t, err)

	chart, err := RenderHelm("prod", "models", values)
	require.NoError(t, err)

	nativeDeployment := findDeployment(t, native)
	helmDeployment := findDeployment(t, chart)

	require.Equal(t, nativeDeployment.GetName(), helmDeployment.GetName())
	require.Equal(t, nativeDeployment.GetNamespace(), helmDeployment.GetNamespace())

	for _, path := range [][]string{
		{"spec", "selector"},
		{"spec", "template", "metadata", "labels"},
		{"spec", "template", "spec", "volumes"},
	} {
		expected, _, _ := unstructured.NestedFieldNoCopy(helmDeployment.Object, path...)
		actual, _, _ := unstructured.NestedFieldNoCopy(nativeDeployment.Object, path...)
		require.Equal(t, expected, actual, path)
	}

	expected, actual := firstContainer(t, helmDeployment), firstContainer(t, nativeDeployment)
	for _, key := range []string{"name", "image", "imagePullPolicy", "ports", "env", "volumeMounts"} {
		require.Equal(t, expected[key], actual[key], key)
	}

	require.Equal(t, "quay.io/caikit/caikit-embeddings:v1.2.3", actual["image"])
}

func TestRenderResourceSet(t *testing.T) {
	resources, err := Render("embeddings", "models", mustLoad(t, ""))
	require.NoError(t, err)
	require.Equal(
		t,
		[]string{
			"models.apps.v1.deployment.embeddings-caikit-embeddings",
			"models.core.v1.service.embeddings-caikit-embeddings",
		},
		internal.CanonicalNameList(resources),
	)

	resources, err = Render("caikit-embeddings", "models", mustLoad(t, "service:\n  enabled: false\nautoscaling:\n  enabled: true\npersistence:\n  create: true\n"))
	require.NoError(t, err)
	require.Equal(
		t,
		[]string{
			"models.apps.v1.deployment.caikit-embeddings",
			"models.autoscaling.v2.horizontalpodautoscaler.caikit-embeddings",
			"models.core.v1.persistentvolumeclaim.caikit-embeddings",
		},
		internal.CanonicalNameList(resources),
	)

	resources, err = RenderHelm("embeddings", "models", mustLoad(t, ""))
	require.NoError(t, err)
	require.Equal(t, []string{"models.apps.v1.deployment.embeddings-caikit-embeddings"}, internal.CanonicalNameList(resources))
}

func TestRenderRejectsInvalidValues(t *testing.T) {
	values := mustLoad(t, "")
	values.Image.Repository = ""
	values.Image.PullPolicy = ""

	for engine, render := range engines {
		t.Run(engine, func(t *testing.T) {
			_, err := render("embeddings", "default", values)
			require.ErrorContains(t, err, "image.repository is required")
			require.ErrorContains(t, err, `image.pullPolicy must be one of Always, IfNotPresent or Never: got ""`)
		})
	}
}

func TestRenderedDeploymentIsSchemaValid(t *testing.T) {
	values := mustLoad(t, `
podAnnotations:
  prometheus.io/scrape: "true"
imagePullSecrets:
  - name: quay
nodeSelector:
  kubernetes.io/arch: amd64
tolerations:
  - key: gpu
    operator: Exists
    effect: NoSchedule
affinity:
  nodeAffinity:
    requiredDuringSchedulingIgnoredDuringExecution:
      nodeSelectorTerms:
        - matchExpressions:
            - key: node-type
              operator: In
              values: [inference]
resources:
  limits:
    cpu: "2"
    memory: 4Gi
env:
  PT2_COMPILE: true
`)

	for name, render := range engines {
		t.Run(name, func(t *testing.T) {
			resources, err := render("embeddings", "default", values)
			require.NoError(t, err)

			var deployment appsv1.Deployment
			require.NoError(t, runtime.DefaultUnstructuredConverter.FromUnstructuredWithValidation(findDeployment(t, resources).Object, &deployment, true))

			spec := deployment.Spec.Template.Spec
			require.Len(t, spec.Containers, 1)
			require.Equal(t, "http", spec.Containers[0].Ports[0].Name)
			require.Equal(t, int32(8080), spec.Containers[0].Ports[0].ContainerPort)
			require.Equal(t, "/mnt/models", spec.Containers[0].VolumeMounts[0].MountPath)
			require.Equal(t, ClaimName("embeddings", values), spec.Volumes[0].PersistentVolumeClaim.ClaimName)
			require.Equal(t, "quay", spec.ImagePullSecrets[0].Name)
			require.Equal(t, "gpu", spec.Tolerations[0].Key)
			require.NotNil(t, spec.Affinity.NodeAffinity)

			env := map[string]string{}
			for _, variable := range spec.Containers[0].Env {
				env[variable.Name] = variable.Value
			}
			require.Equal(t, map[string]string{
				"IPEX_OPTIMIZE": "false",
				"USE_XPU":       "false",
				"USE_MPS":       "false",
				"PT2_COMPILE":   "true",
			}, env)
		})
	}
}
