package k8s

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	kerrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/retry"

	"github.com/davidmdm/x/xerr"

	"github.com/caikit/caikit-embeddings-deploy/internal"
)

const (
	ResourceReleaseMapping = "caikit-deploy-resource-release-mapping"
	DefaultStateNamespace  = "kube-system"
	fieldManager           = "caikit-deploy"
	KeyRevisions           = "revisions"
	KeyRelease             = "release"
)

func revisionsSecretName(release string) string { return fieldManager + "." + release }

type Client struct {
	dynamic        dynamic.Interface
	clientset      kubernetes.Interface
	mapper         meta.RESTMapper
	stateNamespace string
}

func NewClientFromKubeConfig(path, stateNamespace string) (*Client, error) {
	restcfg, err := clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, fmt.Errorf("failed to build k8 config: %w", err)
	}
	return NewClient(restcfg, stateNamespace)
}

func NewClient(cfg *rest.Config, stateNamespace string) (*Client, error) {
	dynamicClient, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client component: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create k8 clientset: %w", err)
	}

	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(clientset.Discovery()))

	return newClient(dynamicClient, clientset, mapper, stateNamespace), nil
}

// NewClientForInterfaces builds a client from already constructed interfaces.
func NewClientForInterfaces(dynamicClient dynamic.Interface, clientset kubernetes.Interface, mapper meta.RESTMapper, stateNamespace string) *Client {
	return newClient(dynamicClient, clientset, mapper, stateNamespace)
}

func newClient(dynamicClient dynamic.Interface, clientset kubernetes.Interface, mapper meta.RESTMapper, stateNamespace string) *Client {
	if stateNamespace == "" {
		stateNamespace = DefaultStateNamespace
	}
	return &Client{
		dynamic:        dynamicClient,
		clientset:      clientset,
		mapper:         mapper,
		stateNamespace: stateNamespace,
	}
}

type ApplyResourcesOpts struct {
	SkipDryRun     bool
	ForceConflicts bool
}

// ApplyResources server-side applies every resource. Unless skipped, all resources are
// first applied as a dry run so that nothing is written when any of them would be rejected.
func (client Client) ApplyResources(ctx context.Context, resources []*unstructured.Unstructured, opts ApplyResourcesOpts) error {
	defer internal.DebugTimer(ctx, "apply resources")()

	var errs []error

	if !opts.SkipDryRun {
		for _, resource := range resources {
			if err := client.ApplyResource(ctx, resource, ApplyOpts{DryRun: true, ForceConflicts: opts.ForceConflicts}); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", internal.Canonical(resource), err))
			}
		}
		if err := xerr.MultiErrOrderedFrom("dry run", errs...); err != nil {
			return err
		}
	}

	for _, resource := range resources {
		if err := client.ApplyResource(ctx, resource, ApplyOpts{ForceConflicts: opts.ForceConflicts}); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", internal.Canonical(resource), err))
		}
	}

	return xerr.MultiErrOrderedFrom("", errs...)
}

type ApplyOpts struct {
	DryRun         bool
	ForceConflicts bool
}

func (client Client) ApplyResource(ctx context.Context, resource *unstructured.Unstructured, opts ApplyOpts) error {
	resourceInterface, err := client.GetDynamicResourceInterface(resource)
	if err != nil {
		return fmt.Errorf("failed to resolve resource: %w", err)
	}

	dryRun := func() []string {
		if opts.DryRun {
			return []string{metav1.DryRunAll}
		}
		return nil
	}()

	data, err := json.Marshal(resource)
	if err != nil {
		return err
	}

	_, err = resourceInterface.Patch(
		ctx,
		resource.GetName(),
		types.ApplyPatchType,
		data,
		metav1.PatchOptions{
			FieldManager: fieldManager,
			Force:        &opts.ForceConflicts,
			DryRun:       dryRun,
		},
	)
	return err
}

// RemoveOrphans deletes the resources of previous that are not part of current
// and returns the ones it removed.
func (client Client) RemoveOrphans(ctx context.Context, previous, current []*unstructured.Unstructured) ([]*unstructured.Unstructured, error) {
	set := make(map[string]struct{})
	for _, resource := range current {
		set[internal.Canonical(resource)] = struct{}{}
	}

	var errs []error
	var removedResources []*unstructured.Unstructured
	for _, resource := range previous {
		if _, ok := set[internal.Canonical(resource)]; ok {
			continue
		}

		resourceInterface, err := client.GetDynamicResourceInterface(resource)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to resolve resource %s: %w", internal.Canonical(resource), err))
			continue
		}

		if err := resourceInterface.Delete(ctx, resource.GetName(), metav1.DeleteOptions{}); err != nil && !kerrors.IsNotFound(err) {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", internal.Canonical(resource), err))
			continue
		}

		internal.Debug(ctx).Printf("removed %s\n", internal.Canonical(resource))

		removedResources = append(removedResources, resource)
	}

	return removedResources, xerr.MultiErrOrderedFrom("", errs...)
}

func (client Client) GetRevisions(ctx context.Context, release string) (*internal.Revisions, error) {
	secret, err := client.clientset.CoreV1().Secrets(client.stateNamespace).Get(ctx, revisionsSecretName(release), metav1.GetOptions{})
	if kerrors.IsNotFound(err) {
		return &internal.Revisions{Release: release}, nil
	}
	if err != nil {
		return nil, err
	}

	var revisions internal.Revisions
	if err := json.Unmarshal(secret.Data[KeyRevisions], &revisions); err != nil {
		return nil, fmt.Errorf("could not parse release %q state: %w", release, err)
	}

	return &revisions, nil
}

func (client Client) UpsertRevisions(ctx context.Context, release string, revisions *internal.Revisions) error {
	secrets := client.clientset.CoreV1().Secrets(client.stateNamespace)

	data, err := json.Marshal(revisions)
	if err != nil {
		return err
	}

	secret, err := secrets.Get(ctx, revisionsSecretName(release), metav1.GetOptions{})
	if kerrors.IsNotFound(err) {
		_, err := secrets.Create(
			ctx,
			&corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{
					Name:   revisionsSecretName(release),
					Labels: map[string]string{internal.LabelKind: KeyRevisions},
				},
				Data: map[string][]byte{
					KeyRelease:   []byte(release),
					KeyRevisions: data,
				},
			},
			metav1.CreateOptions{FieldManager: fieldManager},
		)
		return err
	}

	if err != nil {
		return fmt.Errorf("failed to get revisions: %w", err)
	}

	if secret.Data == nil {
		secret.Data = make(map[string][]byte)
	}

	secret.Data[KeyRelease] = []byte(release)
	secret.Data[KeyRevisions] = data

	_, err = secrets.Update(ctx, secret, metav1.UpdateOptions{FieldManager: fieldManager})
	return err
}

func (client Client) GetAllRevisions(ctx context.Context) ([]internal.Revisions, error) {
	secrets := client.clientset.CoreV1().Secrets(client.stateNamespace)

	list, err := secrets.List(ctx, metav1.ListOptions{LabelSelector: internal.LabelKind + "=" + KeyRevisions})
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}

	results := make([]internal.Revisions, len(list.Items))
	for i, secret := range list.Items {
		var revisions internal.Revisions
		if err := json.Unmarshal(secret.Data[KeyRevisions], &revisions); err != nil {
			return nil, fmt.Errorf("could not parse release %q state: %w", secret.Data[KeyRelease], err)
		}
		results[i] = revisions
	}

	return results, nil
}

func (client Client) DeleteRevisions(ctx context.Context, release string) error {
	err := client.clientset.CoreV1().
		Secrets(client.stateNamespace).
		Delete(ctx, revisionsSecretName(release), metav1.DeleteOptions{})
	if kerrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (client Client) GetDynamicResourceInterface(resource *unstructured.Unstructured) (dynamic.ResourceInterface, error) {
	mapping, err := client.LookupResourceMapping(resource)
	if err != nil {
		return nil, err
	}
	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		return client.dynamic.Resource(mapping.Resource).Namespace(resource.GetNamespace()), nil
	}
	return client.dynamic.Resource(mapping.Resource), nil
}

func (client Client) LookupResourceMapping(resource *unstructured.Unstructured) (*meta.RESTMapping, error) {
	gvk := schema.FromAPIVersionAndKind(resource.GetAPIVersion(), resource.GetKind())
	return client.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
}

// UpdateResourceReleaseMapping records the resources created by a release and forgets the removed ones.
func (client Client) UpdateResourceReleaseMapping(ctx context.Context, release string, create, remove []string) error {
	configMaps := client.clientset.CoreV1().ConfigMaps(client.stateNamespace)

	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		configMap, err := configMaps.Get(ctx, ResourceReleaseMapping, metav1.GetOptions{})
		if kerrors.IsNotFound(err) {
			mapping := map[string]string{}
			for _, value := range create {
				mapping[value] = release
			}

			_, err := configMaps.Create(
				ctx,
				&corev1.ConfigMap{
					ObjectMeta: metav1.ObjectMeta{
						Name:   ResourceReleaseMapping,
						Labels: map[string]string{internal.LabelKind: "resource-mapping"},
					},
					Data: mapping,
				},
				metav1.CreateOptions{FieldManager: fieldManager},
			)
			return err
		}

		if err != nil {
			return fmt.Errorf("failed to get resource to release mapping: %w", err)
		}

		if configMap.Data == nil {
			configMap.Data = make(map[string]string, len(create))
		}

		for _, value := range remove {
			delete(configMap.Data, value)
		}
		for _, value := range create {
			configMap.Data[value] = release
		}

		_, err = configMaps.Update(ctx, configMap, metav1.UpdateOptions{FieldManager: fieldManager})
		return err
	})
}

func (client Client) GetResourceReleaseMapping(ctx context.Context) (map[string]string, error) {
	configMap, err := client.clientset.CoreV1().ConfigMaps(client.stateNamespace).Get(ctx, ResourceReleaseMapping, metav1.GetOptions{})
	if err != nil {
		if kerrors.IsNotFound(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	mapping := configMap.Data
	if mapping == nil {
		mapping = make(map[string]string)
	}

	return mapping, nil
}

// ValidateOwnership fails when any of the resources is already owned by another release.
func (client Client) ValidateOwnership(ctx context.Context, release string, resources []*unstructured.Unstructured) error {
	resourceReleaseMapping, err := client.GetResourceReleaseMapping(ctx)
	if err != nil {
		return fmt.Errorf("failed to get release to resource mapping: %w", err)
	}

	var errs []error
	for _, resource := range internal.CanonicalNameList(resources) {
		if currentRelease, ok := resourceReleaseMapping[resource]; ok && currentRelease != release {
			errs = append(errs, fmt.Errorf("resource %+q is owned by release %+q", resource, currentRelease))
		}
	}

	return xerr.MultiErrOrderedFrom("conflict(s)", errs...)
}

func (client Client) EnsureNamespace(ctx context.Context, namespace string) error {
	namespaces := client.clientset.CoreV1().Namespaces()

	if _, err := namespaces.Get(ctx, namespace, metav1.GetOptions{}); err != nil {
		if !kerrors.IsNotFound(err) {
			return err
		}
		_, err := namespaces.Create(
			ctx,
			&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: namespace}},
			metav1.CreateOptions{FieldManager: fieldManager},
		)
		if err != nil && !kerrors.IsAlreadyExists(err) {
			return err
		}
	}

	return nil
}

type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// WaitForReady polls the live state of the resource until it is ready or the timeout expires.
func (client Client) WaitForReady(ctx context.Context, resource *unstructured.Unstructured, opts WaitOptions) error {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}

	resourceInterface, err := client.GetDynamicResourceInterface(resource)
	if err != nil {
		return fmt.Errorf("failed to resolve resource: %w", err)
	}

	return wait.PollUntilContextTimeout(ctx, opts.Interval, opts.Timeout, true, func(ctx context.Context) (bool, error) {
		live, err := resourceInterface.Get(ctx, resource.GetName(), metav1.GetOptions{})
		if err != nil {
			if kerrors.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		return isReady(ctx, live), nil
	})
}

func (client Client) WaitForReadyMany(ctx context.Context, resources []*unstructured.Unstructured, opts WaitOptions) error {
	defer internal.DebugTimer(ctx, "wait for resources")()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var errs []error
	for _, resource := range resources {
		if err := client.WaitForReady(ctx, resource, opts); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", internal.Canonical(resource), err))
		}
	}
	return xerr.MultiErrOrderedFrom("", errs...)
}
