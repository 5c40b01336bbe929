package release

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/davidmdm/x/xerr"

	"github.com/caikit/caikit-embeddings-deploy/internal"
	"github.com/caikit/caikit-embeddings-deploy/internal/k8s"
	"github.com/caikit/caikit-embeddings-deploy/internal/text"
)

type TakeoffParams struct {
	Release   string
	Namespace string
	Resources []*unstructured.Unstructured
	// Ref names the values documents the resources were rendered from.
	Ref string

	TestRun        bool
	SkipDryRun     bool
	ForceConflicts bool
	Out            string
	DiffOnly       bool
	Context        int
	Color          bool
	Wait           time.Duration
	Poll           time.Duration
}

func (client Client) Takeoff(ctx context.Context, params TakeoffParams) error {
	defer internal.DebugTimer(ctx, "takeoff")()

	resources := params.Resources

	internal.AddReleaseMetadata(resources, params.Release)

	if params.TestRun {
		return ExportToStdout(ctx, resources)
	}

	complete := internal.DebugTimer(ctx, "looking up resource mappings")

	for _, resource := range resources {
		mapping, err := client.k8s.LookupResourceMapping(resource)
		if err != nil {
			if meta.IsNoMatchError(err) {
				continue
			}
			return fmt.Errorf("failed to lookup resource mapping for %s: %w", internal.Canonical(resource), err)
		}
		if mapping.Scope.Name() == meta.RESTScopeNameNamespace && resource.GetNamespace() == "" {
			resource.SetNamespace(cmp.Or(params.Namespace, "default"))
		}
	}

	complete()

	if params.Out != "" {
		if params.Out == "-" {
			return ExportToStdout(ctx, resources)
		}
		return ExportToFS(params.Out, params.Release, resources)
	}

	revisions, err := client.k8s.GetRevisions(ctx, params.Release)
	if err != nil {
		return fmt.Errorf("failed to get revision history: %w", err)
	}

	previous := revisions.CurrentResources()

	if params.DiffOnly {
		a, err := text.ToYamlFile("current", internal.CanonicalObjectMap(previous))
		if err != nil {
			return err
		}

		b, err := text.ToYamlFile("next", internal.CanonicalObjectMap(resources))
		if err != nil {
			return err
		}

		differ := func() text.DiffFunc {
			if params.Color {
				return text.DiffColorized
			}
			return text.Diff
		}()

		_, err = fmt.Fprint(internal.Stdout(ctx), differ(a, b, params.Context))
		return err
	}

	if len(previous) > 0 && internal.SourceFrom("", previous).Checksum == internal.SourceFrom("", resources).Checksum {
		return internal.Warning("resources are the same as previous revision: skipping takeoff")
	}

	if err := client.k8s.ValidateOwnership(ctx, params.Release, resources); err != nil {
		return fmt.Errorf("failed to validate ownership: %w", err)
	}

	if namespace := params.Namespace; namespace != "" {
		if err := client.k8s.EnsureNamespace(ctx, namespace); err != nil {
			return fmt.Errorf("failed to ensure namespace: %w", err)
		}
		if err := client.k8s.WaitForReady(ctx, toUnstructuredNS(namespace), k8s.WaitOptions{}); err != nil {
			return fmt.Errorf("failed to wait for namespace %s to be ready: %w", namespace, err)
		}
	}

	applyOpts := k8s.ApplyResourcesOpts{
		SkipDryRun:     params.SkipDryRun,
		ForceConflicts: params.ForceConflicts,
	}

	if err := client.k8s.ApplyResources(ctx, resources, applyOpts); err != nil {
		return fmt.Errorf("failed to apply resources: %w", err)
	}

	revisions.Add(resources, params.Ref)

	if err := client.k8s.UpsertRevisions(ctx, params.Release, revisions); err != nil {
		return fmt.Errorf("failed to create revision: %w", err)
	}

	removed, err := client.k8s.RemoveOrphans(ctx, previous, resources)
	if err != nil {
		return fmt.Errorf("failed to remove orphans: %w", err)
	}

	var (
		createdNames = internal.CanonicalNameList(resources)
		removedNames = internal.CanonicalNameList(removed)
	)

	if err := client.k8s.UpdateResourceReleaseMapping(ctx, params.Release, createdNames, removedNames); err != nil {
		return fmt.Errorf("failed to update resource release mapping: %w", err)
	}

	if params.Wait > 0 {
		opts := k8s.WaitOptions{Timeout: params.Wait, Interval: params.Poll}
		if err := client.k8s.WaitForReadyMany(ctx, resources, opts); err != nil {
			return fmt.Errorf("release did not become ready within wait period: to rollback use `caikit-deploy descent`: %w", err)
		}
	}

	return nil
}

// ExportToFS writes every resource to <dir>/<release>/<canonical name>.yaml,
// replacing any previous export of the release.
func ExportToFS(dir, release string, resources []*unstructured.Unstructured) error {
	root := filepath.Join(dir, release)

	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("failed remove previous export: %w", err)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create release output directory: %w", err)
	}

	var errs []error
	for _, resource := range resources {
		path := filepath.Join(root, internal.Canonical(resource)+".yaml")

		if err := internal.WriteYAML(path, resource.Object); err != nil {
			errs = append(errs, err)
		}
	}

	return xerr.MultiErrFrom("failed to write resource(s)", errs...)
}

// ExportToStdout writes the resources as a multi-document YAML stream.
func ExportToStdout(ctx context.Context, resources []*unstructured.Unstructured) error {
	documents := make([]any, len(resources))
	for i, resource := range resources {
		documents[i] = resource.Object
	}
	return internal.EncodeYAML(internal.Stdout(ctx), documents...)
}

func toUnstructuredNS(ns string) *unstructured.Unstructured {
	return &unstructured.Unstructured{
		Object: map[string]any{
			"apiVersion": "v1",
			"kind":       "Namespace",
			"metadata":   map[string]any{"name": ns},
		},
	}
}
