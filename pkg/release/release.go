// Package release installs, upgrades, rolls back and removes rendered
// caikit-embeddings releases, recording every revision in the cluster.
package release

import (
	"context"
	"fmt"
	"time"

	"github.com/caikit/caikit-embeddings-deploy/internal"
	"github.com/caikit/caikit-embeddings-deploy/internal/k8s"
)

type Client struct {
	k8s *k8s.Client
}

func FromKubeConfig(path, stateNamespace string) (*Client, error) {
	client, err := k8s.NewClientFromKubeConfig(path, stateNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize k8s client: %w", err)
	}
	return &Client{client}, nil
}

// FromK8s wraps an existing k8s client.
func FromK8s(client *k8s.Client) *Client {
	return &Client{client}
}

type DescentParams struct {
	Release    string
	RevisionID int
	Wait       time.Duration
	Poll       time.Duration
}

// Descent re-applies a previously recorded revision and makes it the active one.
func (client Client) Descent(ctx context.Context, params DescentParams) error {
	defer internal.DebugTimer(ctx, "descent")()

	revisions, err := client.k8s.GetRevisions(ctx, params.Release)
	if err != nil {
		return fmt.Errorf("failed to get revisions: %w", err)
	}

	if len(revisions.History) == 0 {
		return fmt.Errorf("release %q not found", params.Release)
	}

	previous := revisions.CurrentResources()

	next, err := revisions.Activate(params.RevisionID)
	if err != nil {
		return err
	}

	if err := client.k8s.ValidateOwnership(ctx, params.Release, next.Resources); err != nil {
		return fmt.Errorf("failed to validate ownership: %w", err)
	}

	if err := client.k8s.ApplyResources(ctx, next.Resources, k8s.ApplyResourcesOpts{SkipDryRun: true}); err != nil {
		return fmt.Errorf("failed to apply resources: %w", err)
	}

	if err := client.k8s.UpsertRevisions(ctx, params.Release, revisions); err != nil {
		return fmt.Errorf("failed to update revision history: %w", err)
	}

	removed, err := client.k8s.RemoveOrphans(ctx, previous, next.Resources)
	if err != nil {
		return fmt.Errorf("failed to remove orphaned resources: %w", err)
	}

	var (
		createdNames = internal.CanonicalNameList(next.Resources)
		removedNames = internal.CanonicalNameList(removed)
	)

	if err := client.k8s.UpdateResourceReleaseMapping(ctx, params.Release, createdNames, removedNames); err != nil {
		return fmt.Errorf("failed to update resource release mapping: %w", err)
	}

	if params.Wait > 0 {
		opts := k8s.WaitOptions{Timeout: params.Wait, Interval: params.Poll}
		if err := client.k8s.WaitForReadyMany(ctx, next.Resources, opts); err != nil {
			return fmt.Errorf("release did not become ready within wait period: %w", err)
		}
	}

	return nil
}

// Mayday deletes the resources of the active revision along with the release history.
func (client Client) Mayday(ctx context.Context, release string) error {
	defer internal.DebugTimer(ctx, "mayday")()

	revisions, err := client.k8s.GetRevisions(ctx, release)
	if err != nil {
		return fmt.Errorf("failed to get revision history for release: %w", err)
	}

	if len(revisions.History) == 0 {
		return internal.Warning(fmt.Sprintf("release %q not found: nothing to delete", release))
	}

	removed, err := client.k8s.RemoveOrphans(ctx, revisions.CurrentResources(), nil)
	if err != nil {
		return fmt.Errorf("failed to delete resources: %w", err)
	}

	if err := client.k8s.UpdateResourceReleaseMapping(ctx, release, nil, internal.CanonicalNameList(removed)); err != nil {
		return fmt.Errorf("failed to update resource to release mapping: %w", err)
	}

	if err := client.k8s.DeleteRevisions(ctx, release); err != nil {
		return fmt.Errorf("failed to delete revision history: %w", err)
	}

	return nil
}
