package internal

import (
	"cmp"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Revisions is the recorded history of a release. ActiveIndex points into History
// at the revision whose resources are currently applied.
type Revisions struct {
	Release     string     `json:"release"`
	ActiveIndex int        `json:"activeIndex"`
	History     []Revision `json:"history"`
}

type Revision struct {
	ID        int                          `json:"id"`
	Source    Source                       `json:"source"`
	CreatedAt time.Time                    `json:"createdAt"`
	Resources []*unstructured.Unstructured `json:"resources"`
}

type Source struct {
	Ref      string `json:"ref"`
	Checksum string `json:"checksum"`
}

// SourceFrom describes where a revision's resources came from. The ref is normalized
// to a URL and the checksum covers the serialized resources.
func SourceFrom(ref string, resources []*unstructured.Unstructured) (src Source) {
	if data, err := json.Marshal(resources); err == nil && len(resources) > 0 {
		src.Checksum = fmt.Sprintf("%x", sha1.Sum(data))
	}

	if ref != "" {
		u, _ := url.Parse(ref)
		if u != nil && u.Scheme != "" {
			src.Ref = u.String()
		} else {
			src.Ref = "file://" + path.Clean(ref)
		}
	}

	return
}

// Add appends a new revision and marks it active.
func (revisions *Revisions) Add(resources []*unstructured.Unstructured, ref string) {
	var id int
	for _, revision := range revisions.History {
		id = max(id, revision.ID)
	}

	revisions.History = append(revisions.History, Revision{
		ID:        id + 1,
		Source:    SourceFrom(ref, resources),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Resources: resources,
	})
	revisions.ActiveIndex = len(revisions.History) - 1
}

// Active returns the active revision if any has been recorded.
func (revisions Revisions) Active() (Revision, bool) {
	if revisions.ActiveIndex < 0 || revisions.ActiveIndex >= len(revisions.History) {
		return Revision{}, false
	}
	return revisions.History[revisions.ActiveIndex], true
}

// CurrentResources returns the resources of the active revision.
func (revisions Revisions) CurrentResources() []*unstructured.Unstructured {
	active, _ := revisions.Active()
	return active.Resources
}

// Activate makes the revision with the given id active and returns it.
func (revisions *Revisions) Activate(id int) (Revision, error) {
	for i, revision := range revisions.History {
		if revision.ID == id {
			revisions.ActiveIndex = i
			return revision, nil
		}
	}
	return Revision{}, fmt.Errorf("revision %d is not within history", id)
}

const (
	LabelManagedBy = "app.kubernetes.io/managed-by"
	LabelRelease   = "caikit-deploy/release"
	LabelKind      = "caikit-deploy/kind"
	ManagedBy      = "caikit-deploy"
)

// AddReleaseMetadata labels resources as owned by the release.
func AddReleaseMetadata(resources []*unstructured.Unstructured, release string) {
	for _, resource := range resources {
		labels := resource.GetLabels()
		if labels == nil {
			labels = make(map[string]string)
		}
		labels[LabelManagedBy] = ManagedBy
		labels[LabelRelease] = release
		resource.SetLabels(labels)
	}
}

// Canonical returns the unique name of a resource within a cluster:
// namespace.group.version.kind.name with "_" and "core" standing in for
// cluster scoped resources and the core group.
func Canonical(resource *unstructured.Unstructured) string {
	gvk := resource.GroupVersionKind()

	return strings.ToLower(strings.Join(
		[]string{
			Namespace(resource),
			cmp.Or(gvk.Group, "core"),
			gvk.Version,
			gvk.Kind,
			resource.GetName(),
		},
		".",
	))
}

func Namespace(resource *unstructured.Unstructured) string {
	return cmp.Or(resource.GetNamespace(), "_")
}

func CanonicalNameList(resources []*unstructured.Unstructured) []string {
	result := make([]string, len(resources))
	for i, resource := range resources {
		result[i] = Canonical(resource)
	}
	return result
}

func CanonicalObjectMap(resources []*unstructured.Unstructured) map[string]any {
	result := make(map[string]any, len(resources))
	for _, resource := range resources {
		result[Canonical(resource)] = resource.Object
	}
	return result
}
