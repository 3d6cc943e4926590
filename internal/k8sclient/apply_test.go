package k8sclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
)

// Note: the fake dynamic client rejects apply patches, so these tests focus
// on decoding, mapping and namespace handling up to the patch call.

func TestApply_EmptyManifest(t *testing.T) {
	t.Parallel()
	c := setupTestClient(t)

	require.NoError(t, c.Apply(context.Background(), []byte(``)))
}

func TestApply_EmptyDocuments(t *testing.T) {
	t.Parallel()
	c := setupTestClient(t)

	require.NoError(t, c.Apply(context.Background(), []byte("---\n---\n\n---\n")))
}

func TestApply_InvalidYAML(t *testing.T) {
	t.Parallel()
	c := setupTestClient(t)

	err := c.Apply(context.Background(), []byte(`{invalid yaml: [`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode manifest")
}

func TestApply_ReachesServerSideApply(t *testing.T) {
	t.Parallel()
	c := setupTestClient(t)

	manifests := []byte(`---
apiVersion: longhorn.io/v1beta2
kind: Setting
metadata:
  name: guaranteed-instance-manager-cpu
value: "12"
`)

	err := c.Apply(context.Background(), manifests)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply Setting longhorn-system/guaranteed-instance-manager-cpu")
	assert.Contains(t, err.Error(), "server-side apply failed")
}

func TestApply_ListDocumentExpandsItems(t *testing.T) {
	t.Parallel()
	c := setupTestClient(t)

	manifests := []byte(`apiVersion: v1
kind: List
items:
- apiVersion: v1
  kind: ConfigMap
  metadata:
    name: first
    namespace: tools
`)

	err := c.Apply(context.Background(), manifests)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply ConfigMap tools/first")
}

func TestApplyObject_NoKind(t *testing.T) {
	t.Parallel()
	c := setupTestClient(t).(*client)

	obj := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "v1",
		"metadata":   map[string]any{"name": "test"},
	}}

	err := c.applyObject(context.Background(), obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no kind set")
}

func TestApplyObject_UnknownGVK(t *testing.T) {
	t.Parallel()
	c := setupTestClient(t).(*client)

	obj := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "unknown.io/v1",
		"kind":       "UnknownResource",
		"metadata":   map[string]any{"name": "test"},
	}}

	err := c.applyObject(context.Background(), obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get REST mapping")
}

func TestApplyObject_NamespaceDefaulting(t *testing.T) {
	t.Parallel()
	c := setupTestClient(t).(*client)

	namespaced := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata":   map[string]any{"name": "no-namespace"},
	}}
	_ = c.applyObject(context.Background(), namespaced)
	assert.Equal(t, "longhorn-system", namespaced.GetNamespace())

	clusterScoped := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "v1",
		"kind":       "Namespace",
		"metadata":   map[string]any{"name": "longhorn-system"},
	}}
	_ = c.applyObject(context.Background(), clusterScoped)
	assert.Empty(t, clusterScoped.GetNamespace())
}

// resetCountingMapper fails with NoMatch until Reset is called.
type resetCountingMapper struct {
	meta.RESTMapper
	resets int
}

func (m *resetCountingMapper) RESTMapping(gk schema.GroupKind, versions ...string) (*meta.RESTMapping, error) {
	if m.resets == 0 {
		return nil, &meta.NoKindMatchError{GroupKind: gk, SearchedVersions: versions}
	}
	return m.RESTMapper.RESTMapping(gk, versions...)
}

func (m *resetCountingMapper) Reset() { m.resets++ }

func TestApplyObject_ResetsMapperOnNoMatch(t *testing.T) {
	t.Parallel()
	mapper := &resetCountingMapper{RESTMapper: createTestMapper()}
	c := NewFromClients(dynamicfake.NewSimpleDynamicClient(runtime.NewScheme()), mapper, Options{}).(*client)

	obj := newSetting("freshly-installed", "true")
	err := c.applyObject(context.Background(), obj)

	assert.Equal(t, 1, mapper.resets)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server-side apply failed")
}
