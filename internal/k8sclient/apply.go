package k8sclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/yaml"
)

// Apply applies multi-document YAML using Server-Side Apply.
// Each document is parsed and applied in order; empty documents are skipped.
// Apply stops at the first failing document.
func (c *client) Apply(ctx context.Context, manifests []byte) error {
	decoder := yaml.NewYAMLOrJSONDecoder(bytes.NewReader(manifests), 4096)

	docIndex := 0
	for {
		var obj unstructured.Unstructured
		if err := decoder.Decode(&obj); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to decode manifest document %d: %w", docIndex, err)
		}

		if len(obj.Object) == 0 {
			docIndex++
			continue
		}

		// A List document expands to its items.
		if obj.IsList() {
			list, err := obj.ToList()
			if err != nil {
				return fmt.Errorf("failed to read list document %d: %w", docIndex, err)
			}
			for i := range list.Items {
				if err := c.applyObject(ctx, &list.Items[i]); err != nil {
					return describeApplyError(&list.Items[i], err)
				}
			}
			docIndex++
			continue
		}

		if err := c.applyObject(ctx, &obj); err != nil {
			return describeApplyError(&obj, err)
		}

		docIndex++
	}

	return nil
}

func describeApplyError(obj *unstructured.Unstructured, err error) error {
	return fmt.Errorf("failed to apply %s %s/%s: %w", obj.GetKind(), obj.GetNamespace(), obj.GetName(), err)
}

// applyObject applies a single unstructured object using Server-Side Apply.
func (c *client) applyObject(ctx context.Context, obj *unstructured.Unstructured) error {
	gvk := obj.GroupVersionKind()
	if gvk.Kind == "" {
		return fmt.Errorf("object has no kind set")
	}

	mapping, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil && meta.IsNoMatchError(err) {
		// The kind may come from a CRD applied earlier in this manifest.
		if rm, ok := c.mapper.(resettableMapper); ok {
			rm.Reset()
			mapping, err = c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to get REST mapping for %v: %w", gvk, err)
	}

	namespace := ""
	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		namespace = obj.GetNamespace()
		if namespace == "" {
			namespace = c.opts.Namespace
		}
		obj.SetNamespace(namespace)
	}

	data, err := obj.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal object to JSON: %w", err)
	}

	force := true
	_, err = c.resource(mapping.Resource, namespace).Patch(
		ctx,
		obj.GetName(),
		types.ApplyPatchType,
		data,
		metav1.PatchOptions{FieldManager: c.opts.FieldManager, Force: &force},
	)
	if err != nil {
		return fmt.Errorf("server-side apply failed: %w", err)
	}

	return nil
}
