package longhorn

import (
	"context"
	"fmt"
	"slices"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

// ListVolumes returns every Longhorn volume joined with its claim and the
// pods that mount the claim.
func (o *Orchestrator) ListVolumes(ctx context.Context) ([]VolumeSummary, error) {
	list, err := o.client.List(ctx, VolumesGVR, o.opts.Namespace, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	consumers := make(map[string]map[string][]string) // namespace -> claim -> workloads
	summaries := make([]VolumeSummary, 0, len(list.Items))
	for _, item := range list.Items {
		v := volumeSummary(&item)

		if v.PVC != "" && v.Namespace != "" {
			byClaim, ok := consumers[v.Namespace]
			if !ok {
				byClaim, err = o.claimConsumers(ctx, v.Namespace)
				if err != nil {
					o.observer.Warnf("[%s] Failed to list pods in %s: %v", phaseInspect, v.Namespace, err)
				}
				consumers[v.Namespace] = byClaim
			}
			if workloads := byClaim[v.PVC]; len(workloads) > 0 {
				v.Workloads = workloads
			}
		}

		summaries = append(summaries, v)
	}

	slices.SortFunc(summaries, func(a, b VolumeSummary) int {
		return strings.Compare(a.Name, b.Name)
	})
	return summaries, nil
}

func volumeSummary(obj *unstructured.Unstructured) VolumeSummary {
	str := func(fields ...string) string {
		s, _, _ := unstructured.NestedString(obj.Object, fields...)
		return s
	}

	v := VolumeSummary{
		Name:       obj.GetName(),
		State:      str("status", "state"),
		Robustness: str("status", "robustness"),
		Size:       str("spec", "size"),
		Node:       str("status", "currentNodeID"),
		PVC:        str("status", "kubernetesStatus", "pvcName"),
		Namespace:  str("status", "kubernetesStatus", "namespace"),
	}

	// Longhorn tracks consumers itself; pod ownership below refines it.
	workloads, _, _ := unstructured.NestedSlice(obj.Object, "status", "kubernetesStatus", "workloadsStatus")
	for _, w := range workloads {
		m, ok := w.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["workloadName"].(string)
		if name == "" {
			name, _ = m["podName"].(string)
		}
		if name != "" && !slices.Contains(v.Workloads, name) {
			v.Workloads = append(v.Workloads, name)
		}
	}
	return v
}

// claimConsumers maps each claim in namespace to the workloads of the pods
// mounting it. A pod's workload is its controller owner, or the pod itself.
func (o *Orchestrator) claimConsumers(ctx context.Context, namespace string) (map[string][]string, error) {
	list, err := o.client.List(ctx, PodsGVR, namespace, "")
	if err != nil {
		return nil, err
	}

	byClaim := make(map[string][]string)
	for _, item := range list.Items {
		var pod corev1.Pod
		if err := runtime.DefaultUnstructuredConverter.FromUnstructured(item.Object, &pod); err != nil {
			continue
		}
		workload := pod.Name
		for _, ref := range pod.OwnerReferences {
			if ref.Controller != nil && *ref.Controller {
				workload = ref.Kind + "/" + ref.Name
				break
			}
		}
		for _, vol := range pod.Spec.Volumes {
			if vol.PersistentVolumeClaim == nil {
				continue
			}
			claim := vol.PersistentVolumeClaim.ClaimName
			if !slices.Contains(byClaim[claim], workload) {
				byClaim[claim] = append(byClaim[claim], workload)
			}
		}
	}
	return byClaim, nil
}
