package testing

import (
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"github.com/imamik/lhctl/internal/k8sclient"
	"github.com/imamik/lhctl/internal/longhorn"
)

// Namespace is the namespace fixtures are created in.
const Namespace = longhorn.DefaultNamespace

var listKinds = map[schema.GroupVersionResource]string{
	longhorn.SettingsGVR:       "SettingList",
	longhorn.VolumesGVR:        "VolumeList",
	longhorn.StorageClassesGVR: "StorageClassList",
	longhorn.PVCsGVR:           "PersistentVolumeClaimList",
	longhorn.PodsGVR:           "PodList",
	longhorn.ServicesGVR:       "ServiceList",
	longhorn.DeploymentsGVR:    "DeploymentList",
	longhorn.DaemonSetsGVR:     "DaemonSetList",
}

// NewClusterClient returns a client over a fake dynamic client holding objs.
// The fake rejects server-side apply, so Apply always fails.
func NewClusterClient(namespace string, objs ...*unstructured.Unstructured) k8sclient.Client {
	runtimeObjs := make([]runtime.Object, 0, len(objs))
	for _, o := range objs {
		runtimeObjs = append(runtimeObjs, o)
	}
	dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), listKinds, runtimeObjs...)
	return k8sclient.NewFromClients(dyn, meta.NewDefaultRESTMapper(nil), k8sclient.Options{Namespace: namespace})
}

// Object builds an unstructured object with extra top-level fields.
func Object(apiVersion, kind, namespace, name string, labels map[string]any, fields map[string]any) *unstructured.Unstructured {
	metadata := map[string]any{"name": name}
	if namespace != "" {
		metadata["namespace"] = namespace
	}
	if labels != nil {
		metadata["labels"] = labels
	}
	obj := map[string]any{
		"apiVersion": apiVersion,
		"kind":       kind,
		"metadata":   metadata,
	}
	for k, v := range fields {
		obj[k] = v
	}
	return &unstructured.Unstructured{Object: obj}
}

// Setting returns a Longhorn setting.
func Setting(name, value string) *unstructured.Unstructured {
	return Object("longhorn.io/v1beta2", "Setting", Namespace, name, nil, map[string]any{"value": value})
}

// DaemonSet returns a DaemonSet labelled app=name with a single container.
func DaemonSet(name, container, image string) *unstructured.Unstructured {
	return Object("apps/v1", "DaemonSet", Namespace, name, map[string]any{"app": name}, map[string]any{
		"spec": map[string]any{
			"selector": map[string]any{"matchLabels": map[string]any{"app": name}},
			"template": map[string]any{
				"metadata": map[string]any{"labels": map[string]any{"app": name}},
				"spec": map[string]any{
					"containers": []any{
						map[string]any{"name": container, "image": image},
					},
				},
			},
		},
	})
}

// Pod returns a pod labelled app=app. A ready pod is Running with a true
// Ready condition; otherwise it is Pending.
func Pod(name, app string, ready bool) *unstructured.Unstructured {
	status := map[string]any{"phase": "Pending"}
	if ready {
		status = map[string]any{
			"phase": "Running",
			"conditions": []any{
				map[string]any{"type": "Ready", "status": "True"},
			},
		}
	}
	return Object("v1", "Pod", Namespace, name, map[string]any{"app": app}, map[string]any{
		"spec": map[string]any{
			"containers": []any{map[string]any{"name": app, "image": "longhornio/" + app}},
		},
		"status": status,
	})
}

// Volume returns a healthy 10GiB Longhorn volume on node-1.
func Volume(name, state string) *unstructured.Unstructured {
	return Object("longhorn.io/v1beta2", "Volume", Namespace, name, nil, map[string]any{
		"spec": map[string]any{"size": "10737418240"},
		"status": map[string]any{
			"state":         state,
			"robustness":    "healthy",
			"currentNodeID": "node-1",
		},
	})
}
