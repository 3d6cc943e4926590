package longhorn

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	storagev1 "k8s.io/api/storage/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
)

const testNamespace = "longhorn-system"

const (
	fastWait     = 2 * time.Second
	fastInterval = 10 * time.Millisecond
)

// call is one recorded ClusterClient invocation.
type call struct {
	Verb      string
	Resource  string
	Namespace string
}

// fakeCluster is an in-memory ClusterClient that records every call.
type fakeCluster struct {
	mu      sync.Mutex
	objects map[schema.GroupVersionResource][]*unstructured.Unstructured
	calls   []call
	applied [][]byte

	getErr   error
	listErrs map[schema.GroupVersionResource]error
	onApply  func(manifest []byte) error
}

func newFakeCluster(objs ...*unstructured.Unstructured) *fakeCluster {
	f := &fakeCluster{
		objects:  make(map[schema.GroupVersionResource][]*unstructured.Unstructured),
		listErrs: make(map[schema.GroupVersionResource]error),
	}
	for _, obj := range objs {
		f.add(obj)
	}
	return f
}

func (f *fakeCluster) add(obj *unstructured.Unstructured) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gvr := gvrFor(obj)
	f.objects[gvr] = append(f.objects[gvr], obj)
}

// replace drops every stored object of the resource and stores objs instead.
func (f *fakeCluster) replace(gvr schema.GroupVersionResource, objs ...*unstructured.Unstructured) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[gvr] = objs
}

func (f *fakeCluster) record(verb string, gvr schema.GroupVersionResource, namespace string) {
	f.calls = append(f.calls, call{Verb: verb, Resource: gvr.Resource, Namespace: namespace})
}

func (f *fakeCluster) Get(_ context.Context, gvr schema.GroupVersionResource, namespace, name string) (*unstructured.Unstructured, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get", gvr, namespace)

	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, obj := range f.objects[gvr] {
		if obj.GetName() == name && obj.GetNamespace() == namespace {
			return obj.DeepCopy(), nil
		}
	}
	return nil, fmt.Errorf("failed to get %s: %w", name, apierrors.NewNotFound(gvr.GroupResource(), name))
}

func (f *fakeCluster) List(_ context.Context, gvr schema.GroupVersionResource, namespace, labelSelector string) (*unstructured.UnstructuredList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list", gvr, namespace)

	if err := f.listErrs[gvr]; err != nil {
		return nil, err
	}
	selector, err := labels.Parse(labelSelector)
	if err != nil {
		return nil, err
	}

	list := &unstructured.UnstructuredList{}
	for _, obj := range f.objects[gvr] {
		if namespace != "" && obj.GetNamespace() != namespace {
			continue
		}
		if !selector.Matches(labels.Set(obj.GetLabels())) {
			continue
		}
		list.Items = append(list.Items, *obj.DeepCopy())
	}
	return list, nil
}

func (f *fakeCluster) Patch(_ context.Context, gvr schema.GroupVersionResource, namespace, _ string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("patch", gvr, namespace)
	return nil
}

func (f *fakeCluster) Apply(_ context.Context, manifests []byte) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{Verb: "apply"})
	f.applied = append(f.applied, manifests)
	hook := f.onApply
	f.mu.Unlock()

	if hook != nil {
		return hook(manifests)
	}
	return nil
}

func (f *fakeCluster) Watch(_ context.Context, gvr schema.GroupVersionResource, namespace, _ string) (watch.Interface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("watch", gvr, namespace)
	return watch.NewEmptyWatch(), nil
}

func (f *fakeCluster) verbs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	verbs := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		verbs = append(verbs, c.Verb)
	}
	return verbs
}

func (f *fakeCluster) applyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied)
}

func gvrFor(obj *unstructured.Unstructured) schema.GroupVersionResource {
	switch obj.GetKind() {
	case "Setting":
		return SettingsGVR
	case "Volume":
		return VolumesGVR
	case "StorageClass":
		return StorageClassesGVR
	case "PersistentVolumeClaim":
		return PVCsGVR
	case "Pod":
		return PodsGVR
	case "Service":
		return ServicesGVR
	case "Deployment":
		return DeploymentsGVR
	case "DaemonSet":
		return DaemonSetsGVR
	}
	panic("unsupported kind " + obj.GetKind())
}

// fakeFetcher returns a fixed manifest and counts fetches.
type fakeFetcher struct {
	mu       sync.Mutex
	manifest []byte
	err      error
	versions []string
}

func (f *fakeFetcher) Fetch(_ context.Context, version string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions = append(f.versions, version)
	if f.err != nil {
		return nil, f.err
	}
	return f.manifest, nil
}

// promptRecorder answers every prompt the same way and keeps the prompts.
type promptRecorder struct {
	mu      sync.Mutex
	answer  bool
	prompts []string
}

func (p *promptRecorder) confirm(_ context.Context, prompt string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	return p.answer, nil
}

// fakeRecorder captures metrics calls.
type fakeRecorder struct {
	mu         sync.Mutex
	operations map[string]string
	artifacts  map[string]bool
	conflict   bool
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{operations: map[string]string{}, artifacts: map[string]bool{}}
}

func (r *fakeRecorder) ObserveOperation(operation, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations[operation] = outcome
}

func (r *fakeRecorder) ObserveArtifact(artifact string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts[artifact] = ok
}

func (r *fakeRecorder) SetReadiness(int, int, int, int) {}

func (r *fakeRecorder) SetConflict(hasConflict bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflict = hasConflict
}

// newTestOrchestrator wires an orchestrator with fast waits and a temp
// backup root.
func newTestOrchestrator(t testing.TB, cluster ClusterClient, fetcher ManifestFetcher, confirm Confirmer) *Orchestrator {
	t.Helper()
	return New(cluster, fetcher, Options{
		Namespace:  testNamespace,
		BackupRoot: t.TempDir(),
		Wait:       WaitOptions{Timeout: fastWait, PollInterval: fastInterval},
		Confirm:    confirm,
	})
}

func toUnstructured(t testing.TB, obj runtime.Object) *unstructured.Unstructured {
	t.Helper()
	data, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	require.NoError(t, err)
	return &unstructured.Unstructured{Object: data}
}

func settingObj(name, value string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "longhorn.io/v1beta2",
		"kind":       "Setting",
		"metadata": map[string]any{
			"name":            name,
			"namespace":       testNamespace,
			"uid":             "uid-" + name,
			"resourceVersion": "42",
		},
		"value": value,
	}}
}

func volumeObj(name, state, pvcNamespace, pvc string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "longhorn.io/v1beta2",
		"kind":       "Volume",
		"metadata":   map[string]any{"name": name, "namespace": testNamespace},
		"spec":       map[string]any{"size": "10737418240", "numberOfReplicas": int64(3)},
		"status": map[string]any{
			"state":         state,
			"robustness":    "healthy",
			"currentNodeID": "worker-1",
			"kubernetesStatus": map[string]any{
				"namespace": pvcNamespace,
				"pvcName":   pvc,
			},
		},
	}}
}

func daemonSetObj(t testing.TB, name string, containers ...corev1.Container) *unstructured.Unstructured {
	t.Helper()
	return toUnstructured(t, &appsv1.DaemonSet{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "DaemonSet"},
		ObjectMeta: metav1.ObjectMeta{
			Name:            name,
			Namespace:       testNamespace,
			UID:             types.UID("uid-" + name),
			ResourceVersion: "1001",
			Generation:      3,
		},
		Spec: appsv1.DaemonSetSpec{
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": name}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": name}},
				Spec:       corev1.PodSpec{Containers: containers},
			},
		},
		Status: appsv1.DaemonSetStatus{DesiredNumberScheduled: 3, NumberReady: 3},
	})
}

func deploymentObj(t testing.TB, name string, initImages []string, images ...string) *unstructured.Unstructured {
	t.Helper()
	var containers, initContainers []corev1.Container
	for i, img := range images {
		containers = append(containers, corev1.Container{Name: fmt.Sprintf("c%d", i), Image: img})
	}
	for i, img := range initImages {
		initContainers = append(initContainers, corev1.Container{Name: fmt.Sprintf("init%d", i), Image: img})
	}
	replicas := int32(2)
	return toUnstructured(t, &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: testNamespace, ResourceVersion: "77"},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": name}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": name}},
				Spec:       corev1.PodSpec{InitContainers: initContainers, Containers: containers},
			},
		},
		Status: appsv1.DeploymentStatus{ReadyReplicas: 2},
	})
}

func serviceObj(t testing.TB, name string) *unstructured.Unstructured {
	t.Helper()
	return toUnstructured(t, &corev1.Service{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: testNamespace, UID: "svc-uid"},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": "longhorn-manager"},
			Ports:    []corev1.ServicePort{{Name: "manager", Port: 9500}},
		},
	})
}

func storageClassObj(t testing.TB, name, provisioner string) *unstructured.Unstructured {
	t.Helper()
	return toUnstructured(t, &storagev1.StorageClass{
		TypeMeta:    metav1.TypeMeta{APIVersion: "storage.k8s.io/v1", Kind: "StorageClass"},
		ObjectMeta:  metav1.ObjectMeta{Name: name},
		Provisioner: provisioner,
	})
}

func pvcObj(t testing.TB, namespace, name, class string) *unstructured.Unstructured {
	t.Helper()
	return toUnstructured(t, &corev1.PersistentVolumeClaim{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "PersistentVolumeClaim"},
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec:       corev1.PersistentVolumeClaimSpec{StorageClassName: &class},
	})
}

func podObj(t testing.TB, namespace, name, app string, ready bool, claims ...string) *unstructured.Unstructured {
	t.Helper()
	status := corev1.ConditionFalse
	phase := corev1.PodPending
	if ready {
		status = corev1.ConditionTrue
		phase = corev1.PodRunning
	}
	var volumes []corev1.Volume
	for _, c := range claims {
		volumes = append(volumes, corev1.Volume{
			Name:         c,
			VolumeSource: corev1.VolumeSource{PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{ClaimName: c}},
		})
	}
	return toUnstructured(t, &corev1.Pod{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Pod"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{"app": app},
		},
		Spec: corev1.PodSpec{Volumes: volumes},
		Status: corev1.PodStatus{
			Phase:      phase,
			Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: status}},
		},
	})
}

func managerContainer(tag string) corev1.Container {
	return corev1.Container{Name: "longhorn-manager", Image: "longhornio/longhorn-manager:" + tag}
}

func csiContainers(tag string) []corev1.Container {
	return []corev1.Container{
		{Name: "node-driver-registrar", Image: "longhornio/csi-node-driver-registrar:v2.12.0"},
		{Name: "longhorn-liveness-probe", Image: "longhornio/livenessprobe:v2.14.0"},
		{Name: "longhorn-csi-plugin", Image: "longhornio/longhorn-manager:" + tag},
	}
}

// healthyCluster returns a consistent installation at version with ready pods.
func healthyCluster(t testing.TB, version string) *fakeCluster {
	t.Helper()
	return newFakeCluster(
		settingObj("current-longhorn-version", version),
		settingObj("default-replica-count", "3"),
		daemonSetObj(t, "longhorn-manager", managerContainer(version)),
		daemonSetObj(t, "longhorn-csi-plugin", csiContainers(version)...),
		deploymentObj(t, "longhorn-driver-deployer", nil, "longhornio/longhorn-manager:"+version),
		serviceObj(t, "longhorn-backend"),
		storageClassObj(t, "longhorn", "driver.longhorn.io"),
		storageClassObj(t, "local-path", "rancher.io/local-path"),
		pvcObj(t, "apps", "data", "longhorn"),
		pvcObj(t, "apps", "scratch", "local-path"),
		volumeObj("pvc-data", "detached", "apps", "data"),
		podObj(t, testNamespace, "longhorn-manager-a", "longhorn-manager", true),
		podObj(t, testNamespace, "longhorn-manager-b", "longhorn-manager", true),
		podObj(t, testNamespace, "longhorn-csi-plugin-a", "longhorn-csi-plugin", true),
	)
}
