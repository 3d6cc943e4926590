package longhorn

import (
	"errors"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Resources read and written by the orchestrator.
var (
	SettingsGVR       = schema.GroupVersionResource{Group: "longhorn.io", Version: "v1beta2", Resource: "settings"}
	VolumesGVR        = schema.GroupVersionResource{Group: "longhorn.io", Version: "v1beta2", Resource: "volumes"}
	StorageClassesGVR = schema.GroupVersionResource{Group: "storage.k8s.io", Version: "v1", Resource: "storageclasses"}
	PVCsGVR           = schema.GroupVersionResource{Version: "v1", Resource: "persistentvolumeclaims"}
	PodsGVR           = schema.GroupVersionResource{Version: "v1", Resource: "pods"}
	ServicesGVR       = schema.GroupVersionResource{Version: "v1", Resource: "services"}
	DeploymentsGVR    = schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "deployments"}
	DaemonSetsGVR     = schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: "daemonsets"}
)

// workloadKinds are exported into the workloads artifact, in apply order.
var workloadKinds = []struct {
	gvr        schema.GroupVersionResource
	apiVersion string
	kind       string
}{
	{DeploymentsGVR, "apps/v1", "Deployment"},
	{DaemonSetsGVR, "apps/v1", "DaemonSet"},
	{ServicesGVR, "v1", "Service"},
}

const (
	versionSettingName = "current-longhorn-version"
	provisionerName    = "driver.longhorn.io"

	managerSelector = "app=longhorn-manager"
	csiSelector     = "app=longhorn-csi-plugin"

	volumeStateAttached = "attached"
)

func isNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}

func isCancelled(err error) bool {
	return errors.Is(err, ErrUserCancelled)
}
