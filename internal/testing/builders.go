package testing

import (
	"fmt"
	"slices"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

type volumeSpec struct {
	name, state string
}

// InstallationBuilder describes a Longhorn installation. Each method returns
// a new builder (immutable) for chaining.
type InstallationBuilder struct {
	settingsVersion string
	managerVersion  string
	csiVersion      string
	managerPods     int
	csiPods         int
	notReady        bool
	volumes         []volumeSpec
}

// NewInstallation returns a converged installation where every component
// runs version, with one manager and one CSI plugin pod.
func NewInstallation(version string) *InstallationBuilder {
	return &InstallationBuilder{
		settingsVersion: version,
		managerVersion:  version,
		csiVersion:      version,
		managerPods:     1,
		csiPods:         1,
	}
}

// WithSettingsVersion sets the current-longhorn-version setting.
func (b *InstallationBuilder) WithSettingsVersion(v string) *InstallationBuilder {
	n := b.clone()
	n.settingsVersion = v
	return n
}

// WithManagerVersion sets the longhorn-manager image tag.
func (b *InstallationBuilder) WithManagerVersion(v string) *InstallationBuilder {
	n := b.clone()
	n.managerVersion = v
	return n
}

// WithCSIVersion sets the longhorn-csi-plugin image tag.
func (b *InstallationBuilder) WithCSIVersion(v string) *InstallationBuilder {
	n := b.clone()
	n.csiVersion = v
	return n
}

// WithPods sets the number of manager and CSI plugin pods.
func (b *InstallationBuilder) WithPods(manager, csi int) *InstallationBuilder {
	n := b.clone()
	n.managerPods = manager
	n.csiPods = csi
	return n
}

// NotReady makes every pod Pending.
func (b *InstallationBuilder) NotReady() *InstallationBuilder {
	n := b.clone()
	n.notReady = true
	return n
}

// WithVolume adds a Longhorn volume.
func (b *InstallationBuilder) WithVolume(name, state string) *InstallationBuilder {
	n := b.clone()
	n.volumes = append(n.volumes, volumeSpec{name: name, state: state})
	return n
}

// Objects returns the objects of the installation.
func (b *InstallationBuilder) Objects() []*unstructured.Unstructured {
	objs := []*unstructured.Unstructured{
		Setting("current-longhorn-version", b.settingsVersion),
		DaemonSet("longhorn-manager", "longhorn-manager", "longhornio/longhorn-manager:"+b.managerVersion),
		DaemonSet("longhorn-csi-plugin", "longhorn-csi-plugin", "longhornio/longhorn-manager:"+b.csiVersion),
	}
	for i := range b.managerPods {
		objs = append(objs, Pod(fmt.Sprintf("longhorn-manager-%d", i), "longhorn-manager", !b.notReady))
	}
	for i := range b.csiPods {
		objs = append(objs, Pod(fmt.Sprintf("longhorn-csi-plugin-%d", i), "longhorn-csi-plugin", !b.notReady))
	}
	for _, v := range b.volumes {
		objs = append(objs, Volume(v.name, v.state))
	}
	return objs
}

// clone creates a copy of the builder for immutability.
func (b *InstallationBuilder) clone() *InstallationBuilder {
	n := *b
	n.volumes = slices.Clone(b.volumes)
	return &n
}
