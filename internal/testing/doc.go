// Package testing provides fixtures for tests that need a Longhorn
// installation behind a fake Kubernetes API.
//
//   - InstallationBuilder: fluent builder for the objects of an installation
//   - NewClusterClient: k8sclient.Client backed by a fake dynamic client
//   - Setting, DaemonSet, Pod, Volume: single object constructors
//
// Usage:
//
//	objs := testing.NewInstallation("v1.7.3").
//	    WithCSIVersion("v1.6.2").
//	    WithVolume("pvc-a", "attached").
//	    Objects()
//	client := testing.NewClusterClient("longhorn-system", objs...)
package testing
