// Package k8sclient provides the cluster access used by lhctl, wrapping the
// k8s.io/client-go dynamic client for structured reads, JSON merge patches,
// watches and Server-Side Apply of multi-document YAML manifests.
//
// All objects are handled as unstructured documents so custom resources
// (Longhorn settings and volumes) need no generated client code.
package k8sclient
