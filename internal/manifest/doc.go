// Package manifest downloads versioned Longhorn release manifests.
package manifest
