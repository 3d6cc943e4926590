package longhorn

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"
)

// Unknown is reported for any version that could not be determined.
const Unknown = "unknown"

// Component names a versioned part of a Longhorn installation.
type Component string

const (
	ComponentSettings Component = "settings"
	ComponentManager  Component = "longhorn-manager"
	ComponentCSI      Component = "longhorn-csi-plugin"
)

// VersionReport is a snapshot of declared and running versions.
type VersionReport struct {
	SettingsVersion     string `json:"settingsVersion"`
	ManagerImageVersion string `json:"managerImageVersion"`
	CSIImageVersion     string `json:"csiImageVersion"`

	// Raw image references the versions were extracted from.
	ManagerImage string `json:"managerImage,omitempty"`
	CSIImage     string `json:"csiImage,omitempty"`
}

// Mismatch is one pair of components whose versions differ.
type Mismatch struct {
	ComponentA Component `json:"componentA"`
	ComponentB Component `json:"componentB"`
	VersionA   string    `json:"versionA"`
	VersionB   string    `json:"versionB"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s (%s) != %s (%s)", m.ComponentA, m.VersionA, m.ComponentB, m.VersionB)
}

// ConflictResult is the outcome of comparing a VersionReport.
type ConflictResult struct {
	HasConflict bool       `json:"hasConflict"`
	Mismatches  []Mismatch `json:"mismatches"`
}

// UpgradeRequest describes a requested target state.
type UpgradeRequest struct {
	TargetVersion string
	Force         bool
}

// ReadinessState is the result of one readiness poll.
type ReadinessState struct {
	ManagerReady int           `json:"managerReady"`
	ManagerTotal int           `json:"managerTotal"`
	CSIReady     int           `json:"csiReady"`
	CSITotal     int           `json:"csiTotal"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Converged reports whether both pod sets are fully ready and at least one
// pod was observed.
func (s ReadinessState) Converged() bool {
	if s.ManagerTotal == 0 && s.CSITotal == 0 {
		return false
	}
	return s.ManagerReady == s.ManagerTotal && s.CSIReady == s.CSITotal
}

func (s ReadinessState) String() string {
	return fmt.Sprintf("manager %d/%d ready, csi plugin %d/%d ready after %s",
		s.ManagerReady, s.ManagerTotal, s.CSIReady, s.CSITotal, s.Elapsed.Round(time.Second))
}

// WaitOptions controls WaitForReady. Zero durations fall back to the
// orchestrator defaults.
type WaitOptions struct {
	ExpectedVersion string
	Timeout         time.Duration
	PollInterval    time.Duration
}

// Result is the outcome of a mutating operation.
type Result struct {
	TargetVersion string         `json:"targetVersion,omitempty"`
	Report        VersionReport  `json:"report"`
	Conflicts     ConflictResult `json:"conflicts"`
	Bundle        *BackupBundle  `json:"bundle,omitempty"`
	Readiness     ReadinessState `json:"readiness"`
	Warnings      []string       `json:"warnings,omitempty"`
}

// VolumeSummary describes a Longhorn volume and what consumes it.
type VolumeSummary struct {
	Name       string   `json:"name"`
	State      string   `json:"state"`
	Robustness string   `json:"robustness"`
	Size       string   `json:"size"`
	Node       string   `json:"node,omitempty"`
	PVC        string   `json:"pvc,omitempty"`
	Namespace  string   `json:"namespace,omitempty"`
	Workloads  []string `json:"workloads,omitempty"`
}

// Attached reports whether the volume is currently attached to a node.
func (v VolumeSummary) Attached() bool {
	return v.State == volumeStateAttached
}

// Artifact names inside a backup bundle.
const (
	ArtifactSettings       = "settings"
	ArtifactStorageClasses = "storage-classes"
	ArtifactVolumes        = "volumes"
	ArtifactPVCs           = "pvcs"
	ArtifactWorkloads      = "workloads"
)

// BundleIndexFile is the index written at the root of every bundle.
const BundleIndexFile = "bundle.yaml"

// artifactFiles maps artifact names to their file names, in export order.
var artifactFiles = []struct {
	name string
	file string
}{
	{ArtifactSettings, "settings.yaml"},
	{ArtifactStorageClasses, "storageclasses.yaml"},
	{ArtifactVolumes, "volumes.yaml"},
	{ArtifactPVCs, "pvcs.yaml"},
	{ArtifactWorkloads, "workloads.yaml"},
}

// requiredForRollback lists the artifacts Rollback re-applies, in order.
var requiredForRollback = []string{ArtifactWorkloads, ArtifactSettings}

func artifactFile(name string) string {
	for _, a := range artifactFiles {
		if a.name == name {
			return a.file
		}
	}
	return name + ".yaml"
}

// BackupBundle is a point-in-time export of a Longhorn installation.
type BackupBundle struct {
	Path       string            `yaml:"-" json:"path"`
	CapturedAt time.Time         `yaml:"capturedAt" json:"capturedAt"`
	Namespace  string            `yaml:"namespace" json:"namespace"`
	Version    string            `yaml:"version,omitempty" json:"version,omitempty"`
	Artifacts  []string          `yaml:"artifacts" json:"artifacts"`
	Failures   map[string]string `yaml:"failures,omitempty" json:"failures,omitempty"`
	Remote     string            `yaml:"remote,omitempty" json:"remote,omitempty"`
}

// Has reports whether the named artifact was exported.
func (b *BackupBundle) Has(name string) bool {
	return slices.Contains(b.Artifacts, name)
}

// ArtifactPath returns the file path of the named artifact.
func (b *BackupBundle) ArtifactPath(name string) string {
	return filepath.Join(b.Path, artifactFile(name))
}

// Complete reports whether every artifact was exported.
func (b *BackupBundle) Complete() bool {
	return len(b.Failures) == 0 && len(b.Artifacts) == len(artifactFiles)
}
