package longhorn

import (
	"context"
	"fmt"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

const phaseInspect = "Inspect"

// Inspect reads the declared version setting and the images of the manager
// and CSI plugin DaemonSets. Missing objects and images without a version
// tag are reported as Unknown. Inspect never mutates the cluster.
func (o *Orchestrator) Inspect(ctx context.Context) (VersionReport, error) {
	report := VersionReport{
		SettingsVersion:     Unknown,
		ManagerImageVersion: Unknown,
		CSIImageVersion:     Unknown,
	}

	setting, err := o.client.Get(ctx, SettingsGVR, o.opts.Namespace, versionSettingName)
	switch {
	case err == nil:
		value, _, _ := unstructured.NestedString(setting.Object, "value")
		report.SettingsVersion = ExtractVersion(NormalizeVersion(value))
	case isNotFound(err):
		o.observer.Printf("[%s] Setting %s not found", phaseInspect, versionSettingName)
	default:
		return report, fmt.Errorf("failed to read version setting: %w", err)
	}

	report.ManagerImage, err = o.daemonSetImage(ctx, string(ComponentManager), string(ComponentManager))
	if err != nil {
		return report, err
	}
	report.CSIImage, err = o.daemonSetImage(ctx, string(ComponentCSI), string(ComponentCSI))
	if err != nil {
		return report, err
	}

	if report.ManagerImage != "" {
		report.ManagerImageVersion = ExtractVersion(report.ManagerImage)
	}
	if report.CSIImage != "" {
		report.CSIImageVersion = ExtractVersion(report.CSIImage)
	}

	o.observer.Printf("[%s] settings=%s manager=%s csi=%s",
		phaseInspect, report.SettingsVersion, report.ManagerImageVersion, report.CSIImageVersion)
	return report, nil
}

// daemonSetImage returns the image of the preferred container of a
// DaemonSet. When no container has the preferred name, a longhorn-manager
// image is used, then the first container. A missing DaemonSet yields "".
func (o *Orchestrator) daemonSetImage(ctx context.Context, name, container string) (string, error) {
	obj, err := o.client.Get(ctx, DaemonSetsGVR, o.opts.Namespace, name)
	if err != nil {
		if isNotFound(err) {
			o.observer.Printf("[%s] DaemonSet %s not found", phaseInspect, name)
			return "", nil
		}
		return "", fmt.Errorf("failed to read daemonset %s: %w", name, err)
	}

	var ds appsv1.DaemonSet
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &ds); err != nil {
		return "", fmt.Errorf("failed to decode daemonset %s: %w", name, err)
	}

	return pickImage(ds.Spec.Template.Spec.Containers, container), nil
}

func pickImage(containers []corev1.Container, preferred string) string {
	for _, c := range containers {
		if c.Name == preferred {
			return c.Image
		}
	}
	for _, c := range containers {
		if strings.Contains(c.Image, string(ComponentManager)) {
			return c.Image
		}
	}
	if len(containers) > 0 {
		return containers[0].Image
	}
	return ""
}

// DetectConflicts compares settings against manager, then manager against
// the CSI plugin. Unknown versions always count as a mismatch.
func DetectConflicts(report VersionReport) ConflictResult {
	pairs := []Mismatch{
		{ComponentA: ComponentSettings, ComponentB: ComponentManager, VersionA: report.SettingsVersion, VersionB: report.ManagerImageVersion},
		{ComponentA: ComponentManager, ComponentB: ComponentCSI, VersionA: report.ManagerImageVersion, VersionB: report.CSIImageVersion},
	}

	var result ConflictResult
	for _, p := range pairs {
		a, b := NormalizeVersion(p.VersionA), NormalizeVersion(p.VersionB)
		if a == Unknown || b == Unknown || a != b {
			p.VersionA, p.VersionB = a, b
			result.Mismatches = append(result.Mismatches, p)
		}
	}
	result.HasConflict = len(result.Mismatches) > 0
	return result
}

// CheckConflicts inspects the installation and compares its versions.
func (o *Orchestrator) CheckConflicts(ctx context.Context) (VersionReport, ConflictResult, error) {
	report, err := o.Inspect(ctx)
	if err != nil {
		return report, ConflictResult{}, err
	}
	conflicts := DetectConflicts(report)
	o.metrics.SetConflict(conflicts.HasConflict)
	return report, conflicts, nil
}
