package longhorn

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const phaseFix = "FixConflicts"

// FixConflicts upgrades to the highest version found in any deployed image
// when a version conflict exists. Without a conflict it only reports.
func (o *Orchestrator) FixConflicts(ctx context.Context) (res *Result, err error) {
	defer o.track("fix-conflicts", time.Now(), &err)

	report, conflicts, err := o.CheckConflicts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect longhorn: %w", err)
	}
	if !conflicts.HasConflict {
		o.observer.Printf("[%s] No version conflicts detected (%s)", phaseFix, report.SettingsVersion)
		return &Result{Report: report, Conflicts: conflicts}, nil
	}

	for _, m := range conflicts.Mismatches {
		o.observer.Warnf("[%s] Version conflict: %s", phaseFix, m)
	}

	versions, err := o.DeployedVersions(ctx)
	if err != nil {
		return &Result{Report: report, Conflicts: conflicts}, err
	}
	target, ok := MaxVersion(versions)
	if !ok {
		return &Result{Report: report, Conflicts: conflicts}, ErrNoVersionsDetermined
	}

	o.observer.Printf("[%s] Highest deployed version is %s", phaseFix, target)
	if err := o.ask(ctx, fmt.Sprintf("Resolve %d conflict(s) by upgrading Longhorn to %s?", len(conflicts.Mismatches), target)); err != nil {
		return &Result{Report: report, Conflicts: conflicts, TargetVersion: target}, err
	}

	return o.Upgrade(ctx, UpgradeRequest{TargetVersion: target, Force: true})
}

// DeployedVersions returns the version token of every Longhorn container and
// init container image of the Deployments and DaemonSets in the namespace.
// CSI sidecars and other third-party images are versioned independently and
// are skipped.
func (o *Orchestrator) DeployedVersions(ctx context.Context) ([]string, error) {
	var versions []string
	for _, gvr := range []schema.GroupVersionResource{DeploymentsGVR, DaemonSetsGVR} {
		templates, err := o.podTemplates(ctx, gvr)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", gvr.Resource, err)
		}
		for _, t := range templates {
			for _, c := range slices.Concat(t.Spec.InitContainers, t.Spec.Containers) {
				if !isLonghornImage(c.Image) {
					continue
				}
				if v := ExtractVersion(c.Image); v != Unknown {
					versions = append(versions, v)
				}
			}
		}
	}
	return versions, nil
}

func (o *Orchestrator) podTemplates(ctx context.Context, gvr schema.GroupVersionResource) ([]corev1.PodTemplateSpec, error) {
	list, err := o.client.List(ctx, gvr, o.opts.Namespace, "")
	if err != nil {
		return nil, err
	}

	templates := make([]corev1.PodTemplateSpec, 0, len(list.Items))
	for _, item := range list.Items {
		switch gvr {
		case DeploymentsGVR:
			var d appsv1.Deployment
			if err := runtime.DefaultUnstructuredConverter.FromUnstructured(item.Object, &d); err != nil {
				return nil, fmt.Errorf("failed to decode deployment %s: %w", item.GetName(), err)
			}
			templates = append(templates, d.Spec.Template)
		default:
			var ds appsv1.DaemonSet
			if err := runtime.DefaultUnstructuredConverter.FromUnstructured(item.Object, &ds); err != nil {
				return nil, fmt.Errorf("failed to decode daemonset %s: %w", item.GetName(), err)
			}
			templates = append(templates, ds.Spec.Template)
		}
	}
	return templates, nil
}

// isLonghornImage reports whether the image repository is a Longhorn
// component, such as longhornio/longhorn-manager.
func isLonghornImage(image string) bool {
	repo, _, _ := strings.Cut(image, "@")
	if i := strings.LastIndex(repo, "/"); i >= 0 {
		repo = repo[i+1:]
	}
	name, _, _ := strings.Cut(repo, ":")
	return strings.HasPrefix(name, "longhorn-")
}
