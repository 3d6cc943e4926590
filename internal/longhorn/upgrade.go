package longhorn

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/imamik/lhctl/internal/logging"
)

const phaseUpgrade = "Upgrade"

// Upgrade moves Longhorn to req.TargetVersion.
//
// The upgrade happens in steps:
// 1. Validate the target version
// 2. Inspect versions and detect conflicts
// 3. Confirm when there is no conflict and Force is not set
// 4. Warn about attached volumes and confirm unless Force is set
// 5. Export a backup bundle
// 6. Fetch the release manifest
// 7. Apply the manifest
// 8. Wait for readiness and verify the version
//
// A declined confirmation returns ErrUserCancelled. Nothing is applied
// before the backup bundle has been written. A failed apply is not rolled
// back automatically; the bundle path is included in the error.
func (o *Orchestrator) Upgrade(ctx context.Context, req UpgradeRequest) (res *Result, err error) {
	defer o.track("upgrade", time.Now(), &err)

	// Step 1: Validate
	if err := ValidateVersion(req.TargetVersion); err != nil {
		return nil, err
	}

	start := time.Now()
	res = &Result{TargetVersion: req.TargetVersion}
	logging.LogPhaseStart(o.observer, phaseUpgrade)
	o.observer.Printf("[%s] Upgrading Longhorn in %s to %s", phaseUpgrade, o.opts.Namespace, req.TargetVersion)

	// Step 2: Inspect
	report, conflicts, err := o.CheckConflicts(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to inspect longhorn: %w", err)
	}
	res.Report = report
	res.Conflicts = conflicts

	// Step 3: Confirm
	if conflicts.HasConflict {
		for _, m := range conflicts.Mismatches {
			o.observer.Warnf("[%s] Version conflict: %s", phaseUpgrade, m)
		}
	} else if !req.Force {
		prompt := fmt.Sprintf("Upgrade Longhorn from %s to %s?", report.SettingsVersion, req.TargetVersion)
		if err := o.ask(ctx, prompt); err != nil {
			return res, err
		}
	}

	// Step 4: Live consumers
	if warning := o.liveConsumerWarning(ctx); warning != "" {
		o.observer.Warnf("[%s] %s", phaseUpgrade, warning)
		res.Warnings = append(res.Warnings, warning)
		if !req.Force {
			if err := o.ask(ctx, "Volumes are in use. Continue with the upgrade anyway?"); err != nil {
				return res, err
			}
		}
	}

	// Step 5: Backup
	bundle, err := o.Backup(ctx, "")
	if err != nil {
		return res, fmt.Errorf("backup failed, nothing was changed: %w", err)
	}
	res.Bundle = bundle
	if !bundle.Complete() {
		res.Warnings = append(res.Warnings, fmt.Sprintf("backup bundle %s is partial: %v", bundle.Path, BackupErrors(bundle)))
	}

	// Step 6: Fetch
	o.observer.Printf("[%s] Fetching manifest for %s", phaseUpgrade, req.TargetVersion)
	manifest, err := o.fetcher.Fetch(ctx, req.TargetVersion)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrManifestFetchFailed, err)
	}

	// Step 7: Apply
	o.observer.Printf("[%s] Applying manifest (%d bytes)", phaseUpgrade, len(manifest))
	if err := o.client.Apply(ctx, manifest); err != nil {
		return res, fmt.Errorf("%w: %w (backup retained at %s)", ErrApplyFailed, err, bundle.Path)
	}
	o.observer.Event(logging.Event{Type: logging.EventManifestApplied, Phase: phaseUpgrade, Resource: req.TargetVersion})

	// Step 8: Wait
	state, warnings, err := o.WaitForReady(ctx, WaitOptions{ExpectedVersion: req.TargetVersion})
	res.Readiness = state
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		return res, fmt.Errorf("upgrade applied but longhorn did not become ready (backup at %s): %w", bundle.Path, err)
	}

	o.observer.Printf("[%s] Longhorn upgraded to %s", phaseUpgrade, req.TargetVersion)
	logging.LogPhaseComplete(o.observer, phaseUpgrade, time.Since(start))
	return res, nil
}

// liveConsumerWarning describes attached volumes. When the volumes cannot be
// listed the operator is warned as well, since attachment is then unknown.
func (o *Orchestrator) liveConsumerWarning(ctx context.Context) string {
	volumes, err := o.ListVolumes(ctx)
	if err != nil {
		return fmt.Sprintf("could not determine volume attachments: %v", err)
	}

	var attached []string
	for _, v := range volumes {
		if !v.Attached() {
			continue
		}
		desc := v.Name
		if v.PVC != "" {
			desc += fmt.Sprintf(" (%s/%s)", v.Namespace, v.PVC)
		}
		attached = append(attached, desc)
	}
	if len(attached) == 0 {
		return ""
	}
	return fmt.Sprintf("%d volume(s) attached to running workloads: %s", len(attached), strings.Join(attached, ", "))
}
