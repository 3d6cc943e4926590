package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/imamik/lhctl/internal/longhorn"
)

// UpgradeOptions configures the upgrade command.
type UpgradeOptions struct {
	Version string
	Force   bool
}

// Upgrade moves Longhorn to opts.Version. The version is validated before
// the cluster is contacted.
func Upgrade(ctx context.Context, g GlobalOptions, opts UpgradeOptions) error {
	if err := longhorn.ValidateVersion(opts.Version); err != nil {
		return err
	}

	s, err := newSession(g)
	if err != nil {
		return err
	}
	defer s.finish(ctx)

	res, err := s.orch.Upgrade(ctx, longhorn.UpgradeRequest{TargetVersion: opts.Version, Force: opts.Force})
	if err != nil {
		if res != nil && res.Bundle != nil {
			fmt.Fprint(stdout, renderBundle(res.Bundle))
		}
		return err
	}

	fmt.Fprint(stdout, renderResult("Longhorn upgraded to "+opts.Version, res))
	return nil
}

// FixConflicts upgrades every component to the highest deployed version.
func FixConflicts(ctx context.Context, g GlobalOptions) error {
	s, err := newSession(g)
	if err != nil {
		return err
	}
	defer s.finish(ctx)

	res, err := s.orch.FixConflicts(ctx)
	if err != nil {
		return err
	}

	if !res.Conflicts.HasConflict {
		fmt.Fprint(stdout, renderConflicts(res.Conflicts))
		return nil
	}
	fmt.Fprint(stdout, renderResult("Conflicts resolved, Longhorn upgraded to "+res.TargetVersion, res))
	return nil
}

// WaitOptions configures the wait command. Zero durations use the
// configured defaults.
type WaitOptions struct {
	Version  string
	Timeout  time.Duration
	Interval time.Duration
}

// Wait blocks until the Longhorn pods are ready.
func Wait(ctx context.Context, g GlobalOptions, opts WaitOptions) error {
	if opts.Version != "" {
		if err := longhorn.ValidateVersion(opts.Version); err != nil {
			return err
		}
	}
	if opts.Timeout < 0 || opts.Interval < 0 {
		return &UsageError{Err: fmt.Errorf("--timeout and --interval must not be negative")}
	}

	s, err := newSession(g)
	if err != nil {
		return err
	}
	defer s.finish(ctx)

	state, warnings, err := s.orch.WaitForReady(ctx, longhorn.WaitOptions{
		ExpectedVersion: opts.Version,
		Timeout:         opts.Timeout,
		PollInterval:    opts.Interval,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s\n", okStyle.Render("Longhorn is ready"))
	fmt.Fprint(stdout, renderReadiness(state))
	fmt.Fprint(stdout, renderWarnings(warnings))
	return nil
}
