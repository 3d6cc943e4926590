package handlers

import (
	"context"
	"fmt"
)

// Status prints the installed versions, conflicts and pod readiness.
func Status(ctx context.Context, g GlobalOptions, jsonOutput bool) error {
	s, err := newSession(g)
	if err != nil {
		return err
	}
	defer s.finish(ctx)

	report, conflicts, err := s.orch.CheckConflicts(ctx)
	if err != nil {
		return err
	}
	readiness, err := s.orch.CheckReadiness(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(statusOutput{
			Namespace: s.orch.Namespace(),
			Report:    report,
			Conflicts: conflicts,
			Readiness: readiness,
		})
	}

	fmt.Fprint(stdout, renderReport(s.orch.Namespace(), report))
	fmt.Fprint(stdout, renderReadiness(readiness))
	fmt.Fprintln(stdout)
	fmt.Fprint(stdout, renderConflicts(conflicts))
	return nil
}

// Conflicts prints the version comparison and returns ErrConflictFound
// when the components disagree.
func Conflicts(ctx context.Context, g GlobalOptions, jsonOutput bool) error {
	s, err := newSession(g)
	if err != nil {
		return err
	}
	defer s.finish(ctx)

	report, conflicts, err := s.orch.CheckConflicts(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := printJSON(conflicts); err != nil {
			return err
		}
	} else {
		fmt.Fprint(stdout, renderReport(s.orch.Namespace(), report))
		fmt.Fprint(stdout, renderConflicts(conflicts))
	}

	if conflicts.HasConflict {
		return ErrConflictFound
	}
	return nil
}

// Volumes lists Longhorn volumes with their claims and consuming workloads.
func Volumes(ctx context.Context, g GlobalOptions, jsonOutput bool) error {
	s, err := newSession(g)
	if err != nil {
		return err
	}
	defer s.finish(ctx)

	volumes, err := s.orch.ListVolumes(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(volumes)
	}
	fmt.Fprint(stdout, renderVolumes(volumes))
	return nil
}
