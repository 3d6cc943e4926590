package longhorn

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/imamik/lhctl/internal/logging"
)

const phaseWait = "Wait"

// WaitForReady polls the manager and CSI plugin pods until both sets are
// fully ready. Zero option durations use the orchestrator defaults.
//
// When an expected version is given, the version setting is checked after
// convergence. A mismatch is returned as a warning, not an error, because
// the setting may lag behind the rollout. On timeout a *TimeoutError with
// the last observed state is returned.
func (o *Orchestrator) WaitForReady(ctx context.Context, opts WaitOptions) (state ReadinessState, warnings []string, err error) {
	defer o.track("wait", time.Now(), &err)

	if opts.Timeout <= 0 {
		opts.Timeout = o.opts.Wait.Timeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = o.opts.Wait.PollInterval
	}

	logging.LogPhaseStart(o.observer, phaseWait)
	o.observer.Printf("[%s] Waiting up to %s for Longhorn pods to become ready", phaseWait, opts.Timeout)

	start := time.Now()
	var lastErr error
	pollErr := wait.PollUntilContextTimeout(ctx, opts.PollInterval, opts.Timeout, true, func(ctx context.Context) (bool, error) {
		current, err := o.CheckReadiness(ctx)
		current.Elapsed = time.Since(start)
		if err != nil {
			// Transient API errors are retried on the next tick.
			lastErr = err
			o.observer.Warnf("[%s] Readiness check failed: %v", phaseWait, err)
			return false, nil
		}
		state = current
		o.observer.Event(logging.Event{
			Type:    logging.EventReadinessPoll,
			Phase:   phaseWait,
			Message: state.String(),
			Fields: map[string]string{
				"managerReady": strconv.Itoa(state.ManagerReady),
				"managerTotal": strconv.Itoa(state.ManagerTotal),
				"csiReady":     strconv.Itoa(state.CSIReady),
				"csiTotal":     strconv.Itoa(state.CSITotal),
			},
		})
		return state.Converged(), nil
	})
	state.Elapsed = time.Since(start)

	if pollErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return state, nil, fmt.Errorf("readiness wait interrupted: %w", ctxErr)
		}
		timeoutErr := &TimeoutError{Timeout: opts.Timeout, Last: state, LastErr: lastErr}
		logging.LogPhaseFailed(o.observer, phaseWait, timeoutErr)
		return state, nil, timeoutErr
	}

	o.observer.Printf("[%s] Longhorn is ready: %s", phaseWait, state)

	if opts.ExpectedVersion != "" {
		if w := o.verifyVersion(ctx, opts.ExpectedVersion); w != "" {
			o.observer.Warnf("[%s] %s", phaseWait, w)
			warnings = append(warnings, w)
		}
	}

	logging.LogPhaseComplete(o.observer, phaseWait, state.Elapsed)
	return state, warnings, nil
}

// verifyVersion returns a warning when the version setting does not match.
func (o *Orchestrator) verifyVersion(ctx context.Context, expected string) string {
	report, err := o.Inspect(ctx)
	if err != nil {
		return fmt.Sprintf("could not verify version after rollout: %v", err)
	}
	if NormalizeVersion(report.SettingsVersion) != NormalizeVersion(expected) {
		return fmt.Sprintf("version setting reports %s, expected %s (it may still be propagating)",
			report.SettingsVersion, NormalizeVersion(expected))
	}
	return ""
}

// CheckReadiness counts ready manager and CSI plugin pods once.
func (o *Orchestrator) CheckReadiness(ctx context.Context) (ReadinessState, error) {
	var state ReadinessState
	var err error

	state.ManagerReady, state.ManagerTotal, err = o.countReady(ctx, managerSelector)
	if err != nil {
		return state, err
	}
	state.CSIReady, state.CSITotal, err = o.countReady(ctx, csiSelector)
	if err != nil {
		return state, err
	}

	o.metrics.SetReadiness(state.ManagerReady, state.ManagerTotal, state.CSIReady, state.CSITotal)
	return state, nil
}

func (o *Orchestrator) countReady(ctx context.Context, selector string) (ready, total int, err error) {
	list, err := o.client.List(ctx, PodsGVR, o.opts.Namespace, selector)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list pods %q: %w", selector, err)
	}
	for _, item := range list.Items {
		var pod corev1.Pod
		if err := runtime.DefaultUnstructuredConverter.FromUnstructured(item.Object, &pod); err != nil {
			return 0, 0, fmt.Errorf("failed to decode pod %s: %w", item.GetName(), err)
		}
		total++
		if isPodReady(&pod) {
			ready++
		}
	}
	return ready, total, nil
}

// isPodReady checks if a pod is running with a true Ready condition.
func isPodReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}

	for _, condition := range pod.Status.Conditions {
		if condition.Type == corev1.PodReady &&
			condition.Status == corev1.ConditionTrue {
			return true
		}
	}

	return false
}
