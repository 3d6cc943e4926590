package longhorn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/yaml"

	"github.com/imamik/lhctl/internal/logging"
)

const phaseRollback = "Rollback"

// Rollback re-applies the workloads and settings recorded in bundle, then
// waits for readiness without an expected version. The bundle must contain
// both artifacts, otherwise ErrBundleIncomplete is returned before anything
// is changed.
func (o *Orchestrator) Rollback(ctx context.Context, bundle *BackupBundle) (res *Result, err error) {
	defer o.track("rollback", time.Now(), &err)

	if bundle == nil {
		return nil, fmt.Errorf("%w: no bundle given", ErrBundleIncomplete)
	}

	manifests := make(map[string][]byte, len(requiredForRollback))
	var missing []string
	for _, name := range requiredForRollback {
		if !bundle.Has(name) {
			missing = append(missing, name)
			continue
		}
		data, err := os.ReadFile(bundle.ArtifactPath(name))
		if err != nil {
			missing = append(missing, name)
			continue
		}
		n, err := countDocuments(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s has an unreadable %s artifact: %w", ErrBundleIncomplete, bundle.Path, name, err)
		}
		if n == 0 {
			missing = append(missing, name+" (empty)")
			continue
		}
		manifests[name] = data
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s is missing %s", ErrBundleIncomplete, bundle.Path, strings.Join(missing, ", "))
	}

	start := time.Now()
	res = &Result{Bundle: bundle}
	logging.LogPhaseStart(o.observer, phaseRollback)

	prompt := fmt.Sprintf("Roll back Longhorn in %s to the bundle captured %s?",
		o.opts.Namespace, bundle.CapturedAt.Local().Format(time.DateTime))
	if bundle.Version != "" {
		prompt = fmt.Sprintf("Roll back Longhorn in %s to %s (bundle captured %s)?",
			o.opts.Namespace, bundle.Version, bundle.CapturedAt.Local().Format(time.DateTime))
	}
	if err := o.ask(ctx, prompt); err != nil {
		return res, err
	}

	for _, name := range requiredForRollback {
		o.observer.Printf("[%s] Applying %s from %s", phaseRollback, name, bundle.Path)
		if err := o.client.Apply(ctx, manifests[name]); err != nil {
			return res, fmt.Errorf("%w: %s: %w", ErrApplyFailed, name, err)
		}
		o.observer.Event(logging.Event{Type: logging.EventManifestApplied, Phase: phaseRollback, Resource: name})
	}

	state, warnings, err := o.WaitForReady(ctx, WaitOptions{})
	res.Readiness = state
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		return res, fmt.Errorf("rollback applied but longhorn did not become ready: %w", err)
	}

	o.observer.Printf("[%s] Rollback from %s completed", phaseRollback, bundle.Path)
	logging.LogPhaseComplete(o.observer, phaseRollback, time.Since(start))
	return res, nil
}

// countDocuments returns the number of non-empty objects in a YAML stream.
func countDocuments(data []byte) (int, error) {
	decoder := yaml.NewYAMLOrJSONDecoder(bytes.NewReader(data), 4096)
	n := 0
	for {
		var obj map[string]any
		err := decoder.Decode(&obj)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if len(obj) > 0 {
			n++
		}
	}
}
