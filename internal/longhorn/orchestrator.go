package longhorn

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/imamik/lhctl/internal/logging"
)

// ClusterClient is the cluster access the orchestrator depends on.
type ClusterClient interface {
	Get(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string) (*unstructured.Unstructured, error)
	List(ctx context.Context, gvr schema.GroupVersionResource, namespace, labelSelector string) (*unstructured.UnstructuredList, error)
	Patch(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string, mergePatch []byte) error
	Apply(ctx context.Context, manifests []byte) error
	Watch(ctx context.Context, gvr schema.GroupVersionResource, namespace, labelSelector string) (watch.Interface, error)
}

// ManifestFetcher retrieves the release manifest for a version.
type ManifestFetcher interface {
	Fetch(ctx context.Context, version string) ([]byte, error)
}

// Confirmer asks the operator a yes/no question.
type Confirmer func(ctx context.Context, prompt string) (bool, error)

// AlwaysConfirm answers yes to every prompt.
func AlwaysConfirm(context.Context, string) (bool, error) { return true, nil }

// NeverConfirm answers no to every prompt.
func NeverConfirm(context.Context, string) (bool, error) { return false, nil }

// Recorder receives operation metrics. A nil Recorder is allowed.
type Recorder interface {
	ObserveOperation(operation, outcome string, duration time.Duration)
	ObserveArtifact(artifact string, ok bool)
	SetReadiness(managerReady, managerTotal, csiReady, csiTotal int)
	SetConflict(hasConflict bool)
}

// Outcome labels passed to Recorder.ObserveOperation.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
)

const (
	// DefaultNamespace is where Longhorn is installed by default.
	DefaultNamespace = "longhorn-system"

	// DefaultWaitTimeout bounds WaitForReady.
	DefaultWaitTimeout = 600 * time.Second

	// DefaultPollInterval is the pause between readiness polls.
	DefaultPollInterval = 10 * time.Second
)

// Options configures an Orchestrator.
type Options struct {
	Namespace  string
	BackupRoot string
	Wait       WaitOptions

	Confirm  Confirmer
	Observer logging.Observer
	Metrics  Recorder

	// Now is used for bundle timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Orchestrator drives a Longhorn installation through its lifecycle.
type Orchestrator struct {
	client   ClusterClient
	fetcher  ManifestFetcher
	confirm  Confirmer
	observer logging.Observer
	metrics  Recorder
	opts     Options
}

// New creates an Orchestrator. Without a Confirmer every prompt is declined.
func New(client ClusterClient, fetcher ManifestFetcher, opts Options) *Orchestrator {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.BackupRoot == "" {
		opts.BackupRoot = "."
	}
	if opts.Wait.Timeout <= 0 {
		opts.Wait.Timeout = DefaultWaitTimeout
	}
	if opts.Wait.PollInterval <= 0 {
		opts.Wait.PollInterval = DefaultPollInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	o := &Orchestrator{
		client:   client,
		fetcher:  fetcher,
		confirm:  opts.Confirm,
		observer: opts.Observer,
		metrics:  opts.Metrics,
		opts:     opts,
	}
	if o.confirm == nil {
		o.confirm = NeverConfirm
	}
	if o.observer == nil {
		o.observer = logging.Discard
	}
	if o.metrics == nil {
		o.metrics = noopRecorder{}
	}
	return o
}

// Namespace returns the namespace Longhorn is managed in.
func (o *Orchestrator) Namespace() string {
	return o.opts.Namespace
}

// ask returns ErrUserCancelled when the operator declines.
func (o *Orchestrator) ask(ctx context.Context, prompt string) error {
	ok, err := o.confirm(ctx, prompt)
	if err != nil {
		return fmt.Errorf("confirmation failed: %w", err)
	}
	if !ok {
		return ErrUserCancelled
	}
	return nil
}

// track records the outcome of an operation. It is meant to be deferred
// with a pointer to the named error result.
func (o *Orchestrator) track(operation string, start time.Time, errp *error) {
	outcome := OutcomeSuccess
	switch {
	case *errp == nil:
	case isCancelled(*errp):
		outcome = OutcomeCancelled
	default:
		outcome = OutcomeFailure
	}
	o.metrics.ObserveOperation(operation, outcome, time.Since(start))
}

type noopRecorder struct{}

func (noopRecorder) ObserveOperation(string, string, time.Duration) {}
func (noopRecorder) ObserveArtifact(string, bool)                   {}
func (noopRecorder) SetReadiness(int, int, int, int)                {}
func (noopRecorder) SetConflict(bool)                               {}
