package handlers

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/imamik/lhctl/internal/config"
	"github.com/imamik/lhctl/internal/longhorn"
	"github.com/imamik/lhctl/internal/platform/s3"
	lhtesting "github.com/imamik/lhctl/internal/testing"
)

const testNamespace = lhtesting.Namespace

// applyRecorder wraps a real client and records applies instead of sending
// them, since the fake dynamic client cannot do server-side apply.
type applyRecorder struct {
	longhorn.ClusterClient

	mu      sync.Mutex
	applied [][]byte
	err     error
}

func (a *applyRecorder) Apply(_ context.Context, manifests []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.applied = append(a.applied, manifests)
	return nil
}

func (a *applyRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied)
}

type stubFetcher struct {
	manifest []byte
	err      error
}

func (f *stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	return f.manifest, f.err
}

type stubStore struct {
	uploaded  []s3.Location
	uploadErr error
	source    string
	loc       s3.Location
}

func (s *stubStore) UploadDir(_ context.Context, _ string, loc s3.Location, _ s3.TransferOptions) (int, error) {
	if s.uploadErr != nil {
		return 0, s.uploadErr
	}
	s.uploaded = append(s.uploaded, loc)
	return 1, nil
}

// DownloadPrefix copies the files of source into dir.
func (s *stubStore) DownloadPrefix(_ context.Context, loc s3.Location, dir string, _ s3.TransferOptions) (int, error) {
	s.loc = loc
	entries, err := os.ReadDir(s.source)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(s.source, e.Name()))
		if err != nil {
			return 0, err
		}
		if err := os.WriteFile(filepath.Join(dir, e.Name()), data, 0o600); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// testEnv swaps the handler factories for fakes and restores them on cleanup.
type testEnv struct {
	cfg     *config.Config
	cluster *applyRecorder
	fetcher *stubFetcher
	store   *stubStore
	out     *bytes.Buffer
}

func setupEnv(t *testing.T, objs ...*unstructured.Unstructured) *testEnv {
	t.Helper()

	client := lhtesting.NewClusterClient(testNamespace, objs...)

	cfg := config.Default()
	cfg.BackupDir = t.TempDir()

	env := &testEnv{
		cfg:     cfg,
		cluster: &applyRecorder{ClusterClient: client},
		fetcher: &stubFetcher{manifest: []byte("apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: longhorn\n")},
		store:   &stubStore{},
		out:     &bytes.Buffer{},
	}

	origLoad, origClient, origFetcher, origStore := loadConfig, newClusterClient, newFetcher, newBundleStore
	origInteractive, origStdout, origTerminal := interactive, stdout, stdoutIsTerminal
	t.Cleanup(func() {
		loadConfig, newClusterClient, newFetcher, newBundleStore = origLoad, origClient, origFetcher, origStore
		interactive, stdout, stdoutIsTerminal = origInteractive, origStdout, origTerminal
	})

	loadConfig = func(string) (*config.Config, error) { return env.cfg, nil }
	newClusterClient = func(*config.Config) (longhorn.ClusterClient, error) { return env.cluster, nil }
	newFetcher = func(*config.Config) longhorn.ManifestFetcher { return env.fetcher }
	newBundleStore = func(context.Context, config.S3Config) (bundleStore, error) { return env.store, nil }
	interactive = func() bool { return false }
	stdout = env.out
	stdoutIsTerminal = func() bool { return false }

	return env
}

// longhornInstall returns a converged installation. csiVersion differs
// from version to create a conflict.
func longhornInstall(version, csiVersion string) []*unstructured.Unstructured {
	return lhtesting.NewInstallation(version).WithCSIVersion(csiVersion).Objects()
}
