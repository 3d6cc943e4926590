package longhorn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/imamik/lhctl/internal/logging"
	"github.com/imamik/lhctl/internal/util/async"
)

const phaseBackup = "Backup"

// backupDirLayout is the timestamp format of default bundle directories.
const backupDirLayout = "20060102-150405"

// Server-managed fields removed from exported objects.
var strippedFields = [][]string{
	{"metadata", "uid"},
	{"metadata", "resourceVersion"},
	{"metadata", "creationTimestamp"},
	{"metadata", "deletionTimestamp"},
	{"metadata", "deletionGracePeriodSeconds"},
	{"metadata", "generation"},
	{"metadata", "managedFields"},
	{"metadata", "selfLink"},
	{"status"},
}

var strippedAnnotations = []string{
	"kubectl.kubernetes.io/last-applied-configuration",
	"deployment.kubernetes.io/revision",
	"deprecated.daemonset.template.generation",
}

// Backup exports the Longhorn configuration into dir, or into a
// timestamped directory under the backup root when dir is empty.
//
// The five artifacts are exported in parallel. A failing export is recorded
// in the bundle's Failures and does not abort the others. Backup only fails
// when the destination directory cannot be created.
func (o *Orchestrator) Backup(ctx context.Context, dir string) (bundle *BackupBundle, err error) {
	defer o.track("backup", time.Now(), &err)

	capturedAt := o.opts.Now()
	if dir == "" {
		dir, err = createBundleDir(o.opts.BackupRoot, "longhorn-backup-"+capturedAt.Format(backupDirLayout))
		if err != nil {
			return nil, err
		}
	} else if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory %s: %w", dir, err)
	}

	logging.LogPhaseStart(o.observer, phaseBackup)
	o.observer.Printf("[%s] Exporting Longhorn configuration to %s", phaseBackup, dir)

	bundle = &BackupBundle{
		Path:       dir,
		CapturedAt: capturedAt.UTC(),
		Namespace:  o.opts.Namespace,
	}

	exporters := map[string]func(context.Context) ([]unstructured.Unstructured, error){
		ArtifactSettings:       o.exportSettings,
		ArtifactStorageClasses: o.longhornStorageClasses,
		ArtifactVolumes:        o.exportVolumes,
		ArtifactPVCs:           o.exportPVCs,
		ArtifactWorkloads:      o.exportWorkloads,
	}

	exported := make([][]unstructured.Unstructured, len(artifactFiles))
	tasks := make([]async.Task, 0, len(artifactFiles))
	for i, a := range artifactFiles {
		export := exporters[a.name]
		tasks = append(tasks, async.Task{
			Name: a.name,
			Func: func(ctx context.Context) error {
				objs, err := export(ctx)
				if err != nil {
					return err
				}
				exported[i] = objs
				if len(objs) == 0 && slices.Contains(requiredForRollback, a.name) {
					return fmt.Errorf("no %s found in namespace %s", a.name, o.opts.Namespace)
				}
				return writeArtifact(filepath.Join(dir, a.file), objs)
			},
		})
	}

	for _, r := range async.RunParallel(ctx, tasks) {
		if r.Err != nil {
			artErr := &ArtifactError{Artifact: r.Name, Err: r.Err}
			if bundle.Failures == nil {
				bundle.Failures = make(map[string]string)
			}
			bundle.Failures[r.Name] = r.Err.Error()
			o.observer.Warnf("[%s] %v", phaseBackup, artErr)
			o.observer.Event(logging.Event{Type: logging.EventArtifactFailed, Phase: phaseBackup, Resource: r.Name, Message: r.Err.Error()})
			o.metrics.ObserveArtifact(r.Name, false)
			continue
		}
		bundle.Artifacts = append(bundle.Artifacts, r.Name)
		o.observer.Event(logging.Event{Type: logging.EventArtifactExported, Phase: phaseBackup, Resource: r.Name})
		o.metrics.ObserveArtifact(r.Name, true)
	}

	// Settings are the first artifact.
	bundle.Version = versionFromSettings(exported[0])

	if err := bundle.SaveIndex(); err != nil {
		o.observer.Warnf("[%s] Failed to write bundle index: %v", phaseBackup, err)
	}

	o.observer.Printf("[%s] Exported %d/%d artifacts to %s", phaseBackup, len(bundle.Artifacts), len(artifactFiles), dir)
	logging.LogPhaseComplete(o.observer, phaseBackup, time.Since(capturedAt))
	return bundle, nil
}

// maxBundleDirAttempts bounds the suffixes tried for a default bundle
// directory captured in the same second as an existing one.
const maxBundleDirAttempts = 100

// createBundleDir creates a new directory named base under root. An existing
// bundle is never reused: on a name clash a numeric suffix is appended.
func createBundleDir(root, base string) (string, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return "", fmt.Errorf("failed to create backup root %s: %w", root, err)
	}
	for i := range maxBundleDirAttempts {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		dir := filepath.Join(root, name)
		err := os.Mkdir(dir, 0o750)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to create backup directory %s: %w", dir, err)
		}
	}
	return "", fmt.Errorf("failed to create backup directory: %d bundles named %s already exist", maxBundleDirAttempts, base)
}

// BackupErrors returns one ArtifactError per failed export.
func BackupErrors(b *BackupBundle) error {
	var errs []error
	for _, a := range artifactFiles {
		if msg, ok := b.Failures[a.name]; ok {
			errs = append(errs, &ArtifactError{Artifact: a.name, Err: errors.New(msg)})
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) exportSettings(ctx context.Context) ([]unstructured.Unstructured, error) {
	list, err := o.client.List(ctx, SettingsGVR, o.opts.Namespace, "")
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

func (o *Orchestrator) exportVolumes(ctx context.Context) ([]unstructured.Unstructured, error) {
	list, err := o.client.List(ctx, VolumesGVR, o.opts.Namespace, "")
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// longhornStorageClasses returns every StorageClass provisioned by Longhorn.
func (o *Orchestrator) longhornStorageClasses(ctx context.Context) ([]unstructured.Unstructured, error) {
	list, err := o.client.List(ctx, StorageClassesGVR, "", "")
	if err != nil {
		return nil, err
	}
	var classes []unstructured.Unstructured
	for _, sc := range list.Items {
		provisioner, _, _ := unstructured.NestedString(sc.Object, "provisioner")
		if provisioner == provisionerName {
			classes = append(classes, sc)
		}
	}
	return classes, nil
}

// exportPVCs returns claims in all namespaces bound to a Longhorn class.
func (o *Orchestrator) exportPVCs(ctx context.Context) ([]unstructured.Unstructured, error) {
	classes, err := o.longhornStorageClasses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve longhorn storage classes: %w", err)
	}
	names := make(map[string]bool, len(classes))
	for _, sc := range classes {
		names[sc.GetName()] = true
	}

	list, err := o.client.List(ctx, PVCsGVR, "", "")
	if err != nil {
		return nil, err
	}
	var claims []unstructured.Unstructured
	for _, pvc := range list.Items {
		class, _, _ := unstructured.NestedString(pvc.Object, "spec", "storageClassName")
		if names[class] {
			claims = append(claims, pvc)
		}
	}
	return claims, nil
}

// exportWorkloads returns the Deployments, DaemonSets and Services of the
// Longhorn namespace.
func (o *Orchestrator) exportWorkloads(ctx context.Context) ([]unstructured.Unstructured, error) {
	var objs []unstructured.Unstructured
	for _, w := range workloadKinds {
		list, err := o.client.List(ctx, w.gvr, o.opts.Namespace, "")
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", w.gvr.Resource, err)
		}
		for _, item := range list.Items {
			if item.GetKind() == "" {
				item.SetAPIVersion(w.apiVersion)
				item.SetKind(w.kind)
			}
			objs = append(objs, item)
		}
	}
	return objs, nil
}

func versionFromSettings(settings []unstructured.Unstructured) string {
	for _, s := range settings {
		if s.GetName() != versionSettingName {
			continue
		}
		value, _, _ := unstructured.NestedString(s.Object, "value")
		if v := ExtractVersion(NormalizeVersion(value)); v != Unknown {
			return v
		}
	}
	return ""
}

// sanitize removes server-managed state so an object can be re-applied.
func sanitize(obj *unstructured.Unstructured) {
	for _, path := range strippedFields {
		unstructured.RemoveNestedField(obj.Object, path...)
	}
	if annotations := obj.GetAnnotations(); annotations != nil {
		for _, key := range strippedAnnotations {
			delete(annotations, key)
		}
		if len(annotations) == 0 {
			annotations = nil
		}
		obj.SetAnnotations(annotations)
	}
}

// writeArtifact writes objects as a multi-document YAML stream.
func writeArtifact(path string, objs []unstructured.Unstructured) error {
	var buf bytes.Buffer
	for i := range objs {
		obj := objs[i].DeepCopy()
		sanitize(obj)
		data, err := sigsyaml.Marshal(obj.Object)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %s: %w", obj.GetKind(), obj.GetName(), err)
		}
		buf.WriteString("---\n")
		buf.Write(data)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// SaveIndex writes the bundle index into the bundle directory.
func (b *BackupBundle) SaveIndex() error {
	data, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal bundle index: %w", err)
	}
	return os.WriteFile(filepath.Join(b.Path, BundleIndexFile), data, 0o600)
}

// OpenBundle loads a bundle from its index. When the index is missing the
// directory is scanned for known artifact files.
func OpenBundle(path string) (*BackupBundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("bundle path %s is not a directory", path)
	}

	bundle := &BackupBundle{}
	data, err := os.ReadFile(filepath.Join(path, BundleIndexFile))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, bundle); err != nil {
			return nil, fmt.Errorf("failed to parse bundle index: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		bundle.CapturedAt = info.ModTime().UTC()
		for _, a := range artifactFiles {
			if _, err := os.Stat(filepath.Join(path, a.file)); err == nil {
				bundle.Artifacts = append(bundle.Artifacts, a.name)
			}
		}
	default:
		return nil, fmt.Errorf("failed to read bundle index: %w", err)
	}

	bundle.Path = path
	return bundle, nil
}
