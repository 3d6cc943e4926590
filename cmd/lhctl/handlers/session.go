package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/imamik/lhctl/internal/config"
	"github.com/imamik/lhctl/internal/k8sclient"
	"github.com/imamik/lhctl/internal/logging"
	"github.com/imamik/lhctl/internal/longhorn"
	"github.com/imamik/lhctl/internal/manifest"
	"github.com/imamik/lhctl/internal/metrics"
	"github.com/imamik/lhctl/internal/platform/s3"
	"github.com/imamik/lhctl/internal/ui/prompt"
)

const pushTimeout = 10 * time.Second

// GlobalOptions holds the flags shared by every command. Empty values keep
// what the config file or environment provides.
type GlobalOptions struct {
	ConfigPath  string
	Kubeconfig  string
	Context     string
	Namespace   string
	LogLevel    string
	LogJSON     bool
	Pushgateway string
	AssumeYes   bool
}

// apply overrides configuration fields with flags that were set.
func (g GlobalOptions) apply(cfg *config.Config) {
	if g.Kubeconfig != "" {
		cfg.Kubeconfig = g.Kubeconfig
	}
	if g.Context != "" {
		cfg.Context = g.Context
	}
	if g.Namespace != "" {
		cfg.Namespace = g.Namespace
	}
	if g.Pushgateway != "" {
		cfg.Metrics.PushgatewayURL = g.Pushgateway
	}
}

// bundleStore is the object storage used for off-cluster bundles.
type bundleStore interface {
	UploadDir(ctx context.Context, dir string, loc s3.Location, opts s3.TransferOptions) (int, error)
	DownloadPrefix(ctx context.Context, loc s3.Location, dir string, opts s3.TransferOptions) (int, error)
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfig loads the configuration file.
	loadConfig = config.Load

	// newClusterClient connects to the cluster named by the configuration.
	newClusterClient = func(cfg *config.Config) (longhorn.ClusterClient, error) {
		return k8sclient.NewFromKubeconfig(cfg.Kubeconfig, cfg.Context, k8sclient.Options{
			FieldManager: cfg.FieldManager,
			Namespace:    cfg.Namespace,
		})
	}

	// newFetcher creates the release manifest fetcher.
	newFetcher = func(cfg *config.Config) longhorn.ManifestFetcher {
		return manifest.NewFetcher(cfg.ManifestURL, manifest.WithLogger(logging.WithComponent("manifest")))
	}

	// newBundleStore creates the S3 client for bundle transfers.
	newBundleStore = func(ctx context.Context, cfg config.S3Config) (bundleStore, error) {
		return s3.NewClient(ctx, s3.Options{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			PathStyle: cfg.PathStyle,
		})
	}

	// interactive reports whether confirmations can be shown.
	interactive = prompt.StdinIsTerminal

	// stdout receives command output.
	stdout io.Writer = os.Stdout

	// stdoutIsTerminal decides whether output is styled with colors.
	stdoutIsTerminal = prompt.StdoutIsTerminal

	// now is the clock used for bundle names.
	now = time.Now
)

// session is the state shared by one command invocation.
type session struct {
	cfg      *config.Config
	orch     *longhorn.Orchestrator
	recorder *metrics.Recorder
	log      zerolog.Logger
}

func newSession(g GlobalOptions) (*session, error) {
	cfg, err := loadConfig(g.ConfigPath)
	if err != nil {
		return nil, err
	}
	g.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, &UsageError{Err: fmt.Errorf("invalid configuration: %w", err)}
	}

	logging.Init(logging.Config{Level: logging.Level(g.LogLevel), JSONOutput: g.LogJSON})
	log := logging.WithComponent("lhctl")
	configureStyles(stdoutIsTerminal())

	client, err := newClusterClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}

	recorder := metrics.NewRecorder()
	confirmer := prompt.New(prompt.Options{AssumeYes: g.AssumeYes, Interactive: interactive})

	orch := longhorn.New(client, newFetcher(cfg), longhorn.Options{
		Namespace:  cfg.Namespace,
		BackupRoot: cfg.BackupDir,
		Wait: longhorn.WaitOptions{
			Timeout:      cfg.Wait.Timeout,
			PollInterval: cfg.Wait.PollInterval,
		},
		Confirm:  confirmer.Confirm,
		Observer: logging.NewObserver(logging.WithComponent("orchestrator")),
		Metrics:  recorder,
		Now:      now,
	})

	return &session{cfg: cfg, orch: orch, recorder: recorder, log: log}, nil
}

// finish pushes the collected metrics when a Pushgateway is configured.
// A failed push is logged and never changes the command result.
func (s *session) finish(ctx context.Context) {
	url := s.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	grouping := map[string]string{"namespace": s.cfg.Namespace}
	if err := s.recorder.Push(ctx, url, s.cfg.Metrics.Job, grouping); err != nil {
		s.log.Warn().Err(err).Msg("Metrics push failed")
		return
	}
	s.log.Debug().Str("url", url).Msg("Pushed metrics")
}
