package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/imamik/lhctl/internal/longhorn"
	"github.com/imamik/lhctl/internal/platform/s3"
)

// BackupOptions configures the backup command.
type BackupOptions struct {
	Dir    string
	Upload bool
}

// Backup exports a bundle and optionally uploads it to S3. A bundle with
// failed artifacts is kept but reported as an error.
func Backup(ctx context.Context, g GlobalOptions, opts BackupOptions) error {
	s, err := newSession(g)
	if err != nil {
		return err
	}
	defer s.finish(ctx)

	if opts.Upload && !s.cfg.S3.Enabled() {
		return &UsageError{Err: fmt.Errorf("--upload requires s3.bucket to be configured")}
	}

	bundle, err := s.orch.Backup(ctx, opts.Dir)
	if err != nil {
		return err
	}

	if opts.Upload {
		if err := uploadBundle(ctx, s, bundle); err != nil {
			fmt.Fprint(stdout, renderBundle(bundle))
			return err
		}
	}

	fmt.Fprint(stdout, renderBundle(bundle))

	if berr := longhorn.BackupErrors(bundle); berr != nil {
		return fmt.Errorf("backup bundle %s is incomplete: %w", bundle.Path, berr)
	}
	return nil
}

func uploadBundle(ctx context.Context, s *session, bundle *longhorn.BackupBundle) error {
	store, err := newBundleStore(ctx, s.cfg.S3)
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	loc := s3.Location{Bucket: s.cfg.S3.Bucket, Prefix: s.cfg.S3.Prefix}.Join(filepath.Base(bundle.Path))
	bundle.Remote = loc.String()
	if err := bundle.SaveIndex(); err != nil {
		return err
	}

	n, err := store.UploadDir(ctx, bundle.Path, loc, s3.TransferOptions{})
	if err != nil {
		bundle.Remote = ""
		if serr := bundle.SaveIndex(); serr != nil {
			s.log.Warn().Err(serr).Str("bundle", bundle.Path).Msg("Failed to clear remote location from bundle index")
		}
		return fmt.Errorf("failed to upload bundle to %s: %w", loc, err)
	}
	s.log.Info().Int("objects", n).Str("location", loc.String()).Msg("Uploaded backup bundle")
	return nil
}

// Rollback restores the workloads and settings of a bundle. The source is
// a local bundle directory or an s3://bucket/prefix location, which is
// downloaded into a temporary directory first.
func Rollback(ctx context.Context, g GlobalOptions, source string) error {
	path := source
	var loc s3.Location
	if s3.IsURI(source) {
		var err error
		if loc, err = s3.ParseURI(source); err != nil {
			return &UsageError{Err: err}
		}
	}

	s, err := newSession(g)
	if err != nil {
		return err
	}
	defer s.finish(ctx)

	if loc.Bucket != "" {
		tmp, err := os.MkdirTemp("", "lhctl-rollback-")
		if err != nil {
			return fmt.Errorf("failed to create download directory: %w", err)
		}
		defer func() { _ = os.RemoveAll(tmp) }()

		store, err := newBundleStore(ctx, s.cfg.S3)
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		n, err := store.DownloadPrefix(ctx, loc, tmp, s3.TransferOptions{})
		if err != nil {
			return fmt.Errorf("failed to download bundle %s: %w", loc, err)
		}
		s.log.Info().Int("objects", n).Str("location", loc.String()).Msg("Downloaded backup bundle")
		path = tmp
	}

	bundle, err := longhorn.OpenBundle(path)
	if err != nil {
		return err
	}

	res, err := s.orch.Rollback(ctx, bundle)
	if err != nil {
		if res != nil {
			fmt.Fprint(stdout, renderWarnings(res.Warnings))
		}
		return err
	}

	headline := "Longhorn rolled back"
	if bundle.Version != "" {
		headline += " to " + bundle.Version
	}
	fmt.Fprint(stdout, renderResult(headline, res))
	return nil
}
