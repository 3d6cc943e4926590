package s3

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/imamik/lhctl/internal/util/retry"
)

// Scheme prefixes bundle locations in object storage.
const Scheme = "s3://"

// ErrEmptyPrefix is returned when a download prefix holds no objects.
var ErrEmptyPrefix = errors.New("no objects found below prefix")

// Location addresses a bundle in object storage.
type Location struct {
	Bucket string
	Prefix string
}

func (l Location) String() string {
	if l.Prefix == "" {
		return Scheme + l.Bucket
	}
	return Scheme + l.Bucket + "/" + l.Prefix
}

// Join returns the location of a child prefix.
func (l Location) Join(elem string) Location {
	return Location{Bucket: l.Bucket, Prefix: strings.TrimPrefix(path.Join(l.Prefix, elem), "/")}
}

// IsURI reports whether s is an s3:// location.
func IsURI(s string) bool {
	return strings.HasPrefix(s, Scheme)
}

// ParseURI parses s3://bucket[/prefix]. Trailing slashes are dropped.
func ParseURI(uri string) (Location, error) {
	if !IsURI(uri) {
		return Location{}, fmt.Errorf("invalid S3 location %q: missing %s scheme", uri, Scheme)
	}
	rest := strings.TrimPrefix(uri, Scheme)
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("invalid S3 location %q: missing bucket", uri)
	}
	return Location{Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
}

// TransferOptions tunes per-object retries.
type TransferOptions struct {
	MaxRetries   int
	InitialDelay time.Duration
}

func (o TransferOptions) retryOptions() []retry.Option {
	maxRetries := 3
	if o.MaxRetries > 0 {
		maxRetries = o.MaxRetries
	}
	opts := []retry.Option{retry.WithMaxRetries(maxRetries)}
	if o.InitialDelay > 0 {
		opts = append(opts, retry.WithInitialDelay(o.InitialDelay))
	}
	return opts
}

// UploadDir uploads every regular file directly inside dir below loc.
// Each object is retried with exponential backoff. It returns the number
// of uploaded objects.
func (c *Client) UploadDir(ctx context.Context, dir string, loc Location, opts TransferOptions) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	if err := c.EnsureBucket(ctx, loc.Bucket); err != nil {
		return 0, err
	}

	uploaded := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return uploaded, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		key := loc.Join(entry.Name()).Prefix
		err = retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
			return c.PutObject(ctx, loc.Bucket, key, data)
		}, opts.retryOptions()...)
		if err != nil {
			return uploaded, fmt.Errorf("failed to upload %s: %w", entry.Name(), err)
		}
		uploaded++
	}
	return uploaded, nil
}

// DownloadPrefix downloads every object directly below loc into dir and
// returns the number of files written. Keys in nested prefixes are skipped.
func (c *Client) DownloadPrefix(ctx context.Context, loc Location, dir string, opts TransferOptions) (int, error) {
	prefix := loc.Prefix
	if prefix != "" {
		prefix += "/"
	}

	keys, err := c.ListObjects(ctx, loc.Bucket, prefix)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	downloaded := 0
	for _, key := range keys {
		name := strings.TrimPrefix(key, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}

		var data []byte
		err := retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
			var err error
			data, err = c.GetObject(ctx, loc.Bucket, key)
			if isNotFoundError(err) {
				return retry.Fatal(err)
			}
			return err
		}, opts.retryOptions()...)
		if err != nil {
			return downloaded, fmt.Errorf("failed to download %s: %w", key, err)
		}

		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			return downloaded, fmt.Errorf("failed to write %s: %w", name, err)
		}
		downloaded++
	}

	if downloaded == 0 {
		return 0, fmt.Errorf("%w %s", ErrEmptyPrefix, loc)
	}
	return downloaded, nil
}
