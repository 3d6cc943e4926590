package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/imamik/lhctl/internal/util/retry"
)

const (
	// DefaultURLTemplate is the upstream release manifest location.
	DefaultURLTemplate = "https://raw.githubusercontent.com/longhorn/longhorn/{version}/deploy/longhorn.yaml"

	// VersionPlaceholder is replaced with the requested version.
	VersionPlaceholder = "{version}"

	defaultTimeout = 60 * time.Second

	// maxManifestSize bounds the body that is read into memory.
	maxManifestSize = 32 << 20
)

// ErrFetchFailed is wrapped by every error Fetch returns.
var ErrFetchFailed = errors.New("failed to fetch manifest")

// Fetcher downloads manifests over HTTP.
type Fetcher struct {
	urlTemplate string
	httpClient  *http.Client
	retries     int
	retryDelay  time.Duration
	logger      zerolog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithRetries sets how often transient failures are retried.
func WithRetries(n int, delay time.Duration) Option {
	return func(f *Fetcher) {
		f.retries = n
		f.retryDelay = delay
	}
}

// WithLogger sets the logger used for retry messages.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a Fetcher for a URL template containing {version}.
// An empty template uses DefaultURLTemplate.
func NewFetcher(urlTemplate string, opts ...Option) *Fetcher {
	if urlTemplate == "" {
		urlTemplate = DefaultURLTemplate
	}
	f := &Fetcher{
		urlTemplate: urlTemplate,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		retries:     2,
		retryDelay:  time.Second,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// URL returns the manifest URL for version.
func (f *Fetcher) URL(version string) string {
	return strings.ReplaceAll(f.urlTemplate, VersionPlaceholder, version)
}

// Fetch downloads the manifest for version. Network errors and server
// errors are retried; any other non-200 status fails immediately.
func (f *Fetcher) Fetch(ctx context.Context, version string) ([]byte, error) {
	url := f.URL(version)

	var body []byte
	err := retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
		data, err := f.get(ctx, url)
		if err != nil {
			return err
		}
		body = data
		return nil
	},
		retry.WithMaxRetries(f.retries),
		retry.WithInitialDelay(f.retryDelay),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			f.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Str("url", url).Msg("retrying manifest download")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %w", ErrFetchFailed, url, err)
	}

	f.logger.Debug().Str("url", url).Int("bytes", len(body)).Msg("manifest downloaded")
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Fatal(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/yaml, text/plain, */*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, retry.Fatal(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > maxManifestSize {
		return nil, retry.Fatal(fmt.Errorf("manifest exceeds %d bytes", maxManifestSize))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, retry.Fatal(errors.New("manifest is empty"))
	}
	return data, nil
}
