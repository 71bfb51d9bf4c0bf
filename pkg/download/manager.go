package download

import (
	"context"
	"crypto/md5" //nolint:gosec // repositories publish MD5 checksums
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	pkgerrors "github.com/glorpus-work/plugd/pkg/errors"
	"github.com/glorpus-work/plugd/pkg/fsutil"
	"github.com/glorpus-work/plugd/pkg/metrics"
)

// chunkSize is the read size of the streaming copy.
const chunkSize = 32 * 1024

// ManagerImpl downloads artifacts over HTTP.
type ManagerImpl struct {
	client       *http.Client
	userAgent    string
	stallTimeout time.Duration
}

// NewManager creates a new HTTP downloader.
func NewManager(opts Options) *ManagerImpl {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = opts.HeaderTimeout
	return NewManagerWithClient(&http.Client{Transport: transport}, opts)
}

// NewManagerWithClient creates a downloader around an existing client. The client
// should not carry an overall Timeout, since that would cut off large transfers.
func NewManagerWithClient(client *http.Client, opts Options) *ManagerImpl {
	if opts.UserAgent == "" {
		opts.UserAgent = "plugd/1.0"
	}
	return &ManagerImpl{
		client:       client,
		userAgent:    opts.UserAgent,
		stallTimeout: opts.StallTimeout,
	}
}

// Download streams item.URL into a new temp file in item.Dir. The context is
// checked between chunks. On any error, including cancellation, the temp file
// is removed before returning.
//
// Network failures, stalls, 5xx, 408 and 429 responses wrap ErrTransientIO.
// Other non-200 responses wrap ErrDownloadFailed.
func (m *ManagerImpl) Download(ctx context.Context, item Item, onProgress ProgressFunc) (Result, error) {
	if item.URL == "" {
		return Result{}, fmt.Errorf("empty source URL: %w", pkgerrors.ErrDownloadFailed)
	}
	if err := fsutil.EnsureDir(item.Dir); err != nil {
		return Result{}, pkgerrors.Wrap(err, "could not create download dir")
	}

	dlCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var watchdog *time.Timer
	if m.stallTimeout > 0 {
		watchdog = time.AfterFunc(m.stallTimeout, func() { cancel(pkgerrors.ErrStalled) })
		defer watchdog.Stop()
	}

	resp, err := m.doRequest(dlCtx, item.URL)
	if err != nil {
		return Result{}, classifyAbort(ctx, dlCtx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	tmp, err := os.CreateTemp(item.Dir, tempPattern(item.Name))
	if err != nil {
		return Result{}, pkgerrors.Wrap(err, "could not create temp file")
	}
	tmpPath := tmp.Name()

	total := resp.ContentLength
	if total <= 0 {
		total = item.Size
	}

	res, err := m.copyBody(ctx, dlCtx, tmp, resp.Body, total, item.Name, watchdog, onProgress)
	closeErr := tmp.Close()
	if err == nil && closeErr != nil {
		err = pkgerrors.Wrap(closeErr, "could not close file")
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return Result{}, err
	}

	res.Path = tmpPath
	return res, nil
}

func (m *ManagerImpl) doRequest(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w: %w", pkgerrors.ErrDownloadFailed, err)
	}
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w: %w", pkgerrors.ErrTransientIO, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		if isTransientStatus(resp.StatusCode) {
			return nil, fmt.Errorf("unexpected status code: %d: %w", resp.StatusCode, pkgerrors.ErrTransientIO)
		}
		return nil, fmt.Errorf("unexpected status code: %d: %w", resp.StatusCode, pkgerrors.ErrDownloadFailed)
	}
	return resp, nil
}

func (m *ManagerImpl) copyBody(
	ctx, dlCtx context.Context,
	dst io.Writer, body io.Reader,
	total int64, label string,
	watchdog *time.Timer,
	onProgress ProgressFunc,
) (Result, error) {
	md5Hash := md5.New() //nolint:gosec // repositories publish MD5 checksums
	shaHash := sha256.New()
	out := io.MultiWriter(dst, md5Hash, shaHash)
	counter := metrics.DownloadedBytes.WithLabelValues(label)

	buf := make([]byte, chunkSize)
	var received int64
	if onProgress != nil {
		onProgress(0, total)
	}

	for {
		if dlCtx.Err() != nil {
			return Result{}, classifyAbort(ctx, dlCtx, dlCtx.Err())
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if watchdog != nil {
				watchdog.Reset(m.stallTimeout)
			}
			if _, err := out.Write(buf[:n]); err != nil {
				return Result{}, pkgerrors.Wrap(err, "could not write file")
			}
			received += int64(n)
			counter.Add(float64(n))
			if onProgress != nil {
				onProgress(received, total)
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return Result{}, classifyAbort(ctx, dlCtx, fmt.Errorf("read failed: %w: %w", pkgerrors.ErrTransientIO, readErr))
		}
	}

	return Result{
		Size:   received,
		MD5:    hex.EncodeToString(md5Hash.Sum(nil)),
		SHA256: hex.EncodeToString(shaHash.Sum(nil)),
	}, nil
}

// classifyAbort turns an error seen while the download context may be done into
// the caller-facing error: the parent's cancellation, a stall, or err itself.
func classifyAbort(parent, dlCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if cause := context.Cause(dlCtx); cause != nil && cause != context.Canceled {
		return fmt.Errorf("%w: %w", cause, err)
	}
	return err
}

func isTransientStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

func tempPattern(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
	if name == "" {
		name = "dl"
	}
	return name + "-*.part"
}
