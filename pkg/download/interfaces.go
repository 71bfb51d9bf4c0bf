// Package download streams package artifacts into temporary files while
// hashing them, reporting progress and detecting stalled transfers.
package download

import (
	"context"
	"time"
)

// Downloader fetches one artifact into a temporary file.
type Downloader interface {
	Download(ctx context.Context, item Item, onProgress ProgressFunc) (Result, error)
}

// Item describes one artifact download.
type Item struct {
	URL  string // source URL
	Dir  string // directory for the temporary file
	Name string // prefix of the temporary file name
	Size int64  // expected size, used when the server sends no Content-Length
}

// Result is a fully received artifact. The caller owns Path and must remove it.
type Result struct {
	Path   string
	Size   int64
	MD5    string // hex digest
	SHA256 string // hex digest
}

// ProgressFunc receives the bytes received so far and the expected total, which is
// zero when unknown.
type ProgressFunc func(received, total int64)

// Options control the behaviour of the HTTP downloader.
type Options struct {
	// HeaderTimeout bounds the wait for response headers.
	HeaderTimeout time.Duration
	// StallTimeout aborts a transfer that received no bytes for this long.
	StallTimeout time.Duration
	// UserAgent is sent with every request.
	UserAgent string
}
