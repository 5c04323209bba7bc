// Package fetcher downloads remote data over HTTP and FTP and streams CSV.
package fetcher

import (
	"context"
	"io"
)

// Fetcher opens a remote document. Catalog clients depend on it so tests can
// serve canned responses.
type Fetcher interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

var _ Fetcher = (*HTTPFetcher)(nil)
