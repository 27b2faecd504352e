// Package fetcher downloads the upstream incident document.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body decoded to
	// UTF-8. Any status other than 200 is an error.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}
