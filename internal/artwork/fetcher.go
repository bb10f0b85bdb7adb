// Package artwork retrieves cover images for tracks whose containers carry
// only an album-art URL instead of an embedded picture.
package artwork

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"melt/internal/config"
	"melt/internal/ncm"
	"melt/internal/services"
)

const userAgent = "melt/0.1.0"

// maxImageBytes caps a single artwork download. Covers served by the catalog
// are a few hundred kilobytes; anything near this limit is not a cover.
const maxImageBytes = 16 << 20

// Fetcher downloads cover art over HTTPS.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*ncm.Image, error)
}

// NewFetcher builds an artwork fetcher from configuration. When downloads are
// disabled, a noop implementation is returned.
func NewFetcher(cfg *config.Config) Fetcher {
	if !cfg.Artwork.Download {
		return noopFetcher{}
	}
	timeout := time.Duration(cfg.Artwork.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpFetcher{
		client:      &http.Client{Timeout: timeout},
		fallbackURL: strings.TrimSpace(cfg.Artwork.FallbackURL),
	}
}

type httpFetcher struct {
	client      *http.Client
	fallbackURL string
}

func (f *httpFetcher) Fetch(ctx context.Context, url string) (*ncm.Image, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		url = f.fallbackURL
	}
	if url == "" {
		return nil, nil
	}
	// The catalog still hands out plain-http URLs in old containers.
	if strings.HasPrefix(url, "http://") {
		url = "https://" + strings.TrimPrefix(url, "http://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "artwork", "build request", fmt.Sprintf("Invalid artwork URL %q", url), err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "artwork", "download", "Artwork download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
		return nil, services.Wrap(services.ErrTransient, "artwork", "download",
			fmt.Sprintf("Artwork server returned %d for %s", resp.StatusCode, url), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "artwork", "read body", "Artwork download interrupted", err)
	}
	if len(data) > maxImageBytes {
		return nil, services.Wrap(services.ErrValidation, "artwork", "read body",
			fmt.Sprintf("Artwork at %s exceeds the %d byte limit", url, maxImageBytes), nil)
	}
	if len(data) == 0 {
		return nil, nil
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = ncm.SniffImageMIME(data)
	}
	return &ncm.Image{Bytes: data, MIME: mime}, nil
}

type noopFetcher struct{}

func (noopFetcher) Fetch(context.Context, string) (*ncm.Image, error) { return nil, nil }
