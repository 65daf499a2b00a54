// Package fetch downloads the input products into the data directory.
// Files already present are left alone; each missing file gets exactly one
// attempt.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	ResultFetched = "fetched"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

var ErrStatus = errors.New("unexpected HTTP status")

// Observer is told about every file outcome.
type Observer interface {
	DownloadObserve(result string, bytes int64)
}

// Outcome is what happened to one URL.
type Outcome struct {
	URL    string
	Path   string
	Result string
	Bytes  int64
	Err    error
}

type Fetcher struct {
	rest     *resty.Client
	observer Observer
}

func New(timeout time.Duration, observer Observer) *Fetcher {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Minute) // default fallback
	}
	return &Fetcher{rest: r, observer: observer}
}

// Fetch downloads every URL into dir, named after the last path segment.
// It returns one outcome per URL and the first error met; later URLs are
// still attempted.
func (f *Fetcher) Fetch(ctx context.Context, urls []string, dir string) ([]Outcome, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	var firstErr error
	outcomes := make([]Outcome, 0, len(urls))
	for _, u := range urls {
		o := f.fetchOne(ctx, u, dir)
		if f.observer != nil {
			f.observer.DownloadObserve(o.Result, o.Bytes)
		}
		if o.Err != nil && firstErr == nil {
			firstErr = o.Err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, firstErr
}

func (f *Fetcher) fetchOne(ctx context.Context, rawURL, dir string) Outcome {
	o := Outcome{URL: rawURL}
	name, err := fileName(rawURL)
	if err != nil {
		o.Result, o.Err = ResultFailed, err
		return o
	}
	o.Path = filepath.Join(dir, name)

	if _, err := os.Stat(o.Path); err == nil {
		log.Info().Str("path", o.Path).Msg("File already present, skipping download")
		o.Result = ResultSkipped
		return o
	}

	start := time.Now()
	o.Bytes, o.Err = f.download(ctx, rawURL, o.Path)
	if o.Err != nil {
		o.Result = ResultFailed
		log.Error().Err(o.Err).Str("url", rawURL).Msg("Download failed")
		return o
	}
	o.Result = ResultFetched
	log.Info().
		Str("url", rawURL).
		Str("path", o.Path).
		Int64("bytes", o.Bytes).
		Dur("elapsed", time.Since(start)).
		Msg("Downloaded")
	return o
}

// download streams the body into a temp file beside dst and renames it into
// place, so an interrupted transfer never leaves a partial file behind.
func (f *Fetcher) download(ctx context.Context, rawURL, dst string) (int64, error) {
	resp, err := f.rest.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("%w: %d for %s", ErrStatus, resp.StatusCode(), rawURL)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		return n, fmt.Errorf("failed to read body of %s: %w", rawURL, err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return n, fmt.Errorf("failed to move download into place: %w", err)
	}
	return n, nil
}

func fileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("URL %q has no file name", rawURL)
	}
	return name, nil
}
