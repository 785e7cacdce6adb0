// Package fetcher downloads and unpacks the publisher's ZIP archives.
package fetcher

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"postcodejp/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrDownload         = errors.New("fetcher: download failed")
	ErrExtract          = errors.New("fetcher: extract failed")
	ErrInvalidYearMonth = errors.New("fetcher: year-month must be four digits (YYMM)")
)

// YearMonthPlaceholder is substituted in diff URL templates.
const YearMonthPlaceholder = "{yymm}"

// Freshness is what a metadata-only request learned about a remote archive.
// Either field is nil when the server did not provide it or the request failed.
type Freshness struct {
	LastModified *time.Time
	Size         *int64
}

// Archive is an extracted download. The caller removes Dir once it is imported.
type Archive struct {
	URL          string
	Dir          string
	LastModified *time.Time
	Size         int64
}

// Remove deletes the extracted directory.
func (a *Archive) Remove() {
	if a == nil || a.Dir == "" {
		return
	}
	if err := os.RemoveAll(a.Dir); err != nil {
		log.Warn().Err(err).Str("dir", a.Dir).Msg("failed to remove extracted archive")
	}
}

type Config struct {
	DataDir        string
	Timeout        time.Duration
	Retries        int
	AddURLTemplate string
	DelURLTemplate string
	Client         *http.Client
}

type Fetcher struct {
	client  *http.Client
	dataDir string
	timeout time.Duration
	retries uint64
	addTpl  string
	delTpl  string
}

// New creates the scratch root if needed.
func New(cfg Config) (*Fetcher, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("fetcher: create data dir: %w", err)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	retries := uint64(0)
	if cfg.Retries > 0 {
		retries = uint64(cfg.Retries)
	}
	return &Fetcher{
		client:  client,
		dataDir: cfg.DataDir,
		timeout: timeout,
		retries: retries,
		addTpl:  cfg.AddURLTemplate,
		delTpl:  cfg.DelURLTemplate,
	}, nil
}

// CheckFreshness issues a HEAD request. It never fails: any transport error,
// non-2xx status or missing header leaves the matching field nil.
func (f *Fetcher) CheckFreshness(ctx context.Context, url string) Freshness {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("failed to build freshness request")
		return Freshness{}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("freshness check failed")
		return Freshness{}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("freshness check returned non-2xx")
		return Freshness{}
	}

	var out Freshness
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			t = t.UTC()
			out.LastModified = &t
		} else {
			log.Warn().Err(err).Str("url", url).Msg("unparseable Last-Modified header")
		}
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n >= 0 {
			out.Size = &n
		}
	}
	return out
}

// FetchAndExtract downloads url into a scratch file, unpacks it into a sibling
// directory and removes the scratch file. Errors wrap ErrDownload or ErrExtract.
func (f *Fetcher) FetchAndExtract(ctx context.Context, url string) (*Archive, error) {
	zipPath, lastModified, size, err := f.download(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(zipPath); err != nil {
			log.Warn().Err(err).Str("file", zipPath).Msg("failed to remove scratch file")
		}
	}()

	dir, err := f.extract(zipPath)
	if err != nil {
		return nil, err
	}
	log.Info().Str("url", url).Str("dir", dir).Msg("archive extracted")
	return &Archive{URL: url, Dir: dir, LastModified: lastModified, Size: size}, nil
}

// DiffURLs resolves the add and delete archive URLs for yymm (e.g. "2501").
func (f *Fetcher) DiffURLs(yymm string) (string, string, error) {
	if len(yymm) != 4 {
		return "", "", ErrInvalidYearMonth
	}
	for _, c := range yymm {
		if c < '0' || c > '9' {
			return "", "", ErrInvalidYearMonth
		}
	}
	if mm, _ := strconv.Atoi(yymm[2:]); mm < 1 || mm > 12 {
		return "", "", ErrInvalidYearMonth
	}
	return strings.ReplaceAll(f.addTpl, YearMonthPlaceholder, yymm),
		strings.ReplaceAll(f.delTpl, YearMonthPlaceholder, yymm), nil
}

// DiffArchives holds the independently fetched halves of a monthly diff.
// Either half may be missing when the publisher has not released it.
type DiffArchives struct {
	AddURL string
	DelURL string
	Add    *Archive
	Del    *Archive
	AddErr error
	DelErr error
}

// Remove deletes whichever extracted directories exist.
func (d *DiffArchives) Remove() {
	d.Add.Remove()
	d.Del.Remove()
}

// FetchDiff fetches the add and delete archives for yymm.
func (f *Fetcher) FetchDiff(ctx context.Context, yymm string) (*DiffArchives, error) {
	addURL, delURL, err := f.DiffURLs(yymm)
	if err != nil {
		return nil, err
	}
	out := &DiffArchives{AddURL: addURL, DelURL: delURL}
	out.Add, out.AddErr = f.FetchAndExtract(ctx, addURL)
	out.Del, out.DelErr = f.FetchAndExtract(ctx, delURL)
	return out, nil
}

type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("unexpected status %d", e.code) }

func (f *Fetcher) download(ctx context.Context, url string) (string, *time.Time, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	name := path.Base(url)
	if name == "" || name == "." || name == "/" {
		name = "archive.zip"
	}
	out, err := os.CreateTemp(f.dataDir, strings.TrimSuffix(name, path.Ext(name))+"-*.zip")
	if err != nil {
		return "", nil, 0, fmt.Errorf("%w: %s: %w", ErrDownload, url, err)
	}
	defer out.Close()

	var lastModified *time.Time
	var written int64
	op := func() error {
		if _, err := out.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(err)
		}
		if err := out.Truncate(0); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			serr := &statusError{code: resp.StatusCode}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return serr
			}
			return backoff.Permanent(serr)
		}
		n, err := io.Copy(out, resp.Body)
		if err != nil {
			return err
		}
		written = n
		if t, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
			t = t.UTC()
			lastModified = &t
		}
		return nil
	}

	log.Info().Str("url", url).Msg("downloading archive")
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.retries), ctx)
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("url", url).Dur("retry_in", wait).Msg("download attempt failed")
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", nil, 0, fmt.Errorf("%w: %s: %w", ErrDownload, url, err)
	}
	metrics.DownloadBytesTotal.Add(float64(written))
	log.Info().Str("url", url).Int64("bytes", written).Msg("archive downloaded")
	return out.Name(), lastModified, written, nil
}

func (f *Fetcher) extract(zipPath string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath))
	dir, err := os.MkdirTemp(filepath.Dir(zipPath), base+"-extract-")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtract, err)
	}
	if err := unzip(zipPath, dir); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("%w: %s: %w", ErrExtract, zipPath, err)
	}
	return dir, nil
}

func unzip(zipPath, dir string) error {
	rz, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("opening zip file: %w", err)
	}
	defer rz.Close()

	for _, zf := range rz.File {
		if !filepath.IsLocal(zf.Name) {
			return fmt.Errorf("entry %q escapes extraction directory", zf.Name)
		}
		target := filepath.Join(dir, zf.Name)
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(zf, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(zf *zip.File, target string) error {
	src, err := zf.Open()
	if err != nil {
		return fmt.Errorf("opening file in zip: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("writing %s: %w", target, err)
	}
	return dst.Close()
}
