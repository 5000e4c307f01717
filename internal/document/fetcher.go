package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDownloadFailed  = errors.New("failed to download document")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("document exceeds size limit")
)

// Fetcher stores request documents as ephemeral files under a work directory.
type Fetcher struct {
	client   *http.Client
	dir      string
	maxBytes int64
}

func NewFetcher(dir string, timeout time.Duration, maxBytes int64) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		dir:      dir,
		maxBytes: maxBytes,
	}
}

// Download fetches rawURL into <dir>/<uuid>.<ext>. The extension comes from
// the URL path, ignoring any query string, so signed blob URLs keep their type.
func (f *Fetcher) Download(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	resp, err := f.client.Do(req) // #nosec G107 -- fetching caller supplied documents is the purpose of this service
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}

	dst := filepath.Join(f.dir, uuid.New().String()+ExtensionFromURL(rawURL))
	n, err := f.write(dst, resp.Body)
	if err != nil {
		return "", err
	}

	slog.DebugContext(ctx, "document downloaded", "path", dst, "bytes", n)
	return dst, nil
}

// SaveUpload stores an uploaded file as <dir>/<uuid>_<basename>.
func (f *Fetcher) SaveUpload(filename string, r io.Reader) (string, error) {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		base = "upload"
	}
	dst := filepath.Join(f.dir, fmt.Sprintf("%s_%s", uuid.New().String(), base))
	if _, err := f.write(dst, r); err != nil {
		return "", err
	}
	return dst, nil
}

func (f *Fetcher) write(dst string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(f.dir, 0o750); err != nil {
		return 0, fmt.Errorf("create work dir: %w", err)
	}

	out, err := os.Create(dst) // #nosec G304 -- path is built from a UUID and a sanitized basename
	if err != nil {
		return 0, fmt.Errorf("create document file: %w", err)
	}
	defer out.Close()

	src := r
	if f.maxBytes > 0 {
		src = io.LimitReader(r, f.maxBytes+1)
	}

	n, err := io.Copy(out, src)
	if err != nil {
		_ = os.Remove(dst)
		return 0, fmt.Errorf("write document file: %w", err)
	}
	if f.maxBytes > 0 && n > f.maxBytes {
		_ = os.Remove(dst)
		return 0, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	return n, nil
}

// ExtensionFromURL returns the lower-cased extension (with leading dot) of
// the last path segment of rawURL, or "" when there is none.
func ExtensionFromURL(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		p = rawURL[:i]
	}
	return strings.ToLower(path.Ext(p))
}

// Remove deletes an ephemeral document file, ignoring files already gone.
func Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove document file", "path", path, "error", err)
	}
}
