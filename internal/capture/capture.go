// Package capture resolves tab attachments when tabs are set aside.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/hyperengineering/setaside"
)

// DefaultMaxBytes caps the size of a fetched favicon.
const DefaultMaxBytes = 256 << 10

const fetchWorkers = 4

// ErrTooLarge is returned when a favicon exceeds the size limit.
var ErrTooLarge = errors.New("favicon too large")

// FetchError describes a favicon that could not be fetched.
// Extractable via errors.As(); supports Unwrap().
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("capture: fetch %s failed (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("capture: fetch %s failed: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// HTTP is a setaside.Capturer that fetches favicons over HTTP. Thumbnails need a
// rendering engine and are never produced. Discarded tabs are not loaded, so
// their attachments are skipped.
type HTTP struct {
	httpClient *http.Client
	maxBytes   int64
	logger     log.Logger
}

// NewHTTP returns a capturer with a 10 second fetch timeout.
func NewHTTP(logger log.Logger) *HTTP {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &HTTP{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxBytes:   DefaultMaxBytes,
		logger:     log.With(logger, "component", "capture"),
	}
}

// WithHTTPClient sets a custom http.Client (for testing or custom timeouts).
func (h *HTTP) WithHTTPClient(client *http.Client) *HTTP {
	h.httpClient = client
	return h
}

// WithMaxBytes sets the favicon size limit.
func (h *HTTP) WithMaxBytes(n int64) *HTTP {
	h.maxBytes = n
	return h
}

// Capture returns one item per tab, in order. A favicon that cannot be fetched is
// left nil. Only cancellation of ctx fails the whole capture.
func (h *HTTP) Capture(ctx context.Context, tabs []setaside.Tab) ([]setaside.Item, error) {
	items := make([]setaside.Item, len(tabs))

	var g errgroup.Group
	g.SetLimit(fetchWorkers)
	for i, tab := range tabs {
		items[i] = setaside.Item{URL: tab.URL, Title: tab.Title}
		if tab.Discarded || tab.FaviconURL == "" {
			continue
		}
		g.Go(func() error {
			icon, err := h.Favicon(ctx, tab.FaviconURL)
			if err != nil {
				level.Debug(h.logger).Log("op", "capture", "url", tab.URL, "msg", "no favicon", "error", err)
				return nil
			}
			items[i].Favicon = icon
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", setaside.ErrCaptureFailed, err)
	}
	return items, nil
}

// Favicon returns the bytes behind a favicon URL: a data: URI is decoded in place,
// http and https URLs are fetched.
func (h *HTTP) Favicon(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.HasPrefix(rawURL, "data:") {
		data, err := DecodeDataURI(rawURL)
		if err != nil {
			return nil, &FetchError{URL: "data:", Err: err}
		}
		if int64(len(data)) > h.maxBytes {
			return nil, &FetchError{URL: "data:", Err: ErrTooLarge}
		}
		return data, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", "setaside/1.0")
	req.Header.Set("Accept", "image/*")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if int64(len(data)) > h.maxBytes {
		return nil, &FetchError{URL: rawURL, Err: ErrTooLarge}
	}
	return data, nil
}

// DecodeDataURI returns the payload of an RFC 2397 data URI.
func DecodeDataURI(uri string) ([]byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, errors.New("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errors.New("data URI without payload")
	}
	if strings.HasSuffix(meta, ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
