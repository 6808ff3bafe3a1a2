// SPDX-License-Identifier: MIT

// Package fetch retrieves pages and assets over HTTP with retries, pacing
// and a TLS-verification fallback for broken legacy sites.
package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pagevault/pagevault/internal/cache"
	"github.com/pagevault/pagevault/internal/log"
	"github.com/pagevault/pagevault/internal/mediatype"
	"github.com/pagevault/pagevault/internal/metrics"
	"golang.org/x/time/rate"
)

// maxBodyBytes caps a single response body. Larger assets are truncated
// rather than exhausting memory.
const maxBodyBytes = 64 << 20

// Config holds client settings, resolved from the app config and profile.
type Config struct {
	Timeout          time.Duration
	Retries          int
	Backoff          time.Duration
	MaxBackoff       time.Duration
	RateLimit        float64 // requests/sec per host
	RateBurst        int
	UserAgent        string
	ProxyURL         string
	InsecureFallback bool
	Headers          map[string]string
}

// Page is the result of fetching an HTML page.
type Page struct {
	Body      []byte
	FinalURL  string // post-redirect URL; relative links resolve against it
	MediaType string
	Status    int
}

// Asset is the result of fetching a non-page resource.
type Asset struct {
	Body      []byte
	MediaType string
	Encoding  string
	Extension string
}

// Client fetches website content.
type Client struct {
	cfg      Config
	client   *http.Client
	insecure *http.Client
	types    *mediatype.Registry
	meta     cache.Cache

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a fetch client. types resolves asset extensions; meta caches
// asset metadata between runs (may be a no-op cache).
func New(cfg Config, types *mediatype.Registry, meta cache.Cache) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateBurst < 1 {
		cfg.RateBurst = 1
	}
	if meta == nil {
		meta = cache.NewNoOp()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	insecureTransport := transport.Clone()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- explicit operator opt-in fallback

	return &Client{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout, Transport: transport},
		insecure: &http.Client{Timeout: cfg.Timeout, Transport: insecureTransport},
		types:    types,
		meta:     meta,
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

// Page fetches an HTML page, following redirects.
func (c *Client) Page(ctx context.Context, pageURL string) (*Page, error) {
	res, body, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	media, _, _ := mime.ParseMediaType(res.Header.Get("Content-Type"))
	return &Page{
		Body:      body,
		FinalURL:  res.Request.URL.String(),
		MediaType: media,
		Status:    res.StatusCode,
	}, nil
}

// Asset fetches a non-page resource and resolves its metadata. Metadata is
// remembered in the cache so re-crawls skip the lookup work.
func (c *Client) Asset(ctx context.Context, assetURL string) (*Asset, error) {
	res, body, err := c.get(ctx, assetURL)
	if err != nil {
		return nil, err
	}

	contentType := res.Header.Get("Content-Type")
	media, params, perr := mime.ParseMediaType(contentType)
	if perr != nil || media == "" {
		media = "unknown"
	}
	encoding := params["charset"]

	extension := ".html"
	if c.types != nil {
		extension = c.types.Extension(media, ".html")
	}

	meta := cache.Meta{
		MediaType: media,
		Encoding:  encoding,
		Extension: extension,
		Length:    int64(len(body)),
	}
	c.meta.Set(assetURL, meta, 24*time.Hour)

	return &Asset{
		Body:      body,
		MediaType: media,
		Encoding:  encoding,
		Extension: extension,
	}, nil
}

// Meta returns cached metadata for a URL, if present.
func (c *Client) Meta(assetURL string) (cache.Meta, bool) {
	return c.meta.Get(assetURL)
}

// get runs the retry loop around a single GET.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, []byte, error) {
	logger := log.WithComponentFromContext(ctx, "fetch")

	if err := c.wait(ctx, rawURL); err != nil {
		return nil, nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			metrics.IncFetchRetry()
			backoff := c.cfg.Backoff << (attempt - 1)
			if c.cfg.MaxBackoff > 0 && backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
			logger.Debug().
				Str(log.FieldURL, rawURL).
				Int(log.FieldAttempt, attempt).
				Dur("backoff", backoff).
				Msg("retrying fetch")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}

		res, body, err := c.once(ctx, rawURL, c.client)
		if err == nil {
			return res, body, nil
		}

		// Broken or self-signed certificates: retry once unverified, as the
		// original service did on SSL errors.
		if c.cfg.InsecureFallback && isTLSError(err) {
			logger.Warn().
				Str(log.FieldURL, rawURL).
				Msg("TLS verification failed, retrying without verification")
			res, body, err = c.once(ctx, rawURL, c.insecure)
			if err == nil {
				return res, body, nil
			}
		}

		lastErr = err
		if !Retryable(err) {
			break
		}
	}
	return nil, nil, lastErr
}

func (c *Client) once(ctx context.Context, rawURL string, client *http.Client) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, &Error{Sentinel: ErrUnavailable, URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	res, err := client.Do(req)
	if err != nil {
		sentinel := ErrUnavailable
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			sentinel = ErrTimeout
		}
		return nil, nil, &Error{Sentinel: sentinel, URL: rawURL, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return nil, nil, statusError(rawURL, res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, &Error{Sentinel: ErrUnavailable, URL: rawURL, Err: err}
	}
	return res, body, nil
}

// wait applies the per-host rate limit.
func (c *Client) wait(ctx context.Context, rawURL string) error {
	if c.cfg.RateLimit <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return &Error{Sentinel: ErrUnavailable, URL: rawURL, Err: err}
	}

	c.mu.Lock()
	limiter, ok := c.limiters[u.Host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(c.cfg.RateLimit), c.cfg.RateBurst)
		c.limiters[u.Host] = limiter
	}
	c.mu.Unlock()

	return limiter.Wait(ctx)
}

func isTLSError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	return errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) ||
		strings.Contains(err.Error(), "x509:")
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
