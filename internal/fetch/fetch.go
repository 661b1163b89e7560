// Package fetch retrieves remote documents for the browser view.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/net/html/charset"
)

// BlockedError reports a URL disallowed by the site's robots.txt.
type BlockedError struct {
	URL string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked by robots.txt: %s", e.URL)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Code)
}

// Resource is a fetched document. HTML bodies are converted to UTF-8.
type Resource struct {
	URL         *url.URL // final URL after redirects
	ContentType string
	Body        []byte
}

type Options struct {
	Timeout       time.Duration
	MaxBytes      int64
	UserAgent     string
	RespectRobots bool
}

type Client struct {
	http *http.Client
	opts Options
	log  *slog.Logger

	mu     sync.RWMutex
	robots map[string]*robotstxt.RobotsData // by scheme://host
}

func New(opts Options, log *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "pageview/1.0"
	}
	return &Client{
		http:   &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		log:    log,
		robots: make(map[string]*robotstxt.RobotsData),
	}
}

// NormalizeURL turns the address typed into the browser view into an
// absolute http(s) URL. A missing scheme defaults to http, and the single
// slash left by path cleaning ("http:/host") is repaired.
func NormalizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimLeft(strings.TrimSpace(raw), "/")
	if raw == "" {
		return nil, errors.New("empty url")
	}
	for _, scheme := range []string{"http:/", "https:/"} {
		if strings.HasPrefix(raw, scheme) && !strings.HasPrefix(raw, scheme+"/") {
			raw = scheme + "/" + raw[len(scheme):]
		}
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	return u, nil
}

// Fetch downloads raw after normalizing it and checking robots.txt.
func (c *Client) Fetch(ctx context.Context, raw string) (*Resource, error) {
	u, err := NormalizeURL(raw)
	if err != nil {
		return nil, err
	}
	if c.opts.RespectRobots {
		if err := c.checkRobots(ctx, u); err != nil {
			return nil, err
		}
	}

	resp, err := c.get(ctx, u.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: u.String(), Code: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	if int64(len(data)) > c.opts.MaxBytes {
		return nil, fmt.Errorf("fetch %s: response exceeds %d bytes", u, c.opts.MaxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if isHTML(contentType) {
		r, err := charset.NewReader(bytes.NewReader(data), contentType)
		if err != nil {
			c.log.Warn("charset detection failed", "url", u.String(), "error", err)
		} else if utf8Data, err := io.ReadAll(r); err == nil {
			data = utf8Data
		}
		contentType = "text/html; charset=utf-8"
	}

	return &Resource{URL: resp.Request.URL, ContentType: contentType, Body: data}, nil
}

func (c *Client) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	return resp, nil
}

func (c *Client) checkRobots(ctx context.Context, u *url.URL) error {
	origin := u.Scheme + "://" + u.Host

	c.mu.RLock()
	data, ok := c.robots[origin]
	c.mu.RUnlock()

	if !ok {
		var err error
		data, err = c.loadRobots(ctx, origin)
		if err != nil {
			// Unreachable robots.txt does not block; try again next time.
			c.log.Warn("robots.txt unavailable", "origin", origin, "error", err)
			return nil
		}
		c.mu.Lock()
		c.robots[origin] = data
		c.mu.Unlock()
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	if !data.TestAgent(path, c.opts.UserAgent) {
		c.log.Info("fetch blocked by robots.txt", "url", u.String())
		return &BlockedError{URL: u.String()}
	}
	return nil
}

func (c *Client) loadRobots(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	resp, err := c.get(ctx, origin+"/robots.txt")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
