// Package fetch provides URL fetching and HTML metadata extraction for
// video pages, with a headless-browser fallback for JavaScript-rendered
// pages.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is sent on plain HTTP fetches. Video platforms serve the
// meta-tag shell to anything that looks like a browser.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Result holds the raw content from a URL fetch.
type Result struct {
	URL         string
	HTML        string
	ContentType string
	StatusCode  int
}

// Error represents an error during URL fetching.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the fetch behavior.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	Client    *http.Client
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// URL retrieves HTML content from a URL.
func URL(ctx context.Context, urlStr string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{
			URL:     urlStr,
			Message: "invalid URL",
			Cause:   err,
		}
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "failed to create request",
			Cause:   err,
		}
	}

	req.Header.Set("User-Agent", opts.UserAgent)
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "HTTP request failed",
			Cause:   err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "failed to read response body",
			Cause:   err,
		}
	}

	result := &Result{
		URL:         urlStr,
		HTML:        string(bodyBytes),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}

	if resp.StatusCode != http.StatusOK {
		return result, &Error{
			URL:     urlStr,
			Message: fmt.Sprintf("HTTP status %d", resp.StatusCode),
		}
	}

	return result, nil
}

// PageMeta is the metadata a video page exposes through its meta tags.
type PageMeta struct {
	Title        string
	Description  string
	VideoURL     string
	ThumbnailURL string
	CanonicalURL string
}

// ExtractPageMeta parses HTML and pulls the Open Graph and Twitter card
// properties a video page carries. Missing properties yield empty fields,
// never an error; the caller decides whether the result is usable.
func ExtractPageMeta(html string) (*PageMeta, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	tags := map[string]string{}
	doc.Find("meta[property], meta[name]").Each(func(_ int, s *goquery.Selection) {
		key, ok := s.Attr("property")
		if !ok {
			key, _ = s.Attr("name")
		}
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if key == "" || content == "" {
			return
		}
		if _, seen := tags[key]; !seen {
			tags[key] = content
		}
	})

	pick := func(keys ...string) string {
		for _, k := range keys {
			if v := tags[k]; v != "" {
				return v
			}
		}
		return ""
	}

	meta := &PageMeta{
		Title:        pick("og:title", "twitter:title"),
		Description:  pick("og:description", "twitter:description", "description"),
		VideoURL:     pick("og:video:secure_url", "og:video", "og:video:url", "twitter:player:stream"),
		ThumbnailURL: pick("og:image", "twitter:image"),
		CanonicalURL: pick("og:url"),
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if meta.CanonicalURL == "" {
		if canonical, ok := doc.Find("link[rel='canonical']").First().Attr("href"); ok {
			meta.CanonicalURL = strings.TrimSpace(canonical)
		}
	}

	return meta, nil
}

// HasVideo reports whether the page exposed a playable media URL.
func (m *PageMeta) HasVideo() bool {
	return m != nil && m.VideoURL != ""
}
