package scrape

import (
	"context"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/cliplens/cliplens/internal/fetch"
	"github.com/cliplens/cliplens/internal/pipeline"
	"github.com/cliplens/cliplens/internal/types"
)

// RenderFunc renders a page in a headless browser and returns its HTML.
type RenderFunc func(ctx context.Context, url string, timeout time.Duration, verbose bool) (string, error)

// PageScraper extracts video metadata from the page's own meta tags. It is
// the fallback when no actor token is configured; it yields a thinner record
// than the actor (no engagement counters, no creator stats).
type PageScraper struct {
	opts    *fetch.Options
	render  RenderFunc
	verbose bool
	logger  *log.Logger
}

// PageOption customizes a PageScraper.
type PageOption func(*PageScraper)

// WithFetchOptions overrides the HTTP fetch options.
func WithFetchOptions(opts *fetch.Options) PageOption {
	return func(s *PageScraper) { s.opts = opts }
}

// WithRenderer overrides the browser renderer. Passing nil disables the
// browser fallback entirely.
func WithRenderer(r RenderFunc) PageOption {
	return func(s *PageScraper) { s.render = r }
}

// WithVerbose enables fetch logging.
func WithVerbose(v bool) PageOption {
	return func(s *PageScraper) { s.verbose = v }
}

// WithPageLogger overrides the logger.
func WithPageLogger(l *log.Logger) PageOption {
	return func(s *PageScraper) { s.logger = l }
}

// NewPageScraper creates a meta-tag scraper with the headless browser
// fallback enabled.
func NewPageScraper(opts ...PageOption) *PageScraper {
	s := &PageScraper{
		opts:   fetch.DefaultOptions(),
		render: fetch.WithBrowser,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch loads the video page, preferring a plain HTTP fetch and falling back
// to a headless browser when the server withheld the meta tags.
func (s *PageScraper) Fetch(ctx context.Context, sourceURL string) (*types.VideoMetadata, error) {
	var meta *fetch.PageMeta

	result, err := fetch.URL(ctx, sourceURL, s.opts)
	if err == nil {
		meta, err = fetch.ExtractPageMeta(result.HTML)
		if err != nil {
			return nil, &pipeline.UpstreamServiceError{Service: "page scrape", Cause: err}
		}
	}

	if fetch.ShouldUseBrowser(meta) && s.render != nil {
		s.logger.Printf("[scrape] plain fetch of %s yielded no metadata, rendering in browser", sourceURL)
		html, berr := s.render(ctx, sourceURL, s.opts.Timeout, s.verbose)
		if berr != nil {
			if err != nil {
				// Both paths failed; the HTTP error is the more telling one.
				return nil, &pipeline.UpstreamServiceError{Service: "page scrape", Cause: err}
			}
			return nil, &pipeline.UpstreamServiceError{Service: "page scrape", Cause: berr}
		}
		meta, err = fetch.ExtractPageMeta(html)
		if err != nil {
			return nil, &pipeline.UpstreamServiceError{Service: "page scrape", Cause: err}
		}
	} else if err != nil {
		return nil, &pipeline.UpstreamServiceError{Service: "page scrape", Cause: err}
	}

	if meta == nil || (!meta.HasVideo() && meta.Description == "" && meta.Title == "") {
		return nil, &pipeline.NotFoundError{Resource: "video at " + sourceURL}
	}

	return pageMetaToVideo(meta, sourceURL), nil
}

// pageMetaToVideo builds the best metadata record the page shell allows.
func pageMetaToVideo(meta *fetch.PageMeta, sourceURL string) *types.VideoMetadata {
	webURL := meta.CanonicalURL
	if webURL == "" {
		webURL = sourceURL
	}

	v := &types.VideoMetadata{
		VideoID:      videoIDFromURL(webURL),
		SourceURL:    sourceURL,
		VideoURL:     meta.VideoURL,
		Caption:      meta.Description,
		Hashtags:     parseHashtags(meta.Description),
		ThumbnailURL: meta.ThumbnailURL,
		WebVideoURL:  webURL,
		Creator:      creatorFromURL(webURL),
	}
	v.Normalize()
	return v
}

var (
	hashtagPattern = regexp.MustCompile(`#(\w+)`)
	creatorPattern = regexp.MustCompile(`/@([\w.\-]+)`)
	videoIDPattern = regexp.MustCompile(`/video/(\d+)`)
)

// parseHashtags pulls hashtags out of a caption.
func parseHashtags(caption string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(caption, -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, strings.ToLower(m[1]))
	}
	return tags
}

// creatorFromURL extracts the @handle from a canonical video URL.
func creatorFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if m := creatorPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return ""
}

// videoIDFromURL extracts the numeric post ID from a canonical video URL.
func videoIDFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if m := videoIDPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return ""
}
