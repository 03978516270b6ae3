// Package scrape resolves short-form video URLs to normalized metadata. The
// primary path runs a hosted scraping actor; a page scraper covers
// deployments without an actor token.
package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/cliplens/cliplens/internal/pipeline"
	"github.com/cliplens/cliplens/internal/types"
)

const (
	// DefaultActorID is the hosted TikTok scraping actor.
	DefaultActorID = "OtzYfK1ndEGdwWFKQ"

	// DefaultBaseURL is the actor platform API root.
	DefaultBaseURL = "https://api.apify.com"

	// DefaultRunTimeout bounds one synchronous actor run. Scraping a single
	// post typically takes 10-30 seconds.
	DefaultRunTimeout = 90 * time.Second
)

// ApifyClient runs the scraping actor synchronously and maps its dataset
// items to video metadata.
type ApifyClient struct {
	token   string
	actorID string
	baseURL string
	client  *http.Client
	logger  *log.Logger
}

// ApifyOption customizes an ApifyClient.
type ApifyOption func(*ApifyClient)

// WithActorID overrides the actor used for scraping.
func WithActorID(id string) ApifyOption {
	return func(c *ApifyClient) { c.actorID = id }
}

// WithBaseURL points the client at a different API root. Used in tests.
func WithBaseURL(base string) ApifyOption {
	return func(c *ApifyClient) { c.baseURL = base }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) ApifyOption {
	return func(c *ApifyClient) { c.client = hc }
}

// WithLogger overrides the logger.
func WithLogger(l *log.Logger) ApifyOption {
	return func(c *ApifyClient) { c.logger = l }
}

// NewApifyClient creates a scraping client. The token is required; actor and
// endpoint default to the hosted TikTok actor.
func NewApifyClient(token string, opts ...ApifyOption) (*ApifyClient, error) {
	if token == "" {
		return nil, fmt.Errorf("apify token is required")
	}
	c := &ApifyClient{
		token:   token,
		actorID: DefaultActorID,
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: DefaultRunTimeout},
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// actorInput is the actor's expected run input: scrape exactly one post.
type actorInput struct {
	PostURLs       []string `json:"postURLs"`
	ResultsPerPage int      `json:"resultsPerPage"`
}

// apifyItem is the dataset item shape the actor emits per scraped post.
type apifyItem struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	CreateTimeISO string `json:"createTimeISO"`
	IsAd          bool   `json:"isAd"`
	WebVideoURL   string `json:"webVideoUrl"`
	DiggCount     int64  `json:"diggCount"`
	ShareCount    int64  `json:"shareCount"`
	PlayCount     int64  `json:"playCount"`
	CollectCount  int64  `json:"collectCount"`
	CommentCount  int64  `json:"commentCount"`
	Hashtags      []struct {
		Name string `json:"name"`
	} `json:"hashtags"`
	VideoMeta struct {
		Duration     int    `json:"duration"`
		DownloadAddr string `json:"downloadAddr"`
		CoverURL     string `json:"coverUrl"`
	} `json:"videoMeta"`
	MusicMeta struct {
		PlayURL string `json:"playUrl"`
	} `json:"musicMeta"`
	AuthorMeta struct {
		Name      string `json:"name"`
		NickName  string `json:"nickName"`
		Avatar    string `json:"avatar"`
		Fans      int64  `json:"fans"`
		Following int64  `json:"following"`
		Heart     int64  `json:"heart"`
		Video     int64  `json:"video"`
	} `json:"authorMeta"`
}

// Fetch runs the actor synchronously for one post URL and returns the
// normalized metadata. An empty dataset means the post does not exist or is
// private.
func (c *ApifyClient) Fetch(ctx context.Context, sourceURL string) (*types.VideoMetadata, error) {
	body, err := json.Marshal(actorInput{PostURLs: []string{sourceURL}, ResultsPerPage: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to encode actor input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s",
		c.baseURL, c.actorID, url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create actor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Printf("[scrape] running actor %s for %s", c.actorID, sourceURL)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &pipeline.UpstreamServiceError{Service: "apify", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &pipeline.UpstreamServiceError{Service: "apify", Cause: err}
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &pipeline.NotFoundError{Resource: "video at " + sourceURL}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &pipeline.UpstreamServiceError{
			Service: "apify",
			Cause:   fmt.Errorf("actor run returned status %d: %s", resp.StatusCode, truncateBody(respBody)),
		}
	}

	var items []apifyItem
	if err := json.Unmarshal(respBody, &items); err != nil {
		return nil, &pipeline.UpstreamServiceError{
			Service: "apify",
			Cause:   fmt.Errorf("failed to decode dataset items: %w", err),
		}
	}
	if len(items) == 0 {
		return nil, &pipeline.NotFoundError{Resource: "video at " + sourceURL}
	}

	return items[0].toMetadata(sourceURL), nil
}

// toMetadata maps one dataset item to the shared metadata record.
func (it *apifyItem) toMetadata(sourceURL string) *types.VideoMetadata {
	hashtags := make([]string, 0, len(it.Hashtags))
	for _, h := range it.Hashtags {
		if h.Name != "" {
			hashtags = append(hashtags, h.Name)
		}
	}

	meta := &types.VideoMetadata{
		VideoID:      it.ID,
		SourceURL:    sourceURL,
		VideoURL:     it.VideoMeta.DownloadAddr,
		AudioURL:     it.MusicMeta.PlayURL,
		Caption:      it.Text,
		Hashtags:     hashtags,
		DurationSec:  it.VideoMeta.Duration,
		ThumbnailURL: it.VideoMeta.CoverURL,
		WebVideoURL:  it.WebVideoURL,
		Creator:      it.AuthorMeta.Name,
		CreatorName:  it.AuthorMeta.NickName,
		AvatarURL:    it.AuthorMeta.Avatar,
		CreatorStats: types.CreatorStats{
			Followers:  it.AuthorMeta.Fans,
			Following:  it.AuthorMeta.Following,
			Likes:      it.AuthorMeta.Heart,
			VideoCount: it.AuthorMeta.Video,
		},
		VideoStats: types.VideoStats{
			Likes:    it.DiggCount,
			Shares:   it.ShareCount,
			Comments: it.CommentCount,
			Plays:    it.PlayCount,
			Saves:    it.CollectCount,
		},
		CreatedAt: it.CreateTimeISO,
		IsAd:      it.IsAd,
	}
	meta.Normalize()
	return meta
}

// truncateBody keeps error messages readable when the API returns a page of
// HTML or a large error envelope.
func truncateBody(b []byte) string {
	const max = 300
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
