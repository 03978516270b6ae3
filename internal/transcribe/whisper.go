// Package transcribe turns a downloadable media URL into a plain-text
// transcript using OpenAI's Whisper API. It also answers size probes so the
// pipeline can reject oversized media before any download happens.
package transcribe

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/cliplens/cliplens/internal/pipeline"
)

// Client wraps the OpenAI SDK plus the HTTP client used to pull media down.
type Client struct {
	client   openai.Client
	http     *http.Client
	model    openai.AudioModel
	maxBytes int64
	logger   *log.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the client used for media downloads and probes.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMaxBytes overrides the media size limit enforced during download.
func WithMaxBytes(n int64) Option {
	return func(c *Client) { c.maxBytes = n }
}

// WithModel overrides the transcription model. Empty keeps whisper-1.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = openai.AudioModel(model)
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Whisper transcription client.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	c := &Client{
		client:   openai.NewClient(option.WithAPIKey(apiKey)),
		http:     http.DefaultClient,
		model:    openai.AudioModelWhisper1,
		maxBytes: pipeline.DefaultMaxMediaBytes,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ProbeSize issues a HEAD request and reports the declared content length.
// A missing or unparseable header, or a server that rejects HEAD, reports 0:
// the hard limit is still enforced during the download itself.
func (c *Client) ProbeSize(ctx context.Context, mediaURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, mediaURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Printf("[transcribe] size probe for %s failed: %v", mediaURL, err)
		return 0, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, nil
	}
	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil || size < 0 {
		return 0, nil
	}
	return size, nil
}

// Transcribe downloads the media to a temp file and runs it through Whisper.
// The size limit is re-checked while downloading in case the probe was
// lied to.
func (c *Client) Transcribe(ctx context.Context, mediaURL string) (string, error) {
	filePath, cleanup, err := c.download(ctx, mediaURL)
	if err != nil {
		return "", err
	}
	defer cleanup()

	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("opening downloaded media: %w", err)
	}
	defer func() { _ = file.Close() }()

	resp, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  file,
		Model: c.model,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// download pulls the media into a temp file, enforcing the byte limit as
// bytes arrive.
func (c *Client) download(ctx context.Context, mediaURL string) (string, func(), error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("media download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, fmt.Errorf("media download returned status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "cliplens-media-*"+mediaExt(mediaURL))
	if err != nil {
		return "", nil, fmt.Errorf("creating temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	// Read one byte past the limit so an exactly-at-limit file passes and
	// anything larger is caught without buffering the whole stream.
	written, err := io.Copy(tmp, io.LimitReader(resp.Body, c.maxBytes+1))
	closeErr := tmp.Close()
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("writing media to disk: %w", err)
	}
	if closeErr != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing temp file: %w", closeErr)
	}
	if written > c.maxBytes {
		cleanup()
		return "", nil, &pipeline.PayloadTooLargeError{Size: written, Limit: c.maxBytes}
	}

	c.logger.Printf("[transcribe] downloaded %d bytes from %s", written, mediaURL)
	return tmp.Name(), cleanup, nil
}

// mediaExt guesses a file extension from the URL path so Whisper receives a
// recognizable container name.
func mediaExt(mediaURL string) string {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return ".mp4"
	}
	switch ext := strings.ToLower(path.Ext(u.Path)); ext {
	case ".mp3", ".mp4", ".m4a", ".wav", ".webm", ".ogg", ".flac", ".mpeg", ".mpga":
		return ext
	default:
		return ".mp4"
	}
}
