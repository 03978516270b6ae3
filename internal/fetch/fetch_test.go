package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	result, err := URL(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Contains(t, result.HTML, "hello")
	assert.Equal(t, "text/html", result.ContentType)
}

func TestURL_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	result, err := URL(context.Background(), srv.URL, nil)
	require.Error(t, err)
	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, fetchErr.Message, "404")
	require.NotNil(t, result)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
}

func TestURL_InvalidURL(t *testing.T) {
	for _, bad := range []string{"", "not-a-url", "://missing-scheme"} {
		_, err := URL(context.Background(), bad, nil)
		var fetchErr *Error
		require.ErrorAs(t, err, &fetchErr, "url %q", bad)
		assert.Equal(t, "invalid URL", fetchErr.Message)
	}
}

const videoPageHTML = `<!DOCTYPE html>
<html><head>
<title>fallback title</title>
<meta property="og:title" content="Dance challenge goes wrong"/>
<meta property="og:description" content="watch until the end #dance #fail"/>
<meta property="og:video:secure_url" content="https://cdn.example/v/123.mp4"/>
<meta property="og:video" content="http://cdn.example/v/123.mp4"/>
<meta property="og:image" content="https://cdn.example/t/123.jpg"/>
<meta property="og:url" content="https://www.example.com/@user/video/123"/>
<meta name="twitter:description" content="twitter copy"/>
<link rel="canonical" href="https://www.example.com/@user/video/123"/>
</head><body></body></html>`

func TestExtractPageMeta(t *testing.T) {
	meta, err := ExtractPageMeta(videoPageHTML)
	require.NoError(t, err)

	assert.Equal(t, "Dance challenge goes wrong", meta.Title)
	assert.Equal(t, "watch until the end #dance #fail", meta.Description)
	assert.Equal(t, "https://cdn.example/v/123.mp4", meta.VideoURL, "secure_url wins over og:video")
	assert.Equal(t, "https://cdn.example/t/123.jpg", meta.ThumbnailURL)
	assert.Equal(t, "https://www.example.com/@user/video/123", meta.CanonicalURL)
	assert.True(t, meta.HasVideo())
}

func TestExtractPageMeta_Fallbacks(t *testing.T) {
	html := `<html><head>
	<title>plain title</title>
	<meta name="twitter:image" content="https://cdn.example/t.jpg"/>
	<meta name="description" content="plain description"/>
	<link rel="canonical" href="https://example.com/page"/>
	</head></html>`

	meta, err := ExtractPageMeta(html)
	require.NoError(t, err)
	assert.Equal(t, "plain title", meta.Title)
	assert.Equal(t, "plain description", meta.Description)
	assert.Equal(t, "https://cdn.example/t.jpg", meta.ThumbnailURL)
	assert.Equal(t, "https://example.com/page", meta.CanonicalURL)
	assert.False(t, meta.HasVideo())
}

func TestShouldUseBrowser(t *testing.T) {
	assert.True(t, ShouldUseBrowser(nil))
	assert.True(t, ShouldUseBrowser(&PageMeta{Title: "title only"}))
	assert.False(t, ShouldUseBrowser(&PageMeta{VideoURL: "https://cdn.example/v.mp4"}))
	assert.False(t, ShouldUseBrowser(&PageMeta{Description: "has description"}))
}
