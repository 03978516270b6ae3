package scrape

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cliplens/cliplens/internal/pipeline"
)

const datasetResponse = `[{
  "id": "7234567890123456789",
  "text": "my morning routine #grwm #morning",
  "createTimeISO": "2024-03-01T08:00:00.000Z",
  "isAd": false,
  "webVideoUrl": "https://www.tiktok.com/@maker/video/7234567890123456789",
  "diggCount": 1200,
  "shareCount": 34,
  "playCount": 56000,
  "collectCount": 89,
  "commentCount": 150,
  "hashtags": [{"name": "grwm"}, {"name": "morning"}],
  "videoMeta": {
    "duration": 47,
    "downloadAddr": "https://cdn.example/dl/723.mp4",
    "coverUrl": "https://cdn.example/cover/723.jpg"
  },
  "musicMeta": {"playUrl": "https://cdn.example/audio/723.mp3"},
  "authorMeta": {
    "name": "maker",
    "nickName": "The Maker",
    "avatar": "https://cdn.example/avatar/maker.jpg",
    "fans": 10000,
    "following": 42,
    "heart": 250000,
    "video": 310
  }
}]`

func TestApifyFetch_MapsDatasetItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/v2/acts/"+DefaultActorID+"/run-sync-get-dataset-items")
		assert.Equal(t, "secret-token", r.URL.Query().Get("token"))

		var input actorInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.Equal(t, []string{"https://www.tiktok.com/@maker/video/7234567890123456789"}, input.PostURLs)
		assert.Equal(t, 1, input.ResultsPerPage)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(datasetResponse))
	}))
	defer srv.Close()

	client, err := NewApifyClient("secret-token", WithBaseURL(srv.URL))
	require.NoError(t, err)

	meta, err := client.Fetch(context.Background(), "https://www.tiktok.com/@maker/video/7234567890123456789")
	require.NoError(t, err)

	assert.Equal(t, "7234567890123456789", meta.VideoID)
	assert.Equal(t, "https://cdn.example/dl/723.mp4", meta.VideoURL)
	assert.Equal(t, "https://cdn.example/audio/723.mp3", meta.AudioURL)
	assert.Equal(t, "my morning routine #grwm #morning", meta.Caption)
	assert.Equal(t, []string{"grwm", "morning"}, meta.Hashtags)
	assert.Equal(t, 47, meta.DurationSec)
	assert.Equal(t, "maker", meta.Creator)
	assert.Equal(t, "The Maker", meta.CreatorName)
	assert.Equal(t, int64(10000), meta.CreatorStats.Followers)
	assert.Equal(t, int64(250000), meta.CreatorStats.Likes)
	assert.Equal(t, int64(1200), meta.VideoStats.Likes)
	assert.Equal(t, int64(56000), meta.VideoStats.Plays)
	assert.Equal(t, int64(89), meta.VideoStats.Saves)
	assert.False(t, meta.IsAd)
	assert.True(t, meta.HasPlayableMedia())
}

func TestApifyFetch_EmptyDatasetIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client, err := NewApifyClient("t", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "https://www.tiktok.com/@gone/video/1")
	var nf *pipeline.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestApifyFetch_NotFoundStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such actor run", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewApifyClient("t", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "https://www.tiktok.com/@x/video/1")
	var nf *pipeline.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestApifyFetch_ServerErrorIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "actor crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewApifyClient("t", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "https://www.tiktok.com/@x/video/1")
	var upstream *pipeline.UpstreamServiceError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "apify", upstream.Service)
	assert.Contains(t, upstream.Error(), "500")
}

func TestApifyFetch_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	client, err := NewApifyClient("t", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), "https://www.tiktok.com/@x/video/1")
	var upstream *pipeline.UpstreamServiceError
	require.ErrorAs(t, err, &upstream)
}

func TestNewApifyClient_RequiresToken(t *testing.T) {
	_, err := NewApifyClient("")
	require.Error(t, err)
}
