package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cliplens/cliplens/internal/pipeline"
	"github.com/cliplens/cliplens/internal/server/ratelimit"
	"github.com/cliplens/cliplens/internal/types"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "open-sesame"
	testVideoURL = "https://www.tiktok.com/@creator/video/123"
)

type fetcherFunc func(ctx context.Context, url string) (*types.VideoMetadata, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) (*types.VideoMetadata, error) {
	return f(ctx, url)
}

type proberFunc func(ctx context.Context, mediaURL string) (int64, error)

func (f proberFunc) ProbeSize(ctx context.Context, mediaURL string) (int64, error) {
	return f(ctx, mediaURL)
}

type transcriberFunc func(ctx context.Context, mediaURL string) (string, error)

func (f transcriberFunc) Transcribe(ctx context.Context, mediaURL string) (string, error) {
	return f(ctx, mediaURL)
}

type analyzerFunc func(ctx context.Context, req pipeline.AnalyzeRequest, emit func(types.Analysis)) (types.Analysis, []byte, error)

func (f analyzerFunc) AnalyzeStream(ctx context.Context, req pipeline.AnalyzeRequest, emit func(types.Analysis)) (types.Analysis, []byte, error) {
	return f(ctx, req, emit)
}

// newTestServer builds a server whose pipeline runs entirely on fakes. Rate
// limiting is off so polling loops in tests cannot trip it.
func newTestServer(t *testing.T) *Server {
	return newTestServerWithLimits(t, &ratelimit.Config{Enabled: false})
}

func newTestServerWithLimits(t *testing.T, rl *ratelimit.Config) *Server {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	factory := func(userID string) *pipeline.Orchestrator {
		return pipeline.New(pipeline.Options{
			Fetcher: fetcherFunc(func(ctx context.Context, url string) (*types.VideoMetadata, error) {
				return &types.VideoMetadata{
					VideoID:   "123",
					SourceURL: url,
					VideoURL:  "https://cdn.example/v.mp4",
					Caption:   "hi",
				}, nil
			}),
			Prober: proberFunc(func(ctx context.Context, mediaURL string) (int64, error) {
				return 1024, nil
			}),
			Transcriber: transcriberFunc(func(ctx context.Context, mediaURL string) (string, error) {
				return "hello there", nil
			}),
			Analyzer: analyzerFunc(func(ctx context.Context, req pipeline.AnalyzeRequest, emit func(types.Analysis)) (types.Analysis, []byte, error) {
				final := types.Analysis{Sentiment: types.SentimentPositive, Summary: "a greeting"}
				emit(final)
				return final, []byte(`{"sentiment":"positive","summary":"a greeting"}`), nil
			}),
		})
	}

	srv, err := New(Options{
		Port:            0,
		PasswordHash:    string(hash),
		JWTSecret:       testSecret,
		NewOrchestrator: factory,
		RateLimit:       rl,
	})
	require.NoError(t, err)
	return srv
}

func login(t *testing.T, handler http.Handler, name, password string) (string, *httptest.ResponseRecorder) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"name": name, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		return "", w
	}
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token, w
}

func authedRequest(method, target, token string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t)

	token, w := login(t, srv.Handler(), "Alice", testPassword)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, token)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Name, "name is sanitized into the session ID")
}

func TestLoginWrongPassword(t *testing.T) {
	srv := newTestServer(t)
	_, w := login(t, srv.Handler(), "Alice", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginValidation(t *testing.T) {
	srv := newTestServer(t)
	_, w := login(t, srv.Handler(), "A", testPassword) // name too short
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	srv := newTestServer(t)

	for _, tc := range []struct{ method, target string }{
		{http.MethodPost, "/api/analyses"},
		{http.MethodGet, "/api/analyses/current"},
		{http.MethodPost, "/api/analyses/reset"},
		{http.MethodGet, "/api/videos"},
	} {
		req := httptest.NewRequest(tc.method, tc.target, nil)
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", tc.method, tc.target)
	}
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStartAnalysisAndPollToCompletion(t *testing.T) {
	srv := newTestServer(t)
	token, _ := login(t, srv.Handler(), "alice", testPassword)

	body, _ := json.Marshal(startAnalysisRequest{URL: testVideoURL})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, authedRequest(http.MethodPost, "/api/analyses", token, body))
	require.Equal(t, http.StatusAccepted, w.Code)

	var started struct {
		State pipeline.Snapshot `json:"state"`
		Steps []pipeline.Step   `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.Equal(t, pipeline.StageFetching, started.State.Stage)
	assert.Len(t, started.Steps, 5)

	// Poll current state until the fake pipeline finishes.
	deadline := time.Now().Add(2 * time.Second)
	for {
		w = httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, authedRequest(http.MethodGet, "/api/analyses/current", token, nil))
		require.Equal(t, http.StatusOK, w.Code)

		var current struct {
			State pipeline.Snapshot `json:"state"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &current))
		if current.State.Stage.Terminal() {
			assert.Equal(t, pipeline.StageComplete, current.State.Stage)
			require.NotNil(t, current.State.Analysis)
			assert.Equal(t, types.SentimentPositive, current.State.Analysis.Sentiment)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("analysis never finished, last stage %s", current.State.Stage)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartAnalysisRejectsInvalidURL(t *testing.T) {
	srv := newTestServer(t)
	token, _ := login(t, srv.Handler(), "alice", testPassword)

	body, _ := json.Marshal(startAnalysisRequest{URL: "https://example.com/nope"})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, authedRequest(http.MethodPost, "/api/analyses", token, body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResetReturnsIdle(t *testing.T) {
	srv := newTestServer(t)
	token, _ := login(t, srv.Handler(), "alice", testPassword)

	body, _ := json.Marshal(startAnalysisRequest{URL: testVideoURL})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, authedRequest(http.MethodPost, "/api/analyses", token, body))
	require.Equal(t, http.StatusAccepted, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, authedRequest(http.MethodPost, "/api/analyses/reset", token, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		State pipeline.Snapshot `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, pipeline.StageIdle, resp.State.Stage)
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	srv := newTestServer(t)
	tokenA, _ := login(t, srv.Handler(), "alice", testPassword)
	tokenB, _ := login(t, srv.Handler(), "bobby", testPassword)

	body, _ := json.Marshal(startAnalysisRequest{URL: testVideoURL})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, authedRequest(http.MethodPost, "/api/analyses", tokenA, body))
	require.Equal(t, http.StatusAccepted, w.Code)

	// Bob's session is untouched by Alice's run.
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, authedRequest(http.MethodGet, "/api/analyses/current", tokenB, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		State pipeline.Snapshot `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, pipeline.StageIdle, resp.State.Stage)
}

func TestVideosUnavailableWithoutDatabase(t *testing.T) {
	srv := newTestServer(t)
	token, _ := login(t, srv.Handler(), "alice", testPassword)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, authedRequest(http.MethodGet, "/api/videos", token, nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestChatUnavailableWithoutStreamer(t *testing.T) {
	srv := newTestServer(t)
	token, _ := login(t, srv.Handler(), "alice", testPassword)

	body, _ := json.Marshal(chatRequest{Question: "what is the hook?"})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, authedRequest(http.MethodPost, "/api/videos/current/chat", token, body))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRateLimitOnStartAnalysis(t *testing.T) {
	srv := newTestServerWithLimits(t, ratelimit.DefaultConfig())
	token, _ := login(t, srv.Handler(), "alice", testPassword)

	body, _ := json.Marshal(startAnalysisRequest{URL: testVideoURL})
	var last int
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		req := authedRequest(http.MethodPost, "/api/analyses", token, body)
		req.RemoteAddr = "9.9.9.9:1234"
		srv.Handler().ServeHTTP(w, req)
		last = w.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last, "the default config allows 6 starts per minute")
}
