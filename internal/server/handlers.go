package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cliplens/cliplens/internal/analyze"
	"github.com/cliplens/cliplens/internal/pipeline"
	"github.com/cliplens/cliplens/internal/server/middleware"
)

// startAnalysisRequest submits a video URL for analysis.
type startAnalysisRequest struct {
	URL string `json:"url"`
}

// chatRequest asks a follow-up question about a video.
type chatRequest struct {
	Question string                `json:"question"`
	History  []analyze.ChatMessage `json:"history"`
}

// stateResponse is the envelope every analysis endpoint returns: the raw run
// snapshot plus the derived progress steps the UI renders.
func stateResponse(snap pipeline.Snapshot) map[string]any {
	return map[string]any{
		"state": snap,
		"steps": pipeline.Steps(snap),
	}
}

// handleStartAnalysis kicks off a new pipeline run for the caller's session.
func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req startAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := s.sessions.Get(userID).Start(req.URL)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusAccepted, stateResponse(snap))
}

// handleCurrentAnalysis returns the caller's current run state.
func (s *Server) handleCurrentAnalysis(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	s.jsonResponse(w, http.StatusOK, stateResponse(s.sessions.Get(userID).Snapshot()))
}

// handleResetAnalysis abandons the caller's run and returns to idle.
func (s *Server) handleResetAnalysis(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	s.jsonResponse(w, http.StatusOK, stateResponse(s.sessions.Get(userID).Reset()))
}

// handleAnalysisEvents streams run state over SSE until the client
// disconnects. Every state change produces one "state" event; a ping event
// keeps intermediaries from closing the idle connection.
func (s *Server) handleAnalysisEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	updates, cancel := s.sessions.Get(userID).Subscribe()
	defer cancel()

	ping := time.NewTicker(15 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-updates:
			if err := sse.WriteEvent("state", stateResponse(snap)); err != nil {
				log.Printf("[server] error writing SSE event: %v", err)
				return
			}
		case <-ping.C:
			if err := sse.WriteEvent("ping", map[string]int64{"ts": time.Now().Unix()}); err != nil {
				return
			}
		}
	}
}

// handleListVideos returns the caller's stored videos.
func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.db == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	records, err := s.db.ListVideos(r.Context(), userID, 50)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"videos": records})
}

// handleGetVideo returns one stored video with its analysis.
func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.db == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	videoID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid video ID")
		return
	}

	rec, err := s.db.GetVideo(r.Context(), userID, videoID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to load video")
		return
	}
	if rec == nil {
		s.errorResponse(w, http.StatusNotFound, "video not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, rec)
}

// handleChat streams an answer to a follow-up question about a video. The
// special ID "current" grounds the chat in the caller's active run, which
// includes the transcript; stored videos ground it in their saved metadata
// and analysis.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.chat == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		s.errorResponse(w, http.StatusBadRequest, "question is required")
		return
	}

	cc, ok := s.chatContext(w, r, userID)
	if !ok {
		return
	}
	cc.History = req.History

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	_, err = s.chat.ChatStream(r.Context(), cc, req.Question, func(delta string) {
		if werr := sse.WriteEvent("delta", map[string]string{"text": delta}); werr != nil {
			log.Printf("[server] error writing chat delta: %v", werr)
		}
	})
	if err != nil {
		sse.WriteError(err.Error())
		return
	}
	sse.WriteDone()
}

// chatContext resolves the grounding context for a chat request. It writes
// the error response itself when resolution fails.
func (s *Server) chatContext(w http.ResponseWriter, r *http.Request, userID string) (analyze.ChatContext, bool) {
	id := r.PathValue("id")

	if id == "current" {
		snap := s.sessions.Get(userID).Snapshot()
		if snap.Video == nil {
			s.errorResponse(w, http.StatusNotFound, "no analyzed video in the current session")
			return analyze.ChatContext{}, false
		}
		var analysisJSON []byte
		if snap.Analysis != nil {
			analysisJSON, _ = json.Marshal(snap.Analysis)
		}
		return analyze.ChatContext{
			Video:        snap.Video,
			Transcript:   snap.Transcript,
			AnalysisJSON: analysisJSON,
		}, true
	}

	if s.db == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "persistence is not configured")
		return analyze.ChatContext{}, false
	}
	videoID, err := uuid.Parse(id)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid video ID")
		return analyze.ChatContext{}, false
	}
	rec, err := s.db.GetVideo(r.Context(), userID, videoID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to load video")
		return analyze.ChatContext{}, false
	}
	if rec == nil {
		s.errorResponse(w, http.StatusNotFound, "video not found")
		return analyze.ChatContext{}, false
	}
	return analyze.ChatContext{
		Video:        rec.Metadata,
		AnalysisJSON: rec.Analysis,
	}, true
}
