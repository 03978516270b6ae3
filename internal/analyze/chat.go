package analyze

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"

	"github.com/cliplens/cliplens/internal/pipeline"
	"github.com/cliplens/cliplens/internal/types"
)

// ChatMessage is one prior turn of a follow-up conversation.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatContext is everything a follow-up question is grounded in.
type ChatContext struct {
	Video        *types.VideoMetadata
	Transcript   string
	AnalysisJSON []byte
	History      []ChatMessage
}

// ChatStream answers a follow-up question about an analyzed video, emitting
// text deltas as they stream. The full reply is returned once the stream
// ends.
func (c *Client) ChatStream(ctx context.Context, cc ChatContext, question string, emit func(delta string)) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("question is required")
	}

	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0.7)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(buildChatSystemPrompt(cc))},
	}

	cs := model.StartChat()
	for _, m := range cc.History {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	iter := cs.SendMessageStream(ctx, genai.Text(question))
	var full strings.Builder
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return full.String(), fmt.Errorf("chat stream failed: %w", err)
		}
		chunk, ok := chunkText(resp)
		if !ok {
			continue
		}
		full.WriteString(chunk)
		if emit != nil {
			emit(chunk)
		}
	}
	return full.String(), nil
}

// buildChatSystemPrompt grounds the conversation in the video's transcript,
// metadata and finished analysis.
func buildChatSystemPrompt(cc ChatContext) string {
	var sb strings.Builder
	sb.WriteString("You are answering follow-up questions about one specific short-form video. ")
	sb.WriteString("Ground every answer in the context below. If the context does not contain the answer, say so rather than guessing.\n\n")
	writeVideoContext(&sb, cc.Video)
	if len(cc.AnalysisJSON) > 0 {
		sb.WriteString("\nStructured analysis:\n")
		sb.Write(cc.AnalysisJSON)
		sb.WriteString("\n")
	}
	sb.WriteString("\nTranscript:\n")
	if cc.Transcript == "" {
		sb.WriteString("(no speech transcript available)\n")
	} else {
		sb.WriteString(pipeline.TruncateTranscript(cc.Transcript, pipeline.DefaultMaxTranscriptChars))
		sb.WriteString("\n")
	}
	return sb.String()
}
