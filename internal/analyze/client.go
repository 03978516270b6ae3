// Package analyze runs streaming structured analysis of a video transcript
// through Gemini, surfacing partial results as they arrive.
package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/cliplens/cliplens/internal/pipeline"
	"github.com/cliplens/cliplens/internal/types"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Client wraps the Gemini API for analysis and follow-up chat.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini-backed analyzer.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{client: client, model: model}, nil
}

// Close releases resources held by the client
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// AnalyzeStream streams the structured analysis. After every chunk it tries
// to decode the accumulated text into a partial analysis and emits it; the
// final decoded object is returned along with the raw JSON it came from.
func (c *Client) AnalyzeStream(ctx context.Context, req pipeline.AnalyzeRequest, emit func(types.Analysis)) (types.Analysis, []byte, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(0.2)
	model.ResponseMIMEType = "application/json"

	iter := model.GenerateContentStream(ctx, genai.Text(buildAnalysisPrompt(req)))

	var acc strings.Builder
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return types.Analysis{}, nil, fmt.Errorf("analysis stream failed: %w", err)
		}
		chunk, ok := chunkText(resp)
		if !ok {
			continue
		}
		acc.WriteString(chunk)
		if partial, ok := DecodePartialAnalysis(acc.String()); ok && emit != nil {
			emit(partial)
		}
	}

	raw := ExtractJSONObject(acc.String())
	if raw == "" {
		return types.Analysis{}, nil, fmt.Errorf("model response contained no JSON object")
	}
	var final types.Analysis
	if err := json.Unmarshal([]byte(raw), &final); err != nil {
		return types.Analysis{}, []byte(raw), fmt.Errorf("failed to decode final analysis: %w", err)
	}
	return final, []byte(raw), nil
}

// chunkText extracts the text parts of one streamed response. Responses
// without text (safety blocks, empty candidates) are skipped, not fatal.
func chunkText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", false
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", false
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, ""), true
}
