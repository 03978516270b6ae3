package analyze

import (
	"fmt"
	"strings"

	"github.com/cliplens/cliplens/internal/pipeline"
	"github.com/cliplens/cliplens/internal/types"
)

// analysisInstructions pins the output contract. The shape mirrors the
// analysis schema so a conforming response validates without coaxing.
const analysisInstructions = `You are a short-form video analyst. Analyze the video below and respond with a single JSON object, no markdown, matching exactly this shape:

{
  "sentiment": "positive" | "neutral" | "negative",
  "structure": {
    "hook": "how the video grabs attention in the first seconds",
    "problem": "the tension or question it sets up",
    "story": "how the body of the video develops",
    "payoff": "the resolution or reveal",
    "cta": "what the viewer is asked to do"
  },
  "topics": ["up to 12 topics"],
  "keywords": ["up to 24 keywords"],
  "summary": "2-3 sentence summary of the video"
}

If a structure element is absent from the video, use an empty string for it. Ground every field in the transcript and metadata; do not invent details.`

// buildAnalysisPrompt assembles the instructions, video context and
// transcript into one prompt.
func buildAnalysisPrompt(req pipeline.AnalyzeRequest) string {
	var sb strings.Builder
	sb.WriteString(analysisInstructions)
	sb.WriteString("\n\n")
	writeVideoContext(&sb, req.Video)
	sb.WriteString("\nTranscript:\n")
	if req.Transcript == "" {
		sb.WriteString("(no speech transcript available; analyze from the metadata above)\n")
	} else {
		sb.WriteString(req.Transcript)
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeVideoContext(sb *strings.Builder, v *types.VideoMetadata) {
	if v == nil {
		return
	}
	sb.WriteString("Video metadata:\n")
	if v.Creator != "" {
		fmt.Fprintf(sb, "- Creator: @%s", v.Creator)
		if v.CreatorName != "" && v.CreatorName != v.Creator {
			fmt.Fprintf(sb, " (%s)", v.CreatorName)
		}
		sb.WriteString("\n")
	}
	if v.Caption != "" {
		fmt.Fprintf(sb, "- Caption: %s\n", v.Caption)
	}
	if len(v.Hashtags) > 0 {
		fmt.Fprintf(sb, "- Hashtags: #%s\n", strings.Join(v.Hashtags, " #"))
	}
	if v.DurationSec > 0 {
		fmt.Fprintf(sb, "- Duration: %d seconds\n", v.DurationSec)
	}
	if v.VideoStats.Plays > 0 || v.VideoStats.Likes > 0 {
		fmt.Fprintf(sb, "- Engagement: %d plays, %d likes, %d comments, %d shares, %d saves\n",
			v.VideoStats.Plays, v.VideoStats.Likes, v.VideoStats.Comments, v.VideoStats.Shares, v.VideoStats.Saves)
	}
	if v.IsAd {
		sb.WriteString("- This video is marked as a paid promotion\n")
	}
}
