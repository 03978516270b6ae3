package types

import "strings"

// Sentiment classifies the overall emotional tone of a video.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Caps on list-valued analysis fields. Streamed partials and final results
// are both clamped to these.
const (
	MaxTopics   = 12
	MaxKeywords = 24
)

// Structure breaks a short-form video down into its narrative beats.
// Fields default to empty strings until the analyzer fills them.
type Structure struct {
	Hook    string `json:"hook"`
	Problem string `json:"problem"`
	Story   string `json:"story"`
	Payoff  string `json:"payoff"`
	CTA     string `json:"cta"`
}

// Analysis is the structured result of content analysis. During streaming it
// is a partially-populated snapshot; consumers must treat zero values as
// "not yet known", never as negative findings.
type Analysis struct {
	Sentiment Sentiment `json:"sentiment,omitempty"`
	Structure Structure `json:"structure"`
	Topics    []string  `json:"topics"`
	Keywords  []string  `json:"keywords"`
	Summary   string    `json:"summary"`
}

// Normalize applies schema defaults and caps: nil lists become empty, list
// lengths are clamped, and unrecognized sentiment values are cleared back to
// unknown. It is applied to every streamed partial before it is published.
func (a *Analysis) Normalize() {
	switch Sentiment(strings.ToLower(strings.TrimSpace(string(a.Sentiment)))) {
	case SentimentPositive:
		a.Sentiment = SentimentPositive
	case SentimentNeutral:
		a.Sentiment = SentimentNeutral
	case SentimentNegative:
		a.Sentiment = SentimentNegative
	default:
		a.Sentiment = ""
	}
	if a.Topics == nil {
		a.Topics = []string{}
	}
	if len(a.Topics) > MaxTopics {
		a.Topics = a.Topics[:MaxTopics]
	}
	if a.Keywords == nil {
		a.Keywords = []string{}
	}
	if len(a.Keywords) > MaxKeywords {
		a.Keywords = a.Keywords[:MaxKeywords]
	}
}
