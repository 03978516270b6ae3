// Package types defines the shared data model for video metadata and analysis.
package types

// CreatorStats holds aggregate creator-level counters. Zero values mean the
// scraper did not report the field, not that the count is zero-confirmed.
type CreatorStats struct {
	Followers  int64 `json:"followers"`
	Following  int64 `json:"following"`
	Likes      int64 `json:"likes"`
	VideoCount int64 `json:"video_count"`
}

// VideoStats holds per-video engagement counters.
type VideoStats struct {
	Likes    int64 `json:"likes"`
	Shares   int64 `json:"shares"`
	Comments int64 `json:"comments"`
	Plays    int64 `json:"plays"`
	Saves    int64 `json:"saves"`
}

// VideoMetadata is the fully-defaulted record produced by the metadata
// fetcher. Every field is populated (possibly with its zero value) so that
// downstream code never performs presence checks.
type VideoMetadata struct {
	VideoID      string       `json:"video_id"`
	SourceURL    string       `json:"source_url"`
	VideoURL     string       `json:"video_url"`
	AudioURL     string       `json:"audio_url"`
	Caption      string       `json:"caption"`
	Hashtags     []string     `json:"hashtags"`
	DurationSec  int          `json:"duration_sec"`
	ThumbnailURL string       `json:"thumbnail_url"`
	WebVideoURL  string       `json:"web_video_url"`
	Creator      string       `json:"creator"`
	CreatorName  string       `json:"creator_name"`
	AvatarURL    string       `json:"avatar_url"`
	CreatorStats CreatorStats `json:"creator_stats"`
	VideoStats   VideoStats   `json:"video_stats"`
	CreatedAt    string       `json:"created_at"`
	IsAd         bool         `json:"is_ad"`
}

// Normalize fills nil slices so the record serializes with explicit empty
// values rather than nulls.
func (m *VideoMetadata) Normalize() {
	if m.Hashtags == nil {
		m.Hashtags = []string{}
	}
}

// HasPlayableMedia reports whether the fetcher yielded a downloadable media
// URL. A metadata record without one cannot be transcribed or analyzed.
func (m *VideoMetadata) HasPlayableMedia() bool {
	return m.VideoURL != ""
}
