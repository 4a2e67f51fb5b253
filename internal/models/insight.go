package models

// ContentPatterns are simple statistics over the text of top-performing posts.
type ContentPatterns struct {
	SampleSize      int     `json:"sample_size"`
	EmojiPercent    float64 `json:"emoji_percent"`
	MentionPercent  float64 `json:"mention_percent"`
	HashtagPercent  float64 `json:"hashtag_percent"`
	QuestionPercent float64 `json:"question_percent"`
	AverageLength   float64 `json:"average_length"`
}

// RankedPost is a post with its engagement score.
type RankedPost struct {
	PostWithMetrics
	Score float64 `json:"score"`
}

// Insight is derived, advisory feedback computed from the engagement store.
type Insight struct {
	RecentCount       int             `json:"recent_count"`
	AverageEngagement float64         `json:"average_engagement"`
	TopPosts          []RankedPost    `json:"top_posts"`
	Patterns          ContentPatterns `json:"patterns"`
}
