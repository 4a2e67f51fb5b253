package models

import (
	"encoding/json"
	"time"
)

// PostKind distinguishes how a post came to be published.
type PostKind string

const (
	PostKindGenerated PostKind = "generated"
	PostKindManual    PostKind = "manual"
	PostKindReply     PostKind = "reply"
)

// Valid reports whether k is one of the known post kinds.
func (k PostKind) Valid() bool {
	switch k {
	case PostKindGenerated, PostKindManual, PostKindReply:
		return true
	}
	return false
}

// Post is a published piece of content. It is immutable once stored.
type Post struct {
	ID           string          `json:"id"`
	Text         string          `json:"text"`
	CreatedAt    time.Time       `json:"created_at"`
	Kind         PostKind        `json:"kind"`
	TemplateUsed string          `json:"template_used,omitempty"`
	Context      json.RawMessage `json:"context,omitempty"` // serialized generation bundle
}

// MetricSnapshot is one point-in-time capture of a post's engagement counts.
type MetricSnapshot struct {
	ID          int64     `json:"id"`
	PostID      string    `json:"post_id"`
	CollectedAt time.Time `json:"collected_at"`
	Likes       int       `json:"likes"`
	Reshares    int       `json:"reshares"`
	Replies     int       `json:"replies"`
	Impressions int       `json:"impressions"`
}

// PostWithMetrics joins a post with its most recent snapshot. Latest is nil
// when the post has not been metered yet.
type PostWithMetrics struct {
	Post
	Latest *MetricSnapshot `json:"latest,omitempty"`
}

// Analysis is the generation-backed performance assessment of one post.
type Analysis struct {
	ID                  int64     `json:"id"`
	PostID              string    `json:"post_id"`
	CreatedAt           time.Time `json:"created_at"`
	Assessment          string    `json:"assessment"`
	SuccessFactors      []string  `json:"success_factors"`
	ImprovementAreas    []string  `json:"improvement_areas"`
	RecommendedApproach string    `json:"recommended_approach"`
}
