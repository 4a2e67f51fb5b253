package models

import "time"

// Mention is an inbound post addressed to the bot's account.
type Mention struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	AuthorID     string    `json:"author_id"`
	AuthorHandle string    `json:"author_handle"`
	CreatedAt    time.Time `json:"created_at"`
}

// EngagementCounts are the raw public metrics reported by the platform for a post.
type EngagementCounts struct {
	Likes       int `json:"likes"`
	Reshares    int `json:"reshares"`
	Replies     int `json:"replies"`
	Impressions int `json:"impressions"`
}

// PeerPost is a recent post from a tracked peer account.
type PeerPost struct {
	ID        string    `json:"id"`
	Handle    string    `json:"handle"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
