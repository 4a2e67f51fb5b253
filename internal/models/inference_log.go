package models

import "time"

// InferenceLog is one recorded call to the text-generation API.
type InferenceLog struct {
	ID           int64     `json:"id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Operation    string    `json:"operation"` // prompt template: post, reply, trend_summary, analysis
	TokensUsed   int       `json:"tokens_used"`
	InputTokens  *int      `json:"input_tokens,omitempty"`
	OutputTokens *int      `json:"output_tokens,omitempty"`
	LatencyMs    *int      `json:"latency_ms,omitempty"`
	Status       string    `json:"status"` // success or error
	ErrorMessage *string   `json:"error_message,omitempty"`
	Metadata     string    `json:"metadata,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// InferenceLogStats aggregates recorded generation calls.
type InferenceLogStats struct {
	TotalCalls      int     `json:"total_calls"`
	TotalTokens     int64   `json:"total_tokens"`
	SuccessfulCalls int     `json:"successful_calls"`
	FailedCalls     int     `json:"failed_calls"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
}

// InferenceLogQuery filters the generation log.
type InferenceLogQuery struct {
	Operation string
	Status    string
	Since     *time.Time
	Limit     int
}
