package models

import "time"

// ActivityType names the scheduler job an activity entry belongs to.
type ActivityType string

const (
	ActivityTypePost     ActivityType = "post"
	ActivityTypeMentions ActivityType = "mentions"
	ActivityTypeMetrics  ActivityType = "metrics"
	ActivityTypeManual   ActivityType = "manual"
)

// ActivityLog is one finished job run as shown in the dashboard activity feed.
type ActivityLog struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	ActivityType ActivityType           `json:"activity_type"`
	RunID        string                 `json:"run_id"`
	Outcome      string                 `json:"outcome"`
	Message      string                 `json:"message"`
	Details      map[string]interface{} `json:"details,omitempty"`
	DurationMs   *int                   `json:"duration_ms,omitempty"`
}
