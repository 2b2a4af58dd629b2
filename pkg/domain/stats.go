package domain

// EngineStats provides statistics about the match engine
type EngineStats struct {
	ConnectedClients int     `json:"connected_clients"`
	ActiveMatches    int     `json:"active_matches"`
	ActiveSessions   int     `json:"active_sessions"`
	QueuedJobs       int     `json:"queued_jobs"`
	JobsProcessed    int64   `json:"jobs_processed"`
	JobsFailed       int64   `json:"jobs_failed"`
	MessagesSent     int64   `json:"messages_sent"`
	MessagesReceived int64   `json:"messages_received"`
	Maintenance      bool    `json:"maintenance"`
	Uptime           float64 `json:"uptime_seconds"`
}
