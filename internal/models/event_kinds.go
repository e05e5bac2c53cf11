package models

// Observation levels understood by the backend.
const (
	LevelDebug   = "DEBUG"
	LevelDefault = "DEFAULT"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// Names of records the pipeline emits besides the per-hook events.
const (
	EventNameConversationSummary = "conversation-summary"
	ScoreNameCompletion          = "completion_score"
	// ScoreNamePrefixEfficiency prefixes efficiency metric score names,
	// e.g. "efficiency.tool_success_rate".
	ScoreNamePrefixEfficiency = "efficiency."
)

