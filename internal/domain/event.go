package domain

import "encoding/json"

// Recognized event sources. The source tag doubles as the broker routing key.
const (
	SourceSecurityIncident    = "security.incident"
	SourceVictimizationSurvey = "survey.victimization"
	SourceMigrationCase       = "migration.case"
)

// Sources lists every recognized source in binding order.
var Sources = []string{
	SourceSecurityIncident,
	SourceVictimizationSurvey,
	SourceMigrationCase,
}

// Regions is the closed set of valid envelope regions.
var Regions = []string{"norte", "sur", "centro", "este", "oeste"}

// Event is the wire envelope shared by every source kind. Payload stays raw;
// its shape depends on Source and is checked by the schema registry.
type Event struct {
	EventID       string          `json:"event_id"`
	Timestamp     string          `json:"timestamp"`
	Region        string          `json:"region"`
	Source        string          `json:"source"`
	SchemaVersion string          `json:"schema_version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// WindowSummary is published once per closed window to analytics.window.
type WindowSummary struct {
	Type           string                    `json:"type"`
	WindowStartISO string                    `json:"window_start_iso"`
	WindowEndISO   string                    `json:"window_end_iso"`
	TotalProcessed int                       `json:"total_processed"`
	StatsByRegion  map[string]map[string]int `json:"stats_by_region"`
}

// Metric is published once per region per closed window to metrics.daily.
// InputEventIDs records lineage back to the events the counters summarize.
type Metric struct {
	MetricID      string         `json:"metric_id"`
	Date          string         `json:"date"`
	Region        string         `json:"region"`
	RunID         string         `json:"run_id"`
	Metrics       map[string]int `json:"metrics"`
	InputEventIDs []string       `json:"input_event_ids"`
}

// DLQMessage wraps a rejected delivery for the dead-letter exchange.
// OriginalEvent holds the parsed object when the body was JSON, otherwise
// the raw body as a string.
type DLQMessage struct {
	OriginalEvent any    `json:"original_event"`
	Error         string `json:"error"`
	FailedAt      string `json:"failed_at"`
	Service       string `json:"service"`
}

// ValidRegion reports whether r belongs to the region enum.
func ValidRegion(r string) bool {
	for _, v := range Regions {
		if v == r {
			return true
		}
	}
	return false
}
