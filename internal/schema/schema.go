// Package schema holds the declarative validation rules for the event
// envelope and the per-source payload shapes. Rules are evaluated at
// validation time against decoded JSON, so unknown fields pass through
// untouched.
package schema

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/xshift007/lab3-distri/internal/domain"
)

var (
	// Canonical lowercase-hex UUID v4.
	uuidV4Regex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	// Second-precision UTC instant, e.g. 2025-01-15T10:30:00Z.
	timestampRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`)
)

var baseRequired = []string{"event_id", "timestamp", "region", "source", "schema_version", "payload"}

// PayloadValidator checks the decoded payload object of one source kind.
type PayloadValidator func(payload map[string]any) error

// Registry maps each recognized source to its payload validator.
type Registry struct {
	payloads map[string]PayloadValidator
}

// NewRegistry builds the registry with the three recognized sources.
func NewRegistry() *Registry {
	return &Registry{
		payloads: map[string]PayloadValidator{
			domain.SourceSecurityIncident:    validateSecurityIncident,
			domain.SourceVictimizationSurvey: validateVictimizationSurvey,
			domain.SourceMigrationCase:       validateMigrationCase,
		},
	}
}

// Validate applies the base envelope rules and then the per-source payload
// rules. It returns nil when the event is valid; otherwise a human-readable
// error describing the first rule that failed.
func (r *Registry) Validate(event map[string]any) error {
	if err := validateBase(event); err != nil {
		return err
	}

	source, _ := event["source"].(string)
	validator, ok := r.payloads[source]
	if !ok {
		return domain.NewUnknownSource(source)
	}

	payload, _ := event["payload"].(map[string]any)
	if err := validator(payload); err != nil {
		return domain.NewInvalidInput(fmt.Sprintf("schema error: %v", err))
	}
	return nil
}

func validateBase(event map[string]any) error {
	for _, field := range baseRequired {
		if _, ok := event[field]; !ok {
			return domain.NewInvalidInput(fmt.Sprintf("missing required field %q", field))
		}
	}

	eventID, ok := event["event_id"].(string)
	if !ok {
		return domain.NewInvalidInput("event_id must be a string")
	}
	if !uuidV4Regex.MatchString(eventID) {
		return domain.NewInvalidInput(fmt.Sprintf("event_id %q is not a canonical UUID v4", eventID))
	}

	ts, ok := event["timestamp"].(string)
	if !ok {
		return domain.NewInvalidInput("timestamp must be a string")
	}
	if !timestampRegex.MatchString(ts) {
		return domain.NewInvalidInput(fmt.Sprintf("timestamp %q does not match YYYY-MM-DDTHH:MM:SSZ", ts))
	}

	region, ok := event["region"].(string)
	if !ok {
		return domain.NewInvalidInput("region must be a string")
	}
	if !domain.ValidRegion(region) {
		return domain.NewInvalidInput(fmt.Sprintf("region %q is not one of %v", region, domain.Regions))
	}

	if _, ok := event["source"].(string); !ok {
		return domain.NewInvalidInput("source must be a string")
	}
	if _, ok := event["schema_version"].(string); !ok {
		return domain.NewInvalidInput("schema_version must be a string")
	}
	if _, ok := event["payload"].(map[string]any); !ok {
		return domain.NewInvalidInput("payload must be an object")
	}
	return nil
}

func validateSecurityIncident(payload map[string]any) error {
	if err := requireFields(payload, "crime_type", "severity", "location", "reported_by"); err != nil {
		return err
	}
	if err := requireString(payload, "crime_type"); err != nil {
		return err
	}
	if err := requireString(payload, "severity"); err != nil {
		return err
	}
	location, ok := payload["location"].(map[string]any)
	if !ok {
		return fmt.Errorf("field location must be an object")
	}
	if err := requireFields(location, "latitude", "longitude"); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	return requireString(payload, "reported_by")
}

func validateVictimizationSurvey(payload map[string]any) error {
	if err := requireFields(payload, "survey_id", "respondent_age", "victimization_type", "reported"); err != nil {
		return err
	}
	if err := requireInteger(payload, "respondent_age"); err != nil {
		return err
	}
	if _, ok := payload["reported"].(bool); !ok {
		return fmt.Errorf("field reported must be a boolean")
	}
	return nil
}

func validateMigrationCase(payload map[string]any) error {
	if err := requireFields(payload, "case_id", "case_type", "status", "origin_country"); err != nil {
		return err
	}
	return requireString(payload, "status")
}

func requireFields(obj map[string]any, fields ...string) error {
	for _, f := range fields {
		if _, ok := obj[f]; !ok {
			return fmt.Errorf("missing required field %q", f)
		}
	}
	return nil
}

func requireString(obj map[string]any, field string) error {
	if _, ok := obj[field].(string); !ok {
		return fmt.Errorf("field %s must be a string", field)
	}
	return nil
}

// requireInteger accepts JSON numbers with no fractional part. Booleans and
// numeric strings are rejected.
func requireInteger(obj map[string]any, field string) error {
	switch v := obj[field].(type) {
	case float64:
		if v != float64(int64(v)) {
			return fmt.Errorf("field %s must be an integer", field)
		}
	case json.Number:
		if _, err := v.Int64(); err != nil {
			return fmt.Errorf("field %s must be an integer", field)
		}
	default:
		return fmt.Errorf("field %s must be an integer", field)
	}
	return nil
}
