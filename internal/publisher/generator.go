// Package publisher generates synthetic events and feeds them into the
// input exchange at a configurable rate.
package publisher

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/xshift007/lab3-distri/internal/domain"
)

var (
	crimeTypes      = []string{"robbery", "assault", "burglary", "vandalism", "fraud"}
	severities      = []string{"low", "medium", "high", "critical"}
	reporters       = []string{"citizen", "patrol", "camera", "anonymous"}
	victimizations  = []string{"theft", "assault", "extortion", "threats", "none"}
	caseTypes       = []string{"asylum", "residence", "work_permit", "family_reunification"}
	caseStatuses    = []string{"open", "in_review", "approved", "rejected"}
	originCountries = []string{"VEN", "HTI", "COL", "PER", "BOL"}
)

// Generator produces one synthetic event per call. Source mix is weighted:
// half security incidents, then surveys, then migration cases.
type Generator struct {
	regions []string
	rng     *rand.Rand
	newUUID func() string
	now     func() time.Time
}

func NewGenerator(regions []string, rng *rand.Rand) *Generator {
	if len(regions) == 0 {
		regions = domain.Regions
	}
	return &Generator{
		regions: regions,
		rng:     rng,
		newUUID: func() string { return uuid.NewString() },
		now:     time.Now,
	}
}

// Next returns the routing key and JSON body of one event.
func (g *Generator) Next() (string, []byte, error) {
	source := g.pickSource()
	return g.event(source)
}

// NextIncident returns a security incident regardless of the weighted mix.
// Burst mode uses it to simulate incident spikes.
func (g *Generator) NextIncident() (string, []byte, error) {
	return g.event(domain.SourceSecurityIncident)
}

func (g *Generator) pickSource() string {
	r := g.rng.Float64()
	switch {
	case r < 0.5:
		return domain.SourceSecurityIncident
	case r < 0.8:
		return domain.SourceVictimizationSurvey
	default:
		return domain.SourceMigrationCase
	}
}

func (g *Generator) event(source string) (string, []byte, error) {
	event := map[string]any{
		"event_id":       g.newUUID(),
		"timestamp":      g.now().UTC().Format("2006-01-02T15:04:05Z"),
		"region":         g.pick(g.regions),
		"source":         source,
		"schema_version": "1.0",
		"payload":        g.payload(source),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s event: %w", source, err)
	}
	return source, body, nil
}

func (g *Generator) payload(source string) map[string]any {
	switch source {
	case domain.SourceSecurityIncident:
		return map[string]any{
			"crime_type": g.pick(crimeTypes),
			"severity":   g.pick(severities),
			"location": map[string]any{
				"latitude":  -33.0 - g.rng.Float64()*5,
				"longitude": -70.0 - g.rng.Float64()*2,
			},
			"reported_by": g.pick(reporters),
		}
	case domain.SourceVictimizationSurvey:
		return map[string]any{
			"survey_id":          fmt.Sprintf("SRV-%06d", g.rng.Intn(1000000)),
			"respondent_age":     18 + g.rng.Intn(60),
			"victimization_type": g.pick(victimizations),
			"reported":           g.rng.Float64() < 0.4,
		}
	default:
		return map[string]any{
			"case_id":        fmt.Sprintf("MIG-%06d", g.rng.Intn(1000000)),
			"case_type":      g.pick(caseTypes),
			"status":         g.pick(caseStatuses),
			"origin_country": g.pick(originCountries),
		}
	}
}

func (g *Generator) pick(options []string) string {
	return options[g.rng.Intn(len(options))]
}
