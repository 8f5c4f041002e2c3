package services

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"hot-rank/internal/features/monitor/models"
)

// Monitor is a validated definition together with its compiled rule
type Monitor struct {
	models.MonitorDefinition
	matcher *Matcher
}

// Match applies the monitor's rule
func (m *Monitor) Match(title, desc string) (bool, []string) {
	return m.matcher.Match(title, desc)
}

// definitionFile mirrors the config document. Pointer fields tell an absent
// value apart from a zero one.
type definitionFile struct {
	Version  int             `json:"version,omitempty"`
	Monitors []rawDefinition `json:"monitors"`
}

type rawDefinition struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Enabled         *bool       `json:"enabled"`
	Sources         []string    `json:"sources"`
	ScheduleMinutes *int        `json:"scheduleMinutes"`
	Rule            *rawRule    `json:"rule"`
	Scoring         *rawScoring `json:"scoring"`
	Outputs         *rawOutputs `json:"outputs"`
}

type rawRule struct {
	IncludeKeywords []string `json:"includeKeywords"`
	ExcludeKeywords []string `json:"excludeKeywords"`
	IncludeRegex    *string  `json:"includeRegex"`
	ExcludeRegex    *string  `json:"excludeRegex"`
	Fields          []string `json:"fields"`
}

type rawScoring struct {
	PersistenceWindowHours   *int `json:"persistenceWindowHours"`
	PersistenceThreshold     *int `json:"persistenceThreshold"`
	FreshnessHalfLifeMinutes *int `json:"freshnessHalfLifeMinutes"`
}

type rawOutputs struct {
	RSS *struct {
		Enabled *bool `json:"enabled"`
		TopN    *int  `json:"topN"`
	} `json:"rss"`
}

// Definition defaults
const (
	DefaultScheduleMinutes          = 5
	DefaultPersistenceWindowHours   = 24
	DefaultPersistenceThreshold     = 5
	DefaultFreshnessHalfLifeMinutes = 360
	DefaultRSSTopN                  = 30
	MaxRSSTopN                      = 200
)

// LoadDefinitions reads and validates the monitor config file
func LoadDefinitions(path string, supported func(string) bool) ([]*Monitor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read monitor config %s: %w", path, err)
	}
	monitors, err := ParseDefinitions(data, supported)
	if err != nil {
		return nil, fmt.Errorf("monitor config %s: %w", path, err)
	}
	return monitors, nil
}

// ParseDefinitions validates a monitor config document, applying defaults.
// Any invalid monitor rejects the whole document.
func ParseDefinitions(data []byte, supported func(string) bool) ([]*Monitor, error) {
	var file definitionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}

	seen := make(map[string]bool, len(file.Monitors))
	monitors := make([]*Monitor, 0, len(file.Monitors))
	for i, raw := range file.Monitors {
		monitor, err := buildMonitor(raw, supported)
		if err != nil {
			return nil, fmt.Errorf("monitors[%d]: %w", i, err)
		}
		if seen[monitor.ID] {
			return nil, fmt.Errorf("monitors[%d]: duplicate id %q", i, monitor.ID)
		}
		seen[monitor.ID] = true
		monitors = append(monitors, monitor)
	}
	return monitors, nil
}

func buildMonitor(raw rawDefinition, supported func(string) bool) (*Monitor, error) {
	def := models.MonitorDefinition{
		ID:              strings.TrimSpace(raw.ID),
		Name:            strings.TrimSpace(raw.Name),
		Enabled:         boolOr(raw.Enabled, true),
		Sources:         raw.Sources,
		ScheduleMinutes: intOr(raw.ScheduleMinutes, DefaultScheduleMinutes),
		Rule:            models.Rule{Fields: []string{models.FieldTitle, models.FieldDesc}},
		Scoring: models.Scoring{
			PersistenceWindowHours:   DefaultPersistenceWindowHours,
			PersistenceThreshold:     DefaultPersistenceThreshold,
			FreshnessHalfLifeMinutes: DefaultFreshnessHalfLifeMinutes,
		},
		Outputs: models.Outputs{RSS: models.RSSOutput{Enabled: true, TopN: DefaultRSSTopN}},
	}

	if def.ID == "" {
		return nil, fmt.Errorf("id is required")
	}
	if def.Name == "" {
		return nil, fmt.Errorf("%s: name is required", def.ID)
	}
	if len(def.Sources) == 0 {
		return nil, fmt.Errorf("%s: at least one source is required", def.ID)
	}
	for _, source := range def.Sources {
		if supported != nil && !supported(source) {
			return nil, fmt.Errorf("%s: unsupported source %q", def.ID, source)
		}
	}
	if def.ScheduleMinutes < 1 {
		return nil, fmt.Errorf("%s: scheduleMinutes must be at least 1", def.ID)
	}

	if r := raw.Rule; r != nil {
		def.Rule.IncludeKeywords = r.IncludeKeywords
		def.Rule.ExcludeKeywords = r.ExcludeKeywords
		if r.IncludeRegex != nil {
			if *r.IncludeRegex == "" {
				return nil, fmt.Errorf("%s: includeRegex must not be empty", def.ID)
			}
			def.Rule.IncludeRegex = *r.IncludeRegex
		}
		if r.ExcludeRegex != nil {
			if *r.ExcludeRegex == "" {
				return nil, fmt.Errorf("%s: excludeRegex must not be empty", def.ID)
			}
			def.Rule.ExcludeRegex = *r.ExcludeRegex
		}
		if r.Fields != nil {
			def.Rule.Fields = r.Fields
		}
	}

	if s := raw.Scoring; s != nil {
		def.Scoring.PersistenceWindowHours = intOr(s.PersistenceWindowHours, DefaultPersistenceWindowHours)
		def.Scoring.PersistenceThreshold = intOr(s.PersistenceThreshold, DefaultPersistenceThreshold)
		def.Scoring.FreshnessHalfLifeMinutes = intOr(s.FreshnessHalfLifeMinutes, DefaultFreshnessHalfLifeMinutes)
	}
	if def.Scoring.PersistenceWindowHours < 1 || def.Scoring.PersistenceThreshold < 1 || def.Scoring.FreshnessHalfLifeMinutes < 1 {
		return nil, fmt.Errorf("%s: scoring values must be at least 1", def.ID)
	}

	if o := raw.Outputs; o != nil && o.RSS != nil {
		def.Outputs.RSS.Enabled = boolOr(o.RSS.Enabled, true)
		def.Outputs.RSS.TopN = intOr(o.RSS.TopN, DefaultRSSTopN)
	}
	if def.Outputs.RSS.TopN < 1 || def.Outputs.RSS.TopN > MaxRSSTopN {
		return nil, fmt.Errorf("%s: outputs.rss.topN must be within 1..%d", def.ID, MaxRSSTopN)
	}

	matcher, err := NewMatcher(def.Rule)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", def.ID, err)
	}

	return &Monitor{MonitorDefinition: def, matcher: matcher}, nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func intOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
