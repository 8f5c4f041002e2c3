package models

import "time"

// Rule fields a monitor can match against
const (
	FieldTitle = "title"
	FieldDesc  = "desc"
)

// Rule selects the items a monitor tracks
type Rule struct {
	IncludeKeywords []string `json:"includeKeywords"`
	ExcludeKeywords []string `json:"excludeKeywords"`
	IncludeRegex    string   `json:"includeRegex,omitempty"`
	ExcludeRegex    string   `json:"excludeRegex,omitempty"`
	Fields          []string `json:"fields"`
}

// Scoring tunes topic ranking
type Scoring struct {
	PersistenceWindowHours   int `json:"persistenceWindowHours"`
	PersistenceThreshold     int `json:"persistenceThreshold"`
	FreshnessHalfLifeMinutes int `json:"freshnessHalfLifeMinutes"`
}

// Window is the persistence window as a duration
func (s Scoring) Window() time.Duration {
	return time.Duration(max(1, s.PersistenceWindowHours)) * time.Hour
}

// HalfLife is the freshness half-life as a duration
func (s Scoring) HalfLife() time.Duration {
	return time.Duration(max(1, s.FreshnessHalfLifeMinutes)) * time.Minute
}

type RSSOutput struct {
	Enabled bool `json:"enabled"`
	TopN    int  `json:"topN"`
}

type Outputs struct {
	RSS RSSOutput `json:"rss"`
}

// MonitorDefinition is one configured monitor
type MonitorDefinition struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Enabled         bool     `json:"enabled"`
	Sources         []string `json:"sources"`
	ScheduleMinutes int      `json:"scheduleMinutes"`
	Rule            Rule     `json:"rule"`
	Scoring         Scoring  `json:"scoring"`
	Outputs         Outputs  `json:"outputs"`
}

// Schedule is the run interval as a duration
func (d MonitorDefinition) Schedule() time.Duration {
	return time.Duration(max(1, d.ScheduleMinutes)) * time.Minute
}

// MonitorSummary is the public view of a definition
type MonitorSummary struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Enabled         bool     `json:"enabled"`
	Sources         []string `json:"sources"`
	ScheduleMinutes int      `json:"scheduleMinutes"`
	Outputs         Outputs  `json:"outputs"`
	Scoring         Scoring  `json:"scoring"`
}

// Summary returns the public view of d
func (d MonitorDefinition) Summary() MonitorSummary {
	return MonitorSummary{
		ID:              d.ID,
		Name:            d.Name,
		Enabled:         d.Enabled,
		Sources:         d.Sources,
		ScheduleMinutes: d.ScheduleMinutes,
		Outputs:         d.Outputs,
		Scoring:         d.Scoring,
	}
}

// TopicStateRecord is the durable history of one topic of one monitor.
// Occurrences are epoch milliseconds in ascending order.
type TopicStateRecord struct {
	MonitorID   string    `json:"monitorId"`
	Key         string    `json:"key"`
	Title       string    `json:"title"`
	URL         string    `json:"url,omitempty"`
	MobileURL   string    `json:"mobileUrl,omitempty"`
	Desc        string    `json:"desc,omitempty"`
	Sources     []string  `json:"sources"`
	FirstSeenAt time.Time `json:"firstSeenAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
	SeenCount   int       `json:"seenCount"`
	Occurrences []int64   `json:"occurrences"`
	MatchReason []string  `json:"matchReason"`
}

// MonitorTopic is a scored topic as served to clients
type MonitorTopic struct {
	MonitorID        string    `json:"monitorId"`
	Key              string    `json:"key"`
	Title            string    `json:"title"`
	URL              string    `json:"url,omitempty"`
	MobileURL        string    `json:"mobileUrl,omitempty"`
	Desc             string    `json:"desc,omitempty"`
	Sources          []string  `json:"sources"`
	FirstSeenAt      time.Time `json:"firstSeenAt"`
	LastSeenAt       time.Time `json:"lastSeenAt"`
	SeenCount        int       `json:"seenCount"`
	Last24hSeenCount int       `json:"last24hSeenCount"`
	Score            float64   `json:"score"`
	MatchReason      []string  `json:"matchReason"`
}

// TopicsResponse is the payload of the topics endpoint
type TopicsResponse struct {
	MonitorID   string         `json:"monitorId"`
	GeneratedAt string         `json:"generatedAt"`
	Items       []MonitorTopic `json:"items"`
}

// ListOptions controls ListTopics. MinCount of zero means the monitor's
// persistence threshold.
type ListOptions struct {
	Limit    int
	Refresh  bool
	MinCount int
}

// DefaultTopicsLimit applies when ListOptions.Limit is not positive
const DefaultTopicsLimit = 30
