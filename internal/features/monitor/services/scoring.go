package services

import (
	"math"
	"sort"
	"time"

	"hot-rank/internal/features/monitor/models"
)

// pruneOccurrences drops the epoch-millisecond timestamps before cutoff.
// occurrences must be ascending.
func pruneOccurrences(occurrences []int64, cutoff time.Time) []int64 {
	limit := cutoff.UnixMilli()
	i := sort.Search(len(occurrences), func(i int) bool { return occurrences[i] >= limit })
	return occurrences[i:]
}

func persistenceScore(seen int) float64 {
	return math.Log1p(float64(seen))
}

// freshnessScore is 1 at age zero and halves every halfLife
func freshnessScore(age, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	if halfLife <= 0 {
		return 0
	}
	return math.Exp(-math.Ln2 * float64(age) / float64(halfLife))
}

// Score ranks a topic seen `seen` times within the window and last seen
// `age` ago
func Score(seen int, age, halfLife time.Duration) float64 {
	return persistenceScore(seen) + freshnessScore(age, halfLife)
}

// rankTopics scores records, drops those under minCount and returns the
// top limit by descending score
func rankTopics(records []models.TopicStateRecord, scoring models.Scoring, now time.Time, minCount, limit int, known func(string) bool) []models.MonitorTopic {
	topics := make([]models.MonitorTopic, 0, len(records))
	for _, record := range records {
		seen := len(record.Occurrences)
		if seen < minCount {
			continue
		}

		sources := make([]string, 0, len(record.Sources))
		for _, source := range record.Sources {
			if known == nil || known(source) {
				sources = append(sources, source)
			}
		}

		topics = append(topics, models.MonitorTopic{
			MonitorID:        record.MonitorID,
			Key:              record.Key,
			Title:            record.Title,
			URL:              record.URL,
			MobileURL:        record.MobileURL,
			Desc:             record.Desc,
			Sources:          sources,
			FirstSeenAt:      record.FirstSeenAt,
			LastSeenAt:       record.LastSeenAt,
			SeenCount:        record.SeenCount,
			Last24hSeenCount: seen,
			Score:            Score(seen, now.Sub(record.LastSeenAt), scoring.HalfLife()),
			MatchReason:      record.MatchReason,
		})
	}

	sort.SliceStable(topics, func(i, j int) bool { return topics[i].Score > topics[j].Score })
	if len(topics) > limit {
		topics = topics[:limit]
	}
	return topics
}
