package services

import (
	"math"
	"testing"
	"time"

	"hot-rank/internal/features/monitor/models"
)

func TestFreshnessScore(t *testing.T) {
	halfLife := 6 * time.Hour

	if got := freshnessScore(0, halfLife); got != 1 {
		t.Errorf("age 0 = %v", got)
	}
	if got := freshnessScore(-time.Minute, halfLife); got != 1 {
		t.Errorf("negative age = %v", got)
	}
	if got := freshnessScore(halfLife, halfLife); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("one half-life = %v", got)
	}
	if got := freshnessScore(time.Hour, 0); got != 0 {
		t.Errorf("zero half-life = %v", got)
	}

	prev := math.Inf(1)
	for age := time.Duration(0); age <= 48*time.Hour; age += 30 * time.Minute {
		score := Score(4, age, halfLife)
		if score > prev {
			t.Fatalf("score rose from %v to %v at age %s", prev, score, age)
		}
		prev = score
	}
}

func TestScore(t *testing.T) {
	got := Score(3, 0, time.Hour)
	want := math.Log(4) + 1
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Score = %v, want %v", got, want)
	}
}

func TestPruneOccurrences(t *testing.T) {
	occurrences := []int64{
		epoch.Add(-25 * time.Hour).UnixMilli(),
		epoch.Add(-24 * time.Hour).UnixMilli(),
		epoch.Add(-time.Hour).UnixMilli(),
	}
	got := pruneOccurrences(occurrences, epoch.Add(-24*time.Hour))
	if len(got) != 2 || got[0] != occurrences[1] {
		t.Errorf("pruned = %v", got)
	}
	if got := pruneOccurrences(nil, epoch); len(got) != 0 {
		t.Errorf("nil input = %v", got)
	}
}

func TestRankTopics(t *testing.T) {
	scoring := models.Scoring{PersistenceWindowHours: 24, PersistenceThreshold: 2, FreshnessHalfLifeMinutes: 60}
	records := []models.TopicStateRecord{
		sampleRecord("ai", "title:once", epoch),
		sampleRecord("ai", "title:twice", epoch, epoch),
		sampleRecord("ai", "title:thrice", epoch, epoch, epoch),
	}
	records[2].Sources = []string{"weibo", "retired"}

	topics := rankTopics(records, scoring, epoch, 2, 10, func(id string) bool { return id == "weibo" })
	if len(topics) != 2 || topics[0].Key != "title:thrice" || topics[1].Key != "title:twice" {
		t.Fatalf("unexpected ranking: %+v", topics)
	}
	if len(topics[0].Sources) != 1 || topics[0].Last24hSeenCount != 3 {
		t.Errorf("unexpected topic: %+v", topics[0])
	}

	if topics := rankTopics(records, scoring, epoch, 1, 1, nil); len(topics) != 1 {
		t.Errorf("limit not applied: %d", len(topics))
	}
}
