package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hot-rank/internal/core"
	"hot-rank/internal/features/monitor/models"
)

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func sampleRecord(monitorID, key string, occurrences ...time.Time) models.TopicStateRecord {
	record := models.TopicStateRecord{
		MonitorID:   monitorID,
		Key:         key,
		Title:       key,
		Sources:     []string{"weibo"},
		FirstSeenAt: epoch,
		LastSeenAt:  epoch,
		SeenCount:   len(occurrences),
		MatchReason: []string{"kw:AI"},
	}
	for _, o := range occurrences {
		record.Occurrences = append(record.Occurrences, o.UnixMilli())
	}
	return record
}

func TestStateStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewStateStore(path, core.NewDiscardLogger())
	store.Put(sampleRecord("ai", "title:a", epoch))
	store.Put(sampleRecord("ai", "title:b", epoch, epoch.Add(time.Minute)))
	store.Put(sampleRecord("chips", "title:a", epoch))

	if err := store.Save(epoch); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := NewStateStore(path, core.NewDiscardLogger())
	if err := loaded.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Count("ai") != 2 || loaded.Count("chips") != 1 {
		t.Fatalf("counts = %d, %d", loaded.Count("ai"), loaded.Count("chips"))
	}
	record, ok := loaded.Get("ai", "title:b")
	if !ok || len(record.Occurrences) != 2 || !record.FirstSeenAt.Equal(epoch) {
		t.Errorf("unexpected record: %+v", record)
	}

	var file struct {
		Version int               `json:"version"`
		Topics  []json.RawMessage `json:"topics"`
	}
	data, _ := os.ReadFile(path)
	if err := json.Unmarshal(data, &file); err != nil || file.Version != 1 || len(file.Topics) != 3 {
		t.Errorf("unexpected state file: %s", data)
	}
}

func TestStateStoreLoadTolerance(t *testing.T) {
	dir := t.TempDir()

	missing := NewStateStore(filepath.Join(dir, "missing.json"), core.NewDiscardLogger())
	if err := missing.Load(context.Background()); err != nil {
		t.Errorf("missing file should load empty, got %v", err)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewStateStore(corrupt, core.NewDiscardLogger())
	store.Put(sampleRecord("ai", "title:stale", epoch))
	if err := store.Load(context.Background()); err != nil {
		t.Errorf("corrupt file should load empty, got %v", err)
	}
	if store.Count("ai") != 0 {
		t.Error("corrupt file should replace memory with an empty state")
	}

	partial := filepath.Join(dir, "partial.json")
	doc := `{"version": 1, "topics": [
		{"monitorId": "ai", "key": "title:ok", "title": "ok", "sources": ["weibo"], "occurrences": [3, 1, 2], "seenCount": 3},
		{"monitorId": "ai", "title": "no key"},
		{"key": "title:no-monitor"},
		{"monitorId": "ai", "key": "title:bad", "seenCount": "three"},
		42
	]}`
	if err := os.WriteFile(partial, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	store = NewStateStore(partial, core.NewDiscardLogger())
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if store.Count("ai") != 1 {
		t.Fatalf("expected only the valid record, got %d", store.Count("ai"))
	}
	record, _ := store.Get("ai", "title:ok")
	if record.Occurrences[0] != 1 || record.Occurrences[2] != 3 {
		t.Errorf("occurrences should be sorted on load: %v", record.Occurrences)
	}
}

func TestStateStoreListPrunes(t *testing.T) {
	store := NewStateStore("", core.NewDiscardLogger())
	store.Put(sampleRecord("ai", "title:a", epoch, epoch.Add(time.Hour), epoch.Add(2*time.Hour)))

	records := store.List("ai", epoch.Add(time.Hour))
	if len(records) != 1 || len(records[0].Occurrences) != 2 {
		t.Fatalf("unexpected records: %+v", records)
	}

	// pruning sticks
	record, _ := store.Get("ai", "title:a")
	if len(record.Occurrences) != 2 {
		t.Errorf("stored occurrences = %v", record.Occurrences)
	}

	if err := store.Save(epoch); err != nil {
		t.Errorf("memory-only save should be a no-op, got %v", err)
	}
}
