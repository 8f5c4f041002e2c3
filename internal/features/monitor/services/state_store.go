package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"hot-rank/internal/core"
	"hot-rank/internal/features/monitor/models"
)

const stateVersion = 1

type stateFile struct {
	Version   int               `json:"version"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Topics    []json.RawMessage `json:"topics"`
}

// StateStore holds every monitor's topic records, keyed by monitor id and
// topic key. With an empty path it is memory only.
type StateStore struct {
	path   string
	logger *core.Logger

	mu      sync.Mutex
	records map[string]*models.TopicStateRecord

	// serializes file writes so a later snapshot is never overwritten by an older one
	saveMu sync.Mutex
}

// NewStateStore creates an empty store persisted at path
func NewStateStore(path string, logger *core.Logger) *StateStore {
	return &StateStore{
		path:    path,
		logger:  logger,
		records: make(map[string]*models.TopicStateRecord),
	}
}

func recordKey(monitorID, key string) string {
	return monitorID + "::" + key
}

// Load replaces the in-memory records with the file contents. A missing
// file is an empty state; a corrupt file is logged and treated as empty;
// malformed records are skipped.
func (s *StateStore) Load(ctx context.Context) error {
	records := make(map[string]*models.TopicStateRecord)
	defer func() {
		s.mu.Lock()
		s.records = records
		s.mu.Unlock()
	}()

	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read monitor state: %w", err)
	}

	var file stateFile
	if err := json.Unmarshal(data, &file); err != nil {
		s.logger.WithContext(ctx).Warn("monitor_state_invalid", "path", s.path, "error", err)
		return nil
	}

	skipped := 0
	for _, raw := range file.Topics {
		var record models.TopicStateRecord
		if err := json.Unmarshal(raw, &record); err != nil || record.MonitorID == "" || record.Key == "" {
			skipped++
			continue
		}
		sort.Slice(record.Occurrences, func(i, j int) bool { return record.Occurrences[i] < record.Occurrences[j] })
		records[recordKey(record.MonitorID, record.Key)] = &record
	}
	if skipped > 0 {
		s.logger.WithContext(ctx).Warn("monitor_state_records_skipped", "path", s.path, "skipped", skipped)
	}
	return nil
}

// Get returns a copy of one record
func (s *StateStore) Get(monitorID, key string) (models.TopicStateRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[recordKey(monitorID, key)]
	if !ok {
		return models.TopicStateRecord{}, false
	}
	return cloneRecord(record), true
}

// Put stores a copy of record
func (s *StateStore) Put(record models.TopicStateRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := cloneRecord(&record)
	s.records[recordKey(record.MonitorID, record.Key)] = &clone
}

// List returns copies of a monitor's records after pruning their
// occurrences to those at or after cutoff
func (s *StateStore) List(monitorID string, cutoff time.Time) []models.TopicStateRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.TopicStateRecord
	for _, record := range s.records {
		if record.MonitorID != monitorID {
			continue
		}
		record.Occurrences = pruneOccurrences(record.Occurrences, cutoff)
		out = append(out, cloneRecord(record))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Count returns the number of records held for a monitor
func (s *StateStore) Count(monitorID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, record := range s.records {
		if record.MonitorID == monitorID {
			n++
		}
	}
	return n
}

// Save writes every record to the state file atomically
func (s *StateStore) Save(now time.Time) error {
	if s.path == "" {
		return nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	topics := make([]json.RawMessage, 0, len(keys))
	for _, k := range keys {
		raw, err := json.Marshal(s.records[k])
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("encode monitor state record %s: %w", k, err)
		}
		topics = append(topics, raw)
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(stateFile{
		Version:   stateVersion,
		UpdatedAt: now.UTC(),
		Topics:    topics,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode monitor state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create monitor state directory: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write monitor state: %w", err)
	}
	return nil
}

func cloneRecord(r *models.TopicStateRecord) models.TopicStateRecord {
	out := *r
	out.Sources = append([]string{}, r.Sources...)
	out.Occurrences = append([]int64{}, r.Occurrences...)
	out.MatchReason = append([]string{}, r.MatchReason...)
	return out
}
