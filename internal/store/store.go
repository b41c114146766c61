// Package store owns the sample history: the in-memory ordered sequence,
// the durable JSON snapshot used to reload it on startup, and the durable
// append-only CSV log used by gap detection.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonguttman/MasterStat/internal/metrics"
	"github.com/jonguttman/MasterStat/internal/model"
)

const (
	snapshotFile = "dashboard_history.json"
	csvLogFile   = "dashboard_log.csv"
)

// Store holds the sample history. All mutation and reads serialize on one
// mutex; readers only ever see copies. Durable write failures are swallowed:
// the in-memory sequence stays authoritative for the process lifetime and
// the CSV log recovers individual points after a crash.
type Store struct {
	mu        sync.Mutex
	samples   []model.Sample
	retention time.Duration

	snapshotPath string
	csv          *Log

	logger *zap.Logger
	now    func() time.Time
}

// Open loads the history from the durable snapshot in dir and prepares the
// CSV log. A missing or unreadable snapshot is not fatal; the store starts
// empty and the log remains the recovery source.
func Open(dir string, retention time.Duration, logger *zap.Logger) (*Store, error) {
	csvLog, err := OpenLog(filepath.Join(dir, csvLogFile))
	if err != nil {
		return nil, err
	}

	s := &Store{
		retention:    retention,
		snapshotPath: filepath.Join(dir, snapshotFile),
		csv:          csvLog,
		logger:       logger,
		now:          time.Now,
	}
	s.loadSnapshot()
	return s, nil
}

// Log exposes the durable append-only record for gap scanning.
func (s *Store) Log() *Log { return s.csv }

// Append adds one live sample to the in-memory sequence and the CSV log,
// prunes aged entries and flushes the snapshot, all inside one critical
// section so readers never observe a partially updated sequence. The
// sequence is not re-sorted here: a clock anomaly may leave a single
// out-of-order point, and no correction is attempted for that case.
func (s *Store) Append(sample model.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, sample)
	s.pruneLocked()
	s.flushLocked()

	if err := s.csv.Append(sample); err != nil {
		s.logger.Warn("csv append failed", zap.Error(err))
	}
	metrics.SamplesAppended.WithLabelValues("live").Inc()
	metrics.HistorySize.Set(float64(len(s.samples)))
}

// MergeBackfill inserts a batch of synthesized samples, restores global
// timestamp order with a full sort, prunes, and rewrites both durable files.
// Runs rarely (startup reconciliation), so the O(n log n) sort is fine.
func (s *Store) MergeBackfill(samples []model.Sample) {
	if len(samples) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, samples...)
	sort.SliceStable(s.samples, func(i, j int) bool {
		return s.samples[i].Timestamp < s.samples[j].Timestamp
	})
	s.pruneLocked()
	s.flushLocked()

	if err := s.csv.Rewrite(s.samples); err != nil {
		s.logger.Warn("csv rewrite after backfill failed", zap.Error(err))
	}
	metrics.SamplesAppended.WithLabelValues("backfill").Add(float64(len(samples)))
	metrics.HistorySize.Set(float64(len(s.samples)))
}

// Snapshot returns a copy of the current sequence for readers.
func (s *Store) Snapshot() []model.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Len returns the number of samples currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// Prune drops samples older than the retention window.
func (s *Store) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	metrics.HistorySize.Set(float64(len(s.samples)))
}

func (s *Store) pruneLocked() {
	cutoff := s.now().Add(-s.retention).Unix()
	kept := s.samples[:0]
	for _, sample := range s.samples {
		if sample.Timestamp > cutoff {
			kept = append(kept, sample)
		}
	}
	s.samples = kept
}

// loadSnapshot reads the durable JSON snapshot. Any failure leaves the
// store empty and is logged at warn level only.
func (s *Store) loadSnapshot() {
	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("could not read history snapshot", zap.Error(err))
		}
		return
	}
	var samples []model.Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		s.logger.Warn("could not parse history snapshot", zap.Error(err))
		return
	}
	s.samples = samples
	s.pruneLocked()
	s.logger.Info("loaded history snapshot",
		zap.Int("samples", len(s.samples)),
		zap.String("path", s.snapshotPath),
	)
	metrics.HistorySize.Set(float64(len(s.samples)))
}

// flushLocked writes the full JSON snapshot, best effort.
func (s *Store) flushLocked() {
	data, err := json.Marshal(s.samples)
	if err != nil {
		s.logger.Warn("could not marshal history snapshot", zap.Error(err))
		metrics.SnapshotWriteFailures.Inc()
		return
	}
	if err := os.WriteFile(s.snapshotPath, data, 0o644); err != nil {
		s.logger.Warn("could not write history snapshot", zap.Error(err))
		metrics.SnapshotWriteFailures.Inc()
	}
}
