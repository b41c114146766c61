// Package backfill finds discontinuities in the durable sample log and
// reconstructs the missing stretch by replaying coarser-grained device
// events from the remote history source.
package backfill

import (
	"time"

	"github.com/jonguttman/MasterStat/internal/metrics"
	"github.com/jonguttman/MasterStat/internal/model"
)

// Gap thresholds. The tighter value is used for the startup reconciliation
// pass; the looser one for exploratory re-scans.
const (
	StartupMinGap = 120 * time.Second
	RescanMinGap  = 300 * time.Second
)

// Gap is a detected discontinuity in the durable log. Seed is the last
// known sample before the gap, used to initialize event replay; it is nil
// when the log held nothing usable before the gap.
type Gap struct {
	Start time.Time
	End   time.Time
	Seed  *model.Sample
}

// Duration returns the span of the gap.
func (g Gap) Duration() time.Duration { return g.End.Sub(g.Start) }

// LogScanner streams the durable record in file order. Implemented by
// store.Log; malformed rows are already dropped by the scanner.
type LogScanner interface {
	Scan(fn func(model.Sample)) error
}

// DetectGaps scans the durable log for discontinuities larger than minGap.
// The first row can never open a gap, and an empty log yields none. When
// the newest row is itself older than minGap, one trailing gap up to now is
// emitted. Seeds prefer the most recent sample carrying a numeric reading;
// a state-only sample seeds a gap only when nothing better preceded it.
func DetectGaps(log LogScanner, minGap time.Duration, now time.Time) ([]Gap, error) {
	var (
		gaps     []Gap
		prev     *model.Sample
		lastRich *model.Sample
	)

	seed := func() *model.Sample {
		if prev == nil {
			return nil
		}
		if prev.HasNumeric() || lastRich == nil {
			s := *prev
			return &s
		}
		s := *lastRich
		return &s
	}

	err := log.Scan(func(s model.Sample) {
		if prev != nil && s.Time().Sub(prev.Time()) > minGap {
			gaps = append(gaps, Gap{Start: prev.Time(), End: s.Time(), Seed: seed()})
		}
		if s.HasNumeric() {
			rich := s
			lastRich = &rich
		}
		cur := s
		prev = &cur
	})
	if err != nil {
		return nil, err
	}

	if prev != nil && now.Sub(prev.Time()) > minGap {
		gaps = append(gaps, Gap{Start: prev.Time(), End: now, Seed: seed()})
	}

	metrics.GapsDetected.Add(float64(len(gaps)))
	return gaps, nil
}
