package backfill

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonguttman/MasterStat/internal/model"
)

// fakeLog feeds canned samples to DetectGaps in order.
type fakeLog struct {
	samples []model.Sample
	err     error
}

func (f *fakeLog) Scan(fn func(model.Sample)) error {
	if f.err != nil {
		return f.err
	}
	for _, s := range f.samples {
		fn(s)
	}
	return nil
}

func at(base time.Time, offset time.Duration, temp float64) model.Sample {
	return model.Sample{
		Timestamp:      base.Add(offset).Unix(),
		Temp:           model.Float(temp),
		OperatingState: model.StateIdle,
		Mode:           model.ModeHeat,
		OutletSwitch:   model.SwitchOff,
	}
}

func TestDetectGapsEmptyLog(t *testing.T) {
	gaps, err := DetectGaps(&fakeLog{}, StartupMinGap, time.Now())
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestDetectGapsNormalCadence(t *testing.T) {
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.Local)
	log := &fakeLog{samples: []model.Sample{
		at(base, 0, 68),
		at(base, 60*time.Second, 68),
		at(base, 120*time.Second, 68),
	}}

	gaps, err := DetectGaps(log, StartupMinGap, base.Add(130*time.Second))
	require.NoError(t, err)
	assert.Empty(t, gaps, "60s cadence must never register as a gap")
}

func TestDetectGapsThresholdIsExclusive(t *testing.T) {
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.Local)
	log := &fakeLog{samples: []model.Sample{
		at(base, 0, 68),
		at(base, StartupMinGap, 68), // exactly the threshold: not a gap
		at(base, StartupMinGap+StartupMinGap+time.Second, 68), // one past: a gap
	}}

	gaps, err := DetectGaps(log, StartupMinGap, base.Add(StartupMinGap+StartupMinGap+time.Second))
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, base.Add(StartupMinGap).Unix(), gaps[0].Start.Unix())
}

func TestDetectGapsTrailingGapToNow(t *testing.T) {
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.Local)
	log := &fakeLog{samples: []model.Sample{at(base, 0, 68)}}
	now := base.Add(10 * time.Minute)

	gaps, err := DetectGaps(log, RescanMinGap, now)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, base.Unix(), gaps[0].Start.Unix())
	assert.Equal(t, now.Unix(), gaps[0].End.Unix())
	require.NotNil(t, gaps[0].Seed)
	assert.Equal(t, 68.0, *gaps[0].Seed.Temp)
}

func TestDetectGapsFirstRowNeverOpensGap(t *testing.T) {
	// The log starting long ago is not a gap before the first row.
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.Local)
	log := &fakeLog{samples: []model.Sample{
		at(base, 0, 68),
		at(base, 60*time.Second, 68),
	}}

	gaps, err := DetectGaps(log, StartupMinGap, base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestDetectGapsSeedPrefersNumericSample(t *testing.T) {
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.Local)
	stateOnly := model.Sample{
		Timestamp:      base.Add(60 * time.Second).Unix(),
		OperatingState: model.StateHeating,
		Mode:           model.ModeHeat,
		OutletSwitch:   model.SwitchOn,
	}
	log := &fakeLog{samples: []model.Sample{
		at(base, 0, 68),
		stateOnly,
		at(base, 20*time.Minute, 69),
	}}

	gaps, err := DetectGaps(log, StartupMinGap, base.Add(21*time.Minute))
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	require.NotNil(t, gaps[0].Seed)
	assert.NotNil(t, gaps[0].Seed.Temp, "numeric-bearing sample must win over a state-only one")
	assert.Equal(t, 68.0, *gaps[0].Seed.Temp)
}

func TestDetectGapsStateOnlySeedWhenNothingBetter(t *testing.T) {
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.Local)
	stateOnly := model.Sample{
		Timestamp:      base.Unix(),
		OperatingState: model.StateHeating,
		Mode:           model.ModeHeat,
		OutletSwitch:   model.SwitchOn,
	}
	log := &fakeLog{samples: []model.Sample{stateOnly}}

	gaps, err := DetectGaps(log, StartupMinGap, base.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	require.NotNil(t, gaps[0].Seed)
	assert.Equal(t, model.StateHeating, gaps[0].Seed.OperatingState)
	assert.Nil(t, gaps[0].Seed.Temp)
}

func TestDetectGapsScanError(t *testing.T) {
	log := &fakeLog{err: assert.AnError}
	_, err := DetectGaps(log, StartupMinGap, time.Now())
	assert.Error(t, err)
}
