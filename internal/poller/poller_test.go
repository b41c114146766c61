package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonguttman/MasterStat/internal/model"
)

// fakeRecorder collects appended samples and signals each arrival.
type fakeRecorder struct {
	mu      sync.Mutex
	samples []model.Sample
	arrived chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{arrived: make(chan struct{}, 16)}
}

func (f *fakeRecorder) Append(s model.Sample) {
	f.mu.Lock()
	f.samples = append(f.samples, s)
	f.mu.Unlock()
	f.arrived <- struct{}{}
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples)
}

func TestPollerRecordsImmediatelyOnStart(t *testing.T) {
	sampler := &fakeSampler{status: &model.Status{Temperature: model.Float(68)}}
	recorder := newFakeRecorder()
	p := New(sampler, recorder, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-recorder.arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("no sample recorded at startup")
	}
	cancel()
	<-done

	require.Equal(t, 1, recorder.count())
	recorder.mu.Lock()
	s := recorder.samples[0]
	recorder.mu.Unlock()
	assert.Equal(t, 68.0, *s.Temp)
}

func TestPollerSkipsFailedCycles(t *testing.T) {
	sampler := &fakeSampler{err: errors.New("device offline")}
	recorder := newFakeRecorder()
	p := New(sampler, recorder, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	// Let several cycles fail; the loop must keep running and record nothing.
	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	assert.Zero(t, recorder.count())
	assert.Greater(t, sampler.calls, 1, "the loop must survive failed cycles")
}

func TestPollerInvokesSampleHook(t *testing.T) {
	sampler := &fakeSampler{status: &model.Status{Temperature: model.Float(68)}}
	recorder := newFakeRecorder()
	p := New(sampler, recorder, time.Hour, zap.NewNop())

	hooked := make(chan model.Sample, 1)
	p.OnSample(func(s model.Sample) { hooked <- s })

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	defer cancel()

	select {
	case s := <-hooked:
		assert.Equal(t, 68.0, *s.Temp)
	case <-time.After(2 * time.Second):
		t.Fatal("sample hook not invoked")
	}
}
