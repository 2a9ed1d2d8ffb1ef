package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotEmpty(t *testing.T) {
	s := New()
	snap := s.Snapshot()

	assert.Equal(t, int64(0), snap.TotalRequests)
	assert.Equal(t, int64(0), snap.ErrorCount)
	assert.Equal(t, 0.0, snap.ErrorRate, "error rate must be 0.0 with no requests")
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
}

func TestErrorRate(t *testing.T) {
	s := New()

	for i := 0; i < 4; i++ {
		s.RecordRequest()
	}
	s.RecordError()

	snap := s.Snapshot()
	assert.Equal(t, int64(4), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.ErrorCount)
	assert.Equal(t, 0.25, snap.ErrorRate)
}

func TestErrorRateBounds(t *testing.T) {
	s := New()
	s.RecordRequest()
	s.RecordError()

	snap := s.Snapshot()
	assert.GreaterOrEqual(t, snap.ErrorRate, 0.0)
	assert.LessOrEqual(t, snap.ErrorRate, 1.0)
}

func TestConcurrentIncrements(t *testing.T) {
	s := New()

	const workers = 50
	const perWorker = 100

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				s.RecordRequest()
				if j%2 == 0 {
					s.RecordError()
				}
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, int64(workers*perWorker), snap.TotalRequests)
	assert.Equal(t, int64(workers*perWorker/2), snap.ErrorCount)
}
