package scoring

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestTeamLocks(t *testing.T) {
	locks := newTeamLocks()

	var (
		wg     sync.WaitGroup
		inside atomic.Int32
		peak   atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(7)
			n := inside.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Errorf("expected one holder at a time, saw %d", peak.Load())
	}
	if held := locks.held(); held != 0 {
		t.Errorf("expected released locks to be forgotten, %d remain", held)
	}

	a := locks.lock(1)
	b := locks.lock(2) // a different team must not block
	if locks.held() != 2 {
		t.Errorf("expected two held locks, got %d", locks.held())
	}
	a()
	b()
}
