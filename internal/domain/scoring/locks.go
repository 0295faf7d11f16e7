package scoring

import "sync"

// teamLocks hands out one mutex per team and forgets it once nobody holds it.
type teamLocks struct {
	mu    sync.Mutex
	locks map[int64]*teamLock
}

type teamLock struct {
	sync.Mutex
	refs int
}

func newTeamLocks() *teamLocks {
	return &teamLocks{locks: make(map[int64]*teamLock)}
}

// lock blocks until the caller owns teamID and returns the release func.
func (t *teamLocks) lock(teamID int64) func() {
	t.mu.Lock()
	l, ok := t.locks[teamID]
	if !ok {
		l = &teamLock{}
		t.locks[teamID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, teamID)
		}
		t.mu.Unlock()
	}
}

func (t *teamLocks) held() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
