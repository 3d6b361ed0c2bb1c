package jobs

import "sync"

// jobLocks hands out one mutex per job id so the orchestrator worker and the
// stall monitor can never interleave a read-modify-write on the same job.
// Locks are never removed; job ids are low-volume and the map stays small.
type jobLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newJobLocks() *jobLocks {
	return &jobLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// For returns the mutex guarding the given job id
func (l *jobLocks) For(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[id] = lock
	}
	return lock
}
