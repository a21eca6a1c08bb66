package tokenstore

import "sync"

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps session state in memory only. It is the fallback when
// file storage is unavailable and the fake used throughout the tests.
type MemoryStore struct {
	state State
	lock  sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (ms *MemoryStore) Load() (*State, error) {
	ms.lock.RLock()
	defer ms.lock.RUnlock()

	state := ms.state
	return &state, nil
}

func (ms *MemoryStore) Save(state *State) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()

	ms.state = *state
	return nil
}

func (ms *MemoryStore) Clear() error {
	ms.lock.Lock()
	defer ms.lock.Unlock()

	ms.state = State{}
	return nil
}
