package tokenstore

import (
	"sync"

	"github.com/rs/zerolog"
)

var _ Store = (*Persistent)(nil)

// Persistent keeps the authoritative session state in memory and mirrors it
// to a FileStore on a best-effort basis. Disk failures are logged and
// swallowed, degrading the session to memory-only for the current run.
type Persistent struct {
	mem    *MemoryStore
	disk   *FileStore
	logger zerolog.Logger

	loadOnce sync.Once
}

// NewPersistent creates a store whose state survives restarts when the data
// folder is writable and silently does not when it is not.
func NewPersistent(dataFolder string, logger zerolog.Logger) *Persistent {
	return &Persistent{
		mem:    NewMemoryStore(),
		disk:   NewFileStore(dataFolder),
		logger: logger.With().Str("component", "tokenstore").Logger(),
	}
}

func (p *Persistent) Load() (*State, error) {
	p.loadOnce.Do(func() {
		state, _ := p.disk.Load()
		_ = p.mem.Save(state)
	})
	return p.mem.Load()
}

func (p *Persistent) Save(state *State) error {
	// A save before the first Load supersedes whatever is on disk.
	p.loadOnce.Do(func() {})
	if err := p.mem.Save(state); err != nil {
		return err
	}
	if err := p.disk.Save(state); err != nil {
		p.logger.Warn().Err(err).Msg("session state not persisted, continuing in memory")
	}
	return nil
}

func (p *Persistent) Clear() error {
	p.loadOnce.Do(func() {})
	if err := p.mem.Clear(); err != nil {
		return err
	}
	if err := p.disk.Clear(); err != nil {
		p.logger.Warn().Err(err).Msg("persisted session state not cleared")
	}
	return nil
}
