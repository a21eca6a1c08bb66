package tokenstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	interrors "github.com/paystream/go-session-client/internal/errors"
)

const stateFileName = "session.json"

var _ Store = (*FileStore)(nil)

// FileStore persists session state as a JSON document in a data folder,
// the desktop-console analogue of browser local storage.
type FileStore struct {
	path string
	lock sync.Mutex
}

// NewFileStore creates a store rooted at dataFolder. The folder is created
// lazily on the first Save.
func NewFileStore(dataFolder string) *FileStore {
	return &FileStore{path: filepath.Join(dataFolder, stateFileName)}
}

func (fs *FileStore) Load() (*State, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	data, err := os.ReadFile(fs.path)
	if err != nil {
		// Missing or unreadable state means "no session".
		return &State{}, nil
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		// A corrupt document is indistinguishable from no session.
		return &State{}, nil
	}
	return &state, nil
}

func (fs *FileStore) Save(state *State) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		return interrors.Wrapf(err, "marshal session state")
	}
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return interrors.Wrapf(interrors.ErrStorageUnavailable, "create data folder: %v", err)
	}
	if err := os.WriteFile(fs.path, data, 0o600); err != nil {
		return interrors.Wrapf(interrors.ErrStorageUnavailable, "write session state: %v", err)
	}
	return nil
}

func (fs *FileStore) Clear() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return interrors.Wrapf(interrors.ErrStorageUnavailable, "remove session state: %v", err)
	}
	return nil
}
