package auth

import (
	"context"
	"sync"
)

// Store persists token records.
type Store interface {
	Save(ctx context.Context, record *Record) (string, error)
	Load(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
	Delete(ctx context.Context, id string) error
}

var (
	storeMu         sync.RWMutex
	registeredStore Store
)

// RegisterTokenStore sets the global token store used by the authentication helpers.
func RegisterTokenStore(store Store) {
	storeMu.Lock()
	registeredStore = store
	storeMu.Unlock()
}

// GetTokenStore returns the globally registered token store, creating a
// FileTokenStore without base directory on first use.
func GetTokenStore() Store {
	storeMu.RLock()
	s := registeredStore
	storeMu.RUnlock()
	if s != nil {
		return s
	}
	storeMu.Lock()
	defer storeMu.Unlock()
	if registeredStore == nil {
		registeredStore = NewFileTokenStore("")
	}
	return registeredStore
}
