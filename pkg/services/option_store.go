package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/zwinlu/tidb-dashboard/pkg/models"
)

// QueryOptionsStorageKey is the fixed key under which the session-scoped
// option store persists the filter selection.
const QueryOptionsStorageKey = "statement.query_options"

// OptionStore holds the current filter selection for one statement view.
// Implementations are chosen at controller construction; no other
// component knows which one is active.
type OptionStore interface {
	// Get returns the current filter selection.
	Get() models.QueryOptions
	// Set replaces the filter selection wholesale.
	Set(opts models.QueryOptions) error
}

// memoryOptionStore is the call-scoped implementation: the value lives
// only for the lifetime of the owning controller.
type memoryOptionStore struct {
	opts models.QueryOptions
}

// NewMemoryOptionStore creates a call-scoped option store seeded with
// the given defaults.
func NewMemoryOptionStore(defaults models.QueryOptions) OptionStore {
	return &memoryOptionStore{opts: defaults}
}

func (s *memoryOptionStore) Get() models.QueryOptions {
	return s.opts
}

func (s *memoryOptionStore) Set(opts models.QueryOptions) error {
	s.opts = opts
	return nil
}

var _ OptionStore = (*memoryOptionStore)(nil)

// Storage is the durable keyed slot behind the session-scoped option
// store. Writes are observable by every reader of the same key; the last
// writer wins, with no coordination beyond that.
type Storage interface {
	Load(key string) ([]byte, bool)
	Store(key string, value []byte) error
}

type processStorage struct {
	mu     sync.Mutex
	values map[string][]byte
}

func (s *processStorage) Load(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok
}

func (s *processStorage) Store(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

var _ Storage = (*processStorage)(nil)

// NewProcessStorage creates an isolated in-memory storage. Tests use
// this to avoid sharing state through the process-wide instance.
func NewProcessStorage() Storage {
	return &processStorage{values: make(map[string][]byte)}
}

var sharedStorage = &processStorage{values: make(map[string][]byte)}

// ProcessStorage returns the process-wide storage shared by every
// session-scoped option store in this process.
func ProcessStorage() Storage {
	return sharedStorage
}

// sessionOptionStore persists the filter selection in a Storage slot
// under QueryOptionsStorageKey, so the selection survives controller
// reconstruction and is shared across instances.
type sessionOptionStore struct {
	storage  Storage
	defaults models.QueryOptions
}

// NewSessionOptionStore creates a session-scoped option store backed by
// the given storage. If the slot is empty it is seeded with defaults.
func NewSessionOptionStore(storage Storage, defaults models.QueryOptions) (OptionStore, error) {
	store := &sessionOptionStore{storage: storage, defaults: defaults}
	if _, ok := storage.Load(QueryOptionsStorageKey); !ok {
		if err := store.Set(defaults); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (s *sessionOptionStore) Get() models.QueryOptions {
	raw, ok := s.storage.Load(QueryOptionsStorageKey)
	if !ok {
		return s.defaults
	}
	var opts models.QueryOptions
	if err := json.Unmarshal(raw, &opts); err != nil {
		// A corrupt slot falls back to defaults rather than failing the
		// whole view.
		return s.defaults
	}
	return opts
}

func (s *sessionOptionStore) Set(opts models.QueryOptions) error {
	raw, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("failed to serialize query options: %w", err)
	}
	if err := s.storage.Store(QueryOptionsStorageKey, raw); err != nil {
		return fmt.Errorf("failed to persist query options: %w", err)
	}
	return nil
}

var _ OptionStore = (*sessionOptionStore)(nil)

// NewOptionStore selects the option store implementation: session-scoped
// persistence through the process-wide storage when persist is true,
// call-scoped otherwise.
func NewOptionStore(persist bool, defaults models.QueryOptions) (OptionStore, error) {
	if persist {
		return NewSessionOptionStore(ProcessStorage(), defaults)
	}
	return NewMemoryOptionStore(defaults), nil
}
