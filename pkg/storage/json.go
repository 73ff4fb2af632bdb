package storage

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Defaults for the backing file.
const (
	DefaultPermission          os.FileMode = 0o644
	DefaultDirectoryPermission os.FileMode = 0o755
)

// Option configures a JSONStore.
type Option func(*JSONStore)

// WithPermission sets the mode of the saved file.
func WithPermission(perm os.FileMode) Option {
	return func(s *JSONStore) {
		if perm != 0 {
			s.perm = perm
		}
	}
}

// WithDirectoryPermission sets the mode of directories created by Save.
func WithDirectoryPermission(perm os.FileMode) Option {
	return func(s *JSONStore) {
		if perm != 0 {
			s.dirPerm = perm
		}
	}
}

// WithPrettyPrint toggles indented output. On by default.
func WithPrettyPrint(pretty bool) Option {
	return func(s *JSONStore) {
		s.pretty = pretty
	}
}

// JSONStore is a key/value map persisted as a JSON object.
type JSONStore struct {
	path    string
	perm    os.FileMode
	dirPerm os.FileMode
	pretty  bool

	// rename is os.Rename outside tests.
	rename func(oldpath, newpath string) error

	mu   sync.Mutex
	data map[string]any
}

// NewJSONStore returns an empty store backed by path. Nothing is read until
// Load.
func NewJSONStore(path string, opts ...Option) *JSONStore {
	s := &JSONStore{
		path:    path,
		perm:    DefaultPermission,
		dirPerm: DefaultDirectoryPermission,
		pretty:  true,
		rename:  os.Rename,
		data:    make(map[string]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file path.
func (s *JSONStore) Path() string { return s.path }

// Load replaces the in-memory map with the contents of the backing file. A
// missing file loads as an empty store.
func (s *JSONStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.data = make(map[string]any)
		return nil
	}
	if err != nil {
		return &LoadError{Path: s.path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return &LoadError{Path: s.path, Err: ErrNotRegularFile}
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return &LoadError{Path: s.path, Err: err}
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			err = ErrNotObject
		}
		return &LoadError{Path: s.path, Err: err}
	}
	if data == nil {
		data = make(map[string]any)
	}
	s.data = data
	return nil
}

// Save writes the map to the backing file, replacing it atomically.
func (s *JSONStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw []byte
	var err error
	if s.pretty {
		raw, err = json.MarshalIndent(s.data, "", "  ")
	} else {
		raw, err = json.Marshal(s.data)
	}
	if err != nil {
		return &SaveError{Path: s.path, Err: err}
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(tmp), s.dirPerm); err != nil {
		return &SaveError{Path: s.path, Err: err}
	}
	if err := writeFile(tmp, raw, s.perm); err != nil {
		_ = os.Remove(tmp)
		return &SaveError{Path: s.path, Err: err}
	}
	if err := s.rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return &SaveError{Path: s.path, Err: err}
	}
	return nil
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Put sets key to value. The value must be JSON-serializable by the time
// Save runs.
func (s *JSONStore) Put(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Get returns the value stored under key.
func (s *JSONStore) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

// Fetch returns the value stored under key, or def when there is none.
func (s *JSONStore) Fetch(key string, def any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return v
	}
	return def
}

// Delete removes key and returns the value it held.
func (s *JSONStore) Delete(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	delete(s.data, key)
	return v, ok
}

// Len returns the number of keys.
func (s *JSONStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// FetchInt returns the integer stored under key, or def when the key is
// missing or does not hold a number. Numbers read back by Load are float64.
func (s *JSONStore) FetchInt(key string, def int64) int64 {
	switch v := s.Fetch(key, nil).(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	}
	return def
}
