package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONStore_MissingFileLoadsEmpty(t *testing.T) {
	s := NewJSONStore(filepath.Join(t.TempDir(), "absent.json"))
	s.Put("stale", true)

	require.NoError(t, s.Load())
	assert.Zero(t, s.Len())
}

func TestJSONStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.json")
	s := NewJSONStore(path)
	s.Put("count", float64(42))
	s.Put("name", "syslog")
	s.Put("enabled", true)
	s.Put("tags", []any{"a", "b"})
	s.Put("pos", map[string]any{"inode": float64(7), "offset": float64(1024)})
	require.NoError(t, s.Save())

	fresh := NewJSONStore(path)
	require.NoError(t, fresh.Load())
	assert.Equal(t, s.data, fresh.data)

	_, err := os.Stat(path + ".tmp")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestJSONStore_PrettyPrint(t *testing.T) {
	dir := t.TempDir()

	pretty := NewJSONStore(filepath.Join(dir, "pretty.json"))
	pretty.Put("k", "v")
	require.NoError(t, pretty.Save())
	raw, err := os.ReadFile(pretty.Path())
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"k\": \"v\"\n}", string(raw))

	compact := NewJSONStore(filepath.Join(dir, "compact.json"), WithPrettyPrint(false))
	compact.Put("k", "v")
	require.NoError(t, compact.Save())
	raw, err = os.ReadFile(compact.Path())
	require.NoError(t, err)
	assert.Equal(t, `{"k":"v"}`, string(raw))
}

func TestJSONStore_Permissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	path := filepath.Join(dir, "s.json")
	s := NewJSONStore(path, WithPermission(0o600), WithDirectoryPermission(0o700))
	require.NoError(t, s.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	info, err = os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestJSONStore_LoadErrors(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	tests := []struct {
		name string
		path string
		is   error
	}{
		{name: "directory", path: dir, is: ErrNotRegularFile},
		{name: "malformed", path: write("bad.json", "{not json")},
		{name: "array", path: write("array.json", "[1,2]"), is: ErrNotObject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewJSONStore(tt.path).Load()
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tt.path, le.Path)
			assert.Contains(t, err.Error(), tt.path)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestJSONStore_LoadNullIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "null.json")
	require.NoError(t, os.WriteFile(path, []byte("null"), 0o644))

	s := NewJSONStore(path)
	require.NoError(t, s.Load())
	s.Put("k", "v")
	assert.Equal(t, 1, s.Len())
}

func TestJSONStore_FailedRenameKeepsOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewJSONStore(path)
	s.Put("generation", float64(1))
	require.NoError(t, s.Save())
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	crash := errors.New("power loss")
	s.rename = func(string, string) error { return crash }
	s.Put("generation", float64(2))
	s.Put("extra", strings.Repeat("x", 4096))

	err = s.Save()
	var se *SaveError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, path, se.Path)
	assert.ErrorIs(t, err, crash)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestJSONStore_UnserializableValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := NewJSONStore(path)
	s.Put("fn", func() {})

	var se *SaveError
	require.ErrorAs(t, s.Save(), &se)
	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestJSONStore_SaveIntoUnwritableLocation(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	s := NewJSONStore(filepath.Join(blocker, "state.json"))
	var se *SaveError
	assert.ErrorAs(t, s.Save(), &se)
}

func TestJSONStore_Accessors(t *testing.T) {
	s := NewJSONStore(filepath.Join(t.TempDir(), "s.json"))

	_, ok := s.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, "fallback", s.Fetch("missing", "fallback"))

	s.Put("k", "v")
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, "v", s.Fetch("k", "fallback"))

	old, ok := s.Delete("k")
	assert.True(t, ok)
	assert.Equal(t, "v", old)
	_, ok = s.Delete("k")
	assert.False(t, ok)
}

func TestJSONStore_FetchInt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	s := NewJSONStore(path)
	s.Put("n", int64(12))
	s.Put("s", "twelve")
	assert.Equal(t, int64(12), s.FetchInt("n", 0))
	assert.Equal(t, int64(-1), s.FetchInt("s", -1))
	assert.Equal(t, int64(5), s.FetchInt("missing", 5))

	require.NoError(t, s.Save())
	fresh := NewJSONStore(path)
	require.NoError(t, fresh.Load())
	assert.Equal(t, int64(12), fresh.FetchInt("n", 0))
}

func TestJSONStore_ConcurrentAccess(t *testing.T) {
	s := NewJSONStore(filepath.Join(t.TempDir(), "s.json"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Put(string(rune('a'+i)), float64(j))
				_ = s.Fetch("a", nil)
				if j%10 == 0 {
					assert.NoError(t, s.Save())
				}
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, s.Len())
}
