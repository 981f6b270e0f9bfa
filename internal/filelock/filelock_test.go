package filelock

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "draft.json")

	_, err := ReadFile(path)
	require.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, WriteFile(path, []byte(`{"a":1}`)))
	data, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	require.NoError(t, WriteFile(path, []byte(`{"a":2}`)))
	data, err = ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	require.NoError(t, Remove(path))
	require.NoError(t, Remove(path))
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestConcurrentWritesLeaveWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	payloads := []string{`{"v":"aaaaaaaa"}`, `{"v":"bbbbbbbb"}`, `{"v":"cccccccc"}`}

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			assert.NoError(t, WriteFile(path, []byte(p)))
		}(payloads[i%len(payloads)])
	}
	wg.Wait()

	data, err := ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, payloads, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temp file left behind")
	}
}
