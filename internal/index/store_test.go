package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleEntries = []Entry{
	{Index: 0, Content: "premium grace period", Vector: []float32{1, 0, 0}},
	{Index: 1, Content: "waiting period", Vector: []float32{0, 1, 0}},
	{Index: 2, Content: "maternity cover", Vector: []float32{0, 0, 1}},
}

func TestDiskStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewDiskStore(dir)
	require.NoError(t, err)

	exists, err := s.Exists(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.Search(ctx, "abc123", []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "abc123", sampleEntries))

	exists, err = s.Exists(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.FileExists(t, filepath.Join(dir, "abc123.json"))

	res, err := s.Search(ctx, "abc123", []float32{0, 0.9, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "waiting period", res[0].Content)
	assert.Equal(t, "maternity cover", res[1].Content)

	flat, err := s.Load(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, 3, flat.Len())

	chunks, err := s.CountChunks(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, 3, chunks)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDiskStore_InvalidHash(t *testing.T) {
	s, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Exists(context.Background(), "../etc/passwd")
	assert.Error(t, err)
	assert.Error(t, s.Save(context.Background(), "ABC", sampleEntries))
}

func TestDiskStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDiskStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dead.json"), []byte("{"), 0o600))

	_, err = s.Load(context.Background(), "dead")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestDiskStore_ConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewDiskStore(dir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Save(ctx, "beef", sampleEntries))
		}()
	}
	wg.Wait()

	flat, err := s.Load(ctx, "beef")
	require.NoError(t, err)
	assert.Equal(t, 3, flat.Len())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1, "temp files should not be left behind")
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	exists, _ := s.Exists(ctx, "h")
	assert.False(t, exists)

	_, err := s.Search(ctx, "h", []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "h", sampleEntries))
	exists, _ = s.Exists(ctx, "h")
	assert.True(t, exists)

	res, err := s.Search(ctx, "h", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 0, res[0].Index)

	n, _ := s.Count(ctx)
	assert.Equal(t, 1, n)

	chunks, err := s.CountChunks(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, len(sampleEntries), chunks)

	_, err = s.CountChunks(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
