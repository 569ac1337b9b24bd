package pool

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDeleteWaitsForInflightSave(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, zerolog.Nop())

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.beforeWrite = func(id string) {
		if id == "snapshot_0" {
			once.Do(func() { close(started) })
			<-release
		}
	}

	s.Save("snapshot_0", nil, Record{ID: "snapshot_0"})
	<-started
	s.Delete("snapshot_0")
	close(release)
	s.Close()

	_, err := os.Stat(filepath.Join(dir, "snapshot_0"))
	assert.True(t, os.IsNotExist(err), "save must finish before the delete runs")
}

func TestStoreSavesInOrder(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, zerolog.Nop())

	var mu sync.Mutex
	var order []string
	s.beforeWrite = func(id string) {
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
	}
	ids := []string{"snapshot_0", "snapshot_1", "snapshot_2", "snapshot_0"}
	for i, id := range ids {
		s.Save(id, nil, Record{ID: id, GamesPlayed: i})
	}
	s.Close()

	assert.Equal(t, ids, order)
	r, err := ReadRecord(dir, "snapshot_0")
	require.NoError(t, err)
	assert.Equal(t, 3, r.GamesPlayed)
	assert.Empty(t, s.inflight)
}

func TestStoreDropsSavesAfterClose(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, zerolog.Nop())
	s.Close()
	s.Save("snapshot_0", nil, Record{ID: "snapshot_0"})
	assert.False(t, s.Exists("snapshot_0"))
	s.Close()
}

func TestStoreExistsWhileSaveQueued(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, zerolog.Nop())

	started := make(chan struct{})
	release := make(chan struct{})
	s.beforeWrite = func(string) {
		close(started)
		<-release
	}

	s.Save("snapshot_0", nil, Record{ID: "snapshot_0"})
	<-started
	_, err := os.Stat(filepath.Join(dir, "snapshot_0"))
	require.True(t, os.IsNotExist(err))
	assert.True(t, s.Exists("snapshot_0"))
	assert.False(t, s.Exists("snapshot_1"))

	close(release)
	s.Close()
	assert.True(t, s.Exists("snapshot_0"))
}
