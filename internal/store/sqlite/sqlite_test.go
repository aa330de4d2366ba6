package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexmem/cortex/internal/store"
	"github.com/cortexmem/cortex/internal/store/storetest"
)

func makeStore(t *testing.T) store.Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "cortex.db"))
	require.NoError(t, err)
	return s
}

func TestSqliteStoreCompliance(t *testing.T) {
	storetest.Run(t, makeStore)
}

func TestSqliteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cortex.db")
	s, err := New(path)
	require.NoError(t, err)
	storetest.Seed(t, s, "persist", "u1", 0.5)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.Memories().Get(t.Context(), "persist")
	require.NoError(t, err)
	require.Equal(t, "content of persist", got.Content)
	require.Equal(t, []float32{1, 0, 0}, got.MeanVec)
}
