package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"church-roster/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKV_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	kv, err := OpenFileKV(path)
	require.NoError(t, err)
	_, err = kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	cps := NewCheckpointStore(kv, time.Hour)
	require.NoError(t, cps.Save(ctx, domain.Checkpoint{Hash: "abc", RowCount: 3, Timestamp: time.Now().UTC(), RunID: "run-1"}))

	reopened, err := OpenFileKV(path)
	require.NoError(t, err)
	cp, err := NewCheckpointStore(reopened, time.Hour).Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "abc", cp.Hash)
	assert.Equal(t, 3, cp.RowCount)

	keys, err := reopened.ScanKeys(ctx, "roster:checkpoint:run:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"roster:checkpoint:run:run-1"}, keys)
}

func TestFileKV_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))
	_, err := OpenFileKV(path)
	assert.Error(t, err)
}
