package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()

	sqlite, err := Open(BackendSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	bolt, err := Open(BackendBolt, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]KV{"sqlite": sqlite, "bolt": bolt}
}

func TestKV_GetMissing(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			value, err := kv.Get("nope")
			require.NoError(t, err)
			assert.Nil(t, value)
		})
	}
}

func TestKV_PutAndOverwrite(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, kv.Put("ns:key", []byte(`[1,2]`)))
			value, err := kv.Get("ns:key")
			require.NoError(t, err)
			assert.Equal(t, `[1,2]`, string(value))

			require.NoError(t, kv.Put("ns:key", []byte(`[3]`)))
			value, err = kv.Get("ns:key")
			require.NoError(t, err)
			assert.Equal(t, `[3]`, string(value))
		})
	}
}

func TestBolt_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	kv, err := NewBolt(path)
	require.NoError(t, err)
	require.NoError(t, kv.Put("k", []byte("v")))
	require.NoError(t, kv.Close())

	kv, err = NewBolt(path)
	require.NoError(t, err)
	defer kv.Close()

	value, err := kv.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(value))
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("postgres", "x")
	assert.Error(t, err)
}
