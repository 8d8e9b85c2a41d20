package flashkv

import (
	"os"
	"testing"

	"github.com/Priyanshu23/flashkv/internal/filenames"
	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("k"), []byte("v1")))
	value, found, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", string(value))
}

func TestGetMissingKey(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	_, found, err := db.Get([]byte("missing"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestDeleteMasksValue(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("k"), []byte("v1")))
	require.NoError(t, db.Delete([]byte("k")))

	_, found, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestOverwriteReturnsNewestValue(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("k"), []byte("v1")))
	require.NoError(t, db.Put([]byte("k"), []byte("v2")))

	value, found, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v2", string(value))
}

func TestApplyRejectsEmptyKey(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	err = db.Put([]byte(""), []byte("v"))
	require.ErrorIs(t, err, ErrEmptyKey)
}

func TestOperationsFailAfterClose(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	err = db.Put([]byte("k"), []byte("v"))
	require.ErrorIs(t, err, ErrClosed)

	_, _, err = db.Get([]byte("k"))
	require.ErrorIs(t, err, ErrClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
}

func TestSnapshotIsolatesFromLaterWrites(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("k"), []byte("v1")))
	snap := db.NewSnapshot()
	require.NoError(t, db.Put([]byte("k"), []byte("v2")))

	value, found, err := db.GetSnapshot([]byte("k"), snap)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", string(value))

	value, found, err = db.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v2", string(value))
}

func TestReopenRecoversWrittenData(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	require.NoError(t, db.Put([]byte("b"), []byte("2")))
	require.NoError(t, db.Delete([]byte("a")))
	require.NoError(t, db.Close())

	db2, err := Open(dir)
	require.NoError(t, err)
	defer db2.Close()

	_, found, err := db2.Get([]byte("a"))
	require.NoError(t, err)
	require.False(t, found)

	value, found, err := db2.Get([]byte("b"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2", string(value))
}

func TestMemtableRotationFlushesToLevel0(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithWriteBufferSize(1))
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 50; i++ {
		key := []byte{byte(i)}
		require.NoError(t, db.Put(key, []byte("value-that-is-reasonably-sized")))
	}

	cur := db.vs.Current()
	require.NotEmpty(t, cur.Files[0], "expected the rotation threshold to force at least one level-0 flush")

	for i := 0; i < 50; i++ {
		key := []byte{byte(i)}
		value, found, err := db.Get(key)
		require.NoError(t, err)
		require.True(t, found, "key %d should still be visible after flush", i)
		require.Equal(t, "value-that-is-reasonably-sized", string(value))
	}
}

func TestObsoleteFileSweepLeavesOnlyLiveFiles(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir, WithWriteBufferSize(1))
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 20; i++ {
		require.NoError(t, db.Put([]byte{byte(i)}, []byte("some-value-to-grow-the-memtable")))
	}

	live := db.vs.LiveFiles()
	curLog := db.vs.LogNumber()
	curManifest := db.vs.ManifestFileNumber()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		typ, num, ok := filenames.Parse(e.Name())
		require.True(t, ok, "unrecognised file %s left in the directory", e.Name())
		switch typ {
		case filenames.TypeLog:
			require.Equal(t, curLog, num, "stale WAL %s survived the sweep", e.Name())
		case filenames.TypeManifest:
			require.Equal(t, curManifest, num, "stale manifest %s survived the sweep", e.Name())
		case filenames.TypeTable:
			require.True(t, live[num], "table %s is not referenced by the current version", e.Name())
		case filenames.TypeCurrent:
		default:
			t.Fatalf("unexpected file %s after sweep", e.Name())
		}
	}
}

func TestApplyBatchIsAtomicUnderOneSequenceRange(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	b := NewBatch().Put([]byte("a"), []byte("1")).Put([]byte("b"), []byte("2"))
	require.NoError(t, db.Apply(b))

	for _, kv := range [][2]string{{"a", "1"}, {"b", "2"}} {
		value, found, err := db.Get([]byte(kv[0]))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, kv[1], string(value))
	}
}

func TestZeroOpBatchIsANoOp(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	before := db.vs.LastSequence()
	require.NoError(t, db.Apply(NewBatch()))
	require.Equal(t, before, db.vs.LastSequence())
}
