package hset_test

import (
	"fmt"
	"hash/fnv"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hlldsvc/hlld/pkg/hllconfig"
	"github.com/hlldsvc/hlld/pkg/hset"
)

// testHash is FNV-1a followed by the murmur3 fmix64 finalizer: plain
// FNV-1a leaves the top bits (the HLL register index) nearly identical
// for short keys such as "a", "b", "c".
func testHash(key []byte) uint64 {
	h := fnv.New64a()
	h.Write(key)

	x := h.Sum64()
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33

	return x
}

func testGlobal(t *testing.T, useMmap bool) hllconfig.GlobalConfig {
	t.Helper()

	g := hllconfig.DefaultGlobalConfig()
	g.DataDir = t.TempDir()
	g.UseMmap = useMmap
	g.DefaultEPS = 0.02

	return g
}

func TestSet_Open_WritesConfigOnFirstInstantiation(t *testing.T) {
	t.Parallel()

	global := testGlobal(t, true)

	_, err := hset.Open(global, "alpha", false)
	require.NoError(t, err)

	_, err = os.Stat(hllconfig.ConfigPath(global.DataDir, "alpha"))
	require.NoError(t, err)
}

func TestSet_AddThenSize(t *testing.T) {
	t.Parallel()

	global := testGlobal(t, true)

	s, err := hset.Open(global, "alpha", false)
	require.NoError(t, err)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Add([]byte(k), testHash))
	}

	size, err := s.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(3), size)
}

func TestSet_FlushCloseReopen_PreservesSize(t *testing.T) {
	t.Parallel()

	global := testGlobal(t, true)

	s, err := hset.Open(global, "restart", false)
	require.NoError(t, err)

	for i := 0; i < 10000; i++ {
		require.NoError(t, s.Add([]byte(fmt.Sprintf("key-%d", i)), testHash))
	}

	before, err := s.Size()
	require.NoError(t, err)

	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	reopened, err := hset.Open(global, "restart", true)
	require.NoError(t, err)

	after, err := reopened.Size()
	require.NoError(t, err)

	require.Equal(t, before, after)

	diff := float64(after) - float64(10000)
	if diff < 0 {
		diff = -diff
	}
	require.Less(t, diff/10000, 0.05)
}

func TestSet_InMemory_UnmapThenSizeReadsPersistedConfig(t *testing.T) {
	t.Parallel()

	global := testGlobal(t, true)
	global.InMemory = true

	s, err := hset.Open(global, "m", false)
	require.NoError(t, err)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Add([]byte(k), testHash))
	}

	require.NoError(t, s.Close()) // "unmap"

	size, err := s.Size()
	require.NoError(t, err)
	require.Equal(t, uint64(3), size)
}

func TestSet_ByteSize_BeforeFaultIn(t *testing.T) {
	t.Parallel()

	global := testGlobal(t, true)

	s, err := hset.Open(global, "proxied", false)
	require.NoError(t, err)

	require.Positive(t, s.ByteSize())
}

func TestSet_Delete_RemovesDirectory(t *testing.T) {
	t.Parallel()

	global := testGlobal(t, true)

	s, err := hset.Open(global, "gone", true)
	require.NoError(t, err)
	require.NoError(t, s.Add([]byte("x"), testHash))

	require.NoError(t, s.Delete())

	_, err = os.Stat(hllconfig.SetDir(global.DataDir, "gone"))
	require.True(t, os.IsNotExist(err))
}

func TestSet_CorruptConfig_FallsBackToDefaults(t *testing.T) {
	t.Parallel()

	global := testGlobal(t, true)
	dir := hllconfig.SetDir(global.DataDir, "bad")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(hllconfig.ConfigPath(global.DataDir, "bad"), []byte("[hlld]\nsize = not-a-number\n"), 0o644))

	s, err := hset.Open(global, "bad", false)
	require.NoError(t, err)
	require.Positive(t, s.ByteSize())
}
