package setmgr_test

import (
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hlldsvc/hlld/pkg/hllconfig"
	"github.com/hlldsvc/hlld/pkg/hset"
	"github.com/hlldsvc/hlld/pkg/setmgr"
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

func testGlobal(t *testing.T) hllconfig.GlobalConfig {
	t.Helper()

	g := hllconfig.DefaultGlobalConfig()
	g.DataDir = t.TempDir()
	g.UseMmap = true
	g.DefaultEPS = 0.02

	return g
}

func newManager(t *testing.T) *setmgr.Manager {
	t.Helper()

	mgr, err := setmgr.New(testGlobal(t), setmgr.WithHash(testHash))
	require.NoError(t, err)

	return mgr
}

func key(s string) []byte { return []byte(s) }

func TestManager_Create_RejectsDuplicateActive(t *testing.T) {
	t.Parallel()

	mgr := newManager(t)

	require.NoError(t, mgr.Create("foo", nil))
	require.ErrorIs(t, mgr.Create("foo", nil), setmgr.ErrAlreadyExists)
}

func TestManager_Create_BlocksWhileDeleteInProgress(t *testing.T) {
	t.Parallel()

	mgr := newManager(t)

	require.NoError(t, mgr.Create("x", nil))
	require.NoError(t, mgr.Drop("x"))

	require.ErrorIs(t, mgr.Create("x", nil), setmgr.ErrDeleteInProgress)

	mgr.Vacuum()

	require.NoError(t, mgr.Create("x", nil))
}

func TestManager_Drop_NotFound(t *testing.T) {
	t.Parallel()

	mgr := newManager(t)

	require.ErrorIs(t, mgr.Drop("missing"), setmgr.ErrNotFound)
}

func TestManager_Clear_RequiresProxied(t *testing.T) {
	t.Parallel()

	mgr := newManager(t)

	require.NoError(t, mgr.Create("r", nil))
	require.NoError(t, mgr.AddKeys("r", [][]byte{key("a")}))

	require.ErrorIs(t, mgr.Clear("r"), setmgr.ErrNotProxied)

	require.NoError(t, mgr.Unmap("r"))
	require.NoError(t, mgr.Clear("r"))
}

func TestManager_AddKeys_ThenSize(t *testing.T) {
	t.Parallel()

	mgr := newManager(t)

	require.NoError(t, mgr.Create("foo", nil))
	require.NoError(t, mgr.AddKeys("foo", [][]byte{key("a"), key("b"), key("c")}))

	size, err := mgr.SetSize("foo")
	require.NoError(t, err)
	require.Equal(t, uint64(3), size)
}

func TestManager_List_RespectsPrefixAndActiveOnly(t *testing.T) {
	t.Parallel()

	mgr := newManager(t)

	require.NoError(t, mgr.Create("app.one", nil))
	require.NoError(t, mgr.Create("app.two", nil))
	require.NoError(t, mgr.Create("other", nil))
	require.NoError(t, mgr.Drop("app.two"))

	got := mgr.List("app.")
	require.ElementsMatch(t, []string{"app.one"}, got)

	all := mgr.List("")
	require.ElementsMatch(t, []string{"app.one", "other"}, all)
}

func TestManager_List_SeesUnmergedCreateDelta(t *testing.T) {
	t.Parallel()

	mgr := newManager(t)

	require.NoError(t, mgr.Create("fresh", nil))

	// No vacuum has run yet: "fresh" only exists as an unmerged delta.
	require.ElementsMatch(t, []string{"fresh"}, mgr.List(""))
}

func TestManager_ListCold_SkipsHotAndProxied(t *testing.T) {
	t.Parallel()

	mgr := newManager(t)

	require.NoError(t, mgr.Create("hot", nil))
	require.NoError(t, mgr.Create("cold", nil))
	mgr.Vacuum()

	require.NoError(t, mgr.AddKeys("hot", [][]byte{key("x")}))
	require.NoError(t, mgr.AddKeys("cold", [][]byte{key("y")}))

	// First sweep clears both hot flags (both were touched by Create/AddKeys)
	// without reporting anything resident-but-untouched yet.
	_ = mgr.ListCold()

	require.NoError(t, mgr.AddKeys("hot", [][]byte{key("z")}))

	got := mgr.ListCold()
	require.Equal(t, []string{"cold"}, got)
}

func TestManager_Cb_InvokesWithUnderlyingSet(t *testing.T) {
	t.Parallel()

	mgr := newManager(t)

	require.NoError(t, mgr.Create("foo", nil))
	require.NoError(t, mgr.AddKeys("foo", [][]byte{key("a")}))

	var sawName string
	err := mgr.Cb("foo", func(s *hset.Set) error {
		sawName = s.Name()
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "foo", sawName)
}

func TestManager_Unmap_ThenSizeFromPersistedConfig(t *testing.T) {
	t.Parallel()

	mgr := newManager(t)

	require.NoError(t, mgr.Create("m", nil))
	require.NoError(t, mgr.AddKeys("m", [][]byte{key("a"), key("b"), key("c")}))
	require.NoError(t, mgr.Unmap("m"))

	size, err := mgr.SetSize("m")
	require.NoError(t, err)
	require.Equal(t, uint64(3), size)
}

func TestManager_BootDiscovery_FindsExistingSets(t *testing.T) {
	t.Parallel()

	global := testGlobal(t)

	mgr1, err := setmgr.New(global, setmgr.WithHash(testHash))
	require.NoError(t, err)

	require.NoError(t, mgr1.Create("p", nil))
	require.NoError(t, mgr1.AddKeys("p", [][]byte{key("a"), key("b")}))
	require.NoError(t, mgr1.Flush("p"))

	mgr2, err := setmgr.New(global, setmgr.WithHash(testHash))
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"p"}, mgr2.List(""))

	size, err := mgr2.SetSize("p")
	require.NoError(t, err)
	require.Equal(t, uint64(2), size)
}
