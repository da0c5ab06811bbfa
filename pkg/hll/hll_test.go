package hll_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hlldsvc/hlld/pkg/bitmap"
	"github.com/hlldsvc/hlld/pkg/hll"
)

func newSketch(t *testing.T, p uint8) *hll.HLL {
	t.Helper()

	bm, err := bitmap.Open(bitmap.Options{Mode: bitmap.Anonymous, Len: hll.BytesForPrecision(p)})
	require.NoError(t, err)
	t.Cleanup(func() { bm.Close() })

	h, err := hll.New(bm, p)
	require.NoError(t, err)

	return h
}

func TestHLL_RegisterRoundTrip_ThroughReopen(t *testing.T) {
	t.Parallel()

	const p = 10

	bm, err := bitmap.Open(bitmap.Options{Mode: bitmap.Anonymous, Len: hll.BytesForPrecision(p)})
	require.NoError(t, err)
	defer bm.Close()

	h, err := hll.New(bm, p)
	require.NoError(t, err)

	for i := 0; i < 5000; i++ {
		h.Add(uint64(i) * 0x9E3779B97F4A7C15)
	}

	before := h.Estimate()

	reloaded, err := hll.Load(bm, p)
	require.NoError(t, err)
	require.Equal(t, before, reloaded.Estimate())
}

func TestHLL_Estimate_WithinErrorBound(t *testing.T) {
	t.Parallel()

	const p = 14
	const n = 100000

	h := newSketch(t, p)

	hash := uint64(0xcbf29ce484222325)
	for i := 0; i < n; i++ {
		hash ^= uint64(i)
		hash *= 0x100000001b3
		h.Add(hash)
	}

	est := h.Estimate()

	errRate, err := hll.ErrorForPrecision(p)
	require.NoError(t, err)

	tolerance := errRate * 6 * float64(n) // generous multiple against one sample draw
	diff := math.Abs(float64(est) - float64(n))

	require.Lessf(t, diff, tolerance, "estimate %d too far from actual %d (tolerance %.0f)", est, n, tolerance)
}

func TestHLL_Add_IsIdempotentForSameHash(t *testing.T) {
	t.Parallel()

	h := newSketch(t, 10)

	h.Add(123456789)
	first := h.Estimate()

	h.Add(123456789)
	h.Add(123456789)

	require.Equal(t, first, h.Estimate())
}

func TestHLL_New_RejectsSizeMismatch(t *testing.T) {
	t.Parallel()

	bm, err := bitmap.Open(bitmap.Options{Mode: bitmap.Anonymous, Len: 8})
	require.NoError(t, err)
	defer bm.Close()

	_, err = hll.New(bm, 14)
	require.ErrorIs(t, err, hll.ErrSizeMismatch)
}

func TestHLL_New_RejectsOutOfRangePrecision(t *testing.T) {
	t.Parallel()

	bm, err := bitmap.Open(bitmap.Options{Mode: bitmap.Anonymous, Len: 8})
	require.NoError(t, err)
	defer bm.Close()

	_, err = hll.New(bm, 3)
	require.ErrorIs(t, err, hll.ErrInvalidArgument)

	_, err = hll.New(bm, 19)
	require.ErrorIs(t, err, hll.ErrInvalidArgument)
}

func TestPrecisionForError_RoundTripsThroughErrorForPrecision(t *testing.T) {
	t.Parallel()

	for p := hll.MinPrecision; p <= hll.MaxPrecision; p++ {
		e, err := hll.ErrorForPrecision(p)
		require.NoError(t, err)

		got, err := hll.PrecisionForError(e)
		require.NoError(t, err, "precision %d, error %g", p, e)
		require.Equal(t, p, got, fmt.Sprintf("round trip through error %g", e))
	}
}

func TestPrecisionForError_TighterThanMaxPrecisionFails(t *testing.T) {
	t.Parallel()

	maxErr, err := hll.ErrorForPrecision(hll.MaxPrecision)
	require.NoError(t, err)

	_, err = hll.PrecisionForError(maxErr / 2)
	require.ErrorIs(t, err, hll.ErrInvalidArgument)
}

func TestBytesForPrecision_OutOfRangeReturnsZero(t *testing.T) {
	t.Parallel()

	require.Zero(t, hll.BytesForPrecision(hll.MinPrecision-1))
	require.Zero(t, hll.BytesForPrecision(hll.MaxPrecision+1))
	require.NotZero(t, hll.BytesForPrecision(hll.MinPrecision))
}
