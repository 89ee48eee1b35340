package huffpack

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrequencyTable(t *testing.T) {
	var a, b FrequencyTable
	a.Add([]byte("hello"))
	b.Add([]byte("world"))
	require.Equal(t, uint64(2), a['l'])
	require.Equal(t, 4, a.Symbols())
	require.Equal(t, uint64(5), a.Total())

	ab, ba := a, b
	ab.Merge(&b)
	ba.Merge(&a)
	require.Equal(t, ab, ba)
	require.Equal(t, uint64(3), ab['l'])
	require.Equal(t, uint64(10), ab.Total())
}

func TestCountFrequenciesEmpty(t *testing.T) {
	freq := CountFrequencies(nil)
	require.Zero(t, freq.Symbols())

	freq = CountFrequencies([]File{{Name: "a", Data: nil}, {Name: "b", Data: []byte{}}})
	require.Zero(t, freq.Total())
}

func TestParallelCountsMatchSequential(t *testing.T) {
	ctx := context.Background()
	files := randomFiles(42, 37, 256)
	want := CountFrequencies(files)
	wantCodes, err := BuildCodes(&want)
	require.NoError(t, err)

	for _, r := range []Reduction{ReduceLocked, ReduceCombine} {
		for _, workers := range []int{1, 2, 3, 8, 64} {
			got, err := countParallel(ctx, files, workers, r)
			require.NoError(t, err)
			require.Equal(t, want, got, "%s with %d workers", r, workers)

			codes, err := BuildCodes(&got)
			require.NoError(t, err)
			require.True(t, wantCodes.Equal(codes))
		}
	}
}

func TestFrequenciesIgnoreFileOrder(t *testing.T) {
	ctx := context.Background()
	files := randomFiles(5, 12, 64)
	want := CountFrequencies(files)

	rng := rand.New(rand.NewSource(9))
	for round := 0; round < 10; round++ {
		perm := append([]File(nil), files...)
		rng.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
		for _, mode := range allModes() {
			enc := NewEncoder(WithMode(mode), WithWorkers(4))
			got, err := enc.Frequencies(ctx, perm)
			require.NoError(t, err)
			require.Equal(t, want, got, mode.String())
		}
	}
}

func TestFrequenciesCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	files := randomFiles(1, 4, 16)
	for _, mode := range allModes() {
		_, err := NewEncoder(WithMode(mode)).Frequencies(ctx, files)
		require.ErrorIs(t, err, context.Canceled, mode.String())
	}
}

func TestParseModeAndReduction(t *testing.T) {
	for _, m := range allModes() {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
	_, err := ParseMode("threads")
	require.Error(t, err)

	for _, r := range []Reduction{ReduceLocked, ReduceCombine} {
		got, err := ParseReduction(r.String())
		require.NoError(t, err)
		require.Equal(t, r, got)
	}
	_, err = ParseReduction("atomic")
	require.Error(t, err)
}

func TestConfigWorkers(t *testing.T) {
	require.Equal(t, 1, newConfig([]Option{WithWorkers(8)}).workers(100))
	require.Equal(t, 8, newConfig([]Option{WithMode(ModeShared), WithWorkers(8)}).workers(100))
	require.Equal(t, 3, newConfig([]Option{WithMode(ModeIsolated), WithWorkers(8)}).workers(3))
	require.GreaterOrEqual(t, newConfig([]Option{WithMode(ModeShared)}).workers(1000), 1)
}
