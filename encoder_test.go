package huffpack

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func roundTrip(t *testing.T, files []File, opts ...Option) []File {
	t.Helper()
	ctx := context.Background()
	var buf bytes.Buffer
	_, err := NewEncoder(opts...).EncodeTo(ctx, &buf, files)
	require.NoError(t, err)

	dec := NewDecoder(opts...)
	c, err := dec.ReadContainer(&buf)
	require.NoError(t, err)
	out, err := dec.DecodeAll(ctx, c)
	require.NoError(t, err)
	return out
}

func requireSameFiles(t *testing.T, want, got []File) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].Name, got[i].Name)
		require.NotNil(t, got[i].Data, "decoded file %s must not be nil", want[i].Name)
		require.Equal(t, string(want[i].Data), string(got[i].Data), want[i].Name)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		files []File
	}{
		{"samples", sampleFiles()},
		{"single empty file", []File{{Name: "empty.txt"}}},
		{"single symbol", []File{{Name: "z.txt", Data: []byte("zzzzzzzzz")}, {Name: "z2.txt", Data: []byte("z")}}},
		{"all bytes", []File{{Name: "all.bin", Data: allBytes()}}},
		{"random", randomFiles(1, 50, 256)},
		{"narrow alphabet", randomFiles(2, 20, 3)},
	}
	for _, tt := range tests {
		for _, mode := range allModes() {
			t.Run(tt.name+"/"+mode.String(), func(t *testing.T) {
				got := roundTrip(t, tt.files, WithMode(mode), WithWorkers(4))
				requireSameFiles(t, tt.files, got)
			})
		}
	}
}

func TestEncodeModesProduceIdenticalContainers(t *testing.T) {
	files := randomFiles(99, 40, 180)
	want := encodeBytes(t, files)
	for _, mode := range allModes() {
		for _, workers := range []int{1, 2, 7, 32} {
			for _, r := range []Reduction{ReduceLocked, ReduceCombine} {
				got := encodeBytes(t, files, WithMode(mode), WithWorkers(workers), WithReduction(r))
				require.Equal(t, want, got, "%s/%d/%s", mode, workers, r)
			}
		}
	}
}

func TestEncodeSingleSymbol(t *testing.T) {
	c, err := NewEncoder().Encode(context.Background(), []File{{Name: "q.txt", Data: []byte("qqqq")}})
	require.NoError(t, err)
	require.Equal(t, []CodeEntry{{Symbol: 'q', Bits: "0"}}, c.Codes.Entries())
	require.Equal(t, 4, c.Records[0].Packed.Bits)
	require.Equal(t, []byte{0x00}, c.Records[0].Packed.Data)
	require.Equal(t, 4, c.Records[0].Packed.LastBits)
}

func TestEncodeKeepsInputOrder(t *testing.T) {
	files := randomFiles(4, 64, 40)
	for _, mode := range allModes() {
		c, err := NewEncoder(WithMode(mode), WithWorkers(8)).Encode(context.Background(), files)
		require.NoError(t, err)
		require.Len(t, c.Records, len(files))
		for i := range files {
			require.Equal(t, files[i].Name, c.Records[i].Name)
			bits, err := c.Codes.EncodedBits(files[i].Data)
			require.NoError(t, err)
			require.Equal(t, bits, c.Records[i].Packed.Bits)
		}
	}
}

func TestEncodeRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", strings.Repeat("n", maxNameLen+1)} {
		for _, mode := range allModes() {
			_, err := NewEncoder(WithMode(mode)).Encode(context.Background(), []File{{Name: "ok", Data: []byte("x")}, {Name: name}})
			require.ErrorIs(t, err, ErrMalformedRecord)
		}
	}
	got := roundTrip(t, []File{{Name: strings.Repeat("n", maxNameLen), Data: []byte("long name")}})
	require.Equal(t, "long name", string(got[0].Data))
}

func TestEncodeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, mode := range allModes() {
		_, err := NewEncoder(WithMode(mode)).Encode(ctx, sampleFiles())
		require.ErrorIs(t, err, context.Canceled, mode.String())
	}
}

func TestEncodeRecordMissingSymbol(t *testing.T) {
	codes := codesOf(t, "ab")
	_, err := EncodeRecord(codes, File{Name: "x", Data: []byte("abc")})
	require.Error(t, err)
}

func TestEncodeCompresses(t *testing.T) {
	files := []File{{Name: "war.txt", Data: []byte(strings.Repeat("All warfare is based on deception. ", 200))}}
	c, err := NewEncoder().Encode(context.Background(), files)
	require.NoError(t, err)
	require.Less(t, c.PackedBytes(), len(files[0].Data))
}

func TestEncodeLogsRun(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	_, err := NewEncoder(WithMode(ModeShared), WithLogger(zap.New(core))).Encode(context.Background(), sampleFiles())
	require.NoError(t, err)

	require.Equal(t, len(sampleFiles()), logs.FilterMessage("encoded record").Len())
	run := logs.FilterMessage("encoded container").All()
	require.Len(t, run, 1)
	fields := run[0].ContextMap()
	require.Equal(t, "shared", fields["mode"])
	require.Equal(t, int64(len(sampleFiles())), fields["files"])
}
