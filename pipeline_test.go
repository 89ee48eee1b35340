package huffpack

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seiflotfy/huffpack/bitpack"
)

func TestResultFrame(t *testing.T) {
	packed, err := bitpack.Pack("101100111")
	require.NoError(t, err)

	in := resultFrame{index: 7, packed: packed}
	msg, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, msg, frameHeaderLen+2)
	require.Equal(t, uint32(7), binary.LittleEndian.Uint32(msg[0:]))
	require.Equal(t, uint32(9), binary.LittleEndian.Uint32(msg[4:]))
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(msg[8:]))
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(msg[12:]))

	var out resultFrame
	require.NoError(t, out.UnmarshalBinary(msg))
	require.Equal(t, in.index, out.index)
	require.Equal(t, in.packed, out.packed)
}

func TestResultFrameEmptyPayload(t *testing.T) {
	in := resultFrame{index: 0, packed: bitpack.Packed{LastBits: 8}}
	msg, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, msg, frameHeaderLen)

	var out resultFrame
	require.NoError(t, out.UnmarshalBinary(msg))
	require.Zero(t, out.packed.Bits)
	require.Empty(t, out.packed.Data)
}

func TestResultFrameRejectsMalformed(t *testing.T) {
	good, err := (&resultFrame{index: 3, packed: bitpack.Packed{Bits: 12, Data: []byte{0xAB, 0xC0}, LastBits: 4}}).MarshalBinary()
	require.NoError(t, err)

	mutate := func(f func(b []byte) []byte) []byte {
		return f(append([]byte(nil), good...))
	}
	tests := []struct {
		name string
		msg  []byte
	}{
		{"short header", good[:frameHeaderLen-1]},
		{"missing payload byte", good[:len(good)-1]},
		{"extra payload byte", append(append([]byte(nil), good...), 0)},
		{"negative index", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[0:], 0xFFFFFFFF)
			return b
		})},
		{"bit length disagrees with byte count", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[4:], 20)
			return b
		})},
		{"wrong trailing bits", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[8:], 8)
			return b
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f resultFrame
			require.ErrorIs(t, f.UnmarshalBinary(tt.msg), errInvalidFrame)
		})
	}

	_, err = (&resultFrame{index: -1}).MarshalBinary()
	require.ErrorIs(t, err, errInvalidFrame)
}

func TestIsolatedPipelineMatchesSequential(t *testing.T) {
	ctx := context.Background()
	files := randomFiles(12, 100, 220)
	freq := CountFrequencies(files)
	codes, err := BuildCodes(&freq)
	require.NoError(t, err)

	want, err := NewEncoder().encodeSequential(ctx, codes, files)
	require.NoError(t, err)
	for _, workers := range []int{1, 3, 16} {
		got, err := NewEncoder(WithMode(ModeIsolated), WithWorkers(workers)).encodeIsolated(ctx, codes, files)
		require.NoError(t, err)
		require.Len(t, got, len(want))
		for i := range want {
			require.Equal(t, want[i].Name, got[i].Name)
			require.Equal(t, want[i].Packed.Bits, got[i].Packed.Bits)
			require.Equal(t, want[i].Packed.LastBits, got[i].Packed.LastBits)
			require.True(t, bytes.Equal(want[i].Packed.Data, got[i].Packed.Data), "record %d", i)
		}
	}
}

func TestIsolatedPipelineWorkerFailure(t *testing.T) {
	codes := codesOf(t, "ab")
	files := []File{{Name: "a", Data: []byte("ab")}, {Name: "b", Data: []byte("abc")}, {Name: "c", Data: []byte("ba")}}
	_, err := NewEncoder(WithMode(ModeIsolated), WithWorkers(2)).encodeIsolated(context.Background(), codes, files)
	require.Error(t, err)
	require.Contains(t, err.Error(), `"b"`)
}

func TestIsolatedPipelineEmpty(t *testing.T) {
	got, err := NewEncoder(WithMode(ModeIsolated)).encodeIsolated(context.Background(), &CodeTable{}, nil)
	require.NoError(t, err)
	require.Empty(t, got)
}
