package huffpack

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/seiflotfy/huffpack/bitpack"
)

// Result frame layout, all int32 little-endian:
//
//	index | bitLength | lastBits | byteCount | packed[byteCount]
//
// The byte count makes every frame self-delimiting, so the coordinator never
// has to guess where a worker's payload ends.
const frameHeaderLen = 16

var errInvalidFrame = errors.New("invalid result frame")

// resultFrame is the message an isolated worker returns for one task.
type resultFrame struct {
	index  int
	packed bitpack.Packed
}

func (f *resultFrame) MarshalBinary() ([]byte, error) {
	if f.index < 0 || f.index > maxInt32 {
		return nil, fmt.Errorf("%w: task index %d", errInvalidFrame, f.index)
	}
	if f.packed.Bits > maxInt32 {
		return nil, fmt.Errorf("%w: bit length %d", errInvalidFrame, f.packed.Bits)
	}
	buf := make([]byte, frameHeaderLen+len(f.packed.Data))
	binary.LittleEndian.PutUint32(buf[0:], uint32(f.index))
	binary.LittleEndian.PutUint32(buf[4:], uint32(f.packed.Bits))
	binary.LittleEndian.PutUint32(buf[8:], uint32(f.packed.LastBits))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(f.packed.Data)))
	copy(buf[frameHeaderLen:], f.packed.Data)
	return buf, nil
}

// UnmarshalBinary decodes a frame. The packed bytes alias b.
func (f *resultFrame) UnmarshalBinary(b []byte) error {
	if len(b) < frameHeaderLen {
		return fmt.Errorf("%w: %d bytes is shorter than the header", errInvalidFrame, len(b))
	}
	index := int(int32(binary.LittleEndian.Uint32(b[0:])))
	bits := int(int32(binary.LittleEndian.Uint32(b[4:])))
	lastBits := int(int32(binary.LittleEndian.Uint32(b[8:])))
	byteCount := int(int32(binary.LittleEndian.Uint32(b[12:])))
	if index < 0 {
		return fmt.Errorf("%w: negative task index %d", errInvalidFrame, index)
	}
	if byteCount < 0 || byteCount != len(b)-frameHeaderLen {
		return fmt.Errorf("%w: frame announces %d packed bytes, carries %d", errInvalidFrame, byteCount, len(b)-frameHeaderLen)
	}
	packed := bitpack.Packed{Bits: bits, Data: b[frameHeaderLen:], LastBits: lastBits}
	if err := packed.Validate(); err != nil {
		return fmt.Errorf("%w: task %d: %w", errInvalidFrame, index, err)
	}
	f.index = index
	f.packed = packed
	return nil
}

// encodeIsolated feeds task indices to a fixed pool of workers. Workers read
// only their own input file and the immutable code table, and hand back
// serialized frames. The coordinator alone assembles the records, placing
// each frame by task index so completion order does not matter.
func (e *Encoder) encodeIsolated(ctx context.Context, codes *CodeTable, files []File) ([]Record, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := e.config.workers(len(files))
	tasks := make(chan int)
	frames := make(chan []byte, workers)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(tasks)
		for i := range files {
			select {
			case tasks <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := range tasks {
				rec, err := EncodeRecord(codes, files[i])
				if err != nil {
					return err
				}
				frame := resultFrame{index: i, packed: rec.Packed}
				msg, err := frame.MarshalBinary()
				if err != nil {
					return fmt.Errorf("encode %q: %w", files[i].Name, err)
				}
				select {
				case frames <- msg:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(frames)
	}()

	records := make([]Record, len(files))
	received := make([]bool, len(files))
	var frameErr error
	for msg := range frames {
		if frameErr != nil {
			continue
		}
		var frame resultFrame
		if err := frame.UnmarshalBinary(msg); err != nil {
			frameErr = err
			cancel()
			continue
		}
		if frame.index >= len(files) || received[frame.index] {
			frameErr = fmt.Errorf("%w: unexpected task index %d", errInvalidFrame, frame.index)
			cancel()
			continue
		}
		received[frame.index] = true
		records[frame.index] = Record{Name: files[frame.index].Name, Packed: frame.packed}
		e.logRecord(&files[frame.index], &records[frame.index])
	}

	if err := <-waitErr; err != nil && frameErr == nil {
		return nil, err
	}
	if frameErr != nil {
		return nil, frameErr
	}
	for i, ok := range received {
		if !ok {
			return nil, fmt.Errorf("%w: no result for task %d (%q)", errInvalidFrame, i, files[i].Name)
		}
	}
	return records, nil
}
