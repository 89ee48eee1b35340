package huffpack

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seiflotfy/huffpack/bitpack"
)

// Encoder counts symbols over a batch of files, derives one code table and
// encodes every file with it.
type Encoder struct {
	config Config
}

// NewEncoder creates a new encoder with the given options.
func NewEncoder(opts ...Option) *Encoder {
	return &Encoder{config: newConfig(opts)}
}

// Frequencies counts symbols across files with the configured strategy.
// The result does not depend on the strategy or the worker count.
func (e *Encoder) Frequencies(ctx context.Context, files []File) (FrequencyTable, error) {
	switch e.config.Mode {
	case ModeShared:
		return countParallel(ctx, files, e.config.workers(len(files)), e.config.Reduction)
	case ModeIsolated:
		return countParallel(ctx, files, e.config.workers(len(files)), ReduceCombine)
	default:
		if err := ctx.Err(); err != nil {
			return FrequencyTable{}, err
		}
		return CountFrequencies(files), nil
	}
}

// BuildCodes derives the code table for freq. An empty table yields an empty
// code table and no tree is built.
func BuildCodes(freq *FrequencyTable) (*CodeTable, error) {
	if freq.Symbols() == 0 {
		return &CodeTable{}, nil
	}
	t, err := BuildTree(freq)
	if err != nil {
		return nil, err
	}
	return DeriveCodes(t), nil
}

// EncodeRecord encodes one file with codes.
func EncodeRecord(codes *CodeTable, f File) (Record, error) {
	bits, err := codes.EncodedBits(f.Data)
	if err != nil {
		return Record{}, fmt.Errorf("encode %q: %w", f.Name, err)
	}
	if bits > maxInt32 {
		return Record{}, fmt.Errorf("encode %q: %w: %d bits do not fit in int32", f.Name, ErrMalformedRecord, bits)
	}

	var lookup [alphabetSize]string
	for sym := range lookup {
		lookup[sym], _ = codes.Lookup(byte(sym))
	}
	w := bitpack.NewWriter(bitpack.ByteLen(bits))
	for _, b := range f.Data {
		if err := w.WriteCode(lookup[b]); err != nil {
			return Record{}, fmt.Errorf("encode %q: %w", f.Name, err)
		}
	}
	packed, err := w.Finish()
	if err != nil {
		return Record{}, fmt.Errorf("encode %q: %w", f.Name, err)
	}
	return Record{Name: f.Name, Packed: packed}, nil
}

func validateNames(files []File) error {
	for i := range files {
		if n := len(files[i].Name); n < minNameLen || n > maxNameLen {
			return fmt.Errorf("file %d: %w: name length %d out of range [%d, %d]", i, ErrMalformedRecord, n, minNameLen, maxNameLen)
		}
	}
	if len(files) > maxInt32 {
		return fmt.Errorf("%w: %d files do not fit in int32", ErrMalformedHeader, len(files))
	}
	return nil
}

// Encode builds a container holding every file in input order.
// Any failure aborts the whole run and no container is returned.
func (e *Encoder) Encode(ctx context.Context, files []File) (*Container, error) {
	start := time.Now()
	if err := validateNames(files); err != nil {
		return nil, err
	}

	freq, err := e.Frequencies(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("count frequencies: %w", err)
	}
	codes, err := BuildCodes(&freq)
	if err != nil {
		return nil, fmt.Errorf("build codes: %w", err)
	}

	var records []Record
	switch e.config.Mode {
	case ModeShared:
		records, err = e.encodeShared(ctx, codes, files)
	case ModeIsolated:
		records, err = e.encodeIsolated(ctx, codes, files)
	default:
		records, err = e.encodeSequential(ctx, codes, files)
	}
	if err != nil {
		return nil, err
	}

	c := &Container{Codes: codes, Records: records}
	e.config.Logger.Info("encoded container",
		zap.Stringer("mode", e.config.Mode),
		zap.Int("workers", e.config.workers(len(files))),
		zap.Int("files", len(files)),
		zap.Uint64("symbols", freq.Total()),
		zap.Int("codes", codes.Len()),
		zap.Int("packedBytes", c.PackedBytes()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return c, nil
}

// EncodeTo encodes files and writes the container to w.
func (e *Encoder) EncodeTo(ctx context.Context, w io.Writer, files []File) (int64, error) {
	c, err := e.Encode(ctx, files)
	if err != nil {
		return 0, err
	}
	return c.WriteTo(w)
}

func (e *Encoder) logRecord(f *File, rec *Record) {
	e.config.Logger.Debug("encoded record",
		zap.String("name", f.Name),
		zap.Int("inputBits", len(f.Data)*8),
		zap.Int("encodedBits", rec.Packed.Bits),
	)
}

func (e *Encoder) encodeSequential(ctx context.Context, codes *CodeTable, files []File) ([]Record, error) {
	records := make([]Record, len(files))
	for i := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := EncodeRecord(codes, files[i])
		if err != nil {
			return nil, err
		}
		e.logRecord(&files[i], &rec)
		records[i] = rec
	}
	return records, nil
}

// encodeShared encodes files on a bounded pool. codes is read-only and each
// worker writes only its own slot of records.
func (e *Encoder) encodeShared(ctx context.Context, codes *CodeTable, files []File) ([]Record, error) {
	records := make([]Record, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.workers(len(files)))
	for i := range files {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := EncodeRecord(codes, files[i])
			if err != nil {
				return err
			}
			e.logRecord(&files[i], &rec)
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
