package huffpack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sink resolves where a decoded record is written.
type Sink interface {
	Create(name string) (io.WriteCloser, error)
}

type cachedTrie struct {
	codes *CodeTable
	trie  *Trie
}

// Decoder rebuilds the trie of a container and decodes its records.
type Decoder struct {
	config Config
	tries  *lru.Cache[uint64, cachedTrie]
}

// NewDecoder creates a new decoder with the given options.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{config: newConfig(opts)}
	if d.config.TrieCacheSize > 0 {
		// lru.New only fails for a non-positive size.
		d.tries, _ = lru.New[uint64, cachedTrie](d.config.TrieCacheSize)
	}
	return d
}

// ReadContainer reads a container from r, rejecting length fields above the
// configured allocation limit.
func (d *Decoder) ReadContainer(r io.Reader) (*Container, error) {
	c := &Container{}
	if _, err := c.readFrom(r, d.config.maxRecordBytes()); err != nil {
		return nil, err
	}
	return c, nil
}

func fingerprint(ct *CodeTable) uint64 {
	h := xxhash.New()
	for _, e := range ct.Entries() {
		_, _ = h.Write([]byte{e.Symbol, byte(len(e.Bits))})
		_, _ = h.WriteString(e.Bits)
	}
	return h.Sum64()
}

// Trie returns the decode trie for codes, reusing a cached one when the
// decoder was configured with WithTrieCache.
func (d *Decoder) Trie(codes *CodeTable) (*Trie, error) {
	if d.tries == nil {
		return NewTrie(codes)
	}
	key := fingerprint(codes)
	if hit, ok := d.tries.Get(key); ok && hit.codes.Equal(codes) {
		return hit.trie, nil
	}
	t, err := NewTrie(codes)
	if err != nil {
		return nil, err
	}
	d.tries.Add(key, cachedTrie{codes: codes, trie: t})
	return t, nil
}

// DecodeRecord replays the packed bits of rec against t.
func DecodeRecord(t *Trie, rec *Record) ([]byte, error) {
	return t.AppendDecodePacked(make([]byte, 0, 2*len(rec.Packed.Data)), rec.Packed)
}

// decodeEach decodes every record of c and passes the output to emit. A single
// worker runs inline on the calling goroutine; otherwise records go to a
// bounded pool sharing the trie read-only. A failing
// record does not stop its siblings; all failures are joined after every
// worker has finished.
func (d *Decoder) decodeEach(ctx context.Context, c *Container, emit func(i int, data []byte) error) error {
	start := time.Now()
	codes := c.Codes
	if codes == nil {
		codes = &CodeTable{}
	}
	t, err := d.Trie(codes)
	if err != nil {
		return fmt.Errorf("rebuild trie: %w", err)
	}

	workers := d.config.workers(len(c.Records))
	errs := make([]error, len(c.Records))
	decode := func(i int) {
		rec := &c.Records[i]
		data, err := DecodeRecord(t, rec)
		if err == nil {
			err = emit(i, data)
		}
		if err != nil {
			errs[i] = &RecordError{Index: i, Name: rec.Name, Err: err}
			d.config.Logger.Warn("record failed", zap.Int("index", i), zap.String("name", rec.Name), zap.Error(err))
			return
		}
		d.config.Logger.Debug("decoded record", zap.String("name", rec.Name), zap.Int("bytes", len(data)))
	}

	if workers == 1 {
		for i := range c.Records {
			if ctx.Err() != nil {
				break
			}
			decode(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(workers)
		for i := range c.Records {
			if ctx.Err() != nil {
				break
			}
			i := i
			g.Go(func() error {
				decode(i)
				return nil
			})
		}
		_ = g.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = errors.Join(errs...)
	d.config.Logger.Info("decoded container",
		zap.Stringer("mode", d.config.Mode),
		zap.Int("workers", workers),
		zap.Int("files", len(c.Records)),
		zap.Int("codes", codes.Len()),
		zap.Bool("failures", err != nil),
		zap.Duration("elapsed", time.Since(start)),
	)
	return err
}

// Decode writes every record of c to sink. Records whose bitstream is
// corrupt are skipped without creating an output; the returned error joins a
// *RecordError for each of them.
func (d *Decoder) Decode(ctx context.Context, c *Container, sink Sink) error {
	return d.decodeEach(ctx, c, func(i int, data []byte) error {
		w, err := sink.Create(c.Records[i].Name)
		if err != nil {
			return err
		}
		if _, err := writeBytes(w, data); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	})
}

// DecodeFrom reads a container from r and decodes it into sink.
func (d *Decoder) DecodeFrom(ctx context.Context, r io.Reader, sink Sink) error {
	c, err := d.ReadContainer(r)
	if err != nil {
		return err
	}
	return d.Decode(ctx, c, sink)
}

// DecodeAll decodes every record of c in memory. Files whose record failed
// have nil Data; the returned error joins the failures.
func (d *Decoder) DecodeAll(ctx context.Context, c *Container) ([]File, error) {
	files := make([]File, len(c.Records))
	for i := range c.Records {
		files[i].Name = c.Records[i].Name
	}
	err := d.decodeEach(ctx, c, func(i int, data []byte) error {
		files[i].Data = data
		return nil
	})
	return files, err
}
