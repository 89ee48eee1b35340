// Package huffpack compresses a batch of files into a single container using
// static Huffman coding computed over the whole corpus, and restores them.
//
// A run counts symbol frequencies across every input file, builds one Huffman
// tree, derives a code table from it and packs each file's encoding into the
// container. Decoding rebuilds a trie from the transmitted code table and
// replays each record's bitstream against it.
package huffpack

import (
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"
)

const (
	alphabetSize   = 256       // alphabetSize is the number of distinct symbols (one byte each).
	maxCodeLen     = 255       // maxCodeLen is the longest code a 256-leaf tree can produce.
	minNameLen     = 1         // minNameLen is the shortest accepted record name.
	maxNameLen     = 1000      // maxNameLen is the longest accepted record name.
	maxRecordBytes = 1 << 30   // maxRecordBytes is the default allocation cap for one length field (1 GiB).
	maxInt32       = 1<<31 - 1 // maxInt32 bounds every length field of the container.
)

var (
	// ErrAllocationFailure indicates a length field asked for more memory than the configured limit.
	ErrAllocationFailure = errors.New("allocation failure")
	// ErrMalformedHeader indicates an invalid file count, code count or code table entry.
	ErrMalformedHeader = errors.New("malformed header")
	// ErrMalformedRecord indicates a record field outside its valid range.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrTruncatedRecord indicates the stream ended before a length field was satisfied.
	ErrTruncatedRecord = errors.New("truncated record")
	// ErrCorruptBitstream indicates a record's bits do not decode against the code table.
	ErrCorruptBitstream = errors.New("corrupt bitstream")
	// ErrEmptyTable indicates a tree was requested from a table with no symbols.
	ErrEmptyTable = errors.New("frequency table is empty")
)

// Mode selects how work is spread across goroutines.
type Mode uint8

const (
	// ModeSequential runs every step on the calling goroutine.
	ModeSequential Mode = iota
	// ModeShared runs a worker pool over shared memory: workers merge
	// histograms into one table and write encodings into their own slots.
	ModeShared
	// ModeIsolated runs workers that share no mutable state and return
	// length-delimited result frames to the coordinator.
	ModeIsolated
)

func (m Mode) String() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeShared:
		return "shared"
	case ModeIsolated:
		return "isolated"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode parses the String form of a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "sequential":
		return ModeSequential, nil
	case "shared":
		return ModeShared, nil
	case "isolated":
		return ModeIsolated, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// Reduction selects how parallel workers combine their local histograms.
type Reduction uint8

const (
	// ReduceLocked merges into one shared table under a mutex held only for the addition.
	ReduceLocked Reduction = iota
	// ReduceCombine sends local histograms to a single combiner goroutine.
	ReduceCombine
)

func (r Reduction) String() string {
	switch r {
	case ReduceLocked:
		return "locked"
	case ReduceCombine:
		return "combine"
	default:
		return fmt.Sprintf("Reduction(%d)", uint8(r))
	}
}

// ParseReduction parses the String form of a Reduction.
func ParseReduction(s string) (Reduction, error) {
	switch s {
	case "locked":
		return ReduceLocked, nil
	case "combine":
		return ReduceCombine, nil
	}
	return 0, fmt.Errorf("unknown reduction %q", s)
}

// File is one named input buffer.
type File struct {
	Name string
	Data []byte
}

// Config holds configuration shared by Encoder and Decoder.
type Config struct {
	Mode           Mode        // Concurrency strategy (default sequential)
	Workers        int         // Worker pool size (0 = GOMAXPROCS)
	Reduction      Reduction   // Histogram reduction used by ModeShared
	MaxRecordBytes int         // Largest length field accepted by the reader (0 = 1 GiB)
	TrieCacheSize  int         // Decoder trie cache entries (0 = disabled)
	Logger         *zap.Logger // Run logger (nil = no-op)
}

// Option is a functional option for configuring an Encoder or Decoder.
type Option func(*Config)

// WithMode sets the concurrency strategy.
func WithMode(m Mode) Option {
	return func(c *Config) {
		c.Mode = m
	}
}

// WithWorkers sets the worker pool size. Values below 1 select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithReduction sets the histogram reduction used by ModeShared.
// ModeIsolated always combines.
func WithReduction(r Reduction) Option {
	return func(c *Config) {
		c.Reduction = r
	}
}

// WithMaxRecordBytes caps the size the container reader allocates for a
// single length field.
func WithMaxRecordBytes(n int) Option {
	return func(c *Config) {
		c.MaxRecordBytes = n
	}
}

// WithTrieCache keeps up to n reconstructed tries keyed by code table so that
// repeated decodes of containers sharing a table skip reconstruction.
func WithTrieCache(n int) Option {
	return func(c *Config) {
		c.TrieCacheSize = n
	}
}

// WithLogger sets the logger used for run and record events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func newConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

func (c Config) workers(tasks int) int {
	if c.Mode == ModeSequential {
		return 1
	}
	n := c.Workers
	if n < 1 {
		n = runtime.GOMAXPROCS(0)
	}
	if tasks > 0 && n > tasks {
		n = tasks
	}
	return n
}

func (c Config) maxRecordBytes() int {
	if c.MaxRecordBytes <= 0 || c.MaxRecordBytes > maxRecordBytes {
		return maxRecordBytes
	}
	return c.MaxRecordBytes
}

// RecordError reports a failure confined to one container record.
type RecordError struct {
	Index int
	Name  string
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (%q): %v", e.Index, e.Name, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
