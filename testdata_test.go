package huffpack

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
)

// sampleFiles returns a small corpus with skewed symbol distributions,
// an empty file and a binary file.
func sampleFiles() []File {
	return []File{
		{Name: "war.txt", Data: []byte(strings.Repeat("All warfare is based on deception. ", 20))},
		{Name: "empty.txt", Data: nil},
		{Name: "users.txt", Data: []byte("user_000001\nuser_000002\nuser_000003\nadmin_001\nuser_000004\n")},
		{Name: "unicode.txt", Data: []byte("hello世界 🚀rocket café naïve مرحبا")},
		{Name: "single.txt", Data: []byte("zzzzzzzz")},
		{Name: "binary.bin", Data: allBytes()},
	}
}

func allBytes() []byte {
	b := make([]byte, 0, 512)
	for i := 0; i < 512; i++ {
		b = append(b, byte(i*7))
	}
	return b
}

// randomFiles returns n files of random length drawn from an alphabet of
// the given size.
func randomFiles(seed int64, n, alphabet int) []File {
	rng := rand.New(rand.NewSource(seed))
	files := make([]File, n)
	for i := range files {
		data := make([]byte, rng.Intn(2048))
		for j := range data {
			// Square the draw to skew frequencies toward low symbols.
			v := rng.Intn(alphabet)
			data[j] = byte(v * v / alphabet)
		}
		files[i] = File{Name: fmt.Sprintf("file_%03d.txt", i), Data: data}
	}
	return files
}

type memSink struct {
	mu    sync.Mutex
	files map[string][]byte
	fail  map[string]bool
}

func newMemSink() *memSink {
	return &memSink{files: make(map[string][]byte), fail: make(map[string]bool)}
}

func (s *memSink) Create(name string) (io.WriteCloser, error) {
	if s.fail[name] {
		return nil, errors.New("disk full")
	}
	return &memFile{sink: s, name: name}, nil
}

func (s *memSink) get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[name]
	return b, ok
}

type memFile struct {
	bytes.Buffer
	sink *memSink
	name string
}

func (f *memFile) Close() error {
	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	f.sink.files[f.name] = append([]byte(nil), f.Bytes()...)
	return nil
}

var errWriteFailed = errors.New("write failed")

// failingSink opens outputs whose every write fails.
type failingSink struct {
	opened atomic.Int32
	closed atomic.Int32
}

func (s *failingSink) Create(string) (io.WriteCloser, error) {
	s.opened.Add(1)
	return failingFile{s}, nil
}

type failingFile struct{ sink *failingSink }

func (failingFile) Write([]byte) (int, error) { return 0, errWriteFailed }

func (f failingFile) Close() error {
	f.sink.closed.Add(1)
	return nil
}

func allModes() []Mode {
	return []Mode{ModeSequential, ModeShared, ModeIsolated}
}
