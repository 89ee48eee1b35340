// Package fileset connects the codec to a filesystem: it lists the input
// files of a compression run and resolves output paths for decoded records.
package fileset

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/seiflotfy/huffpack"
)

const (
	DefaultExtension = ".txt" // DefaultExtension selects the files a directory listing includes.
	DefaultMaxFiles  = 100    // DefaultMaxFiles caps a listing (0 = unlimited).
	dirPerm          = 0o755
	filePerm         = 0o644
)

var (
	// ErrFileTooLarge indicates an input file above the configured size limit.
	ErrFileTooLarge = errors.New("file exceeds size limit")
	// ErrInvalidName indicates a record name that would escape the output directory.
	ErrInvalidName = errors.New("invalid output name")
)

type listConfig struct {
	ext         string
	maxFiles    int
	maxFileSize int64
}

// ListOption configures List.
type ListOption func(*listConfig)

// WithExtension keeps only files whose name ends with ext. An empty ext keeps every file.
func WithExtension(ext string) ListOption {
	return func(c *listConfig) {
		c.ext = ext
	}
}

// WithMaxFiles stops the listing after n files. Zero means unlimited.
func WithMaxFiles(n int) ListOption {
	return func(c *listConfig) {
		c.maxFiles = n
	}
}

// WithMaxFileSize rejects files larger than n bytes. Zero means unlimited.
func WithMaxFileSize(n int64) ListOption {
	return func(c *listConfig) {
		c.maxFileSize = n
	}
}

// List reads the regular files directly under dir, ordered by name.
func List(fs afero.Fs, dir string, opts ...ListOption) ([]huffpack.File, error) {
	cfg := listConfig{ext: DefaultExtension, maxFiles: DefaultMaxFiles}
	for _, opt := range opts {
		opt(&cfg)
	}

	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var files []huffpack.File
	for _, info := range infos {
		if cfg.maxFiles > 0 && len(files) >= cfg.maxFiles {
			break
		}
		if !info.Mode().IsRegular() || !strings.HasSuffix(info.Name(), cfg.ext) {
			continue
		}
		if cfg.maxFileSize > 0 && info.Size() > cfg.maxFileSize {
			return nil, fmt.Errorf("%s: %w: %d > %d bytes", info.Name(), ErrFileTooLarge, info.Size(), cfg.maxFileSize)
		}
		data, err := afero.ReadFile(fs, filepath.Join(dir, info.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, huffpack.File{Name: info.Name(), Data: data})
	}
	return files, nil
}

// DirSink writes decoded records as files inside one directory.
type DirSink struct {
	fs  afero.Fs
	dir string
}

// NewDirSink creates dir if needed and returns a sink writing into it.
func NewDirSink(fs afero.Fs, dir string) (*DirSink, error) {
	if err := fs.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &DirSink{fs: fs, dir: dir}, nil
}

// Resolve returns the output path for a record name. Names must be plain
// file names; anything that could leave the directory is rejected.
func (s *DirSink) Resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// Create returns a writer for the output of name. Data goes to a temporary
// file next to the destination, which replaces any existing file on Close.
// If a Write fails, Close discards the temporary file instead.
func (s *DirSink) Create(name string) (io.WriteCloser, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	return createPending(s.fs, path)
}

// pendingFile is an output that becomes visible at its path only when it
// is closed without a prior write error.
type pendingFile struct {
	fs   afero.Fs
	tmp  afero.File
	path string
	err  error
}

func createPending(fs afero.Fs, path string) (*pendingFile, error) {
	tmp, err := afero.TempFile(fs, filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return nil, err
	}
	return &pendingFile{fs: fs, tmp: tmp, path: path}, nil
}

func (f *pendingFile) Write(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmp.Write(p)
	if err != nil {
		f.err = err
	}
	return n, err
}

func (f *pendingFile) abort(err error) {
	if f.err == nil {
		f.err = err
	}
}

func (f *pendingFile) Close() error {
	err := f.tmp.Close()
	if f.err == nil && err == nil {
		err = f.fs.Chmod(f.tmp.Name(), filePerm)
	}
	if f.err == nil && err == nil {
		err = f.fs.Rename(f.tmp.Name(), f.path)
	}
	if f.err != nil || err != nil {
		_ = f.fs.Remove(f.tmp.Name())
	}
	if f.err != nil {
		return f.err
	}
	return err
}

// WriteAtomic writes the output of fn to path through a temporary file in
// the same directory and renames it into place only when fn succeeds.
func WriteAtomic(fs afero.Fs, path string, fn func(w io.Writer) error) error {
	f, err := createPending(fs, path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.abort(err)
	}
	return f.Close()
}
