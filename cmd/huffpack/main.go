// Command huffpack compresses the text files of a directory into one Huffman
// container and restores them.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seiflotfy/huffpack"
	"github.com/seiflotfy/huffpack/fileset"
)

var (
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error",
		Value: "info",
	}
	modeFlag = &cli.StringFlag{
		Name:  "mode",
		Usage: "concurrency strategy: sequential, shared or isolated",
		Value: huffpack.ModeShared.String(),
	}
	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "worker pool size (0 = number of CPUs)",
	}
	reductionFlag = &cli.StringFlag{
		Name:  "reduction",
		Usage: "histogram reduction for shared mode: locked or combine",
		Value: huffpack.ReduceLocked.String(),
	}
	extFlag = &cli.StringFlag{
		Name:  "ext",
		Usage: "only compress files with this extension (empty = all files)",
		Value: fileset.DefaultExtension,
	}
	maxFilesFlag = &cli.IntFlag{
		Name:  "max-files",
		Usage: "maximum number of input files (0 = unlimited)",
		Value: fileset.DefaultMaxFiles,
	}
	maxFileSizeFlag = &cli.StringFlag{
		Name:  "max-file-size",
		Usage: "largest accepted input file, e.g. 64MB (empty = unlimited)",
	}
	maxRecordFlag = &cli.StringFlag{
		Name:  "max-record-size",
		Usage: "largest packed record the reader allocates",
		Value: "1GB",
	}
)

func main() {
	if err := newApp(afero.NewOsFs()).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(fs afero.Fs) *cli.App {
	return &cli.App{
		Name:  "huffpack",
		Usage: "Huffman-compress a directory of text files into a single container",
		Flags: []cli.Flag{logLevelFlag},
		Commands: []*cli.Command{
			{
				Name:      "compress",
				Usage:     "compress the files of a directory",
				ArgsUsage: "<input-dir> <output.bin>",
				Flags:     []cli.Flag{modeFlag, workersFlag, reductionFlag, extFlag, maxFilesFlag, maxFileSizeFlag},
				Action: func(ctx *cli.Context) error {
					return compress(ctx, fs)
				},
			},
			{
				Name:      "decompress",
				Usage:     "restore the files of a container",
				ArgsUsage: "<input.bin> <output-dir>",
				Flags:     []cli.Flag{modeFlag, workersFlag, maxRecordFlag},
				Action: func(ctx *cli.Context) error {
					return decompress(ctx, fs)
				},
			},
		},
	}
}

func newLogger(ctx *cli.Context) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(ctx.String(logLevelFlag.Name))
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	var v datasize.ByteSize
	if err := v.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(v.Bytes()), nil
}

func codecOptions(ctx *cli.Context, logger *zap.Logger) ([]huffpack.Option, error) {
	mode, err := huffpack.ParseMode(ctx.String(modeFlag.Name))
	if err != nil {
		return nil, err
	}
	opts := []huffpack.Option{
		huffpack.WithMode(mode),
		huffpack.WithWorkers(ctx.Int(workersFlag.Name)),
		huffpack.WithLogger(logger),
	}
	return opts, nil
}

func compress(ctx *cli.Context, fs afero.Fs) error {
	if ctx.NArg() != 2 {
		return cli.Exit("usage: huffpack compress <input-dir> <output.bin>", 2)
	}
	inDir, outPath := ctx.Args().Get(0), ctx.Args().Get(1)
	logger, err := newLogger(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	start := time.Now()

	maxSize, err := parseSize(ctx.String(maxFileSizeFlag.Name))
	if err != nil {
		return err
	}
	files, err := fileset.List(fs, inDir,
		fileset.WithExtension(ctx.String(extFlag.Name)),
		fileset.WithMaxFiles(ctx.Int(maxFilesFlag.Name)),
		fileset.WithMaxFileSize(maxSize),
	)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logger.Warn("no input files found", zap.String("dir", inDir), zap.String("ext", ctx.String(extFlag.Name)))
	}
	var inputBytes int
	for _, f := range files {
		inputBytes += len(f.Data)
		logger.Debug("read file", zap.String("name", f.Name), zap.Int("bytes", len(f.Data)))
	}

	opts, err := codecOptions(ctx, logger)
	if err != nil {
		return err
	}
	reduction, err := huffpack.ParseReduction(ctx.String(reductionFlag.Name))
	if err != nil {
		return err
	}
	enc := huffpack.NewEncoder(append(opts, huffpack.WithReduction(reduction))...)
	var written int64
	err = fileset.WriteAtomic(fs, outPath, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		n, err := enc.EncodeTo(ctx.Context, bw, files)
		if err != nil {
			return err
		}
		written = n
		return bw.Flush()
	})
	if err != nil {
		return fmt.Errorf("compress %s: %w", inDir, err)
	}

	logger.Info("compression complete",
		zap.String("output", outPath),
		zap.Int("files", len(files)),
		zap.String("input", datasize.ByteSize(inputBytes).HumanReadable()),
		zap.String("container", datasize.ByteSize(written).HumanReadable()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func decompress(ctx *cli.Context, fs afero.Fs) error {
	if ctx.NArg() != 2 {
		return cli.Exit("usage: huffpack decompress <input.bin> <output-dir>", 2)
	}
	inPath, outDir := ctx.Args().Get(0), ctx.Args().Get(1)
	logger, err := newLogger(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	start := time.Now()

	maxRecord, err := parseSize(ctx.String(maxRecordFlag.Name))
	if err != nil {
		return err
	}
	opts, err := codecOptions(ctx, logger)
	if err != nil {
		return err
	}
	dec := huffpack.NewDecoder(append(opts, huffpack.WithMaxRecordBytes(int(maxRecord)))...)

	f, err := fs.Open(inPath)
	if err != nil {
		return err
	}
	defer f.Close()

	// The whole container is parsed before the output directory is touched.
	c, err := dec.ReadContainer(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("read %s: %w", inPath, err)
	}
	sink, err := fileset.NewDirSink(fs, outDir)
	if err != nil {
		return err
	}
	if err := dec.Decode(ctx.Context, c, sink); err != nil {
		return fmt.Errorf("decompress %s: %w", inPath, err)
	}

	logger.Info("decompression complete",
		zap.String("output", outDir),
		zap.Int("files", c.Files()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
