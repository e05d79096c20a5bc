package fsarchive

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/jmgilman/go/archive"
	"github.com/jmgilman/go/archive/compressor"
	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/format"
	"github.com/jmgilman/go/archive/internal/logging"
)

// Archiver moves directory trees between a billy filesystem and archives.
// An Archiver holds no per-call state and may be shared.
type Archiver struct {
	fs          billy.Filesystem
	format      format.Code
	compression compressor.Code
	writerOpts  []archive.WriterOption
	readerOpts  []archive.ReaderOption
	workers     int
	slog        *slog.Logger
	logger      *logging.Logger
}

// New returns an Archiver over fsys. It writes uncompressed zip archives
// unless configured otherwise.
func New(fsys billy.Filesystem, opts ...Option) *Archiver {
	a := &Archiver{
		fs:          fsys,
		format:      format.Zip,
		compression: compressor.None,
		workers:     DefaultWorkers,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.workers < 1 {
		a.workers = 1
	}
	a.logger = logging.FromSlog(a.slog).WithComponent("fsarchive")
	return a
}

// NewLocal returns an Archiver over the host filesystem rooted at root.
func NewLocal(root string, opts ...Option) *Archiver {
	return New(osfs.New(root), opts...)
}

// Archive writes the tree below sourceDir to output. Member names are
// relative to sourceDir and use forward slashes.
func (a *Archiver) Archive(ctx context.Context, sourceDir string, output io.Writer) error {
	return a.ArchiveWithProgress(ctx, sourceDir, output, nil)
}

// ArchiveWithProgress is Archive with a progress callback receiving the
// bytes of file content written so far and the total to write.
//
// Entries the selected format cannot store, such as directories in ar, are
// skipped and logged. Any other error aborts the archive.
func (a *Archiver) ArchiveWithProgress(
	ctx context.Context,
	sourceDir string,
	output io.Writer,
	progress func(current, total int64),
) error {
	if sourceDir == "" {
		return errors.New(errors.CodeInvalidConfig, "source directory cannot be empty")
	}
	if output == nil {
		return errors.New(errors.CodeInvalidConfig, "output writer cannot be nil")
	}
	info, err := a.fs.Stat(sourceDir)
	if err != nil {
		return errors.Wrapf(err, errors.CodeIO, "source directory %s", sourceDir)
	}
	if !info.IsDir() {
		return errors.Newf(errors.CodeInvalidConfig, "source %s is not a directory", sourceDir)
	}

	files, err := collectFiles(a.fs, sourceDir)
	if err != nil {
		return err
	}
	var total int64
	for _, f := range files {
		if f.info.Mode().IsRegular() {
			total += f.info.Size()
		}
	}

	opts := []archive.WriterOption{
		archive.WithFormat(a.format),
		archive.WithCompression(a.compression),
		archive.WithWriterLogger(a.slog),
	}
	w, err := archive.NewWriter(output, append(opts, a.writerOpts...)...)
	if w == nil {
		return err
	}
	if err != nil {
		a.logger.Warn(ctx, "archive writer warning", "error", err)
	}

	a.logger.Debug(ctx, "archiving directory",
		"source", sourceDir,
		"entries", len(files),
		"bytes", total,
		"format", w.Format(),
		"compression", w.Compression())

	c := &copier{total: total, progress: progress}
	if err := a.archiveWithConcurrency(ctx, files, w, c); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil && !errors.IsWarning(err) {
		return err
	}
	a.logger.Info(ctx, "archive created",
		"source", sourceDir,
		"entries", len(files),
		"bytes", w.BytesWritten())
	return nil
}

// fileJob is one walked path.
type fileJob struct {
	index   int
	path    string
	relPath string
	info    os.FileInfo
}

// archiveResult is a job prepared by a worker: the entry plus an open
// body for regular files.
type archiveResult struct {
	index   int
	relPath string
	entry   *entry.Entry
	content io.ReadCloser
	err     error
}

// collectFiles walks sourceDir without following symlinks. The root
// itself is not included.
func collectFiles(fsys billy.Filesystem, sourceDir string) ([]fileJob, error) {
	var files []fileJob
	err := util.Walk(fsys, sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.Wrapf(err, errors.CodeIO, "walk failed at %s", path)
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return errors.Wrapf(err, errors.CodeIO, "relative path for %s", path)
		}
		if rel == "." {
			return nil
		}
		files = append(files, fileJob{
			index:   len(files),
			path:    path,
			relPath: filepath.ToSlash(rel),
			info:    info,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// archiveWithConcurrency prepares entries on a worker pool and writes them
// in walk order.
func (a *Archiver) archiveWithConcurrency(ctx context.Context, files []fileJob, w *archive.Writer, c *copier) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan fileJob)
	results := make(chan archiveResult, a.workers)

	var wg sync.WaitGroup
	for i := 0; i < min(a.workers, max(len(files), 1)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.worker(ctx, jobs, results)
		}()
	}

	go func() {
		defer close(jobs)
		for _, f := range files {
			select {
			case jobs <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	pending := make(map[int]archiveResult)
	next := 0
	var firstErr error
	for result := range results {
		if firstErr != nil {
			closeContent(result)
			continue
		}
		pending[result.index] = result
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if err := a.writeEntry(ctx, w, r, c); err != nil {
				firstErr = err
				cancel()
				break
			}
		}
	}
	for _, r := range pending {
		closeContent(r)
	}
	if firstErr != nil {
		return firstErr
	}
	return isDone(ctx, "archiving")
}

func (a *Archiver) worker(ctx context.Context, jobs <-chan fileJob, results chan<- archiveResult) {
	for job := range jobs {
		result := a.prepare(job)
		select {
		case results <- result:
		case <-ctx.Done():
			closeContent(result)
		}
	}
}

// prepare builds the entry for a job and opens the file body.
func (a *Archiver) prepare(job fileJob) archiveResult {
	result := archiveResult{index: job.index, relPath: job.relPath}
	e := entry.FromFileInfo(job.relPath, job.info)

	switch {
	case job.info.Mode()&os.ModeSymlink != 0:
		target, err := a.fs.Readlink(job.path)
		if err != nil {
			result.err = errors.Wrapf(err, errors.CodeIO, "read symlink %s", job.path)
			return result
		}
		e.SetSymlink(filepath.ToSlash(target))
	case job.info.Mode().IsRegular():
		file, err := a.fs.Open(job.path)
		if err != nil {
			result.err = errors.Wrapf(err, errors.CodeIO, "open %s", job.path)
			return result
		}
		result.content = file
	}
	result.entry = e
	return result
}

// writeEntry writes one prepared result. Warnings are logged. A failed
// entry is skipped. Fatal errors are returned.
func (a *Archiver) writeEntry(ctx context.Context, w *archive.Writer, r archiveResult, c *copier) error {
	defer closeContent(r)
	if err := isDone(ctx, "archiving"); err != nil {
		return err
	}
	if r.err != nil {
		return r.err
	}

	log := a.logger.WithEntry(r.relPath)
	if err := w.WriteHeader(r.entry); err != nil {
		switch {
		case errors.IsWarning(err):
			log.Warn(ctx, "entry written with warning", "error", err)
		case errors.IsFailed(err):
			log.Warn(ctx, "entry skipped", "error", err)
			return nil
		default:
			return err
		}
	}

	if r.content != nil {
		if _, err := c.copy(w, r.content); err != nil && !errors.IsFailed(err) {
			return errors.WithContext(err, "entry", r.relPath)
		} else if err != nil {
			log.Warn(ctx, "file changed while archiving", "error", err)
		}
	}

	if err := w.FinishEntry(); err != nil && !errors.IsWarning(err) {
		return err
	}
	return nil
}

func closeContent(r archiveResult) {
	if r.content != nil {
		_ = r.content.Close()
	}
}

// isDone returns a wrapped cancellation error if ctx is done.
func isDone(ctx context.Context, action string) error {
	select {
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), errors.CodeIO, "%s canceled", action)
	default:
		return nil
	}
}

// copier copies entry bodies and reports cumulative progress.
type copier struct {
	current  int64
	total    int64
	progress func(current, total int64)
	buf      []byte
}

func (c *copier) copy(dst io.Writer, src io.Reader) (int64, error) {
	if c.buf == nil {
		c.buf = make([]byte, 32*1024)
	}
	var written int64
	for {
		n, err := src.Read(c.buf)
		if n > 0 {
			m, werr := dst.Write(c.buf[:n])
			written += int64(m)
			c.current += int64(m)
			if c.progress != nil {
				c.progress(c.current, c.total)
			}
			if werr != nil {
				return written, werr
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, errors.Wrap(err, errors.CodeIO, "read file content")
		}
	}
}
