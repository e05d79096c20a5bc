package fsarchive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-git/go-billy/v5"

	"github.com/jmgilman/go/archive"
	"github.com/jmgilman/go/archive/entry"
	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/internal/validate"
)

// Extract reads an archive of any supported format and compression from
// input and recreates its entries below targetDir.
//
// Every entry passes the validator chain first; a rejected entry aborts
// the extraction with a CodeSecurity error. Devices, FIFOs and sockets are
// skipped. Integrity warnings from the reader are logged and extraction
// continues. Entries that failed to decode are skipped.
func (a *Archiver) Extract(ctx context.Context, input io.Reader, targetDir string, opts ExtractOptions) error {
	if input == nil {
		return errors.New(errors.CodeInvalidConfig, "input reader cannot be nil")
	}
	if targetDir == "" {
		return errors.New(errors.CodeInvalidConfig, "target directory cannot be empty")
	}
	for _, pattern := range opts.FilesToExtract {
		if !doublestar.ValidatePattern(pattern) {
			return errors.Newf(errors.CodeInvalidConfig, "invalid extract pattern %q", pattern)
		}
	}

	r, err := archive.NewReader(input, append([]archive.ReaderOption{
		archive.WithReaderLogger(a.slog),
	}, a.readerOpts...)...)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := a.fs.MkdirAll(targetDir, 0o755); err != nil {
		return errors.Wrapf(err, errors.CodeIO, "create target directory %s", targetDir)
	}

	x := &extraction{
		a:         a,
		r:         r,
		targetDir: targetDir,
		opts:      opts,
		paths:     NewPathTraversalValidator(opts.AllowHiddenFiles),
		perms:     NewPermissionSanitizer(),
	}
	x.validators = NewValidatorChain(
		x.paths,
		NewSizeValidator(opts.MaxFileSize, opts.MaxSize),
		NewFileCountValidator(opts.MaxFiles),
		x.perms,
	)

	for {
		if err := isDone(ctx, "extraction"); err != nil {
			return err
		}
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		switch {
		case err == nil:
		case errors.IsWarning(err):
			a.logger.WithEntry(e.Pathname()).Warn(ctx, "entry header warning", "error", err)
		case errors.IsFailed(err):
			a.logger.WithEntry(e.Pathname()).Warn(ctx, "entry skipped", "error", err)
			continue
		default:
			return err
		}
		if err := x.handleEntry(ctx, e); err != nil {
			return err
		}
	}

	a.logger.Info(ctx, "archive extracted",
		"target", targetDir,
		"format", r.Format(),
		"filters", r.Filters(),
		"files", x.fileCount,
		"bytes", x.totalSize)
	return nil
}

// extraction is the state of one Extract call.
type extraction struct {
	a          *Archiver
	r          *archive.Reader
	targetDir  string
	opts       ExtractOptions
	validators *ValidatorChain
	paths      *PathTraversalValidator
	perms      *PermissionSanitizer

	fileCount int
	totalSize int64
}

// handleEntry validates one entry and dispatches by file type.
func (x *extraction) handleEntry(ctx context.Context, e *entry.Entry) error {
	name := e.Pathname()
	if err := x.validators.ValidatePath(name); err != nil {
		return err
	}

	rel, ok := x.resolveName(name)
	if !ok {
		x.a.logger.WithEntry(name).Debug(ctx, "entry not selected")
		return nil
	}
	if rel == "." {
		return nil
	}

	x.fileCount++
	x.totalSize += e.Size()
	if err := x.validators.ValidateFile(FileInfo{Name: name, Size: e.Size(), Mode: e.Mode()}); err != nil {
		return err
	}
	if err := x.validators.ValidateArchive(ArchiveStats{TotalFiles: x.fileCount, TotalSize: x.totalSize}); err != nil {
		return err
	}

	if err := x.checkParents(name, rel); err != nil {
		return err
	}
	fullPath := x.a.fs.Join(x.targetDir, rel)
	if err := x.ensureParentDir(fullPath); err != nil {
		return err
	}
	if !e.IsSymlink() {
		if err := x.replaceSymlink(fullPath); err != nil {
			return err
		}
	}

	switch {
	case e.Hardlink() != "":
		return x.extractHardlink(ctx, e, fullPath)
	case e.IsDir():
		return x.extractDir(e, fullPath)
	case e.IsRegular():
		return x.extractRegularFile(ctx, e, fullPath)
	case e.IsSymlink():
		return x.extractSymlink(e, fullPath)
	default:
		x.a.logger.WithEntry(name).Debug(ctx, "special file skipped", "mode", e.Mode())
		return nil
	}
}

// resolveName applies StripPrefix and FilesToExtract. It reports false
// when the entry is not selected.
func (x *extraction) resolveName(name string) (string, bool) {
	rel := validate.Clean(name)
	if x.opts.StripPrefix != "" {
		if stripped, ok := validate.StripPrefix(rel, x.opts.StripPrefix); ok {
			rel = stripped
		}
	}
	if len(x.opts.FilesToExtract) == 0 {
		return rel, true
	}
	for _, pattern := range x.opts.FilesToExtract {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return rel, true
		}
	}
	return rel, false
}

func (x *extraction) fileMode(e *entry.Entry, fallback os.FileMode) os.FileMode {
	if !x.opts.PreservePerms {
		return fallback
	}
	return os.FileMode(x.perms.SanitizePermissions(e.Perm()) & 0o777)
}

// checkParents refuses entries below a directory that an earlier entry
// created as a symlink. Writing through it would follow the link.
func (x *extraction) checkParents(name, rel string) error {
	parts := strings.Split(rel, "/")
	dir := x.targetDir
	for _, part := range parts[:len(parts)-1] {
		dir = x.a.fs.Join(dir, part)
		info, err := x.a.fs.Lstat(dir)
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, errors.CodeIO, "stat %s", dir)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return violation(name, "entry %q is below symlink %s", name, dir)
		}
	}
	return nil
}

// replaceSymlink removes a symlink left at fullPath by an earlier entry so
// the new file or directory is created in its place.
func (x *extraction) replaceSymlink(fullPath string) error {
	info, err := x.a.fs.Lstat(fullPath)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	if err := x.a.fs.Remove(fullPath); err != nil {
		return errors.Wrapf(err, errors.CodeIO, "remove symlink %s", fullPath)
	}
	return nil
}

func (x *extraction) ensureParentDir(fullPath string) error {
	dir := filepath.Dir(fullPath)
	if err := x.a.fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, errors.CodeIO, "create directory for %s", fullPath)
	}
	return nil
}

func (x *extraction) extractDir(e *entry.Entry, fullPath string) error {
	if err := x.a.fs.MkdirAll(fullPath, x.fileMode(e, 0o755)); err != nil {
		return errors.Wrapf(err, errors.CodeIO, "create directory %s", fullPath)
	}
	return nil
}

func (x *extraction) extractRegularFile(ctx context.Context, e *entry.Entry, fullPath string) error {
	file, err := x.a.fs.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, x.fileMode(e, 0o644))
	if err != nil {
		return errors.Wrapf(err, errors.CodeIO, "create file %s", fullPath)
	}
	werr := x.copyBody(ctx, e, file)
	cerr := file.Close()
	if werr != nil {
		return werr
	}
	if cerr != nil {
		return errors.Wrapf(cerr, errors.CodeIO, "close file %s", fullPath)
	}
	x.setTimes(e, fullPath)
	return nil
}

// copyBody copies the entry data to dst. Bytes beyond the declared size
// count toward the limits as they arrive, so entries without a size in
// their header are bounded too.
func (x *extraction) copyBody(ctx context.Context, e *entry.Entry, dst io.Writer) error {
	buf := make([]byte, 32*1024)
	var written, counted int64
	for {
		n, err := x.r.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return errors.Wrapf(werr, errors.CodeIO, "write %s", e.Pathname())
			}
			written += int64(n)
			if over := written - e.Size(); over > counted {
				x.totalSize += over - counted
				counted = over
				if err := x.validators.ValidateFile(FileInfo{Name: e.Pathname(), Size: written, Mode: e.Mode()}); err != nil {
					return err
				}
				if err := x.validators.ValidateArchive(ArchiveStats{TotalFiles: x.fileCount, TotalSize: x.totalSize}); err != nil {
					return err
				}
			}
		}
		switch {
		case err == nil:
		case err == io.EOF:
			return nil
		case errors.IsWarning(err):
			x.a.logger.WithEntry(e.Pathname()).Warn(ctx, "entry data warning", "error", err)
		case errors.IsFailed(err):
			x.a.logger.WithEntry(e.Pathname()).Warn(ctx, "entry data incomplete", "error", err)
			return nil
		default:
			return err
		}
	}
}

func (x *extraction) extractSymlink(e *entry.Entry, fullPath string) error {
	target := e.Symlink()
	if err := x.paths.ValidateSymlink(e.Pathname(), target); err != nil {
		return err
	}
	_ = x.a.fs.Remove(fullPath)
	if err := x.a.fs.Symlink(target, fullPath); err != nil {
		return errors.Wrapf(err, errors.CodeIO, "create symlink %s -> %s", fullPath, target)
	}
	return nil
}

// extractHardlink copies the already extracted target. billy has no hard
// links. An entry that carries its own data is written as a regular file.
func (x *extraction) extractHardlink(ctx context.Context, e *entry.Entry, fullPath string) error {
	target := e.Hardlink()
	if err := x.paths.ValidatePath(target); err != nil {
		return err
	}
	if e.Size() > 0 {
		return x.extractRegularFile(ctx, e, fullPath)
	}
	rel, _ := x.resolveName(target)
	if err := x.checkParents(e.Pathname(), rel); err != nil {
		return err
	}
	src, err := x.a.fs.Open(x.a.fs.Join(x.targetDir, rel))
	if err != nil {
		x.a.logger.WithEntry(e.Pathname()).Warn(ctx, "hardlink target missing", "target", target)
		return nil
	}
	defer src.Close()

	info, err := x.a.fs.Stat(src.Name())
	if err != nil {
		return errors.Wrapf(err, errors.CodeIO, "stat %s", src.Name())
	}
	dst, err := x.a.fs.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Wrapf(err, errors.CodeIO, "create file %s", fullPath)
	}
	n, err := io.Copy(dst, src)
	cerr := dst.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, errors.CodeIO, "copy hardlink %s", fullPath)
	}
	x.totalSize += n
	return x.validators.ValidateArchive(ArchiveStats{TotalFiles: x.fileCount, TotalSize: x.totalSize})
}

// setTimes applies the entry mtime when the filesystem supports it.
func (x *extraction) setTimes(e *entry.Entry, fullPath string) {
	change, ok := x.a.fs.(billy.Change)
	if !ok || !e.HasMtime() {
		return
	}
	_ = change.Chtimes(fullPath, e.Mtime(), e.Mtime())
}
