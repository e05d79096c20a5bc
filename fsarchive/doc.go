// Package fsarchive packs a directory tree from a go-billy filesystem into
// an archive and extracts archives back into one.
//
// Archives are produced and consumed with the archive package, so any
// writable format and compression can be used for packing and any readable
// format is detected on extraction:
//
//	a := fsarchive.New(memfs.New(),
//		fsarchive.WithFormat(format.CpioNewc),
//		fsarchive.WithCompression(compressor.Zstd))
//	if err := a.Archive(ctx, "project", &buf); err != nil {
//		return err
//	}
//
// Extraction is guarded by a validator chain. Member names are checked for
// traversal and absolute paths, symlink targets must resolve inside the
// target directory, and ExtractOptions bound the number of files and the
// number of bytes written:
//
//	opts := fsarchive.DefaultExtractOptions
//	opts.FilesToExtract = []string{"**/*.json"}
//	err := a.Extract(ctx, &buf, "out", opts)
package fsarchive
