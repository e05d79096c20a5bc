// Package archive reads and writes archives through a stack of
// compression filters and a container format.
//
// Reading is driven by two auctions. Compression filters bid on the raw
// stream until no bidder is interested, stacking one decoder per round
// (gzip, bzip2, xz, lzma, zstd, lz4, compress, uuencode or an external
// program). The container formats (zip, cpio, ar, mtree and optionally
// raw) then bid on the decoded bytes and the winner yields entries.
//
// Writing wires a container format into a compressor that re-blocks the
// output into fixed size blocks and pads the final one.
//
// Errors carry an ordered severity (see the errors package). A warning
// still delivers its entry or data, a failed entry may be skipped, and a
// fatal error is sticky: every later call on the same Reader or Writer
// returns it.
//
// Basic usage:
//
//	r, err := archive.NewReader(f)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//	for {
//	    e, err := r.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil && !errors.IsWarning(err) {
//	        return err
//	    }
//	    io.Copy(dst, r)
//	}
//
//	w, err := archive.NewWriter(out,
//	    archive.WithFormat(format.Zip),
//	    archive.WithOptions("zip:compression=store"),
//	)
package archive
