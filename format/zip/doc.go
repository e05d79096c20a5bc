// Package zip implements the ZIP container for streaming read and write.
//
// The reader walks local file headers front to back and never consults the
// central directory, so it works on pipes. Entries whose sizes were not
// known when they were written (general purpose flag bit 3) end with a data
// descriptor. Deflate entries find their end through the deflate stream
// itself; other methods locate the descriptor by scanning for a signature
// whose compressed size field matches the bytes seen so far.
//
// The writer always sets flag bit 3 and writes a data descriptor after
// every entry, then the central directory and the end of central directory
// record on Close. Supported methods are store (0), deflate (8, default),
// bzip2 (12), lzma (14), zstd (93) and xz (95).
//
// Recognized extra fields: zip64 sizes (0x0001), extended timestamp
// (0x5455), Info-ZIP Unix (0x5855, 0x7855, 0x7875), ASi Unix (0x756e) and
// Info-ZIP Unicode path (0x7075).
package zip
