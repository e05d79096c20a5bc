// Package format defines the contracts between the archive supervisors and
// the container formats, and the read-side format auction.
//
// A Reader decodes entries from the fully decompressed stream. A Writer
// encodes entries into the compressor. Each format lives in its own
// subpackage (zip, cpio, ar, mtree, shar, raw).
package format
