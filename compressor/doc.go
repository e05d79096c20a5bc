// Package compressor implements the write-side compression framework.
//
// A Writer feeds uncompressed bytes through a Backend (gzip, bzip2, xz,
// lzma, zstd, lz4, compress, uuencode, an external program or none) into a
// BlockWriter, which hands the client fixed-size blocks.
//
// Block discipline:
//
//   - bytes per block (default 10240): every write to the client is a full
//     block, except the last. Zero or less disables blocking and output is
//     passed through unbuffered.
//   - bytes in last block: -1 or 0 pads the final block to a full block;
//     a positive value pads it to the next multiple of that value instead,
//     never beyond a full block.
//   - pad uncompressed: zeros are fed through the backend at close so the
//     uncompressed length is a multiple of the block size.
//
// A client write that accepts fewer bytes than offered keeps the unwritten
// tail buffered and retries it later. A client write that accepts nothing
// or fails is fatal.
package compressor
