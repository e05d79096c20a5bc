// Package lzw implements the LZW variant used by the Unix compress(1)
// utility (".Z" files).
//
// The standard library's compress/lzw speaks the GIF and PDF dialects, whose
// code width schedule and clear handling differ from compress(1), so it
// cannot read or write .Z streams.
//
// The stream starts with the magic bytes 0x1f 0x9d and a flags byte holding
// the maximum code width (9 to 16) and the block mode bit (0x80). Codes are
// packed least significant bit first. In block mode, code 256 clears the
// dictionary and the decoder skips to the end of the current code group.
package lzw
