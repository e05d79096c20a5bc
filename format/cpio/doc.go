// Package cpio reads and writes the portable ASCII cpio formats.
//
// Three header variants are read: odc (magic 070707, octal fields), newc
// (070701, hexadecimal fields, 4-byte alignment) and newc with a data
// checksum (070702). The writer produces odc or newc. Symbolic link
// targets are stored as the entry body and the archive ends with an entry
// named TRAILER!!!.
package cpio
