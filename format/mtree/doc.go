// Package mtree reads and writes mtree(5) specification files.
//
// An mtree file describes a tree with one line per entry: an escaped path
// followed by keyword=value pairs. "/set" and "/unset" lines manage
// default keywords, ".." climbs out of a relative directory. Entries carry
// metadata only; reading never returns file contents.
package mtree
