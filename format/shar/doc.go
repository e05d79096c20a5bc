// Package shar writes POSIX shell archives.
//
// A shar archive is a /bin/sh script that recreates the archived tree when
// run. Regular files are embedded as "sed 's/^X//'" here-documents, so only
// text survives the trip. The shardump variant uuencodes every body instead
// and restores ownership and permissions, which makes it suitable for
// binary content. There is no reader: a shell archive is unpacked by a
// shell.
package shar
