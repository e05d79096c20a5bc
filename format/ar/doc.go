// Package ar reads and writes Unix ar archives.
//
// Both common dialects are supported. BSD archives store long names as
// "#1/len" with the name at the start of the member data. GNU/SVR4
// archives end short names with "/", keep long names in a "//" string
// table member and reference them as "/offset". Symbol tables ("/" and
// "__.SYMDEF") are returned as ordinary members.
package ar
