// Package entry defines the metadata record that describes one archive member.
//
// An Entry is a property bag. Readers fill it in from a header, writers read
// it to build one. Properties that a format does not record stay unset; the
// Has* accessors report whether a value was ever set.
package entry
