// Package raw treats a whole stream as the body of a single entry.
//
// The reader is the fallback format: it bids the lowest possible value and
// returns one regular entry named "data" whose size is unknown. It is only
// offered to the auction when the caller asks for it. The writer accepts
// exactly one regular entry and copies its body through unchanged, which
// combined with a compression backend makes a plain compressor.
package raw
