// Package stream provides the Byte Cursor, the read-ahead buffer every
// decoding layer pulls from.
//
// A Cursor lets a decoder look at upcoming bytes before deciding what they
// are (Peek), advance past bytes it has understood (Consume) and jump over
// bodies it does not need (Skip). Skip uses the underlying reader's seek or
// skip capability when it has one and falls back to reading and discarding.
//
//	c := stream.NewCursor(r)
//	hdr, err := c.Peek(30)
//	if err != nil {
//	    return err
//	}
//	if !bytes.HasPrefix(hdr, []byte("PK\x03\x04")) {
//	    return errNotZip
//	}
//	c.Consume(30)
//
// Once the underlying reader fails with an error other than io.EOF the
// cursor is fatal and every later call returns that same error.
package stream
