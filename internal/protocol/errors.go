// Package protocol collects the decoder status codes and sentinel errors
// shared by the framed-protocol packages (ubx, nmea, hxv, n2k, lpms, mp),
// per §7's error-kind taxonomy: out-of-data is not an error, resync
// advances one byte and continues, and I/O errors are fatal for the
// producing source.
package protocol

import "errors"

// Status codes written onto decoder-status messages, never enqueued to
// the writer. Mirrors the 0xFF/0xFD/0xEE/0xAA convention described for
// the UBX and LPMS decoders and reused across the family.
const (
	StatusNeedMore = 0xFF // not enough bytes buffered yet
	StatusZeroRead = 0xFD // a zero-byte read; treated as EOF on files
	StatusInvalid  = 0xEE // sync found but checksum/trailer/length invalid
	StatusIOError  = 0xAA // underlying I/O error (or allocation failure)
)

// ErrNeedMore indicates the decoder has a partial frame buffered and must
// wait for more bytes before it can make progress. Not an error: the
// calling loop should read more and retry.
var ErrNeedMore = errors.New("protocol: need more data")

// ErrZeroRead indicates a zero-byte read was observed; on a file this
// means EOF, on a live link it may mean a stalled peer.
var ErrZeroRead = errors.New("protocol: zero-byte read")
