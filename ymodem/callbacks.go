package ymodem

import "time"

// FileHandle is the opaque handle file_open returns; it is passed back
// unchanged to file_read/file_write/file_close/file_size.
type FileHandle interface{}

// FileCallbacks is the file-system collaborator, consumed as open/read/
// write/close/size operations.
type FileCallbacks struct {
	// Open opens path for reading (writing=false) or creates it for
	// writing (writing=true). A nil handle with a nil error is treated
	// as failure (FileError).
	Open func(path string, writing bool) (FileHandle, error)

	// Read fills out and returns the number of bytes read. A zero
	// return (with nil error) signals end of file.
	Read func(h FileHandle, out []byte) (int, error)

	// Write writes data and returns the number of bytes written. A
	// short write (n < len(data)) is fatal.
	Write func(h FileHandle, data []byte) (int, error)

	// Close releases h. Called exactly once per successfully opened
	// handle, on every exit path.
	Close func(h FileHandle) error

	// Size returns the total file size. Called once at open time by
	// the sender; never called by the receiver. Implementations must
	// report the total size, not bytes remaining.
	Size func(h FileHandle) (int64, error)
}

// CommCallbacks is the transport collaborator in plain function-pointer
// shape, for callers that would rather hand the core two functions than
// implement Transport directly.
type CommCallbacks struct {
	// Send writes data and returns the number of bytes actually
	// written; must equal len(data) to be considered successful.
	Send func(data []byte) (int, error)

	// Receive fills out (up to max = len(out)) within timeoutMs,
	// returning the number of bytes actually delivered (0 on timeout).
	Receive func(out []byte, timeoutMs uint32) (int, error)
}

// funcTransport adapts a CommCallbacks pair to the Transport interface.
type funcTransport struct {
	cb CommCallbacks
}

// NewTransportFromCallbacks builds a Transport from raw send/receive
// callbacks.
func NewTransportFromCallbacks(cb CommCallbacks) Transport {
	return &funcTransport{cb: cb}
}

func (f *funcTransport) Send(data []byte) (int, error) {
	return f.cb.Send(data)
}

func (f *funcTransport) Receive(out []byte, timeout time.Duration) (int, error) {
	return f.cb.Receive(out, uint32(timeout.Milliseconds()))
}

// ProgressFunc is the progress callback shape shared by Sender, Receiver,
// and Session configuration.
type ProgressFunc func(filename string, transferred, total int64, rate float64)
