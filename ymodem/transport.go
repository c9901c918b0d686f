package ymodem

import "time"

// Transport is the byte-stream collaborator a Context is built on: a
// caller-supplied pair of send/receive operations. It is the only thing
// in the core that ever touches raw wire bytes.
type Transport interface {
	// Send writes data and returns the number of bytes actually
	// accepted. A short write is treated as failure by the adapter.
	Send(data []byte) (int, error)

	// Receive reads up to len(out) bytes, blocking at most timeout
	// before returning whatever arrived (possibly 0 bytes, which the
	// adapter maps to Timeout).
	Receive(out []byte, timeout time.Duration) (int, error)
}

// adapter wraps a Transport with the single-byte and multi-byte
// operations the sender and receiver state machines call, plus debug
// tracing of raw bytes through a Logger. This is the sole place that
// invokes Transport and the sole place that logs wire traffic.
type adapter struct {
	t      Transport
	logger Logger
}

func newAdapter(t Transport, logger Logger) *adapter {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &adapter{t: t, logger: logger}
}

// sendByte sends a single byte, returning true iff it was accepted.
func (a *adapter) sendByte(b byte) bool {
	n, err := a.t.Send([]byte{b})
	ok := err == nil && n == 1
	if ok {
		a.logger.Debug("tx 1 byte: %02x", b)
	} else {
		a.logger.Error("tx byte %02x failed: %v", b, err)
	}
	return ok
}

// sendBytes sends buf in full, returning true iff every byte was
// accepted.
func (a *adapter) sendBytes(buf []byte) bool {
	n, err := a.t.Send(buf)
	ok := err == nil && n == len(buf)
	if ok {
		a.logger.Debug("tx %d bytes", len(buf))
	} else {
		a.logger.Error("tx %d bytes failed (wrote %d): %v", len(buf), n, err)
	}
	return ok
}

// recvByte waits up to timeout for a single byte. A zero-byte read maps
// to a Timeout error.
func (a *adapter) recvByte(timeout time.Duration) (byte, error) {
	var buf [1]byte
	n, err := a.t.Receive(buf[:], timeout)
	if err != nil {
		a.logger.Error("rx byte failed: %v", err)
		return 0, WrapError(Timeout, "receive failed", err)
	}
	if n == 0 {
		return 0, NewError(Timeout, "no byte received")
	}
	a.logger.Debug("rx 1 byte: %02x", buf[0])
	return buf[0], nil
}

// recvBytes reads up to len(out) bytes, bounded by timeout. Partial
// reads are allowed; callers check the returned count.
func (a *adapter) recvBytes(out []byte, timeout time.Duration) (int, error) {
	n, err := a.t.Receive(out, timeout)
	if err != nil {
		a.logger.Error("rx %d bytes failed: %v", len(out), err)
		return n, WrapError(Timeout, "receive failed", err)
	}
	if n > 0 {
		a.logger.Debug("rx %d/%d bytes", n, len(out))
	}
	return n, nil
}

// recvFull reads exactly len(out) bytes, issuing repeated Receive calls
// against a single overall deadline until out is filled or time runs
// out.
func (a *adapter) recvFull(out []byte, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	total := 0
	for total < len(out) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return NewError(Timeout, "timed out filling packet body")
		}
		n, err := a.recvBytes(out[total:], remaining)
		if err != nil {
			return err
		}
		if n == 0 {
			return NewError(Timeout, "no progress filling packet body")
		}
		total += n
	}
	return nil
}
