package ymodem

import (
	"path/filepath"
	"time"
)

// FileInfo describes the file a receiver learned about from packet 0.
type FileInfo struct {
	Filename string
	Size     int64
}

// Receiver drives the receiver half of a transfer over a Context.
type Receiver struct {
	ctx      *Context
	progress *ProgressTracker
}

// NewReceiver wraps ctx in a Receiver. ctx must have been built by
// InitRecv.
func NewReceiver(ctx *Context) *Receiver {
	return &Receiver{ctx: ctx}
}

// SetProgress attaches a progress tracker; optional.
func (r *Receiver) SetProgress(pt *ProgressTracker) { r.progress = pt }

// bumpRetry records one retried/NAKed packet against the attached
// progress tracker, if any.
func (r *Receiver) bumpRetry() {
	if r.progress != nil {
		r.progress.Retry()
	}
}

// Receive runs a full transfer, writing the incoming file to the path
// destDir joined with the sender's announced basename (or, if destDir is
// empty, to the basename alone), and returns the FileInfo the sender
// announced. On any exit path the file handle is closed.
func (r *Receiver) Receive(destDir string) (FileInfo, error) {
	c := r.ctx
	defer c.Cleanup()

	c.stage = StageEstablishing

	info, err := r.establishAndReadFileInfo()
	if err != nil {
		return FileInfo{}, err
	}
	c.stage = StageEstablished

	path := info.Filename
	if destDir != "" {
		path = filepath.Join(destDir, info.Filename)
	}
	handle, err := c.files.Open(path, true)
	if err != nil || handle == nil {
		return FileInfo{}, WrapError(FileError, "open for write failed", err)
	}
	c.handle = handle
	c.filename = info.Filename
	c.fileSize = info.Size

	if !c.io.sendByte(ACK) {
		return FileInfo{}, NewError(WrongCode, "failed to ACK file-info packet")
	}
	if !c.io.sendByte(C) {
		return FileInfo{}, NewError(WrongCode, "failed to send C to start data phase")
	}

	if r.progress != nil {
		r.progress.Start(info.Filename, info.Size)
	}

	c.stage = StageTransmitting
	if err := r.receiveData(); err != nil {
		return FileInfo{}, err
	}

	c.stage = StageFinishing
	if err := r.finish(); err != nil {
		return FileInfo{}, err
	}
	c.stage = StageFinished

	if r.progress != nil {
		r.progress.Complete()
	}
	return info, nil
}

// establishAndReadFileInfo sends C until a SOH/STX arrives, then reads
// and validates packet 0.
func (r *Receiver) establishAndReadFileInfo() (FileInfo, error) {
	c := r.ctx
	var first byte
	found := false

	deadline := time.Now().Add(c.config.HandshakeTimeout)
	for time.Now().Before(deadline) {
		c.io.sendByte(C)
		b, err := c.io.recvByte(c.config.HandshakeInterval)
		if err != nil {
			continue
		}
		if b == SOH || b == STX {
			first = b
			found = true
			break
		}
	}
	if !found {
		return FileInfo{}, NewError(Timeout, "handshake timed out waiting for packet 0")
	}

	body := c.buf[:2+expectedPayloadSize(first)+crcSize]
	if err := c.io.recvFull(body, c.config.WaitPacketTimeout); err != nil {
		return FileInfo{}, err
	}
	seq, payload, err := validatePacket(first, body)
	if err != nil {
		return FileInfo{}, err
	}
	if seq != 0 {
		return FileInfo{}, NewError(WrongSequence, "packet 0 must have SEQ=0")
	}

	name, size, err := parseFileInfoPacket(payload)
	if err != nil {
		return FileInfo{}, err
	}
	if name == "" {
		// Unlike the Finishing-stage batch terminator, an empty filename
		// on the very first packet 0 is not a valid outcome: this peer
		// started a transfer, not a batch, and has nothing to receive.
		return FileInfo{}, NewError(FileError, "file-info packet has an empty filename")
	}
	return FileInfo{Filename: name, Size: size}, nil
}

// receiveData runs the Transmitting loop until EOT.
func (r *Receiver) receiveData() error {
	c := r.ctx
	expectedSeq := byte(1)
	var totalWritten int64

	for {
		b, err := c.io.recvByte(c.config.WaitPacketTimeout)
		if err != nil {
			// A sender whose ACK was lost is itself waiting out a timeout
			// before it retransmits, so one quiet interval here is counted
			// against the error budget rather than failing outright.
			c.errCount++
			r.bumpRetry()
			if c.errCount >= c.config.MaxErrors {
				return NewError(Timeout, "timed out waiting for next packet")
			}
			continue
		}

		if b == EOT {
			return nil
		}

		if b != SOH && b != STX {
			c.errCount++
			r.bumpRetry()
			c.io.sendByte(NAK)
			if c.errCount >= c.config.MaxErrors {
				return NewError(WrongCode, "too many invalid packet headers")
			}
			continue
		}

		body := c.buf[:2+expectedPayloadSize(b)+crcSize]
		if err := c.io.recvFull(body, c.config.WaitPacketTimeout); err != nil {
			c.errCount++
			r.bumpRetry()
			c.io.sendByte(NAK)
			if c.errCount >= c.config.MaxErrors {
				return err
			}
			continue
		}

		seq, payload, err := validatePacket(b, body)
		if err != nil {
			c.errCount++
			r.bumpRetry()
			c.io.sendByte(NAK)
			if c.errCount >= c.config.MaxErrors {
				return err
			}
			continue
		}

		if seq != expectedSeq {
			if seq == expectedSeq-1 {
				// A retransmission of the packet just processed, almost
				// always caused by the sender timing out on a lost ACK.
				// Re-ACK it silently rather than NAK: NAKing a duplicate
				// would just provoke another identical retransmission,
				// since the sender has nothing new to send at this seq.
				c.io.sendByte(ACK)
				continue
			}
			c.errCount++
			r.bumpRetry()
			c.io.sendByte(NAK)
			if c.errCount >= c.config.MaxErrors {
				return NewError(WrongSequence, "sustained out-of-sequence packets")
			}
			continue
		}

		c.errCount = 0

		writeLen := len(payload)
		if c.fileSize > 0 && totalWritten+int64(writeLen) >= c.fileSize {
			writeLen = int(c.fileSize - totalWritten)
		}
		n, err := c.files.Write(c.handle, payload[:writeLen])
		if err != nil || n != writeLen {
			return WrapError(FileError, "short or failed write", err)
		}
		totalWritten += int64(writeLen)
		if r.progress != nil {
			r.progress.Update(totalWritten)
		}

		c.io.sendByte(ACK)
		expectedSeq++
	}
}

// finish runs the tolerant finish handshake: NAK the first EOT, accept a
// second EOT (retrying once if needed), ACK it and send C, then accept
// the batch-terminator file-info packet. Once a file has been written, a
// missing final packet or ACK does not fail the transfer.
func (r *Receiver) finish() error {
	c := r.ctx

	c.io.sendByte(NAK)

	sawSecondEOT := false
	for attempt := 0; attempt < 2; attempt++ {
		b, err := c.io.recvByte(c.config.WaitPacketTimeout)
		if err == nil && b == EOT {
			sawSecondEOT = true
			break
		}
		c.io.sendByte(NAK)
	}
	if !sawSecondEOT {
		if c.handle != nil {
			return nil // tolerant: a file was already written
		}
		return NewError(WrongCode, "second EOT not received")
	}

	c.io.sendByte(ACK)
	c.io.sendByte(C)

	for attempt := 0; attempt < c.config.MaxErrors; attempt++ {
		b, err := c.io.recvByte(c.config.WaitPacketTimeout)
		if err != nil {
			continue
		}
		if b != SOH && b != STX {
			continue
		}

		body := c.buf[:2+expectedPayloadSize(b)+crcSize]
		if err := c.io.recvFull(body, c.config.WaitPacketTimeout); err != nil {
			continue
		}
		seq, _, err := validatePacket(b, body)
		if err != nil || seq != 0 {
			continue
		}

		// payload[0] == 0 is the batch terminator; a non-zero first
		// byte starts another file, which this receiver ACKs but does
		// not process, since batching further files isn't supported.
		c.io.sendByte(ACK)
		return nil
	}

	// No valid final packet arrived within the error budget. Tolerant:
	// if a file was already written, the transfer is still complete.
	if c.handle != nil {
		return nil
	}
	return NewError(WrongCode, "batch terminator not received")
}
