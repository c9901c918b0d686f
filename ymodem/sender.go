package ymodem

import (
	"path/filepath"
	"time"
)

// Sender drives the sender half of a transfer over a Context.
type Sender struct {
	ctx      *Context
	progress *ProgressTracker
}

// NewSender wraps ctx in a Sender. ctx must have been built by InitSend.
func NewSender(ctx *Context) *Sender {
	return &Sender{ctx: ctx}
}

// SetProgress attaches a progress tracker; optional.
func (s *Sender) SetProgress(pt *ProgressTracker) { s.progress = pt }

// bumpRetry records one retried data packet against the attached
// progress tracker, if any.
func (s *Sender) bumpRetry() {
	if s.progress != nil {
		s.progress.Retry()
	}
}

// Send transfers the file at path to the peer. On success ctx.Stage() is
// StageFinished; on failure, the returned error's Kind is one of the
// nine ErrorKind values and ctx.Stage() is left at its failure point.
// The file handle is always closed before Send returns.
func (s *Sender) Send(path string) error {
	c := s.ctx
	defer c.Cleanup()

	c.stage = StageEstablishing

	handle, err := c.files.Open(path, false)
	if err != nil || handle == nil {
		return WrapError(FileError, "open failed", err)
	}
	c.handle = handle

	size, err := c.files.Size(handle)
	if err != nil {
		return WrapError(FileError, "size failed", err)
	}
	c.fileSize = size

	name := filepath.Base(path)
	if len(name) >= c.config.MaxFilenameLength || len(name) >= payloadSmall {
		return NewError(WrongDataSize, "filename too long")
	}
	c.filename = name

	if s.progress != nil {
		s.progress.Start(name, size)
	}

	if err := s.establish(); err != nil {
		return err
	}
	c.stage = StageEstablished

	if err := s.sendFileInfo(name, size); err != nil {
		return err
	}
	if err := s.waitAckAndC(); err != nil {
		return err
	}
	c.stage = StageTransmitting

	if err := s.sendData(); err != nil {
		return err
	}

	c.stage = StageFinishing
	if err := s.finish(); err != nil {
		return err
	}
	c.stage = StageFinished

	if s.progress != nil {
		s.progress.Complete()
	}
	return nil
}

// establish waits for the receiver's initial 'C', re-polling every
// HandshakeInterval until HandshakeTimeout elapses.
func (s *Sender) establish() error {
	c := s.ctx
	deadline := time.Now().Add(c.config.HandshakeTimeout)
	for time.Now().Before(deadline) {
		b, err := c.io.recvByte(c.config.HandshakeInterval)
		if err == nil && b == C {
			return nil
		}
	}
	return NewError(Timeout, "handshake timed out waiting for C")
}

// sendFileInfo builds and sends packet 0.
func (s *Sender) sendFileInfo(name string, size int64) error {
	c := s.ctx
	payload, err := buildFileInfoPacket(name, size)
	if err != nil {
		return err
	}
	n, err := buildPacket(SOH, 0, payload, c.buf)
	if err != nil {
		return err
	}
	if !c.io.sendBytes(c.buf[:n]) {
		return NewError(WrongCode, "failed to send file-info packet")
	}
	return nil
}

// waitAckAndC accepts the receiver's ACK and C in either order, within
// up to five receive attempts each bounded by WaitPacketTimeout. A bare
// C is treated as ACK+C (the ACK assumed lost).
func (s *Sender) waitAckAndC() error {
	c := s.ctx
	gotACK, gotC := false, false
	for attempt := 0; attempt < 5; attempt++ {
		b, err := c.io.recvByte(c.config.WaitPacketTimeout)
		if err != nil {
			continue
		}
		switch b {
		case ACK:
			gotACK = true
		case C:
			gotC = true
			gotACK = true // a bare C absorbs a lost ACK
		case CAN:
			return NewError(Cancelled, "peer cancelled during handshake")
		}
		if gotACK && gotC {
			return nil
		}
	}
	return NewError(AckError, "did not see ACK and C within handshake budget")
}

// sendData runs the Transmitting loop: read up to 1024 bytes per
// packet, pad short final reads with SUB, and retry per packet up to
// MaxErrors.
func (s *Sender) sendData() error {
	c := s.ctx
	seq := byte(1)
	data := make([]byte, payloadLarge)
	first := true
	var total int64

	for {
		n, err := s.fillBlock(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil // end of file
		}

		header := STX
		payload := data
		if n <= payloadSmall {
			header = SOH
			payload = data[:payloadSmall]
		}
		if n < len(payload) {
			for i := n; i < len(payload); i++ {
				payload[i] = SUB
			}
		}

		pktLen, err := buildPacket(header, seq, payload, c.buf)
		if err != nil {
			return err
		}

		retries := 0
		for {
			if !c.io.sendBytes(c.buf[:pktLen]) {
				retries++
				s.bumpRetry()
				if retries >= c.config.MaxErrors {
					return NewError(AckError, "failed to send data packet")
				}
				continue
			}

			b, err := c.io.recvByte(c.config.WaitPacketTimeout)
			if err != nil {
				retries++
				s.bumpRetry()
				if retries >= c.config.MaxErrors {
					return NewError(AckError, "no reply to data packet")
				}
				continue
			}

			switch b {
			case ACK:
				seq = seq + 1
				first = false
				total += int64(n)
				if s.progress != nil {
					s.progress.Update(total)
				}
			case C:
				if !first {
					retries++
					s.bumpRetry()
					if retries >= c.config.MaxErrors {
						return NewError(AckError, "unexpected C mid-transfer")
					}
					continue
				}
				seq = seq + 1
				first = false
				total += int64(n)
				if s.progress != nil {
					s.progress.Update(total)
				}
			case NAK:
				retries++
				s.bumpRetry()
				if retries >= c.config.MaxErrors {
					return NewError(AckError, "too many NAKs for data packet")
				}
				continue
			case CAN:
				return NewError(Cancelled, "peer cancelled transfer")
			default:
				retries++
				s.bumpRetry()
				if retries >= c.config.MaxErrors {
					return NewError(AckError, "unexpected reply to data packet")
				}
				continue
			}
			break
		}

		if n < payloadLarge {
			return nil // short block: this was the last data packet
		}
	}
}

// fillBlock reads up to len(out) bytes from the file, allowing up to 10
// underlying reads to fill a full block (callers may return short). A
// first read of zero signals end of file.
func (s *Sender) fillBlock(out []byte) (int, error) {
	c := s.ctx
	total := 0
	for attempt := 0; attempt < 10 && total < len(out); attempt++ {
		n, err := c.files.Read(c.handle, out[total:])
		if err != nil {
			return 0, WrapError(FileError, "read failed", err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// finish runs the two-EOT handshake and sends the batch-terminator
// file-info packet.
func (s *Sender) finish() error {
	c := s.ctx

	// First EOT, expect NAK.
	ok := false
	for attempt := 0; attempt < c.config.MaxErrors; attempt++ {
		if !c.io.sendByte(EOT) {
			continue
		}
		b, err := c.io.recvByte(c.config.WaitPacketTimeout)
		if err == nil && b == NAK {
			ok = true
			break
		}
	}
	if !ok {
		return NewError(AckError, "first EOT not acknowledged with NAK")
	}

	// Second EOT, expect ACK (NAK also accepted as "proceed"). Any other
	// reply, or none at all, is survivable; the sender proceeds anyway.
	c.io.sendByte(EOT)
	c.io.recvByte(c.config.WaitPacketTimeout)

	// Wait for C; a missing C is survivable.
	for attempt := 0; attempt < c.config.MaxErrors; attempt++ {
		b, err := c.io.recvByte(c.config.WaitPacketTimeout)
		if err == nil && b == C {
			break
		}
	}

	// Batch-terminator: an all-zero SOH/SEQ=0 packet.
	payload, _ := buildFileInfoPacket("", 0)
	n, err := buildPacket(SOH, 0, payload, c.buf)
	if err != nil {
		return err
	}
	c.io.sendBytes(c.buf[:n])

	// Final ACK; a missing one is survivable, the transfer is still
	// considered complete.
	c.io.recvByte(c.config.WaitPacketTimeout)

	return nil
}
