package ymodem

import "strconv"

// Control bytes. All single-byte, per the wire format.
const (
	SOH byte = 0x01 // 128-byte payload packet
	STX byte = 0x02 // 1024-byte payload packet
	EOT byte = 0x04 // end of transmission
	ACK byte = 0x06 // acknowledge
	NAK byte = 0x15 // negative acknowledge
	CAN byte = 0x18 // cancel
	C   byte = 0x43 // 'C', CRC-mode request
	SUB byte = 0x1A // padding byte for short final payloads
)

// CanSendCount is the number of consecutive CAN bytes that constitute an
// abort signal. The core never emits this burst itself; the constant is
// retained so callers building an abort path on top of the Transport
// have the right number to use.
const CanSendCount = 7

const (
	payloadSmall = 128
	payloadLarge = 1024

	// headerSize is [HDR][SEQ][~SEQ].
	headerSize = 3
	// crcSize is [CRC_HI][CRC_LO].
	crcSize = 2

	maxPacketSize = headerSize + payloadLarge + crcSize // 1029
)

// FrameKind classifies the first byte of an inbound packet or control
// sequence.
type FrameKind int

const (
	FrameOther FrameKind = iota
	FrameSOH
	FrameSTX
	FrameEOT
	FrameACK
	FrameNAK
	FrameCAN
	FrameC
)

// parseHeader classifies a single leading byte.
func parseHeader(b byte) FrameKind {
	switch b {
	case SOH:
		return FrameSOH
	case STX:
		return FrameSTX
	case EOT:
		return FrameEOT
	case ACK:
		return FrameACK
	case NAK:
		return FrameNAK
	case CAN:
		return FrameCAN
	case C:
		return FrameC
	default:
		return FrameOther
	}
}

// expectedPayloadSize returns the payload length implied by a header
// byte, or 0 if hdr is not SOH or STX.
func expectedPayloadSize(hdr byte) int {
	switch hdr {
	case SOH:
		return payloadSmall
	case STX:
		return payloadLarge
	default:
		return 0
	}
}

// buildPacket emits [header][seq][~seq][payload...][crc_hi][crc_lo] into
// out, which must have capacity for headerSize+len(payload)+crcSize, and
// returns the number of bytes written. payload must be exactly 128 or
// 1024 bytes.
func buildPacket(header byte, seq byte, payload []byte, out []byte) (int, error) {
	n := len(payload)
	if n != payloadSmall && n != payloadLarge {
		return 0, NewError(WrongDataSize, "payload must be 128 or 1024 bytes")
	}
	total := headerSize + n + crcSize
	if len(out) < total {
		return 0, NewError(WrongDataSize, "output buffer too small")
	}
	out[0] = header
	out[1] = seq
	out[2] = seq ^ 0xFF
	copy(out[headerSize:], payload)
	crc := crc16Of(payload)
	out[headerSize+n] = byte(crc >> 8)
	out[headerSize+n+1] = byte(crc)
	return total, nil
}

// validatePacket checks the sequence complement and CRC of a fully
// received packet (header byte already consumed and known from hdr) and
// returns the sequence number and the payload slice.
//
// buf is [seq][~seq][payload...][crc_hi][crc_lo], i.e. the header byte is
// not included.
func validatePacket(hdr byte, buf []byte) (seq byte, payload []byte, err error) {
	n := expectedPayloadSize(hdr)
	want := 2 + n + crcSize
	if len(buf) != want {
		return 0, nil, NewError(WrongDataSize, "short packet body")
	}
	seq = buf[0]
	if buf[1] != seq^0xFF {
		return 0, nil, NewError(WrongSequence, "sequence complement mismatch")
	}
	payload = buf[2 : 2+n]
	gotCRC := uint16(buf[2+n])<<8 | uint16(buf[3+n])
	if crc16Of(payload) != gotCRC {
		return seq, payload, NewError(WrongCrc, "crc mismatch")
	}
	return seq, payload, nil
}

// buildFileInfoPacket lays out packet 0's 128-byte payload: filename,
// NUL terminator, then the ASCII decimal file size, zero-padded to 128
// bytes. A zero-length name (both fields empty) produces the
// batch-terminator payload.
func buildFileInfoPacket(name string, size int64) ([]byte, error) {
	payload := make([]byte, payloadSmall)
	if name == "" {
		return payload, nil
	}
	if len(name) >= payloadSmall {
		return nil, NewError(WrongDataSize, "filename too long")
	}
	sizeStr := strconv.FormatInt(size, 10)
	// name + NUL + sizeStr must fit in the 128-byte payload.
	if len(name)+1+len(sizeStr) >= payloadSmall {
		return nil, NewError(WrongDataSize, "filename and size overflow packet 0")
	}
	copy(payload, name)
	payload[len(name)] = 0
	copy(payload[len(name)+1:], sizeStr)
	return payload, nil
}

// parseFileInfoPacket parses packet 0's payload into a name and size. An
// empty name (first byte is NUL) signals the batch terminator.
func parseFileInfoPacket(payload []byte) (name string, size int64, err error) {
	nul := -1
	for i, b := range payload {
		if b == 0 {
			nul = i
			break
		}
	}
	if nul < 0 {
		return "", 0, NewError(FileError, "file-info packet missing NUL terminator")
	}
	if nul == 0 {
		return "", 0, nil
	}
	name = string(payload[:nul])
	size = 0
	for i := nul + 1; i < len(payload); i++ {
		d := payload[i]
		if d < '0' || d > '9' {
			break
		}
		size = size*10 + int64(d-'0')
	}
	return name, size, nil
}
