package ymodem

import (
	"bytes"
	"math/rand"
	"testing"
	"time"
)

// chanTransport is an in-process Transport backed by a pair of channels,
// each carrying whole Send() chunks; Receive drains one chunk at a time
// into its own leftover buffer, mirroring how a byte stream delivers
// partial reads. Two linked chanTransports simulate a full-duplex link.
type chanTransport struct {
	out chan []byte
	in  chan []byte

	pending []byte
}

func newLinkedTransports() (a, b *chanTransport) {
	c1 := make(chan []byte, 256)
	c2 := make(chan []byte, 256)
	a = &chanTransport{out: c1, in: c2}
	b = &chanTransport{out: c2, in: c1}
	return a, b
}

func (t *chanTransport) Send(data []byte) (int, error) {
	cp := append([]byte(nil), data...)
	t.out <- cp
	return len(data), nil
}

func (t *chanTransport) Receive(out []byte, timeout time.Duration) (int, error) {
	if len(t.pending) == 0 {
		select {
		case chunk := <-t.in:
			t.pending = chunk
		case <-time.After(timeout):
			return 0, nil
		}
	}
	n := copy(out, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

// testConfig returns a Config with much shorter timeouts than the
// production defaults, so timeout-driven retries in tests resolve in
// milliseconds instead of seconds.
func testConfig() *Config {
	return &Config{
		HandshakeTimeout:  2 * time.Second,
		WaitPacketTimeout: 80 * time.Millisecond,
		HandshakeInterval: 15 * time.Millisecond,
		MaxErrors:         5,
		MaxFilenameLength: 256,
		ProgressInterval:  10 * time.Millisecond,
	}
}

// memSendCallbacks exposes data as a sendable in-memory file.
func memSendCallbacks(data []byte) FileCallbacks {
	type state struct {
		pos int
	}
	return FileCallbacks{
		Open: func(path string, writing bool) (FileHandle, error) {
			return &state{}, nil
		},
		Read: func(h FileHandle, out []byte) (int, error) {
			s := h.(*state)
			n := copy(out, data[s.pos:])
			s.pos += n
			return n, nil
		},
		Close: func(h FileHandle) error { return nil },
		Size:  func(h FileHandle) (int64, error) { return int64(len(data)), nil },
	}
}

// memRecvCallbacks writes received bytes into buf.
func memRecvCallbacks(buf *bytes.Buffer) FileCallbacks {
	return FileCallbacks{
		Open: func(path string, writing bool) (FileHandle, error) {
			return struct{}{}, nil
		},
		Write: func(h FileHandle, data []byte) (int, error) {
			return buf.Write(data)
		},
		Close: func(h FileHandle) error { return nil },
	}
}

type transferResult struct {
	err  error
	info FileInfo
}

// runTransferBytes drives one sender and one receiver concurrently over
// a linked pair of Transports and returns both sides' outcomes plus the
// bytes the receiver actually wrote.
func runTransferBytes(t *testing.T, data []byte, senderT, receiverT Transport, cfg *Config) (sendErr error, recvErr error, info FileInfo, received []byte) {
	t.Helper()

	sendCtx, err := InitSend(senderT, memSendCallbacks(data), nil, cfg)
	if err != nil {
		t.Fatalf("InitSend: %v", err)
	}
	sender := NewSender(sendCtx)

	var out bytes.Buffer
	recvCtx, err := InitRecv(receiverT, memRecvCallbacks(&out), nil, cfg)
	if err != nil {
		t.Fatalf("InitRecv: %v", err)
	}
	receiver := NewReceiver(recvCtx)

	sendDone := make(chan error, 1)
	recvDone := make(chan transferResult, 1)

	go func() { sendDone <- sender.Send("a.bin") }()
	go func() {
		fi, err := receiver.Receive("")
		recvDone <- transferResult{err: err, info: fi}
	}()

	sendErr = <-sendDone
	r := <-recvDone
	return sendErr, r.err, r.info, out.Bytes()
}

func TestRoundTripSizes(t *testing.T) {
	sizes := []int{0, 1, 127, 128, 1023, 1024, 1025, 2048, 5000}
	for _, size := range sizes {
		size := size
		t.Run(sizeName(size), func(t *testing.T) {
			data := make([]byte, size)
			rand.New(rand.NewSource(int64(size) + 1)).Read(data)

			a, b := newLinkedTransports()
			sendErr, recvErr, info, got := runTransferBytes(t, data, a, b, testConfig())
			if sendErr != nil {
				t.Fatalf("sender: %v", sendErr)
			}
			if recvErr != nil {
				t.Fatalf("receiver: %v", recvErr)
			}
			if info.Filename != "a.bin" {
				t.Fatalf("filename = %q, want a.bin", info.Filename)
			}
			if info.Size != int64(size) {
				t.Fatalf("announced size = %d, want %d", info.Size, size)
			}
			if len(got) != size {
				t.Fatalf("received %d bytes, want %d", len(got), size)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("received content mismatch for size %d", size)
			}
		})
	}
}

func sizeName(n int) string {
	switch n {
	case 0:
		return "empty"
	default:
		return "size_" + itoa(n)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

// corruptFirstCRC flips the trailing CRC byte the first time it observes
// a data packet (SOH/STX, excluding packet 0's file-info frame, which
// the receiver never retries) with a given sequence number, and passes
// every later send (including the retransmission of that same sequence)
// through unchanged.
type corruptFirstCRC struct {
	Transport
	seen map[byte]bool
}

func (c *corruptFirstCRC) Send(data []byte) (int, error) {
	if len(data) > 4 && (data[0] == SOH || data[0] == STX) {
		seq := data[1]
		if seq != 0 {
			if c.seen == nil {
				c.seen = map[byte]bool{}
			}
			if !c.seen[seq] {
				c.seen[seq] = true
				cp := append([]byte(nil), data...)
				cp[len(cp)-1] ^= 0xFF
				return c.Transport.Send(cp)
			}
		}
	}
	return c.Transport.Send(data)
}

func TestRoundTripToleratesOneCorruptedCRCPerPacket(t *testing.T) {
	data := make([]byte, 2500) // spans three data packets
	rand.New(rand.NewSource(99)).Read(data)

	a, b := newLinkedTransports()
	sendT := &corruptFirstCRC{Transport: a}

	sendErr, recvErr, _, got := runTransferBytes(t, data, sendT, b, testConfig())
	if sendErr != nil {
		t.Fatalf("sender: %v", sendErr)
	}
	if recvErr != nil {
		t.Fatalf("receiver: %v", recvErr)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("received content mismatch after CRC corruption and retry")
	}
}

// dropFirstDataACK drops the ACK that answers the first data packet
// (skipping the earlier file-info ACK, whose loss the handshake already
// tolerates by treating a bare 'C' as ACK+C), simulating the sender
// observing a timeout instead of an ACK on the first attempt. Every
// later ACK, including the one answering the retransmission, passes
// through unchanged.
type dropFirstDataACK struct {
	Transport
	ackCount    int
	droppedOnce bool
}

func (d *dropFirstDataACK) Send(data []byte) (int, error) {
	if len(data) == 1 && data[0] == ACK {
		d.ackCount++
		if d.ackCount == 2 && !d.droppedOnce {
			d.droppedOnce = true
			return 1, nil // accepted by the transport, never delivered
		}
	}
	return d.Transport.Send(data)
}

func TestRoundTripToleratesOneLostACK(t *testing.T) {
	data := make([]byte, 1024)
	rand.New(rand.NewSource(7)).Read(data)

	a, b := newLinkedTransports()
	recvT := &dropFirstDataACK{Transport: b}

	sendErr, recvErr, _, got := runTransferBytes(t, data, a, recvT, testConfig())
	if sendErr != nil {
		t.Fatalf("sender: %v", sendErr)
	}
	if recvErr != nil {
		t.Fatalf("receiver: %v", recvErr)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("received content mismatch after a lost ACK")
	}
}

func TestReceiverCancelStopsSender(t *testing.T) {
	data := make([]byte, 4096)
	rand.New(rand.NewSource(3)).Read(data)

	a, b := newLinkedTransports()

	sendCtx, err := InitSend(a, memSendCallbacks(data), nil, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	sender := NewSender(sendCtx)

	sendDone := make(chan error, 1)
	go func() { sendDone <- sender.Send("a.bin") }()

	// Drive the receiver's role by hand so the test can substitute a CAN
	// for the ACK a real Receiver would send after the first data packet.
	if err := driveHandshakeThenCancel(b); err != nil {
		t.Fatalf("driving handshake: %v", err)
	}

	err = <-sendDone
	e, ok := err.(*Error)
	if !ok || e.Kind != Cancelled {
		t.Fatalf("expected Cancelled, got %v", err)
	}
	if sendCtx.handle != nil {
		t.Fatal("file handle was not released on cancellation")
	}
}

// driveHandshakeThenCancel plays the receiver's role by hand: wait for
// the file-info packet, ACK+C it, wait for one data packet, then send
// CAN instead of ACK.
func driveHandshakeThenCancel(b *chanTransport) error {
	a := newAdapter(b, nil)

	// Prime the handshake.
	a.sendByte(C)

	buf := make([]byte, maxPacketSize)
	hdr, err := a.recvByte(2 * time.Second)
	if err != nil {
		return err
	}
	body := buf[:2+expectedPayloadSize(hdr)+crcSize]
	if err := a.recvFull(body, time.Second); err != nil {
		return err
	}

	a.sendByte(ACK)
	a.sendByte(C)

	hdr, err = a.recvByte(2 * time.Second)
	if err != nil {
		return err
	}
	body = buf[:2+expectedPayloadSize(hdr)+crcSize]
	if err := a.recvFull(body, time.Second); err != nil {
		return err
	}

	a.sendByte(CAN)
	return nil
}

// TestReceiverRejectsEmptyInitialFilename plays the sender's role by
// hand: answer the receiver's handshake probe with a packet 0 whose
// payload is the all-zero batch-terminator shape, as the very first
// packet of the transfer rather than after a file has been sent. The
// receiver must fail FileError rather than treat this as a successful
// zero-file transfer.
func TestReceiverRejectsEmptyInitialFilename(t *testing.T) {
	a, b := newLinkedTransports()

	var out bytes.Buffer
	recvCtx, err := InitRecv(b, memRecvCallbacks(&out), nil, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	receiver := NewReceiver(recvCtx)

	recvDone := make(chan transferResult, 1)
	go func() {
		fi, err := receiver.Receive("")
		recvDone <- transferResult{err: err, info: fi}
	}()

	if err := sendEmptyFileInfoPacket(a); err != nil {
		t.Fatalf("driving handshake: %v", err)
	}

	r := <-recvDone
	e, ok := r.err.(*Error)
	if !ok || e.Kind != FileError {
		t.Fatalf("expected FileError, got %v", r.err)
	}
}

// sendEmptyFileInfoPacket waits for the receiver's initial 'C' probe
// and replies with an all-zero SOH/SEQ=0 packet: the wire shape of the
// batch terminator, but sent as the first packet of the transfer.
func sendEmptyFileInfoPacket(a *chanTransport) error {
	adp := newAdapter(a, nil)

	if _, err := adp.recvByte(2 * time.Second); err != nil {
		return err
	}

	payload, err := buildFileInfoPacket("", 0)
	if err != nil {
		return err
	}
	buf := make([]byte, maxPacketSize)
	n, err := buildPacket(SOH, 0, payload, buf)
	if err != nil {
		return err
	}
	if !adp.sendBytes(buf[:n]) {
		return NewError(WrongCode, "failed to send file-info packet")
	}
	return nil
}

func TestSenderRejectsOverlongFilename(t *testing.T) {
	longName := make([]byte, 300)
	for i := range longName {
		longName[i] = 'x'
	}
	data := []byte("content")

	a, _ := newLinkedTransports()
	sendCtx, err := InitSend(a, memSendCallbacks(data), nil, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	sender := NewSender(sendCtx)

	err = sender.Send(string(longName))
	e, ok := err.(*Error)
	if !ok || e.Kind != WrongDataSize {
		t.Fatalf("expected WrongDataSize, got %v", err)
	}
}
