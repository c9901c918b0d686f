package ymodem

import "github.com/sigurn/crc16"

// crcTable is the standard CCITT table YMODEM uses for packet CRCs:
// poly 0x1021, initial value 0, MSB-first, no final XOR.
var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// crc16Of computes the YMODEM packet CRC-16 over data.
func crc16Of(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// crcWriter accumulates a CRC-16 incrementally, for callers that build a
// packet's data region in pieces before framing it.
type crcWriter struct {
	h crc16.Hash16
}

func newCRCWriter() *crcWriter {
	return &crcWriter{h: crc16.New(crcTable)}
}

func (w *crcWriter) Write(p []byte) (int, error) {
	return w.h.Write(p)
}

func (w *crcWriter) Sum16() uint16 {
	return w.h.Sum16()
}
