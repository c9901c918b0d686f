// Package transport provides concrete Transport implementations for the
// ymodem package: a real serial port, any io.ReadWriter stream, a
// WebSocket connection, and an SSH command channel.
package transport

import (
	"sync"
	"time"

	"go.bug.st/serial"
)

// Serial wraps a real serial port as a ymodem.Transport, the nearest
// analogue to the UART links YMODEM historically ran over.
type Serial struct {
	port serial.Port
	mu   sync.Mutex
}

// OpenSerial opens portName at baud and wraps it as a Transport.
func OpenSerial(portName string, baud int) (*Serial, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	return &Serial{port: port}, nil
}

func (s *Serial) Send(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Write(data)
}

func (s *Serial) Receive(out []byte, timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.port.SetReadTimeout(timeout); err != nil {
		return 0, err
	}
	n, err := s.port.Read(out)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes the underlying serial port.
func (s *Serial) Close() error {
	return s.port.Close()
}
