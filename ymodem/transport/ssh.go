package transport

import (
	"io"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSH wraps an *ssh.Session's stdin/stdout pipes as a ymodem.Transport,
// for driving a remote ymodem-speaking command (e.g. the remote end of
// this module's own cmd/ymsend or cmd/ymrecv, or a classic sz/rz) over an
// SSH channel. SSH pipes offer no read deadline, so Receive races the
// underlying Read against a timer, the same fallback transport.Stream
// uses for plain io.Reader values.
type SSH struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  io.Reader
}

// NewSSH starts cmd on session and wraps its stdin/stdout as a Transport.
// The caller is responsible for calling session.Wait() (typically in a
// goroutine) after the transfer completes.
func NewSSH(session *ssh.Session, cmd string) (*SSH, error) {
	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := session.Start(cmd); err != nil {
		return nil, err
	}
	return &SSH{session: session, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

func (s *SSH) Send(data []byte) (int, error) {
	return s.stdin.Write(data)
}

func (s *SSH) Receive(out []byte, timeout time.Duration) (int, error) {
	// The goroutine reads into its own buffer, never out, because out is
	// almost always a sub-slice of the caller's single reused packet
	// buffer: if this call times out before the Read completes, the
	// goroutine is left running and must not touch memory the state
	// machine may already be reusing for the next packet. The result is
	// only copied into out on the success path below.
	type result struct {
		buf []byte
		n   int
		err error
	}
	done := make(chan result, 1)
	tmp := make([]byte, len(out))
	go func() {
		n, err := s.stdout.Read(tmp)
		done <- result{buf: tmp, n: n, err: err}
	}()
	select {
	case r := <-done:
		copy(out, r.buf[:r.n])
		if r.err != nil {
			if ne, ok := r.err.(net.Error); ok && ne.Timeout() {
				return 0, nil
			}
			if r.err == io.EOF && r.n == 0 {
				return 0, nil
			}
			return r.n, r.err
		}
		return r.n, nil
	case <-time.After(timeout):
		return 0, nil
	}
}

// Stderr returns the remote command's stderr, for diagnostics.
func (s *SSH) Stderr() io.Reader { return s.stderr }

// Close closes stdin, signalling end of input to the remote command, and
// closes the SSH session.
func (s *SSH) Close() error {
	s.stdin.Close()
	return s.session.Close()
}
