package ymodem

import "time"

// Config holds the tunable constants of a transfer.
type Config struct {
	// HandshakeTimeout bounds how long Establishing waits for the
	// peer's first byte, measured in whole handshake intervals.
	HandshakeTimeout time.Duration

	// WaitPacketTimeout bounds a single receive while waiting for a
	// packet or control byte during Transmitting/Finishing.
	WaitPacketTimeout time.Duration

	// HandshakeInterval is how often the Establishing state re-sends
	// its probe (C for the receiver, nothing but a recv retry for the
	// sender).
	HandshakeInterval time.Duration

	// MaxErrors is the retry budget before a transient error becomes
	// fatal.
	MaxErrors int

	// MaxFilenameLength bounds packet 0's filename field.
	MaxFilenameLength int

	// ProgressInterval throttles ProgressTracker callbacks.
	ProgressInterval time.Duration
}

// DefaultConfig returns the standard YMODEM timing and retry constants.
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout:  3000 * time.Millisecond,
		WaitPacketTimeout: 3000 * time.Millisecond,
		HandshakeInterval: 1000 * time.Millisecond,
		MaxErrors:         5,
		MaxFilenameLength: 256,
		ProgressInterval:  100 * time.Millisecond,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the session's Config.
func WithConfig(config *Config) Option {
	return func(s *Session) { s.config = config }
}

// WithFileCallbacks sets the session's file collaborator.
func WithFileCallbacks(fc FileCallbacks) Option {
	return func(s *Session) { s.files = fc }
}

// WithLogger sets a Logger for protocol tracing.
func WithLogger(logger Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithProgress sets a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Session) { s.progress = fn }
}
