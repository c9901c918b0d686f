package ymodem

// Session is a high-level, single-call convenience wrapper around a
// Context plus a Sender or Receiver, for callers that don't need direct
// access to the lower-level state machines.
type Session struct {
	transport Transport
	config    *Config
	files     FileCallbacks
	logger    Logger
	progress  ProgressFunc
}

// NewSession builds a Session over transport. Apply Option values to
// customize configuration, file callbacks, logging, and progress
// reporting before calling SendFile or ReceiveFile.
func NewSession(transport Transport, opts ...Option) *Session {
	s := &Session{
		transport: transport,
		config:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) progressTracker() *ProgressTracker {
	if s.progress == nil {
		return nil
	}
	return NewProgressTracker(s.progress, s.config.ProgressInterval)
}

// SendFile sends the single file at path. This is the entire batch: no
// SendFiles loop exists, since multi-file batches are out of scope.
func (s *Session) SendFile(path string) error {
	ctx, err := InitSend(s.transport, s.files, s.logger, s.config)
	if err != nil {
		return err
	}
	sender := NewSender(ctx)
	sender.SetProgress(s.progressTracker())
	return sender.Send(path)
}

// ReceiveFile receives a single file, writing it under destDir (or the
// current directory if destDir is empty), and returns the file info the
// sender announced.
func (s *Session) ReceiveFile(destDir string) (FileInfo, error) {
	ctx, err := InitRecv(s.transport, s.files, s.logger, s.config)
	if err != nil {
		return FileInfo{}, err
	}
	receiver := NewReceiver(ctx)
	receiver.SetProgress(s.progressTracker())
	return receiver.Receive(destDir)
}
