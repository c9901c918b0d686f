package ymodem

// Stage is the transfer's state variable. It is monotone non-decreasing
// under a successful transfer; a fatal error leaves Stage at its failure
// point for the caller to inspect before calling Cleanup.
type Stage int

const (
	StageNone Stage = iota
	StageEstablishing
	StageEstablished
	StageTransmitting
	StageFinishing
	StageFinished
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageEstablishing:
		return "establishing"
	case StageEstablished:
		return "established"
	case StageTransmitting:
		return "transmitting"
	case StageFinishing:
		return "finishing"
	case StageFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Context carries a transfer's configuration and mutable state: the
// callback table, the adapter over the transport, current stage,
// sequence counter, error counter, file handle, filename and size. A
// Context is created by InitSend or InitRecv and is reusable across
// transfers after a successful Cleanup.
type Context struct {
	config *Config
	files  FileCallbacks
	io     *adapter

	stage    Stage
	seq      byte
	errCount int

	handle   FileHandle
	filename string
	fileSize int64

	buf []byte
}

func validateFileCallbacks(fc FileCallbacks, sending bool) error {
	if fc.Open == nil || fc.Close == nil {
		return NewError(WrongCode, "file_open and file_close callbacks are required")
	}
	if sending {
		if fc.Read == nil || fc.Size == nil {
			return NewError(WrongCode, "file_read and file_size callbacks are required for sending")
		}
	} else {
		if fc.Write == nil {
			return NewError(WrongCode, "file_write callback is required for receiving")
		}
	}
	return nil
}

// InitSend validates the sender's collaborators and returns a Context
// ready to drive Sender.Send. The Context allocates its own single
// maxPacketSize-byte buffer, used for the wire packet in both directions.
func InitSend(transport Transport, fc FileCallbacks, logger Logger, config *Config) (*Context, error) {
	if transport == nil {
		return nil, NewError(WrongCode, "transport is required")
	}
	if err := validateFileCallbacks(fc, true); err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultConfig()
	}
	return &Context{
		config: config,
		files:  fc,
		io:     newAdapter(transport, logger),
		stage:  StageNone,
		buf:    make([]byte, maxPacketSize),
	}, nil
}

// InitRecv validates the receiver's collaborators and returns a Context
// ready to drive Receiver.Receive.
func InitRecv(transport Transport, fc FileCallbacks, logger Logger, config *Config) (*Context, error) {
	if transport == nil {
		return nil, NewError(WrongCode, "transport is required")
	}
	if err := validateFileCallbacks(fc, false); err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultConfig()
	}
	return &Context{
		config: config,
		files:  fc,
		io:     newAdapter(transport, logger),
		stage:  StageNone,
		buf:    make([]byte, maxPacketSize),
	}, nil
}

// Stage returns the context's current stage.
func (c *Context) Stage() Stage { return c.stage }

// Cleanup closes the file handle if still open and resets Stage to
// StageNone. It is idempotent and safe to call on a partially
// constructed Context.
func (c *Context) Cleanup() {
	if c.handle != nil && c.files.Close != nil {
		c.files.Close(c.handle)
		c.handle = nil
	}
	c.stage = StageNone
}
