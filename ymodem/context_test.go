package ymodem

import (
	"testing"
	"time"
)

type nopTransport struct{}

func (nopTransport) Send(data []byte) (int, error)                     { return len(data), nil }
func (nopTransport) Receive(out []byte, _ time.Duration) (int, error) { return 0, nil }

func TestInitSendRequiresTransport(t *testing.T) {
	_, err := InitSend(nil, FileCallbacks{}, nil, nil)
	if e, ok := err.(*Error); !ok || e.Kind != WrongCode {
		t.Fatalf("expected WrongCode, got %v", err)
	}
}

func TestInitSendRequiresReadAndSize(t *testing.T) {
	fc := FileCallbacks{
		Open:  func(string, bool) (FileHandle, error) { return nil, nil },
		Close: func(FileHandle) error { return nil },
	}
	_, err := InitSend(nopTransport{}, fc, nil, nil)
	if e, ok := err.(*Error); !ok || e.Kind != WrongCode {
		t.Fatalf("expected WrongCode for missing read/size, got %v", err)
	}
}

func TestInitRecvRequiresWrite(t *testing.T) {
	fc := FileCallbacks{
		Open:  func(string, bool) (FileHandle, error) { return nil, nil },
		Close: func(FileHandle) error { return nil },
	}
	_, err := InitRecv(nopTransport{}, fc, nil, nil)
	if e, ok := err.(*Error); !ok || e.Kind != WrongCode {
		t.Fatalf("expected WrongCode for missing write, got %v", err)
	}
}

func TestInitSendDefaultsConfig(t *testing.T) {
	fc := FileCallbacks{
		Open:  func(string, bool) (FileHandle, error) { return &struct{}{}, nil },
		Close: func(FileHandle) error { return nil },
		Read:  func(FileHandle, []byte) (int, error) { return 0, nil },
		Size:  func(FileHandle) (int64, error) { return 0, nil },
	}
	ctx, err := InitSend(nopTransport{}, fc, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ctx.config.MaxErrors != DefaultConfig().MaxErrors {
		t.Fatal("expected default config to be applied when nil is passed")
	}
	if ctx.Stage() != StageNone {
		t.Fatalf("fresh context stage = %v, want none", ctx.Stage())
	}
}

func TestCleanupClosesHandleAndResetsStage(t *testing.T) {
	closed := false
	fc := FileCallbacks{
		Open:  func(string, bool) (FileHandle, error) { return &struct{}{}, nil },
		Close: func(FileHandle) error { closed = true; return nil },
		Read:  func(FileHandle, []byte) (int, error) { return 0, nil },
		Size:  func(FileHandle) (int64, error) { return 0, nil },
	}
	ctx, err := InitSend(nopTransport{}, fc, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx.handle = &struct{}{}
	ctx.stage = StageTransmitting

	ctx.Cleanup()

	if !closed {
		t.Fatal("Cleanup did not close the open file handle")
	}
	if ctx.Stage() != StageNone {
		t.Fatalf("stage after Cleanup = %v, want none", ctx.Stage())
	}

	// Idempotent: a second Cleanup on an already-clean context must not
	// double-close or panic.
	ctx.Cleanup()
}

func TestStageString(t *testing.T) {
	cases := map[Stage]string{
		StageNone:         "none",
		StageEstablishing: "establishing",
		StageEstablished:  "established",
		StageTransmitting: "transmitting",
		StageFinishing:    "finishing",
		StageFinished:     "finished",
		Stage(99):         "unknown",
	}
	for stage, want := range cases {
		if got := stage.String(); got != want {
			t.Fatalf("Stage(%d).String() = %q, want %q", stage, got, want)
		}
	}
}
