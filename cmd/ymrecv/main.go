package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"golang.org/x/term"

	"github.com/drunlade/go-ymodem/ymodem"
	"github.com/drunlade/go-ymodem/ymodem/transport"
)

var (
	serialPort = flag.String("serial", "", "serial port to receive over (e.g. /dev/ttyUSB0); if empty, uses stdin/stdout")
	baud       = flag.Int("baud", 115200, "serial baud rate")
	destDir    = flag.String("dir", ".", "directory to write received files into")
	loop       = flag.Bool("loop", false, "keep accepting one file after another until interrupted")
	overwrite  = flag.Bool("y", false, "overwrite existing files")
	timeout    = flag.Int("t", 60, "handshake timeout in seconds")
	verbose    = flag.Bool("v", false, "verbose mode")
	quiet      = flag.Bool("q", false, "quiet mode")
	help       = flag.Bool("h", false, "show help")
	version    = flag.Bool("version", false, "show version")
)

const versionString = "ymrecv version 0.1.0"

func main() {
	flag.Parse()

	if *help {
		showUsage(0)
	}
	if *version {
		fmt.Println(versionString)
		os.Exit(0)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		if !*quiet {
			pterm.Warning.Println("interrupted")
		}
		os.Exit(130)
	}()

	t, closeT, err := openTransport()
	if err != nil {
		pterm.Error.Printfln("opening transport: %v", err)
		os.Exit(1)
	}
	if closeT != nil {
		defer closeT()
	}

	opts := []ymodem.Option{
		withCLIConfig(),
		ymodem.WithFileCallbacks(osFileCallbacks()),
	}
	if *verbose {
		opts = append(opts, ymodem.WithProgress(progressPrinter()))
	}
	session := ymodem.NewSession(t, opts...)

	for {
		if err := receiveOne(session); err != nil {
			if !*quiet {
				pterm.Error.Printfln("%v", err)
			}
			if !*loop {
				os.Exit(1)
			}
		}
		if !*loop {
			return
		}
	}
}

func withCLIConfig() ymodem.Option {
	cfg := ymodem.DefaultConfig()
	cfg.HandshakeTimeout = time.Duration(*timeout) * time.Second
	return ymodem.WithConfig(cfg)
}

func receiveOne(session *ymodem.Session) error {
	if !*quiet {
		pterm.Info.Println("waiting for sender")
	}
	start := time.Now()
	info, err := session.ReceiveFile(*destDir)
	if err != nil {
		return err
	}
	if !*quiet {
		pterm.Success.Printfln("received %s (%d bytes) in %v", info.Filename, info.Size, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func openTransport() (ymodem.Transport, func(), error) {
	if *serialPort == "" {
		restore := makeStdinRaw()
		return transport.NewStream(&stdioReadWriter{}), restore, nil
	}
	s, err := transport.OpenSerial(*serialPort, *baud)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { s.Close() }, nil
}

// makeStdinRaw puts the controlling terminal into raw mode when stdin is
// one; see cmd/ymsend's copy of this helper for why.
func makeStdinRaw() func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}
	}
	return func() { term.Restore(fd, old) }
}

// progressPrinter renders transfer progress with a pterm progress bar,
// fed byte counts from the ProgressTracker callback; see cmd/ymsend's
// copy of this helper for the start/stop lifecycle.
func progressPrinter() ymodem.ProgressFunc {
	var bar *pterm.ProgressbarPrinter
	var last int64

	return func(filename string, transferred, total int64, rate float64) {
		if bar == nil {
			pb, err := pterm.DefaultProgressbar.WithTotal(int(total)).WithTitle(filename).Start()
			if err != nil {
				return
			}
			bar = pb
			last = 0
		}
		if delta := int(transferred - last); delta > 0 {
			bar.Add(delta)
			last = transferred
		}
		if total <= 0 || transferred >= total {
			bar.Stop()
			bar = nil
		}
	}
}

func osFileCallbacks() ymodem.FileCallbacks {
	return ymodem.FileCallbacks{
		Open: func(path string, writing bool) (ymodem.FileHandle, error) {
			if !writing {
				return os.Open(path)
			}
			flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
			if !*overwrite {
				if _, err := os.Stat(path); err == nil {
					return nil, fmt.Errorf("%s already exists (use -y to overwrite)", path)
				}
			}
			return os.OpenFile(path, flags, 0644)
		},
		Read: func(h ymodem.FileHandle, out []byte) (int, error) {
			return h.(*os.File).Read(out)
		},
		Write: func(h ymodem.FileHandle, data []byte) (int, error) {
			return h.(*os.File).Write(data)
		},
		Close: func(h ymodem.FileHandle) error {
			return h.(*os.File).Close()
		},
		Size: func(h ymodem.FileHandle) (int64, error) {
			info, err := h.(*os.File).Stat()
			if err != nil {
				return 0, err
			}
			return info.Size(), nil
		},
	}
}

// stdioReadWriter pairs stdin/stdout into one io.ReadWriter for
// transport.NewStream.
type stdioReadWriter struct{}

func (stdioReadWriter) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioReadWriter) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func showUsage(exitcode int) {
	fmt.Fprintf(os.Stderr, `%s - receive a file with YMODEM

Usage: %s [options]

Options:
  -serial PORT     serial port to receive over (default: stdin/stdout)
  -baud N          serial baud rate (default: 115200)
  -dir DIR         directory to write received files into (default: .)
  -loop            keep accepting files until interrupted
  -y               overwrite existing files
  -t N             handshake timeout in seconds (default: 60)
  -h               show this help message
  -q               quiet mode
  -v               verbose mode, with progress
  --version        show version

`, versionString, os.Args[0])
	os.Exit(exitcode)
}
