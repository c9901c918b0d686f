package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
	"golang.org/x/term"

	"github.com/drunlade/go-ymodem/ymodem"
	"github.com/drunlade/go-ymodem/ymodem/transport"
)

var (
	serialPort = flag.String("serial", "", "serial port to send over (e.g. /dev/ttyUSB0); if empty, uses stdin/stdout")
	baud       = flag.Int("baud", 115200, "serial baud rate")
	watchDir   = flag.String("watch", "", "watch this directory and send each new file as it appears")
	timeout    = flag.Int("t", 60, "handshake timeout in seconds")
	verbose    = flag.Bool("v", false, "verbose mode")
	quiet      = flag.Bool("q", false, "quiet mode")
	help       = flag.Bool("h", false, "show help")
	version    = flag.Bool("version", false, "show version")
)

const versionString = "ymsend version 0.1.0"

func main() {
	flag.Parse()

	if *help {
		showUsage(0)
	}
	if *version {
		fmt.Println(versionString)
		os.Exit(0)
	}

	files := flag.Args()
	if *watchDir == "" && len(files) == 0 {
		fmt.Fprintf(os.Stderr, "%s: no files specified\n", os.Args[0])
		showUsage(1)
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
		WithCLIConfig(),
		ymodem.WithFileCallbacks(osFileCallbacks()),
	}
	if *verbose {
		opts = append(opts, ymodem.WithProgress(progressPrinter()))
	}
	session := ymodem.NewSession(t, opts...)

	if *watchDir != "" {
		runWatch(session, *watchDir)
		return
	}

	for _, path := range files {
		if err := sendOne(session, path); err != nil {
			if !*quiet {
				pterm.Error.Printfln("%s: %v", path, err)
			}
			os.Exit(1)
		}
	}
}

// WithCLIConfig builds a Config from the -t flag, leaving the rest at
// their default values.
func WithCLIConfig() ymodem.Option {
	cfg := ymodem.DefaultConfig()
	cfg.HandshakeTimeout = time.Duration(*timeout) * time.Second
	return ymodem.WithConfig(cfg)
}

func sendOne(session *ymodem.Session, path string) error {
	if !*quiet {
		pterm.Info.Printfln("sending %s", filepath.Base(path))
	}
	start := time.Now()
	if err := session.SendFile(path); err != nil {
		return err
	}
	if !*quiet {
		pterm.Success.Printfln("%s sent in %v", filepath.Base(path), time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// runWatch monitors dir for new or modified regular files and sends each
// one in turn, queuing events so a burst of created files is sent
// serially (YMODEM is stop-and-wait; only one transfer runs at a time).
func runWatch(session *ymodem.Session, dir string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		pterm.Error.Printfln("creating watcher: %v", err)
		os.Exit(1)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		pterm.Error.Printfln("watching %s: %v", dir, err)
		os.Exit(1)
	}
	if !*quiet {
		pterm.Info.Printfln("watching %s for files to send", dir)
	}

	queue := make(chan string, 64)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				base := filepath.Base(event.Name)
				if strings.HasPrefix(base, ".") {
					continue
				}
				info, err := os.Stat(event.Name)
				if err != nil || !info.Mode().IsRegular() {
					continue
				}
				queue <- event.Name
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if !*quiet {
					pterm.Warning.Printfln("watcher error: %v", err)
				}
			}
		}
	}()

	for path := range queue {
		if err := sendOne(session, path); err != nil {
			if !*quiet {
				pterm.Error.Printfln("%s: %v", path, err)
			}
		}
	}
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
// one, so the terminal's line discipline does not intercept or rewrite
// protocol control bytes (EOT, CAN, and friends) when a transfer is
// piped through the user's own tty rather than a dedicated serial port
// or socket. It is a no-op, returning a no-op restorer, when stdin is not
// a terminal.
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
// fed byte counts from the ProgressTracker callback. A new bar starts
// the first time it is invoked for a file and stops once the full size
// has been transferred (or, for a size-unknown/zero-length file, on the
// final callback from ProgressTracker.Complete).
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
			if writing {
				return os.Create(path)
			}
			return os.Open(path)
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
// transport.NewStream, for piping a transfer through a plain byte
// stream (a serial-less pipe, or another process on the far end of a
// shell redirection).
type stdioReadWriter struct{}

func (stdioReadWriter) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioReadWriter) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func showUsage(exitcode int) {
	fmt.Fprintf(os.Stderr, `%s - send a file with YMODEM

Usage: %s [options] file
       %s [options] -watch DIR

Options:
  -serial PORT     serial port to send over (default: stdin/stdout)
  -baud N          serial baud rate (default: 115200)
  -watch DIR       watch DIR and send each new file as it appears
  -t N             handshake timeout in seconds (default: 60)
  -h               show this help message
  -q               quiet mode
  -v               verbose mode, with progress
  --version        show version

`, versionString, os.Args[0], os.Args[0])
	os.Exit(exitcode)
}
