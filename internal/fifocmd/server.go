package fifocmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// openRetryInterval is how long Server waits before retrying to open the
// FIFO after a failed or closed open, mirroring OPEN_TIMEOUT in the
// original implementation.
const openRetryInterval = 250 * time.Millisecond

// Server repeatedly opens a named pipe for reading and feeds each line
// it receives to a CommandProcessor, until Stop is called.
type Server struct {
	path      string
	processor *CommandProcessor
	logger    *log.Logger
	tsFormat  string

	stop chan struct{}
	done chan struct{}
}

// NewServer builds a Server for the FIFO at path. timestampFormat, if
// non-empty, is an strftime pattern prepended to each logged command
// line; an empty format disables the prefix.
func NewServer(path string, processor *CommandProcessor, logger *log.Logger, timestampFormat string) (*Server, error) {
	if timestampFormat != "" {
		if _, err := strftime.Format(timestampFormat, time.Now()); err != nil {
			return nil, fmt.Errorf("fifocmd: parsing timestamp format %q: %w", timestampFormat, err)
		}
	}
	return &Server{path: path, processor: processor, logger: logger, tsFormat: timestampFormat}, nil
}

// Start creates the FIFO (if not already present) and launches the
// server loop in a background goroutine.
func (s *Server) Start() error {
	if err := syscall.Mkfifo(s.path, 0o644); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("fifocmd: creating FIFO %s: %w", s.path, err)
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run()
	return nil
}

// Stop signals the server loop to exit and blocks until it has.
func (s *Server) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Server) run() {
	defer close(s.done)
	s.logger.Info("starting FIFO command server", "path", s.path)
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		if err := s.serveOnce(); err != nil {
			s.logger.Debug("opening FIFO", "path", s.path, "error", err)
			time.Sleep(openRetryInterval)
		}
	}
}

// serveOnce opens the FIFO once and reads lines from it until EOF (the
// writer closed its end) or the server is stopped.
func (s *Server) serveOnce() error {
	f, err := os.OpenFile(s.path, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	type readResult struct {
		line string
		err  error
	}
	lines := make(chan readResult)
	go func() {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			lines <- readResult{line: scanner.Text()}
		}
		lines <- readResult{err: io.EOF}
	}()

	for {
		select {
		case <-s.stop:
			return nil
		case r := <-lines:
			if r.err != nil {
				return nil
			}
			s.handleLine(r.line)
		}
	}
}

func (s *Server) handleLine(line string) {
	line = strings.TrimRight(line, "\r")
	if s.tsFormat != "" {
		if ts, err := strftime.Format(s.tsFormat, time.Now()); err == nil {
			s.logger.Info("received command", "at", ts, "line", line)
		} else {
			s.logger.Info("received command", "line", line)
		}
	} else {
		s.logger.Info("received command", "line", line)
	}
	s.processor.ProcessLine(line)
}
