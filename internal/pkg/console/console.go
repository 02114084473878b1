// Package console is the operator command interface: newline-terminated
// key=value lines in, settings dumps out. It speaks either a real serial
// port or the process stdio.
package console

import (
	"bufio"
	"io"
	"os"

	serial "go.bug.st/serial"
	"go.uber.org/zap"
)

// Console delivers inbound operator lines on a channel and accepts dump
// output through io.Writer.
type Console interface {
	Lines() <-chan string
	io.Writer
	Close() error
}

// Serial reads and writes a serial port via go.bug.st/serial.
type Serial struct {
	port   serial.Port
	lines  chan string
	logger *zap.Logger
}

func OpenSerial(dev string, baud int) (*Serial, error) {
	port, err := serial.Open(dev, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	c := &Serial{
		port:   port,
		lines:  make(chan string, 16),
		logger: zap.L(),
	}
	go c.readLoop(port)
	return c, nil
}

func (c *Serial) readLoop(r io.Reader) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if line == "" {
				c.logger.Debug("serial read ended", zap.Error(err))
				return
			}
		}
		select {
		case c.lines <- line:
		default:
			c.logger.Warn("operator line dropped, queue full")
		}
		if err != nil {
			return
		}
	}
}

func (c *Serial) Lines() <-chan string { return c.lines }

func (c *Serial) Write(p []byte) (int, error) { return c.port.Write(p) }

func (c *Serial) Close() error { return c.port.Close() }

// Stdio polls os.Stdin and writes dumps to os.Stdout, for running the node
// interactively or under a supervisor with an attached pty.
type Stdio struct {
	lines chan string
}

func OpenStdio() *Stdio {
	c := &Stdio{lines: make(chan string, 16)}
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case c.lines <- scanner.Text():
			default:
			}
		}
	}()
	return c
}

func (c *Stdio) Lines() <-chan string { return c.lines }

func (c *Stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func (c *Stdio) Close() error { return nil }
