// Package led drives the activity indicator through the kernel gpiochip
// character device.
package led

import (
	"fmt"

	gpiod "github.com/warthog618/go-gpiocdev"
	"go.uber.org/zap"
)

type Line struct {
	line   *gpiod.Line
	state  int
	logger *zap.Logger
}

// Open requests the indicator line as an output, initially off.
func Open(chip string, offset int) (*Line, error) {
	line, err := gpiod.RequestLine(chip, offset, gpiod.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request led line %s:%d: %w", chip, offset, err)
	}
	return &Line{line: line, logger: zap.L()}, nil
}

func (l *Line) Toggle() {
	l.state ^= 1
	if err := l.line.SetValue(l.state); err != nil {
		l.logger.Debug("failed to toggle led", zap.Error(err))
	}
}

func (l *Line) Close() error {
	_ = l.line.SetValue(0)
	return l.line.Close()
}

// Noop stands in when no indicator is wired.
type Noop struct{}

func (Noop) Toggle() {}
