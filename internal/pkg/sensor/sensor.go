// Package sensor turns repeated raw analog readings into a single
// representative soil-moisture value and maps it onto the calibrated
// wet/dry range.
package sensor

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Source is the raw analog read primitive.
type Source interface {
	Read() (int, error)
}

// Indicator flashes while sampling so the operator can see the node is alive.
type Indicator interface {
	Toggle()
}

const (
	sampleCount   = 10
	defaultSettle = 20 * time.Millisecond
)

type Sensor struct {
	source    Source
	indicator Indicator
	settle    time.Duration
	logger    *zap.Logger
}

type Option func(*Sensor)

// WithSettleDelay overrides the pause between samples.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Sensor) {
		s.settle = d
	}
}

func New(source Source, indicator Indicator, opts ...Option) *Sensor {
	s := &Sensor{
		source:    source,
		indicator: indicator,
		settle:    defaultSettle,
		logger:    zap.L(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Measure takes ten successive samples, toggling the indicator and settling
// between each, and returns their statistical mode. Ties keep the
// first-encountered value, so ten distinct samples yield the first one.
func (s *Sensor) Measure() (int, error) {
	samples := make([]int, 0, sampleCount)
	for i := 0; i < sampleCount; i++ {
		v, err := s.source.Read()
		if err != nil {
			return 0, fmt.Errorf("analog read: %w", err)
		}
		samples = append(samples, v)
		s.indicator.Toggle()
		time.Sleep(s.settle)
	}

	m := mode(samples)
	s.logger.Debug("measured", zap.Ints("samples", samples), zap.Int("mode", m))
	return m, nil
}

// mode is a pairwise count over the sample window; n is ten, so O(n²) is
// cheaper than sorting. A later value never displaces an earlier one at
// equal count.
func mode(samples []int) int {
	best := samples[0]
	bestCount := 0
	for _, candidate := range samples {
		count := 0
		for _, v := range samples {
			if v == candidate {
				count++
			}
		}
		if count > bestCount {
			best = candidate
			bestCount = count
		}
	}
	return best
}

// Percent maps a raw reading onto the calibrated range: wet reads as 100,
// dry as 0. Readings outside the calibration range extrapolate past the
// bounds on purpose; the operator wants to see a miscalibrated probe, not a
// clamped lie.
func Percent(raw, wet, dry int) int {
	if dry == wet {
		return 0
	}
	return (dry - raw) * 100 / (dry - wet)
}
