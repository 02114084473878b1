// Package config holds the host-side bootstrap configuration: where the
// hardware lives on this machine. The device settings themselves are the
// persisted NVRAM record, not this.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	NVRAMPath  string `env:"NVRAM_PATH" envDefault:"/var/lib/moisture-node/nvram.bin"`
	SerialDev  string `env:"SERIAL_DEV"`
	SerialBaud int    `env:"SERIAL_BAUD" envDefault:"115200"`
	ADCPath    string `env:"ADC_PATH" envDefault:"/sys/bus/iio/devices/iio:device0/in_voltage0_raw"`
	LedChip    string `env:"LED_CHIP"`
	LedLine    int    `env:"LED_LINE"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"INFO"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
