package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/moisture-node/nvram.bin", cfg.NVRAMPath)
	assert.Equal(t, 115200, cfg.SerialBaud)
	assert.Empty(t, cfg.SerialDev)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("NVRAM_PATH", "/tmp/nvram.bin")
	t.Setenv("SERIAL_DEV", "/dev/ttyUSB0")
	t.Setenv("LED_CHIP", "gpiochip0")
	t.Setenv("LED_LINE", "17")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/nvram.bin", cfg.NVRAMPath)
	assert.Equal(t, "/dev/ttyUSB0", cfg.SerialDev)
	assert.Equal(t, "gpiochip0", cfg.LedChip)
	assert.Equal(t, 17, cfg.LedLine)
}
