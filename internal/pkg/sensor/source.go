package sensor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FileSource reads the ADC through a sysfs attribute, e.g.
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw. The kernel re-samples on
// every read, so the file is opened fresh each time.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Read() (int, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return 0, fmt.Errorf("read adc %s: %w", f.path, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("parse adc value %q: %w", strings.TrimSpace(string(raw)), err)
	}
	return n, nil
}
