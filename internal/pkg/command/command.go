// Package command implements the line-oriented key=value protocol that
// mutates the persisted settings record, from both the operator console and
// the remote command topic.
package command

import (
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/anicoll/moisture-node/internal/pkg/settings"
)

// RestartGrace is the fixed wait before a scheduled restart, long enough for
// a pending publish to flush.
const RestartGrace = 1500 * time.Millisecond

type store interface {
	Save(s *settings.Settings) bool
}

type restarter interface {
	ScheduleRestart(delay time.Duration)
}

// Processor applies one command line at a time against the shared settings
// record. It is only ever called from the control loop goroutine.
type Processor struct {
	settings   *settings.Settings
	store      store
	restart    restarter
	dump       io.Writer
	level      zap.AtomicLevel
	generation uint64
	logger     *zap.Logger
}

func New(cfg *settings.Settings, store store, restart restarter, dump io.Writer, level zap.AtomicLevel) *Processor {
	return &Processor{
		settings: cfg,
		store:    store,
		restart:  restart,
		dump:     dump,
		level:    level,
		logger:   zap.L(),
	}
}

// Generation counts successful mutations. The control loop compares it
// across iterations to decide whether a reconnect is needed.
func (p *Processor) Generation() uint64 {
	return p.generation
}

// Apply parses a single `key=value` line and mutates the matching settings
// field. Malformed or unrecognized input fails and echoes a settings dump to
// the operator. Every successful mutation is persisted immediately.
func (p *Processor) Apply(line string) bool {
	line = strings.TrimRight(line, "\r\n")
	key, value, found := strings.Cut(line, "=")
	if !found || key == "" || value == "" {
		p.logger.Debug("malformed command", zap.String("line", line))
		p.settings.Dump(p.dump)
		return false
	}

	switch key {
	case "broker":
		if !p.setString(&p.settings.Broker, value, settings.AddressSize) {
			return false
		}
	case "port":
		n, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return p.reject(key, value)
		}
		p.settings.Port = uint16(n)
	case "topicroot":
		if !p.setString(&p.settings.TopicRoot, value, settings.TopicSize) {
			return false
		}
	case "user":
		if !p.setString(&p.settings.User, value, settings.UsernameSize) {
			return false
		}
	case "pass":
		if !p.setString(&p.settings.Pass, value, settings.PasswordSize) {
			return false
		}
	case "ssid":
		if !p.setString(&p.settings.SSID, value, settings.SSIDSize) {
			return false
		}
	case "wifipass":
		if !p.setString(&p.settings.WifiPass, value, settings.PasswordSize) {
			return false
		}
	case "wet":
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return p.reject(key, value)
		}
		p.settings.Wet = int32(n)
	case "dry":
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return p.reject(key, value)
		}
		p.settings.Dry = int32(n)
	case "sleeptime":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return p.reject(key, value)
		}
		p.settings.SleepSeconds = uint32(n)
	case "debug":
		switch value {
		case "1":
			p.settings.Debug = true
			p.level.SetLevel(zapcore.DebugLevel)
		case "0":
			p.settings.Debug = false
			p.level.SetLevel(zapcore.InfoLevel)
		default:
			return p.reject(key, value)
		}
	case "factorydefaults":
		if value != "yes" {
			return p.reject(key, value)
		}
		*p.settings = settings.Defaults()
		p.store.Save(p.settings)
		p.generation++
		p.logger.Info("factory defaults restored, restart scheduled")
		p.restart.ScheduleRestart(RestartGrace)
		return true
	default:
		p.logger.Debug("unrecognized setting", zap.String("key", key))
		p.settings.Dump(p.dump)
		return false
	}

	p.store.Save(p.settings)
	p.generation++
	p.logger.Info("setting updated", zap.String("key", key))
	return true
}

func (p *Processor) setString(dst *string, value string, size int) bool {
	if len(value) >= size {
		p.logger.Warn("value exceeds field capacity", zap.Int("max", size-1), zap.Int("len", len(value)))
		p.settings.Dump(p.dump)
		return false
	}
	*dst = value
	return true
}

func (p *Processor) reject(key, value string) bool {
	p.logger.Debug("rejected value", zap.String("key", key), zap.String("value", value))
	p.settings.Dump(p.dump)
	return false
}
