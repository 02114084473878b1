// Package responder interprets payloads arriving on the command topic and
// publishes a reply under topic root + the echoed payload.
package responder

import (
	"bytes"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/moisture-node/internal/pkg/command"
	"github.com/anicoll/moisture-node/internal/pkg/settings"
)

const (
	settingsCommand = "settings"
	versionCommand  = "version"
	statusCommand   = "status"
	rebootCommand   = "reboot"

	okResult    = "OK"
	emptyResult = "(empty)"
	statusAck   = "status sent"
	rebootAck   = "rebooting"
)

type processor interface {
	Apply(line string) bool
}

type publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

type restarter interface {
	ScheduleRestart(delay time.Duration)
}

type Responder struct {
	cfg      *settings.Settings
	proc     processor
	pub      publisher
	restart  restarter
	onStatus func()
	version  string
	logger   *zap.Logger
}

// New wires the responder. onStatus re-publishes the last reading and
// percentage immediately.
func New(cfg *settings.Settings, proc processor, pub publisher, restart restarter, onStatus func(), version string) *Responder {
	return &Responder{
		cfg:      cfg,
		proc:     proc,
		pub:      pub,
		restart:  restart,
		onStatus: onStatus,
		version:  version,
		logger:   zap.L(),
	}
}

// Handle dispatches one inbound command payload. The payload is truncated at
// the first NUL before interpretation. Whatever branch runs, the response
// goes back unretained under topic root + the original payload string, and a
// failed response publish never cancels a scheduled reboot.
func (r *Responder) Handle(topic string, payload []byte) {
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}
	cmd := string(payload)
	r.logger.Debug("remote command", zap.String("topic", topic), zap.String("command", cmd))

	var response string
	switch cmd {
	case settingsCommand:
		doc, err := r.cfg.JSON()
		if err != nil {
			r.logger.Error("failed to render settings", zap.Error(err))
			response = emptyResult
		} else {
			response = string(doc)
		}
	case versionCommand:
		response = r.version
	case statusCommand:
		r.onStatus()
		response = statusAck
	case rebootCommand:
		response = rebootAck
		r.restart.ScheduleRestart(command.RestartGrace)
	default:
		response = lo.Ternary(r.proc.Apply(cmd), okResult, emptyResult)
	}

	respTopic := r.cfg.TopicRoot + cmd
	if err := r.pub.Publish(respTopic, []byte(response), false); err != nil {
		r.logger.Error("failed to publish command response", zap.String("topic", respTopic), zap.Error(err))
	}
}
