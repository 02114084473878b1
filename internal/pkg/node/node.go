// Package node runs the device control loop: a five-state machine driving
// network join, measurement, reporting and sleep, with operator and remote
// commands dispatched between steps.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/moisture-node/internal/pkg/mqtt"
	"github.com/anicoll/moisture-node/internal/pkg/sensor"
	"github.com/anicoll/moisture-node/internal/pkg/settings"
)

// State names the control loop position. Transitions only happen inside Run.
type State int

const (
	StateUnconfigured State = iota
	StateConnecting
	StateReporting
	StateSleeping
	StateContinuous
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConnecting:
		return "connecting"
	case StateReporting:
		return "reporting"
	case StateSleeping:
		return "sleeping"
	case StateContinuous:
		return "continuous"
	}
	return "unknown"
}

// Topic suffixes under the configured topic root.
const (
	ValueTopic   = "value"
	PercentTopic = "percent"
	CommandTopic = "command"
)

const (
	// publishGrace gates sleep entry so an in-flight publish is not truncated.
	publishGrace   = 400 * time.Millisecond
	connectBackoff = time.Second
	joinBackoff    = 3 * time.Second
	idleDelay      = 250 * time.Millisecond
)

// ErrRestart is returned by Run when a scheduled restart falls due; the
// caller reloads settings from NVRAM and runs the node again.
var ErrRestart = errors.New("restart requested")

// Messenger is the pub/sub transport surface, satisfied by mqtt.Service.
type Messenger interface {
	Connect() error
	Subscribe(topic string) error
	Publish(topic string, payload []byte, retained bool) error
	Messages() <-chan mqtt.Message
	Disconnect()
}

// MessengerFactory builds a fresh transport session from the current
// settings; a new one is made on every pass through Connecting so broker
// changes take effect.
type MessengerFactory func(cfg *settings.Settings) Messenger

// Console is the operator side: inbound lines plus a writer for dumps.
type Console interface {
	Lines() <-chan string
	io.Writer
}

type measurer interface {
	Measure() (int, error)
}

type joiner interface {
	Join(addr string) error
}

type processor interface {
	Apply(line string) bool
	Generation() uint64
}

type handler interface {
	Handle(topic string, payload []byte)
}

// Node owns all mutable runtime state. Everything is touched from the single
// Run goroutine; command handlers run to completion inside poll, so no
// locking is needed.
type Node struct {
	cfg          *settings.Settings
	sensor       measurer
	joiner       joiner
	console      Console
	newMessenger MessengerFactory
	proc         processor
	handler      handler
	logger       *zap.Logger

	state      State
	mq         Messenger
	generation uint64
	lastRaw    int
	lastPct    int
	published  time.Time
	restartAt  time.Time
}

func New(cfg *settings.Settings, sens measurer, join joiner, cons Console, factory MessengerFactory) *Node {
	return &Node{
		cfg:          cfg,
		sensor:       sens,
		joiner:       join,
		console:      cons,
		newMessenger: factory,
		logger:       zap.L(),
	}
}

// SetProcessor and SetHandler close the construction cycle: the processor
// and responder both need the node for restarts and publishing.
func (n *Node) SetProcessor(p processor) { n.proc = p }

func (n *Node) SetHandler(h handler) { n.handler = h }

// State reports the loop position, for logs and tests.
func (n *Node) State() State { return n.state }

// ScheduleRestart arms a restart deadline. The delay gives any in-flight
// network transaction time to flush before Run returns ErrRestart.
func (n *Node) ScheduleRestart(delay time.Duration) {
	n.restartAt = time.Now().Add(delay)
	n.logger.Info("restart scheduled", zap.Duration("delay", delay))
}

func (n *Node) restartPending() bool { return !n.restartAt.IsZero() }

// Publish sends through the current transport session, for command
// responses.
func (n *Node) Publish(topic string, payload []byte, retained bool) error {
	if n.mq == nil {
		return errors.New("not connected")
	}
	return n.mq.Publish(topic, payload, retained)
}

// PublishStatus re-publishes the last reading and percentage immediately,
// and refreshes the publish timestamp that gates sleep entry.
func (n *Node) PublishStatus() {
	n.publishReading()
	n.published = time.Now()
}

// Run drives the state machine until the context ends or a restart falls
// due. It returns ErrRestart for deliberate restarts (factory reset, remote
// reboot); the caller is expected to reload settings and call Run again.
func (n *Node) Run(ctx context.Context) error {
	n.state = lo.Ternary(n.cfg.Valid(), StateConnecting, StateUnconfigured)
	n.logger.Info("control loop starting", zap.Stringer("state", n.state), zap.String("client_id", n.cfg.ClientID))

	for {
		if ctx.Err() != nil {
			n.disconnect()
			return ctx.Err()
		}
		if n.restartPending() {
			for ctx.Err() == nil && time.Now().Before(n.restartAt) {
				n.poll(ctx, time.Until(n.restartAt))
			}
			n.disconnect()
			if err := ctx.Err(); err != nil {
				return err
			}
			n.logger.Info("restarting")
			return ErrRestart
		}

		next := n.step(ctx)
		if next != n.state {
			n.logger.Debug("state transition", zap.Stringer("from", n.state), zap.Stringer("to", next))
			n.state = next
		}
	}
}

func (n *Node) step(ctx context.Context) State {
	switch n.state {
	case StateUnconfigured:
		return n.runUnconfigured(ctx)
	case StateConnecting:
		return n.runConnecting(ctx)
	case StateReporting:
		return n.runReporting(ctx)
	case StateSleeping:
		return n.runSleeping(ctx)
	case StateContinuous:
		return n.runContinuous(ctx)
	}
	return StateUnconfigured
}

// runUnconfigured dumps the settings once and then waits on operator
// commands only. No network activity happens until the record is complete.
func (n *Node) runUnconfigured(ctx context.Context) State {
	n.logger.Info("settings incomplete, waiting for configuration")
	n.cfg.Dump(n.console)

	for !n.cfg.Valid() {
		if ctx.Err() != nil || n.restartPending() {
			return StateUnconfigured
		}
		n.poll(ctx, idleDelay)
	}
	return StateConnecting
}

// runConnecting joins the network and opens a transport session, both
// retried indefinitely with fixed backoff and operator polling in between so
// a bad configuration can be corrected without a power cycle.
func (n *Node) runConnecting(ctx context.Context) State {
	addr := fmt.Sprintf("%s:%d", n.cfg.Broker, n.cfg.Port)

	for {
		if ctx.Err() != nil || n.restartPending() {
			return StateConnecting
		}
		if !n.cfg.Valid() {
			return StateUnconfigured
		}
		if err := n.joiner.Join(addr); err != nil {
			n.logger.Warn("network join failed, retrying", zap.String("addr", addr), zap.Error(err))
			n.poll(ctx, joinBackoff)
			continue
		}
		break
	}

	n.generation = n.proc.Generation()
	mq := n.newMessenger(n.cfg)
	for {
		if ctx.Err() != nil || n.restartPending() {
			return StateConnecting
		}
		err := mq.Connect()
		if err == nil {
			break
		}
		n.logger.Error("transport connect failed, retrying", zap.String("addr", addr), zap.Error(err))
		n.poll(ctx, connectBackoff)
	}
	n.mq = mq

	topic := n.cfg.TopicRoot + CommandTopic
	if err := mq.Subscribe(topic); err != nil {
		n.logger.Error("failed to subscribe to command topic", zap.String("topic", topic), zap.Error(err))
	}
	n.logger.Info("connected", zap.String("addr", addr), zap.String("client_id", n.cfg.ClientID))
	return StateReporting
}

// runReporting measures, derives the percentage and publishes both values
// retained.
func (n *Node) runReporting(ctx context.Context) State {
	raw, err := n.sensor.Measure()
	if err != nil {
		n.logger.Error("measurement failed", zap.Error(err))
		n.poll(ctx, connectBackoff)
		return StateReporting
	}
	n.lastRaw = raw
	n.lastPct = sensor.Percent(raw, int(n.cfg.Wet), int(n.cfg.Dry))
	n.logger.Info("reading", zap.Int("raw", n.lastRaw), zap.Int("percent", n.lastPct))

	n.publishReading()
	n.published = time.Now()

	if n.cfg.SleepSeconds > 0 {
		return StateSleeping
	}
	return StateContinuous
}

// runSleeping waits out the publish grace period, drops the transport and
// enters the low-power wait, waking back into Connecting.
func (n *Node) runSleeping(ctx context.Context) State {
	for time.Since(n.published) < publishGrace {
		if ctx.Err() != nil || n.restartPending() {
			return StateSleeping
		}
		n.poll(ctx, publishGrace-time.Since(n.published))
	}
	n.disconnect()

	d := time.Duration(n.cfg.SleepSeconds) * time.Second
	n.logger.Info("entering deep sleep", zap.Duration("duration", d))
	select {
	case <-ctx.Done():
		return StateSleeping
	case <-time.After(d):
	}
	return StateConnecting
}

// runContinuous is one poll-dispatch step between reports when the sleep
// interval is zero.
func (n *Node) runContinuous(ctx context.Context) State {
	n.poll(ctx, idleDelay)
	if ctx.Err() != nil || n.restartPending() {
		return StateContinuous
	}
	if !n.cfg.Valid() {
		n.disconnect()
		return StateUnconfigured
	}
	if gen := n.proc.Generation(); gen != n.generation {
		n.logger.Info("settings changed, reconnecting")
		n.disconnect()
		return StateConnecting
	}
	return StateReporting
}

// poll is the single dispatch point: one operator line, one inbound message
// or the timeout, whichever comes first. Handlers run to completion here,
// on the loop goroutine.
func (n *Node) poll(ctx context.Context, wait time.Duration) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case line, ok := <-n.console.Lines():
		if ok {
			n.proc.Apply(line)
		}
	case msg, ok := <-n.messages():
		if ok {
			n.handler.Handle(msg.Topic, msg.Payload)
		}
	case <-timer.C:
	}
}

// messages returns nil (blocking forever in select) while disconnected.
func (n *Node) messages() <-chan mqtt.Message {
	if n.mq == nil {
		return nil
	}
	return n.mq.Messages()
}

func (n *Node) publishReading() {
	n.publish(ValueTopic, strconv.Itoa(n.lastRaw))
	n.publish(PercentTopic, strconv.Itoa(n.lastPct))
}

// publish sends a retained reading; failures are logged and the value is
// simply re-attempted on the next natural report cycle.
func (n *Node) publish(suffix, payload string) {
	if n.mq == nil {
		return
	}
	topic := n.cfg.TopicRoot + suffix
	if err := n.mq.Publish(topic, []byte(payload), true); err != nil {
		n.logger.Error("publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (n *Node) disconnect() {
	if n.mq == nil {
		return
	}
	n.mq.Disconnect()
	n.mq = nil
}
