package node

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/moisture-node/internal/pkg/mqtt"
	"github.com/anicoll/moisture-node/internal/pkg/settings"
)

type sentMessage struct {
	topic    string
	payload  string
	retained bool
}

type mockMessenger struct {
	mu          sync.Mutex
	ConnectFunc func() error
	sent        []sentMessage
	subs        []string
	disconnects int
	msgs        chan mqtt.Message
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{msgs: make(chan mqtt.Message, 4)}
}

func (m *mockMessenger) Connect() error {
	if m.ConnectFunc != nil {
		return m.ConnectFunc()
	}
	return nil
}

func (m *mockMessenger) Subscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, topic)
	return nil
}

func (m *mockMessenger) Publish(topic string, payload []byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{topic: topic, payload: string(payload), retained: retained})
	return nil
}

func (m *mockMessenger) Messages() <-chan mqtt.Message { return m.msgs }

func (m *mockMessenger) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
}

func (m *mockMessenger) published() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func (m *mockMessenger) disconnected() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

type mockJoiner struct {
	mu       sync.Mutex
	JoinFunc func(addr string) error
	joins    int
}

func (m *mockJoiner) Join(addr string) error {
	m.mu.Lock()
	m.joins++
	m.mu.Unlock()
	if m.JoinFunc != nil {
		return m.JoinFunc(addr)
	}
	return nil
}

func (m *mockJoiner) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joins
}

type mockMeasurer struct {
	value int
}

func (m *mockMeasurer) Measure() (int, error) { return m.value, nil }

type mockProcessor struct {
	mu        sync.Mutex
	ApplyFunc func(line string) bool
	applied   []string
	gen       uint64
}

func (m *mockProcessor) Apply(line string) bool {
	m.mu.Lock()
	m.applied = append(m.applied, line)
	m.mu.Unlock()
	if m.ApplyFunc != nil {
		return m.ApplyFunc(line)
	}
	return true
}

func (m *mockProcessor) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

func (m *mockProcessor) bump() {
	m.mu.Lock()
	m.gen++
	m.mu.Unlock()
}

func (m *mockProcessor) appliedLines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.applied...)
}

type mockHandler struct {
	mu      sync.Mutex
	handled []string
}

func (m *mockHandler) Handle(topic string, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handled = append(m.handled, topic+":"+string(payload))
}

func (m *mockHandler) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.handled...)
}

type mockConsole struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	lines chan string
}

func newMockConsole() *mockConsole {
	return &mockConsole{lines: make(chan string, 4)}
}

func (m *mockConsole) Lines() <-chan string { return m.lines }

func (m *mockConsole) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Write(p)
}

func (m *mockConsole) output() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.String()
}

type harness struct {
	node       *Node
	cfg        *settings.Settings
	joiner     *mockJoiner
	proc       *mockProcessor
	handler    *mockHandler
	console    *mockConsole
	mu         sync.Mutex
	messengers []*mockMessenger
}

func newHarness(t *testing.T, cfg *settings.Settings) *harness {
	t.Helper()
	h := &harness{
		cfg:     cfg,
		joiner:  &mockJoiner{},
		proc:    &mockProcessor{},
		handler: &mockHandler{},
		console: newMockConsole(),
	}
	factory := func(*settings.Settings) Messenger {
		h.mu.Lock()
		defer h.mu.Unlock()
		m := newMockMessenger()
		h.messengers = append(h.messengers, m)
		return m
	}
	h.node = New(cfg, &mockMeasurer{value: 700}, h.joiner, h.console, factory)
	h.node.SetProcessor(h.proc)
	h.node.SetHandler(h.handler)
	return h
}

func (h *harness) messenger(i int) *mockMessenger {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.messengers) {
		return nil
	}
	return h.messengers[i]
}

func (h *harness) messengerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messengers)
}

func configured() *settings.Settings {
	return &settings.Settings{
		SSID:      "glasshouse",
		WifiPass:  "hunter2",
		Broker:    "mqtt.local",
		Port:      1883,
		TopicRoot: "garden/bed1/",
		Wet:       485,
		Dry:       876,
		ClientID:  "MoistureSensor-1a2b3c4d",
	}
}

func TestRun_UnconfiguredStaysOffline(t *testing.T) {
	cfg := settings.Defaults()
	h := newHarness(t, &cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()

	err := h.node.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, StateUnconfigured, h.node.State())
	assert.Zero(t, h.joiner.count(), "no network activity while unconfigured")
	assert.Zero(t, h.messengerCount())
	assert.Contains(t, h.console.output(), "settings are incomplete")
}

func TestRun_ReportsRetainedValues(t *testing.T) {
	h := newHarness(t, configured()) // SleepSeconds zero, continuous mode

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.node.Run(ctx) }()

	require.Eventually(t, func() bool {
		m := h.messenger(0)
		return m != nil && len(m.published()) >= 2
	}, 3*time.Second, 10*time.Millisecond)

	m := h.messenger(0)
	assert.Equal(t, []string{"garden/bed1/command"}, m.subs)

	sent := m.published()
	assert.Equal(t, sentMessage{topic: "garden/bed1/value", payload: "700", retained: true}, sent[0])
	// (876-700)*100/(876-485) = 45
	assert.Equal(t, sentMessage{topic: "garden/bed1/percent", payload: "45", retained: true}, sent[1])

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRun_SleepCycleDisconnectsAndReconnects(t *testing.T) {
	cfg := configured()
	cfg.SleepSeconds = 1
	h := newHarness(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.node.Run(ctx) }()

	// first cycle publishes, then drops the session for deep sleep
	require.Eventually(t, func() bool {
		m := h.messenger(0)
		return m != nil && m.disconnected() == 1
	}, 3*time.Second, 10*time.Millisecond)

	first := h.messenger(0)
	assert.GreaterOrEqual(t, len(first.published()), 2)

	// wakes back into Connecting with a fresh session
	require.Eventually(t, func() bool {
		return h.messengerCount() >= 2
	}, 4*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestRun_SerialLineReachesProcessor(t *testing.T) {
	cfg := settings.Defaults()
	h := newHarness(t, &cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.node.Run(ctx) }()

	h.console.lines <- "broker=mqtt.local"

	require.Eventually(t, func() bool {
		return len(h.proc.appliedLines()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "broker=mqtt.local", h.proc.appliedLines()[0])
	<-done
}

func TestRun_ConfiguringBringsNodeOnline(t *testing.T) {
	cfg := settings.Defaults()
	h := newHarness(t, &cfg)
	// the processor mutates the shared record on the loop goroutine
	h.proc.ApplyFunc = func(line string) bool {
		*h.cfg = *configured()
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.node.Run(ctx) }()

	h.console.lines <- "dry=876"

	require.Eventually(t, func() bool {
		return h.joiner.count() > 0
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestRun_InboundMessageReachesHandler(t *testing.T) {
	h := newHarness(t, configured())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.node.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.messenger(0) != nil
	}, 3*time.Second, 10*time.Millisecond)

	h.messenger(0).msgs <- mqtt.Message{Topic: "garden/bed1/command", Payload: []byte("version")}

	require.Eventually(t, func() bool {
		return len(h.handler.all()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "garden/bed1/command:version", h.handler.all()[0])

	cancel()
	<-done
}

func TestRun_SettingsChangeForcesReconnect(t *testing.T) {
	h := newHarness(t, configured())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.node.Run(ctx) }()

	require.Eventually(t, func() bool {
		m := h.messenger(0)
		return m != nil && len(m.published()) >= 2
	}, 3*time.Second, 10*time.Millisecond)

	h.proc.bump()

	require.Eventually(t, func() bool {
		return h.messengerCount() >= 2 && h.messenger(0).disconnected() == 1
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestRun_ScheduledRestart(t *testing.T) {
	h := newHarness(t, configured())
	h.node.ScheduleRestart(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := h.node.Run(ctx)
	assert.ErrorIs(t, err, ErrRestart)
}

func TestRun_JoinFailureKeepsRetrying(t *testing.T) {
	h := newHarness(t, configured())
	h.joiner.JoinFunc = func(addr string) error {
		assert.Equal(t, "mqtt.local:1883", addr)
		return errors.New("no route to host")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := h.node.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, h.joiner.count(), 1)
	assert.Zero(t, h.messengerCount(), "no transport session without a network")
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateUnconfigured: "unconfigured",
		StateConnecting:   "connecting",
		StateReporting:    "reporting",
		StateSleeping:     "sleeping",
		StateContinuous:   "continuous",
		State(99):         "unknown",
	} {
		assert.True(t, strings.EqualFold(want, state.String()))
	}
}
