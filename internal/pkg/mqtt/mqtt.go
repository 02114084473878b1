// Package mqtt wraps the paho client with the small surface the node needs:
// single-attempt connect, retained/unretained publish and an inbound command
// queue drained by the control loop.
package mqtt

import (
	"errors"
	"fmt"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/anicoll/moisture-node/internal/pkg/settings"
)

const tokenTimeout = time.Second * 5

// Message is an inbound publication from the broker.
type Message struct {
	Topic   string
	Payload []byte
}

type Service struct {
	client   paho_mqtt.Client
	logger   *zap.Logger
	incoming chan Message
}

// BuildOptions derives client options from the settings record. Reconnects
// are deliberately left off: the control loop owns retry so it can interleave
// operator polling between attempts.
func BuildOptions(cfg *settings.Settings) *paho_mqtt.ClientOptions {
	return paho_mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.User).
		SetPassword(cfg.Pass).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetCleanSession(true).
		SetKeepAlive(60 * time.Second)
}

func New(cfg *settings.Settings) *Service {
	return NewWithClient(paho_mqtt.NewClient(BuildOptions(cfg)))
}

func NewWithClient(client paho_mqtt.Client) *Service {
	return &Service{
		client:   client,
		logger:   zap.L(),
		incoming: make(chan Message, 16),
	}
}

// Connect makes exactly one attempt.
func (s *Service) Connect() error {
	token := s.client.Connect()
	if ok := token.WaitTimeout(tokenTimeout); !ok {
		return errors.New("unable to connect in time")
	}
	return token.Error()
}

func (s *Service) Publish(topic string, payload []byte, retained bool) error {
	token := s.client.Publish(topic, 0, retained, payload)
	if ok := token.WaitTimeout(tokenTimeout); !ok {
		return errors.New("publish timed out")
	}
	return token.Error()
}

// Subscribe queues inbound messages for the control loop. The queue is
// bounded; if the loop is wedged the excess is dropped rather than blocking
// the transport callback.
func (s *Service) Subscribe(topic string) error {
	token := s.client.Subscribe(topic, 0, func(_ paho_mqtt.Client, m paho_mqtt.Message) {
		select {
		case s.incoming <- Message{Topic: m.Topic(), Payload: m.Payload()}:
		default:
			s.logger.Warn("inbound message dropped, queue full", zap.String("topic", m.Topic()))
		}
	})
	if ok := token.WaitTimeout(tokenTimeout); !ok {
		return errors.New("subscribe timed out")
	}
	return token.Error()
}

func (s *Service) Messages() <-chan Message { return s.incoming }

// Disconnect quiesces for long enough to flush an in-flight packet.
func (s *Service) Disconnect() {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}
