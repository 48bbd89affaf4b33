// Package mqtt implements the MQTT source: a paho.mqtt.golang client
// subscribed to the topics in Config.Topics (commonly Victron telemetry
// topics), re-wrapping each received payload as a raw-bytes message
// tagged with its topic's configured channel. Config.VictronKeepalives
// is stored but not used; no keepalive is published.
package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jpillora/backoff"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

// Topic is one subscribed topic and the channel its payloads are
// emitted on.
type Topic struct {
	Name    string
	Channel uint8
}

// Config is the mqtt source's per-section parameters.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	Topics            []Topic
	KeepaliveInterval time.Duration
	VictronKeepalives []string
}

type Source struct {
	ID   uint8
	Cfg  Config
	FIFO *fifo.FIFO

	Flags *signals.Flags
	Log   *logging.Logger

	client paho.Client
	boff   *backoff.Backoff

	mu      sync.Mutex
	pending []*message.Message
}

func New(id uint8, cfg Config, f *fifo.FIFO, flags *signals.Flags, log *logging.Logger) *Source {
	return &Source{ID: id, Cfg: cfg, FIFO: f, Flags: flags, Log: log,
		boff: &backoff.Backoff{Min: 500 * time.Millisecond, Max: time.Minute, Factor: 2, Jitter: true}}
}

func (s *Source) Name() string { return fmt.Sprintf("mqtt[%s]", s.Cfg.Broker) }

func (s *Source) Startup() error {
	keepalive := s.Cfg.KeepaliveInterval
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}

	opts := paho.NewClientOptions().
		AddBroker(s.Cfg.Broker).
		SetClientID(s.Cfg.ClientID).
		SetUsername(s.Cfg.Username).
		SetPassword(s.Cfg.Password).
		SetKeepAlive(keepalive).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			s.Log.WarnOnce("mqtt-connection-lost", fmt.Sprintf("%s: connection lost: %v", s.Name(), err))
		})

	s.client = paho.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt: connect %s: %w", s.Cfg.Broker, token.Error())
	}

	for _, t := range s.Cfg.Topics {
		topic := t
		handler := func(_ paho.Client, m paho.Message) {
			s.mu.Lock()
			s.pending = append(s.pending, message.NewBytes(s.ID, topic.Channel, m.Payload()))
			s.mu.Unlock()
		}
		if token := s.client.Subscribe(t.Name, 0, handler); token.Wait() && token.Error() != nil {
			return fmt.Errorf("mqtt: subscribe %s: %w", t.Name, token.Error())
		}
	}
	s.boff.Reset()
	return nil
}

func (s *Source) Channels() error {
	s.FIFO.Push(message.NewName(s.ID, s.Name()))
	count := 2
	for _, t := range s.Cfg.Topics {
		if int(t.Channel)+1 > count {
			count = int(t.Channel) + 1
		}
	}
	cm := message.NewStringArray(count)
	cm.Set(0, message.NewStringFromText("Name"))
	cm.Set(1, message.NewStringFromText("ChannelMap"))
	for _, t := range s.Cfg.Topics {
		cm.Set(int(t.Channel), message.NewStringFromText(t.Name))
	}
	s.FIFO.Push(message.NewChannelMap(s.ID, cm))
	return nil
}

// Logging drains messages the subscription handlers have queued; paho's
// own goroutines do the actual network I/O, so this source's thread
// only needs to periodically hand queued payloads to the FIFO, the
// bounded-sleep suspension point of §5.
func (s *Source) Logging() error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, m := range batch {
		s.FIFO.Push(m)
	}
	if len(batch) == 0 {
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}

func (s *Source) Shutdown() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	return nil
}
