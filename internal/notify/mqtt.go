package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/audiolibrelab/audiobridge/internal/audio"
	"github.com/audiolibrelab/audiobridge/internal/config"
)

const (
	publishTimeout = 5 * time.Second
	queueSize      = 64
)

// Publisher sends a payload to a topic
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// MQTTPublisher publishes to an MQTT broker
type MQTTPublisher struct {
	client mqtt.Client
}

// NewMQTTPublisher connects to the configured broker
func NewMQTTPublisher(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		slog.Info("MQTT connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		slog.Warn("MQTT connection lost", "error", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		slog.Debug("MQTT reconnecting")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		// ConnectRetry keeps trying in the background
		slog.Warn("MQTT broker not reachable yet, retrying in background", "broker", cfg.Broker)
	} else if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTPublisher{client: client}, nil
}

// Publish sends payload with QoS 1, waiting at most publishTimeout
func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

// Disconnect gracefully disconnects from the MQTT broker
func (p *MQTTPublisher) Disconnect() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		slog.Debug("MQTT disconnected")
	}
}

// EventNotifier forwards session events to a Publisher as JSON. Events are
// queued and published from one goroutine so a slow broker never stalls the
// session manager; when the queue is full new events are dropped.
type EventNotifier struct {
	publisher Publisher
	topic     string

	mutex  sync.RWMutex
	closed bool
	queue  chan audio.Event
	done   chan struct{}
}

// NewEventNotifier starts the publishing goroutine
func NewEventNotifier(publisher Publisher, topic string) *EventNotifier {
	n := &EventNotifier{
		publisher: publisher,
		topic:     topic,
		queue:     make(chan audio.Event, queueSize),
		done:      make(chan struct{}),
	}
	go n.run()
	return n
}

// OnSessionEvent queues the event for publishing
func (n *EventNotifier) OnSessionEvent(e audio.Event) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	if n.closed {
		return
	}

	select {
	case n.queue <- e:
	default:
		slog.Warn("MQTT event queue full, dropping event", "type", e.Type)
	}
}

// Close publishes what is queued and stops the goroutine
func (n *EventNotifier) Close() {
	n.mutex.Lock()
	if n.closed {
		n.mutex.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mutex.Unlock()

	<-n.done
}

func (n *EventNotifier) run() {
	defer close(n.done)
	for e := range n.queue {
		if err := n.publish(e); err != nil {
			slog.Error("Failed to publish session event", "type", e.Type, "topic", n.topic, "error", err)
		}
	}
}

func (n *EventNotifier) publish(e audio.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if n.publisher == nil {
		return errors.New("no publisher configured")
	}
	return n.publisher.Publish(n.topic+"/"+string(e.Type), payload)
}
