// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	applog "emgrep/internal/log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/inconshreveable/log15"
)

const mqttPublishTimeout = 5 * time.Second

// MQTTOptions configures the MQTT transport.
type MQTTOptions struct {
	Broker   string // e.g. tcp://localhost:1883
	Topic    string // Base topic; sets and reps go to <Topic>/sets and <Topic>/reps.
	ClientID string // Random when empty.
	QoS      byte
}

// mqttPublisher is the part of mqtt.Client the transport uses.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type mqttMessage struct {
	topic   string
	payload []byte
}

// MQTTTransport publishes rep events and finished sets as JSON. Envelope
// frames are not published. Publishing runs on its own goroutine.
type MQTTTransport struct {
	logger  log15.Logger
	client  mqttPublisher
	closer  func()
	topic   string
	qos     byte
	queue   chan mqttMessage
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

// NewMQTTTransport connects to the broker and starts publishing.
func NewMQTTTransport(opts MQTTOptions) (*MQTTTransport, error) {
	if opts.Broker == "" || opts.Topic == "" {
		return nil, fmt.Errorf("mqtt: broker and topic are required")
	}
	if opts.ClientID == "" {
		opts.ClientID = "emgrep-" + uuid.NewString()[:8]
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	client := mqtt.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connecting to %s: %w", opts.Broker, token.Error())
	}

	t := newMQTTTransport(client, opts.Topic, opts.QoS)
	t.closer = func() { client.Disconnect(250) }
	t.logger.Info("connected", "broker", opts.Broker, "client", opts.ClientID)
	return t, nil
}

func newMQTTTransport(client mqttPublisher, topic string, qos byte) *MQTTTransport {
	t := &MQTTTransport{
		logger: applog.New("transport", "mqtt", "topic", topic),
		client: client,
		closer: func() {},
		topic:  topic,
		qos:    qos,
		queue:  make(chan mqttMessage, 64),
	}
	t.wg.Add(1)
	go t.loop()
	return t
}

func (t *MQTTTransport) loop() {
	defer t.wg.Done()
	for msg := range t.queue {
		token := t.client.Publish(msg.topic, t.qos, false, msg.payload)
		if !token.WaitTimeout(mqttPublishTimeout) {
			t.logger.Warn("publish timed out", "topic", msg.topic)
			continue
		}
		if err := token.Error(); err != nil {
			t.logger.Error("publish failed", "topic", msg.topic, "err", err)
		}
	}
}

// Send queues rep and set messages for publishing. Other messages are
// ignored.
func (t *MQTTTransport) Send(data any) error {
	var topic string
	switch data.(type) {
	case RepMessage:
		topic = t.topic + "/reps"
	case SetMessage:
		topic = t.topic + "/sets"
	default:
		return nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("mqtt: encoding %T: %w", data, err)
	}
	select {
	case t.queue <- mqttMessage{topic: topic, payload: payload}:
	default:
		n := t.dropped.Add(1)
		t.logger.Warn("publish queue full, dropping message", "topic", topic, "dropped", n)
	}
	return nil
}

// Close flushes queued messages and disconnects. Send must not be called
// after Close.
func (t *MQTTTransport) Close() error {
	t.once.Do(func() {
		close(t.queue)
		t.wg.Wait()
		t.closer()
		t.logger.Info("closed")
	})
	return nil
}

var _ Transport = (*MQTTTransport)(nil)
