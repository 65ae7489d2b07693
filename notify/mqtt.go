package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gr-butler/wxcore/alarm"
	"github.com/gr-butler/wxcore/env"
	"github.com/gr-butler/wxcore/station"
	logger "github.com/sirupsen/logrus"
)

var ErrPublishTimeout = errors.New("publish timed out")

const mqttQoS = 1

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher puts the snapshot on <prefix>/snapshot, retained so a new subscriber gets the
// current state straight away, and each alarm change on <prefix>/alarm/<kind>.
type MQTTPublisher struct {
	client    mqttClient
	prefix    string
	timeout   time.Duration
	snapshots *queue[station.Snapshot]
}

func NewMQTTPublisher(cfg env.MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warnf("MQTT connection lost [%v]", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Broker, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Broker, err)
	}
	logger.Infof("Connected to MQTT broker [%v]", cfg.Broker)
	return newMQTTPublisher(client, cfg.Prefix), nil
}

func newMQTTPublisher(client mqttClient, prefix string) *MQTTPublisher {
	return &MQTTPublisher{
		client:    client,
		prefix:    prefix,
		timeout:   5 * time.Second,
		snapshots: newQueue[station.Snapshot]("mqtt"),
	}
}

func (p *MQTTPublisher) PublishSnapshot(s station.Snapshot) {
	p.snapshots.offer(s)
}

func (p *MQTTPublisher) Run(ctx context.Context) {
	p.snapshots.run(ctx, func(_ context.Context, s station.Snapshot) error {
		return p.publish(p.prefix+"/snapshot", true, s)
	})
}

func (p *MQTTPublisher) Notify(_ context.Context, ev alarm.Event) error {
	return p.publish(fmt.Sprintf("%s/alarm/%s", p.prefix, ev.Alarm.Kind), true, ev)
}

func (p *MQTTPublisher) publish(topic string, retained bool, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", topic, err)
	}
	token := p.client.Publish(topic, mqttQoS, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("%s: %w", topic, ErrPublishTimeout)
	}
	return token.Error()
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
