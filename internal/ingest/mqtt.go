package ingest

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTConfig holds broker settings for the tick subscriber.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Username string
	Password string
}

// MQTTSubscriber feeds ticks published by the workbench sensors into a Pump.
type MQTTSubscriber struct {
	cfg    MQTTConfig
	pump   *Pump
	client mqtt.Client
	logger *zap.Logger
}

// NewMQTTSubscriber creates a subscriber. Call Start to connect.
func NewMQTTSubscriber(cfg MQTTConfig, pump *Pump, logger *zap.Logger) *MQTTSubscriber {
	return &MQTTSubscriber{
		cfg:    cfg,
		pump:   pump,
		logger: logger.Named("mqtt"),
	}
}

// Start connects to the broker and subscribes to the tick topic. The
// subscription is renewed on every reconnect.
func (s *MQTTSubscriber) Start() error {
	if s.cfg.Broker == "" {
		return errors.New("mqtt broker not configured")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.logger.Info("connected to broker", zap.String("broker", s.cfg.Broker))
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.handleMessage)
		if !token.WaitTimeout(5 * time.Second) {
			s.logger.Error("subscription timeout", zap.String("topic", s.cfg.Topic))
			return
		}
		if err := token.Error(); err != nil {
			s.logger.Error("subscription failed", zap.String("topic", s.cfg.Topic), zap.Error(err))
			return
		}
		s.logger.Info("subscribed", zap.String("topic", s.cfg.Topic), zap.Uint8("qos", s.cfg.QoS))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("connection to broker lost", zap.Error(err))
	})

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		// ConnectRetry keeps trying in the background.
		s.logger.Warn("broker not reachable yet, retrying in background", zap.String("broker", s.cfg.Broker))
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (s *MQTTSubscriber) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	tick, err := DecodeTick(msg.Payload())
	if err != nil {
		s.pump.recorder.TickRejected(string(SourceMQTT), "invalid")
		s.logger.Warn("dropping malformed tick", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	if err := s.pump.Enqueue(tick, SourceMQTT); err != nil {
		s.logger.Warn("tick queue full, dropping tick", zap.String("topic", msg.Topic()), zap.Error(err))
	}
}

// Stop unsubscribes and disconnects.
func (s *MQTTSubscriber) Stop() {
	if s.client == nil {
		return
	}
	if s.client.IsConnected() {
		s.client.Unsubscribe(s.cfg.Topic).WaitTimeout(2 * time.Second)
	}
	s.client.Disconnect(250)
	s.logger.Info("mqtt subscriber stopped")
}
