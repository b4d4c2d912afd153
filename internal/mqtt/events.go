// Package mqtt publishes concierge hook events to an MQTT broker so that
// dashboards and analytics consumers can follow turns as they happen.
//
// Each event goes to "{prefix}/events/{event}" as the JSON-encoded hook
// payload. Publishing never blocks a turn: messages are sent in the
// background and dropped, with a warning, when the broker is unreachable.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	jsoniter "github.com/json-iterator/go"
	"github.com/sourcegraph/conc"

	"github.com/soyeahso/gaia/internal/config"
	"github.com/soyeahso/gaia/internal/hooks"
	"github.com/soyeahso/gaia/internal/logging"
	"github.com/soyeahso/gaia/internal/plugin"
	"github.com/soyeahso/gaia/internal/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PluginID identifies the publisher in the plugin registry.
const PluginID = "mqtt-events"

const (
	publishTimeout = 5 * time.Second
	connectTimeout = 10 * time.Second
	handlerName    = "mqtt"
)

// publisher is the part of autopaho's ConnectionManager the plugin uses.
type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Disconnect(ctx context.Context) error
}

// EventPublisher is a plugin that forwards hook events to MQTT.
type EventPublisher struct {
	cfg config.MQTTConfig

	// dial is replaced in tests.
	dial func(ctx context.Context, cfg autopaho.ClientConfig) (publisher, error)

	mu       sync.Mutex
	conn     publisher
	hooks    *hooks.Manager
	log      *logging.Logger
	cancel   context.CancelFunc
	inflight conc.WaitGroup
}

var _ plugin.Plugin = (*EventPublisher)(nil)

// NewEventPublisher creates the plugin. It connects on Init.
func NewEventPublisher(cfg config.MQTTConfig) *EventPublisher {
	return &EventPublisher{cfg: cfg, dial: dialBroker}
}

func dialBroker(ctx context.Context, cfg autopaho.ClientConfig) (publisher, error) {
	return autopaho.NewConnection(ctx, cfg)
}

func (p *EventPublisher) ID() string      { return PluginID }
func (p *EventPublisher) Name() string    { return "MQTT event publisher" }
func (p *EventPublisher) Version() string { return version.Version }

// Init starts the broker connection and subscribes to every hook event.
// The connection keeps retrying in the background when the broker is down.
func (p *EventPublisher) Init(ctx context.Context, api plugin.API) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}
	if brokerURL.Host == "" {
		return fmt.Errorf("mqtt broker URL %q has no host", p.cfg.Broker)
	}
	p.log = api.Log

	// The connection outlives the Init call.
	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		ConnectTimeout:  connectTimeout,
		WillMessage: &paho.WillMessage{
			Topic:   p.statusTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.log.Info().Str("broker", p.cfg.Broker).Msg("mqtt connected")
			p.publishStatus(connCtx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.log.Warn().Err(err).Msg("mqtt connection error")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.cfg.ClientID,
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	conn, err := p.dial(connCtx, pahoCfg)
	if err != nil {
		cancel()
		return fmt.Errorf("mqtt connect: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.cancel = cancel
	p.hooks = api.Hooks
	p.mu.Unlock()

	api.Hooks.OnAll(handlerName, p.handle)
	return nil
}

// Close unsubscribes, waits for in-flight publishes and disconnects.
func (p *EventPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	conn, cancel, hm := p.conn, p.cancel, p.hooks
	p.conn = nil
	p.mu.Unlock()
	if conn == nil {
		return nil
	}

	hm.Off(handlerName)
	p.inflight.Wait()

	p.publishStatus(ctx, conn, "offline")
	err := conn.Disconnect(ctx)
	cancel()
	return err
}

func (p *EventPublisher) handle(_ context.Context, payload hooks.Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", payload.Event, err)
	}

	// Close clears conn under mu before waiting, so no publish starts once
	// it is waiting.
	p.mu.Lock()
	defer p.mu.Unlock()
	conn := p.conn
	if conn == nil {
		return nil
	}

	topic := p.EventTopic(payload.Event)
	p.inflight.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if _, err := conn.Publish(ctx, &paho.Publish{Topic: topic, Payload: data, QoS: 0}); err != nil {
			p.log.Warn().Err(err).Str("topic", topic).Msg("dropping mqtt event")
		}
	})
	return nil
}

// EventTopic returns the topic an event is published to.
func (p *EventPublisher) EventTopic(event string) string {
	return p.cfg.TopicPrefix + "/events/" + event
}

func (p *EventPublisher) statusTopic() string {
	return p.cfg.TopicPrefix + "/status"
}

func (p *EventPublisher) publishStatus(ctx context.Context, conn publisher, state string) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if _, err := conn.Publish(ctx, &paho.Publish{
		Topic:   p.statusTopic(),
		Payload: []byte(state),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.log.Warn().Err(err).Str("state", state).Msg("mqtt status publish failed")
	}
}
