// Package frigate subscribes to a Frigate NVR's MQTT event stream and feeds
// bird sightings into the processing pipeline.
package frigate

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/featherwatch/featherwatch/internal/errors"
	"github.com/featherwatch/featherwatch/internal/logging"
	"github.com/featherwatch/featherwatch/internal/pipeline"
)

// Config holds MQTT connection settings for the Frigate event stream.
type Config struct {
	Broker            string
	ClientID          string
	Topic             string
	Username          string
	Password          string
	ReconnectCooldown time.Duration
	ReconnectDelay    time.Duration
}

// DefaultConfig fills in the retry timings.
func DefaultConfig() Config {
	return Config{
		ReconnectCooldown: 5 * time.Second,
		ReconnectDelay:    time.Second,
	}
}

// Client maintains the MQTT subscription and dispatches decoded sightings.
type Client struct {
	config Config
	pipe   *pipeline.Pipeline

	internalClient  mqtt.Client
	lastConnAttempt time.Time

	mu             sync.Mutex
	reconnectTimer *time.Timer
	reconnectStop  chan struct{}
	stopOnce       sync.Once

	logger *slog.Logger
}

// NewClient creates an MQTT client for the Frigate event stream.
func NewClient(config Config, pipe *pipeline.Pipeline) *Client {
	if config.ReconnectCooldown <= 0 {
		config.ReconnectCooldown = 5 * time.Second
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = time.Second
	}
	return &Client{
		config:        config,
		pipe:          pipe,
		reconnectStop: make(chan struct{}),
		logger:        logging.ForService("frigate"),
	}
}

// Connect establishes the broker connection and subscribes to the event
// topic. Repeated calls within the cooldown window are rejected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if time.Since(c.lastConnAttempt) < c.config.ReconnectCooldown {
		c.mu.Unlock()
		return errors.Newf("connection attempt too soon, cooldown %s active", c.config.ReconnectCooldown).
			Component("frigate").
			Category(errors.CategoryMQTTConnection).
			Build()
	}
	c.lastConnAttempt = time.Now()
	c.mu.Unlock()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return errors.New(err).
			Component("frigate").
			Category(errors.CategoryConfiguration).
			Context("broker", c.config.Broker).
			Build()
	}

	// Resolve the hostname up front so DNS failures surface immediately
	// instead of inside the paho retry loop.
	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(err).
				Component("frigate").
				Category(errors.CategoryMQTTConnection).
				Context("host", host).
				Build()
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(c.config.ReconnectDelay)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.internalClient = mqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return errors.Newf("timeout connecting to broker %s", c.config.Broker).
			Component("frigate").
			Category(errors.CategoryMQTTConnection).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("frigate").
			Category(errors.CategoryMQTTConnection).
			Context("broker", c.config.Broker).
			Build()
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect tears down the connection and stops any pending reconnect.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.reconnectStop)
	})
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.mu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(250)
	}
}

func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Info("connected to broker",
		"broker", c.config.Broker, "topic", c.config.Topic)

	token := client.Subscribe(c.config.Topic, 0, c.onMessage)
	if token.Wait() && token.Error() != nil {
		c.logger.Error("subscription failed",
			"topic", c.config.Topic, "error", token.Error())
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("connection lost", "broker", c.config.Broker, "error", err)
	c.scheduleReconnect(c.config.ReconnectDelay)
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ev, ok, err := DecodeEvent(msg.Payload())
	if err != nil {
		c.logger.Warn("undecodable event payload",
			"topic", msg.Topic(), "error", err)
		return
	}
	if !ok {
		return
	}

	// Processing may block on enrichment HTTP calls; keep it off paho's
	// dispatch goroutine so a slow event never delays the ones behind it.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		c.pipe.HandleSighting(ctx, ev)
	}()
}

// scheduleReconnect arms a reconnect attempt with exponential backoff capped
// at five minutes. paho's own auto-reconnect handles transient drops; this
// path covers the cases where the client gave up entirely.
func (c *Client) scheduleReconnect(delay time.Duration) {
	const maxDelay = 5 * time.Minute
	if delay > maxDelay {
		delay = maxDelay
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(delay, func() {
		select {
		case <-c.reconnectStop:
			return
		default:
		}
		if c.IsConnected() {
			return
		}
		c.logger.Info("attempting reconnect",
			"broker", c.config.Broker, "delay", delay.String())
		ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		defer cancel()
		if err := c.Connect(ctx); err != nil {
			c.logger.Warn("reconnect failed",
				"error", fmt.Sprintf("%v", err))
			c.scheduleReconnect(delay * 2)
		}
	})
}
