package darwin

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/rs/zerolog"
)

// StreamConfig carries the STOMP connection settings for the PushPort
// topic.
type StreamConfig struct {
	Host          string
	Port          int
	Topic         string
	Username      string
	Password      string
	Heartbeat     time.Duration
	ReconnectWait time.Duration
}

// MessageHandler receives each raw (still compressed) frame body.
type MessageHandler func(body []byte)

// Client maintains a durable STOMP subscription to the Darwin PushPort
// topic and hands every frame body to a handler. The broker identifies the
// durable subscription by hostname, so a reconnecting client resumes from
// its retained backlog.
type Client struct {
	cfg    StreamConfig
	logger zerolog.Logger
	fqdn   string
}

// NewClient builds a PushPort client. The host name becomes both part of
// the client-id and the durable subscription name.
func NewClient(cfg StreamConfig, logger zerolog.Logger) *Client {
	fqdn, err := os.Hostname()
	if err != nil || fqdn == "" {
		fqdn = "masphd"
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With().Str("component", "darwin-client").Logger(),
		fqdn:   fqdn,
	}
}

// Listen connects, subscribes, and delivers frame bodies to handler until
// ctx is cancelled. Transport failures are logged; the client sleeps the
// configured reconnect wait and dials again.
func (c *Client) Listen(ctx context.Context, handler MessageHandler) error {
	for {
		err := c.listenOnce(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn().Err(err).
			Dur("reconnect_wait", c.cfg.ReconnectWait).
			Msg("disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ReconnectWait):
		}
	}
}

func (c *Client) listenOnce(ctx context.Context, handler MessageHandler) error {
	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))
	c.logger.Info().Str("addr", addr).Msg("connecting")

	conn, err := stomp.Dial("tcp", addr,
		stomp.ConnOpt.Login(c.cfg.Username, c.cfg.Password),
		stomp.ConnOpt.HeartBeat(c.cfg.Heartbeat, c.cfg.Heartbeat),
		stomp.ConnOpt.Header("client-id", c.cfg.Username+"-"+c.fqdn),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Disconnect()

	sub, err := conn.Subscribe(c.cfg.Topic, stomp.AckAuto,
		stomp.SubscribeOpt.Header("activemq.subscriptionName", c.fqdn),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.cfg.Topic, err)
	}
	c.logger.Info().Str("topic", c.cfg.Topic).Str("subscription", c.fqdn).Msg("subscribed")

	for {
		select {
		case <-ctx.Done():
			if err := sub.Unsubscribe(); err != nil {
				c.logger.Warn().Err(err).Msg("unsubscribe failed")
			}
			return nil
		case msg, ok := <-sub.C:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}
			if msg.Err != nil {
				return fmt.Errorf("stomp message error: %w", msg.Err)
			}
			handler(msg.Body)
		}
	}
}
