package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes notifications on a NATS connection.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to url with reconnect handling.
func NewNATSPublisher(url string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("linkup-notifications"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(subject string, data []byte) error {
	return p.conn.Publish(subject, data)
}

// Ping round-trips to the server. ctx must carry a deadline.
func (p *NATSPublisher) Ping(ctx context.Context) error {
	return p.conn.FlushWithContext(ctx)
}

// Close drains pending publishes and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
