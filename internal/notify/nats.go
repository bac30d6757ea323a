package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jpalmerr/devicewatch/internal/inventory"
)

// DefaultSubjectPrefix is used when no NATS subject prefix is configured.
const DefaultSubjectPrefix = "devices.status"

// natsConn is the part of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes each event as JSON on "<prefix>.<device id>".
//
// Publish errors are logged and otherwise ignored.
type NATSPublisher struct {
	conn   natsConn
	prefix string
	logger *slog.Logger
}

var _ Notifier = (*NATSPublisher)(nil)

// DialNATS connects to url and returns a publisher using prefix.
func DialNATS(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("devicewatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}

	return newNATSPublisher(nc, prefix, logger), nil
}

func newNATSPublisher(conn natsConn, prefix string, logger *slog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the subject an event for deviceID is published on.
func (p *NATSPublisher) Subject(deviceID int64) string {
	return p.prefix + "." + strconv.FormatInt(deviceID, 10)
}

// Publish encodes event and hands it to the NATS client.
func (p *NATSPublisher) Publish(event inventory.StatusChangeEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to encode status event", "device_id", event.DeviceID, "error", err)
		return
	}
	if err := p.conn.Publish(p.Subject(event.DeviceID), data); err != nil {
		p.logger.Warn("failed to publish status event", "device_id", event.DeviceID, "error", err)
	}
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
