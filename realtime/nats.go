package realtime

import (
	"github.com/nats-io/nats.go"
)

// NATSBroker is a Broker over core NATS publish/subscribe.
type NATSBroker struct {
	nc *nats.Conn
}

// NewNATSBroker wraps an established connection.
func NewNATSBroker(nc *nats.Conn) *NATSBroker {
	return &NATSBroker{nc: nc}
}

// Publish implements Broker.
func (b *NATSBroker) Publish(subject string, data []byte) error {
	return b.nc.Publish(subject, data)
}

// Subscribe implements Broker.
func (b *NATSBroker) Subscribe(subject string, handler func([]byte)) (func() error, error) {
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

// Flush waits until the server has processed everything sent so far.
func (b *NATSBroker) Flush() error {
	return b.nc.Flush()
}
