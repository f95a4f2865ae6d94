package realtime

import (
	"testing"

	"github.com/nats-io/nats.go"
)

func natstestConn(t *testing.T, url string) (*nats.Conn, error) {
	t.Helper()
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	t.Cleanup(nc.Close)
	return nc, nil
}
