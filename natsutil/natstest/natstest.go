// Package natstest runs an embedded NATS server for tests.
package natstest

import (
	"testing"

	"github.com/c360studio/sangam/natsutil"
)

// Start runs an embedded JetStream-enabled server for the duration of t.
func Start(t testing.TB) *natsutil.Conn {
	t.Helper()

	c, err := natsutil.Start(natsutil.Options{
		Embedded: true,
		StoreDir: t.TempDir(),
		Name:     t.Name(),
	}, nil)
	if err != nil {
		t.Fatalf("start embedded NATS: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}
