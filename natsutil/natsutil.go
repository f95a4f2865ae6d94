// Package natsutil starts or connects to the NATS server Sangam uses for
// realtime fan-out and session storage.
package natsutil

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Conn bundles a NATS connection, its JetStream context and, when the server
// runs in-process, the embedded server.
type Conn struct {
	NC       *nats.Conn
	JS       jetstream.JetStream
	embedded *server.Server
}

// Options selects how to reach NATS.
type Options struct {
	// URL of an external server. Ignored when Embedded is set.
	URL string
	// Embedded starts an in-process server with JetStream enabled.
	Embedded bool
	// StoreDir is the JetStream storage directory for the embedded server.
	// Empty uses the server's default temp location.
	StoreDir string
	// Name identifies the client connection.
	Name string
}

// Start connects to NATS as described by opts.
func Start(opts Options, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{}
	url := opts.URL

	if opts.Embedded || url == "" {
		logger.Info("Starting embedded NATS server")
		ns, err := server.NewServer(&server.Options{
			Port:      -1, // Random available port
			JetStream: true,
			StoreDir:  opts.StoreDir,
			NoLog:     true,
			NoSigs:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return nil, fmt.Errorf("embedded NATS server failed to start")
		}
		c.embedded = ns
		url = ns.ClientURL()
	} else {
		logger.Info("Connecting to NATS", "url", url)
	}

	name := opts.Name
	if name == "" {
		name = "sangam"
	}
	nc, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1), nats.ReconnectWait(time.Second))
	if err != nil {
		c.shutdownServer()
		return nil, wrapConnectError(err, url)
	}
	c.NC = nc

	js, err := jetstream.New(nc)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	c.JS = js

	return c, nil
}

// ClientURL returns the URL clients can use to reach the server.
func (c *Conn) ClientURL() string {
	if c.embedded != nil {
		return c.embedded.ClientURL()
	}
	return c.NC.ConnectedUrl()
}

// Close drains the connection and stops the embedded server, if any.
func (c *Conn) Close() {
	if c.NC != nil {
		_ = c.NC.Drain()
		c.NC.Close()
	}
	c.shutdownServer()
}

func (c *Conn) shutdownServer() {
	if c.embedded != nil {
		c.embedded.Shutdown()
		c.embedded.WaitForShutdown()
	}
}

// KeyValue returns the named bucket, creating it when it doesn't exist.
func KeyValue(ctx context.Context, js jetstream.JetStream, name string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// Bucket doesn't exist, create it
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Sangam %s storage", strings.ToLower(name)),
		History:     1,
		TTL:         ttl,
	})
}

// wrapConnectError provides guidance when an external server is unreachable.
func wrapConnectError(err error, url string) error {
	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no servers available") ||
		strings.Contains(msg, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

Start a server (nats-server -js), or unset SANGAM_NATS_URL to use the
embedded server.`, err, url)
	}
	return fmt.Errorf("NATS connection failed: %w", err)
}
