package natsutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartEmbedded(t *testing.T) {
	c, err := Start(Options{Embedded: true, StoreDir: t.TempDir()}, nil)
	require.NoError(t, err)
	defer c.Close()

	assert.NotEmpty(t, c.ClientURL())
	assert.True(t, c.NC.IsConnected())

	ctx := context.Background()
	kv, err := KeyValue(ctx, c.JS, "TEST_BUCKET", time.Minute)
	require.NoError(t, err)
	_, err = kv.Put(ctx, "k", []byte("v"))
	require.NoError(t, err)

	// A second lookup returns the existing bucket.
	again, err := KeyValue(ctx, c.JS, "TEST_BUCKET", time.Minute)
	require.NoError(t, err)
	entry, err := again.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(entry.Value()))
}

func TestWrapConnectError(t *testing.T) {
	err := wrapConnectError(errors.New("dial tcp: connection refused"), "nats://nowhere:4222")
	assert.Contains(t, err.Error(), "NATS is not running at nats://nowhere:4222")

	err = wrapConnectError(errors.New("authorization violation"), "nats://x:4222")
	assert.Equal(t, "NATS connection failed: authorization violation", err.Error())
}
