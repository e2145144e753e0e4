package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/nevasik7/alerting/logger"

	"zigfeed/internal/config"
)

// NoopLogger is a logger that does nothing (for testing)
type NoopLogger struct{}

func (n *NoopLogger) Debug(msg string)                          {}
func (n *NoopLogger) Debugf(format string, args ...interface{}) {}
func (n *NoopLogger) Info(msg string)                           {}
func (n *NoopLogger) Infof(format string, args ...interface{})  {}
func (n *NoopLogger) Warn(msg string)                           {}
func (n *NoopLogger) Warnf(format string, args ...interface{})  {}
func (n *NoopLogger) Error(msg string)                          {}
func (n *NoopLogger) Errorf(format string, args ...interface{}) {}
func (n *NoopLogger) Fatal(msg string)                          {}
func (n *NoopLogger) Fatalf(format string, args ...interface{}) {}
func (n *NoopLogger) Panic(msg string)                          {}
func (n *NoopLogger) Panicf(format string, args ...interface{}) {}
func (n *NoopLogger) WithField(key string, value interface{}) logger.Logger {
	return n
}
func (n *NoopLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return n
}

// ------------------------ tests not real connection ------------------------

func TestNew_NilConfig(t *testing.T) {
	client, err := New(&NoopLogger{}, nil)

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Equal(t, "nats config is required", err.Error())
}

func TestNew_EmptyURL(t *testing.T) {
	client, err := New(&NoopLogger{}, &config.NATSConfig{})

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Equal(t, "nats url is required", err.Error())
}

func TestReady_NilConnection(t *testing.T) {
	client := &Client{log: &NoopLogger{}}
	assert.False(t, client.Ready())
}

func TestHealth_NilConnection(t *testing.T) {
	client := &Client{log: &NoopLogger{}}
	assert.Error(t, client.Health(context.Background()))
}

func TestClose_NilConnection(t *testing.T) {
	client := &Client{log: &NoopLogger{}}
	assert.NoError(t, client.Close())
}

// ------------------------ tests in-memory nats connection ------------------------

func runTestWithInMemoryNATS(t *testing.T, testFunc func(*testing.T, *server.Server, string)) {
	t.Helper()

	// run in-memory NATS server
	opts := natsserver.DefaultTestOptions
	opts.Port = -1 // random port
	s := natsserver.RunServer(&opts)
	defer s.Shutdown()

	// give server time running
	time.Sleep(100 * time.Millisecond)

	testFunc(t, s, s.ClientURL())
}

func TestNew_Success(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client, err := New(&NoopLogger{}, &config.NATSConfig{URL: url})

		require.NoError(t, err)
		require.NotNil(t, client)
		assert.True(t, client.Ready())
		assert.NoError(t, client.Health(context.Background()))

		client.nc.Close()
	})
}

func TestPublish_PrefixedSubjectAndJSONBody(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client, err := New(&NoopLogger{}, &config.NATSConfig{URL: url, SubjectPrefix: "zigfeed"})
		require.NoError(t, err)
		defer client.nc.Close()

		sub, err := nats.Connect(url)
		require.NoError(t, err)
		defer sub.Close()

		got := make(chan *nats.Msg, 1)
		_, err = sub.Subscribe("zigfeed.trades.7", func(m *nats.Msg) { got <- m })
		require.NoError(t, err)
		require.NoError(t, sub.Flush())

		payload := map[string]string{"tx_hash": "ABC"}
		require.NoError(t, client.Publish(context.Background(), "trades.7", payload))

		select {
		case m := <-got:
			var decoded map[string]string
			require.NoError(t, json.Unmarshal(m.Data, &decoded))
			assert.Equal(t, payload, decoded)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for the broadcast")
		}
	})
}

func TestPublish_NoPrefix(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client, err := New(&NoopLogger{}, &config.NATSConfig{URL: url})
		require.NoError(t, err)
		defer client.nc.Close()

		sub, err := nats.Connect(url)
		require.NoError(t, err)
		defer sub.Close()

		got := make(chan *nats.Msg, 1)
		_, err = sub.Subscribe("trades.7", func(m *nats.Msg) { got <- m })
		require.NoError(t, err)
		require.NoError(t, sub.Flush())

		require.NoError(t, client.Publish(context.Background(), "trades.7", map[string]int{"n": 1}))

		select {
		case <-got:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for the broadcast")
		}
	})
}

func TestClose_Success(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client, err := New(&NoopLogger{}, &config.NATSConfig{URL: url})
		require.NoError(t, err)

		assert.NoError(t, client.Close())
		assert.False(t, client.Ready())

		// closing twice is safe
		assert.NoError(t, client.Close())
	})
}
