package transport

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) *nats.Conn {
	t.Helper()
	opts := &server.Options{Host: "127.0.0.1", Port: -1}
	s, err := server.NewServer(opts)
	require.NoError(t, err)

	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats test server did not become ready")
	}
	t.Cleanup(s.Shutdown)

	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestNATSSender_PublishesFramesSubscribersReceive(t *testing.T) {
	nc := startTestServer(t)

	received := make(chan []byte, 4)
	sub, err := nc.Subscribe("daq.writer.events", func(msg *nats.Msg) {
		received <- msg.Data
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	sender := NewNATSSender(nc, "daq.writer.events", 10)
	defer sender.Close()

	require.NoError(t, sender.Send([]byte(`{"event_number":1}__EOM__`)))

	select {
	case data := <-received:
		require.Equal(t, `{"event_number":1}__EOM__`, string(data))
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the published frame")
	}
}

func TestNATSSender_DropsOncePendingExceedsHighWaterMark(t *testing.T) {
	nc := startTestServer(t)

	sender := NewNATSSender(nc, "daq.writer.events", 1)
	defer sender.Close()

	sender.highWaterMark <- struct{}{} // saturate the single slot by hand

	err := sender.Send([]byte("frame"))
	require.Error(t, err, "send should drop once the high water mark slot is occupied")
}

func TestNATSSender_DefaultsHighWaterMarkWhenNonPositive(t *testing.T) {
	nc := startTestServer(t)

	sender := NewNATSSender(nc, "daq.writer.events", 0)
	require.Equal(t, defaultHighWaterMark, cap(sender.highWaterMark))
}
