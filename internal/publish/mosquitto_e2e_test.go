//go:build e2e

package publish

import (
	"context"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/srg/gasmon/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startMosquitto(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2",
		ExposedPorts: []string{"1883/tcp"},
		// The image ships a config that listens on all interfaces without auth
		Cmd:        []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor: wait.ForListeningPort("1883/tcp").WithStartupTimeout(30 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	broker, err := c.PortEndpoint(ctx, "1883/tcp", "tcp")
	if err != nil {
		t.Fatalf("mosquitto endpoint: %v", err)
	}
	return broker
}

func TestPublisherAgainstMosquitto(t *testing.T) {
	// GOAL: Verify a CBOR snapshot reaches a real broker and decodes on the subscriber side
	//
	// TEST SCENARIO: Mosquitto container → subscriber on topic → publisher Run → subscriber decodes Methane 1.000

	broker := startMosquitto(t)

	st := store.New()
	gen := st.Begin()
	require.True(t, st.Set(gen, store.Reading{Label: "Methane", Value: 1, Formatted: "1.000", Unit: "ppm"}))

	received := make(chan []byte, 4)
	sub := mqtt.NewClient(mqtt.NewClientOptions().AddBroker(broker).SetClientID("gasmon-e2e-sub"))
	token := sub.Connect()
	require.True(t, token.WaitTimeout(10*time.Second), "subscriber MUST connect")
	require.NoError(t, token.Error())
	t.Cleanup(func() { sub.Disconnect(250) })

	token = sub.Subscribe("gasmon/e2e", 1, func(_ mqtt.Client, m mqtt.Message) {
		select {
		case received <- m.Payload():
		default:
		}
	})
	require.True(t, token.WaitTimeout(10*time.Second))
	require.NoError(t, token.Error())

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	p, err := New(st, &Options{
		Broker:     broker,
		Topic:      "gasmon/e2e",
		ClientID:   "gasmon-e2e-pub",
		QoS:        1,
		Interval:   100 * time.Millisecond,
		Encoding:   EncodingCBOR,
		Peripheral: "AA:BB:CC:DD:EE:FF",
	}, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, p.Connect(ctx))
	t.Cleanup(p.Close)

	go func() { _ = p.Run(ctx) }()

	select {
	case payload := <-received:
		snap, err := Decode(EncodingCBOR, payload)
		require.NoError(t, err)
		assert.Equal(t, "AA:BB:CC:DD:EE:FF", snap.Peripheral)
		require.Contains(t, snap.Readings, "Methane")
		assert.Equal(t, "1.000", snap.Readings["Methane"].Formatted, "the broker MUST deliver the latest Methane reading")
	case <-ctx.Done():
		t.Fatal("no snapshot received from the broker")
	}
}
