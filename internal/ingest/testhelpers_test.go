package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"

	"github.com/skobkin/meshwatch/internal/config"
	"github.com/skobkin/meshwatch/internal/domain"
	"github.com/skobkin/meshwatch/internal/meshcrypto"
	"github.com/skobkin/meshwatch/internal/radio"
	"github.com/skobkin/meshwatch/internal/transport"
)

type published struct {
	Topic   string
	Payload []byte
}

type fakeSession struct {
	mu          sync.Mutex
	connectErrs []error
	failAlways  bool
	connects    int
	closes      int
	connected   bool
	filters     [][]string
	published   []published
	cb          transport.Callbacks
}

func (f *fakeSession) Name() string { return "fake" }

func (f *fakeSession) Connect(_ context.Context, cb transport.Callbacks) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connects++
	if f.failAlways {
		return errors.New("broker unreachable")
	}
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.cb = cb
	f.connected = true

	return nil
}

func (f *fakeSession) Subscribe(_ context.Context, filters []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.filters = append(f.filters, append([]string(nil), filters...))

	return nil
}

func (f *fakeSession) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return transport.ErrNotConnected
	}
	f.published = append(f.published, published{Topic: topic, Payload: append([]byte(nil), payload...)})

	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closes++
	f.connected = false

	return nil
}

// lose simulates the broker dropping the connection.
func (f *fakeSession) lose(err error) {
	f.mu.Lock()
	f.connected = false
	cb := f.cb
	f.mu.Unlock()

	if cb.OnConnectionLost != nil {
		cb.OnConnectionLost(err)
	}
}

func (f *fakeSession) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.connects
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

func testConfig() config.AppConfig {
	cfg := config.Default()
	cfg.MQTT.NodeID = "!0000beef"
	cfg.MQTT.ReconnectDelay = config.Duration(time.Millisecond)
	cfg.MQTT.MaxReconnectDelay = config.Duration(5 * time.Millisecond)
	cfg.MQTT.ConnectTimeout = config.Duration(time.Second)
	cfg.Ingest.CleanupInterval = config.Duration(time.Hour)

	return cfg
}

func newTestPipeline(t *testing.T, cfg config.AppConfig) (*Pipeline, *fakeSession, *domain.NetworkStore) {
	t.Helper()

	cipher, err := meshcrypto.NewCipher(cfg.MQTT.EncryptionKey)
	if err != nil {
		t.Fatalf("initialize cipher: %v", err)
	}
	session := &fakeSession{}
	store := domain.NewNetworkStore()
	p := New(nil, nopPublisher{}, session, radio.NewProcessor(cipher, radio.FullCapabilities), store, cfg)

	return p, session, store
}

// encode builds an encrypted ServiceEnvelope the way a gateway publishes it.
func encode(t *testing.T, p *Pipeline, env radio.Envelope, port radio.PortNum, payload []byte) []byte {
	t.Helper()

	raw, err := p.processor.Encode(env, port, payload)
	if err != nil {
		t.Fatalf("encode packet: %v", err)
	}

	return raw
}

func mustMarshal(t *testing.T, m proto.Message) []byte {
	t.Helper()

	raw, err := proto.Marshal(m)
	if err != nil {
		t.Fatalf("marshal %T: %v", m, err)
	}

	return raw
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
