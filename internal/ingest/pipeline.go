package ingest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skobkin/meshwatch/internal/bus"
	"github.com/skobkin/meshwatch/internal/config"
	"github.com/skobkin/meshwatch/internal/connectors"
	"github.com/skobkin/meshwatch/internal/domain"
	"github.com/skobkin/meshwatch/internal/radio"
	"github.com/skobkin/meshwatch/internal/transport"
)

const shutdownTimeout = 5 * time.Second

var (
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrDuplicate       = errors.New("duplicate message")
	ErrDecode          = errors.New("decode failed")
)

// Pipeline owns the broker session and feeds received traffic into the network store.
type Pipeline struct {
	cfg       config.AppConfig
	session   transport.Session
	processor *radio.Processor
	store     *domain.NetworkStore
	bus       bus.Publisher
	alerts    *AlertDetector
	dedup     *Deduplicator
	stats     *Stats
	events    dispatcher
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	state  connectors.ConnectionState
	cancel context.CancelFunc
	wg     sync.WaitGroup
	lost   chan error
}

func New(logger *slog.Logger, pub bus.Publisher, session transport.Session, processor *radio.Processor, store *domain.NetworkStore, cfg config.AppConfig) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Pipeline{
		cfg:       cfg,
		session:   session,
		processor: processor,
		store:     store,
		bus:       pub,
		dedup:     NewDeduplicator(cfg.Ingest.DedupSize, cfg.Ingest.DedupWindow.Std()),
		stats:     &Stats{},
		events:    dispatcher{logger: logger},
		logger:    logger,
		now:       time.Now,
		state:     connectors.ConnectionStateDisconnected,
		lost:      make(chan error, 1),
	}
	if cfg.Alerts.Enabled {
		p.alerts = NewAlertDetector(cfg.Alerts)
	}

	store.SetLocalNodeID(cfg.MQTT.NodeID)
	store.SetChannel(domain.Channel{
		Index:           0,
		Name:            cfg.MQTT.Channel,
		Role:            domain.ChannelRolePrimary,
		Encrypted:       processor.Capabilities().Crypto,
		UplinkEnabled:   true,
		DownlinkEnabled: true,
	})

	return p
}

// AddListeners registers a listener set. Listeners are called in registration order.
func (p *Pipeline) AddListeners(l Listeners) {
	p.events.add(l)
}

func (p *Pipeline) Stats() StatsSnapshot {
	snap := p.stats.Snapshot()
	snap.DedupEntries = p.dedup.Len()

	return snap
}

func (p *Pipeline) State() connectors.ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Connect opens the session, subscribes and starts the cleanup and reconnect goroutines, which
// run until Disconnect or until ctx is done. Configuration errors are returned without retrying.
func (p *Pipeline) Connect(ctx context.Context) error {
	if err := p.cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	p.mu.Lock()
	switch p.state {
	case connectors.ConnectionStateConnected, connectors.ConnectionStateConnecting, connectors.ConnectionStateReconnecting:
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	p.stopBackground()

	p.setState(connectors.ConnectionStateConnecting, nil, 0)
	if err := p.open(ctx); err != nil {
		p.setState(connectors.ConnectionStateDisconnected, err, 0)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	p.drainLost()

	p.wg.Add(2)
	go p.runCleanup(runCtx)
	go p.runReconnectMonitor(runCtx)

	p.setState(connectors.ConnectionStateConnected, nil, 0)
	p.events.connected()

	return nil
}

// Disconnect stops the background goroutines, waits for them and closes the session. It never
// triggers a reconnect.
func (p *Pipeline) Disconnect() error {
	p.stopBackground()
	err := p.session.Close()

	if prev := p.setState(connectors.ConnectionStateDisconnected, nil, 0); prev != connectors.ConnectionStateDisconnected {
		p.events.disconnected(nil)
	}
	if err != nil {
		return fmt.Errorf("close %s session: %w", p.session.Name(), err)
	}

	return nil
}

func (p *Pipeline) stopBackground() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		p.logger.Warn("background tasks did not stop in time", "timeout", shutdownTimeout)
	}
}

func (p *Pipeline) open(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, p.cfg.MQTT.ConnectTimeout.Std())
	defer cancel()

	err := p.session.Connect(connectCtx, transport.Callbacks{
		OnMessage: func(topic string, payload []byte) {
			if err := p.HandleMessage(topic, payload); err != nil {
				p.logger.Debug("message dropped", "topic", topic, "error", err)
			}
		},
		OnConnectionLost: p.connectionLost,
	})
	if err != nil {
		return fmt.Errorf("connect %s session: %w", p.session.Name(), err)
	}

	filters := SubscriptionFilters(p.cfg.MQTT.TopicRoot, p.cfg.MQTT.Channel)
	if err := p.session.Subscribe(connectCtx, filters); err != nil {
		_ = p.session.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	p.logger.Info("subscribed", "filters", filters)

	return nil
}

func (p *Pipeline) connectionLost(err error) {
	if err == nil {
		err = errors.New("connection lost")
	}
	select {
	case p.lost <- err:
	default:
	}
}

func (p *Pipeline) drainLost() {
	for {
		select {
		case <-p.lost:
		default:
			return
		}
	}
}

func (p *Pipeline) runReconnectMonitor(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-p.lost:
			p.logger.Warn("connection lost", "error", err)
			p.setState(connectors.ConnectionStateReconnecting, err, 0)
			p.events.disconnected(err)
			if !p.reconnect(ctx) {
				return
			}
		}
	}
}

// reconnect retries with jittered exponential backoff until it succeeds, ctx ends or the attempt
// limit is reached.
func (p *Pipeline) reconnect(ctx context.Context) bool {
	base := p.cfg.MQTT.ReconnectDelay.Std()
	maxDelay := p.cfg.MQTT.MaxReconnectDelay.Std()
	limit := p.cfg.MQTT.MaxReconnectAttempts

	var lastErr error
	for failures := 0; ; failures++ {
		if limit > 0 && failures >= limit {
			p.logger.Error("giving up reconnecting", "attempts", failures, "error", lastErr)
			p.setState(connectors.ConnectionStateFailed, lastErr, failures)
			return false
		}

		delay := Jitter(BackoffDelay(failures, base, maxDelay))
		p.logger.Info("reconnecting", "attempt", failures+1, "delay", delay)
		if !sleepWithContext(ctx, delay) {
			return false
		}

		p.stats.reconnectAttempts.Add(1)
		_ = p.session.Close()
		if err := p.open(ctx); err != nil {
			lastErr = err
			p.logger.Warn("reconnect failed", "attempt", failures+1, "error", err)
			p.setState(connectors.ConnectionStateReconnecting, err, failures+1)
			continue
		}
		p.drainLost()

		p.logger.Info("reconnected", "attempts", failures+1)
		p.setState(connectors.ConnectionStateConnected, nil, 0)
		p.events.connected()
		return true
	}
}

func (p *Pipeline) runCleanup(ctx context.Context) {
	defer p.wg.Done()

	interval := p.cfg.Ingest.CleanupInterval.Std()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Cleanup()
		}
	}
}

// Cleanup marks quiet nodes offline and prunes stale ones. It returns the number pruned.
func (p *Pipeline) Cleanup() int {
	offline := p.store.MarkOffline(p.cfg.Ingest.OnlineThreshold.Std())
	if p.alerts != nil && p.cfg.Alerts.OfflineAlerts {
		nodes := make([]domain.Node, 0, len(offline))
		for _, id := range offline {
			if node, ok := p.store.GetNode(id); ok {
				nodes = append(nodes, node)
			}
		}
		p.raise(p.alerts.CheckOffline(nodes)...)
	}

	pruned := p.store.PruneStale(p.cfg.Ingest.StaleThreshold.Std())
	if p.alerts != nil {
		p.alerts.ForgetBefore(p.now().Add(-p.cfg.Alerts.Cooldown.Std()))
	}
	if len(offline) > 0 || pruned > 0 {
		p.logger.Info("node cleanup", "offline", len(offline), "pruned", pruned)
	}

	return pruned
}

// HandleMessage processes one broker message. Every failure is scoped to the message: it is
// counted, returned and never propagated further.
func (p *Pipeline) HandleMessage(topic string, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.stats.decodeErrors.Add(1)
			p.logger.Error("message handler panic", "topic", topic, "panic", r)
			err = fmt.Errorf("%w: panic: %v", ErrDecode, r)
		}
	}()

	now := p.now()
	p.stats.markReceived(now)

	limit := p.cfg.Ingest.MaxPayloadSize
	if limit <= 0 {
		limit = config.DefaultMaxPayloadSize
	}
	if len(payload) > limit {
		p.stats.rejected.Add(1)
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	t := ParseTopic(topic)
	if p.logger.Enabled(context.Background(), slog.LevelDebug) {
		raw := connectors.RawPacket{
			Topic: topic,
			Hex:   strings.ToUpper(hex.EncodeToString(payload)),
			Len:   len(payload),
		}
		if tp, ok := p.bus.(bus.TryPublisher); ok {
			tp.TryPublish(connectors.TopicRawPacket, raw)
		} else {
			p.bus.Publish(connectors.TopicRawPacket, raw)
		}
	}

	switch t.Kind {
	case KindJSON:
		p.stats.jsonMessages.Add(1)
		return p.handleJSON(t, topic, payload, now)
	case KindStatus:
		p.stats.statusMessages.Add(1)
		return p.handleStatus(t, payload, now)
	case KindEncrypted:
		p.stats.encrypted.Add(1)
	default:
		p.stats.rawMessages.Add(1)
	}

	return p.handleBinary(t, topic, payload, now)
}

func (p *Pipeline) handleBinary(t Topic, topic string, payload []byte, now time.Time) error {
	res := p.processor.Process(payload)
	if !res.Success {
		p.stats.decodeErrors.Add(1)
		return fmt.Errorf("%w: %s", ErrDecode, res.Error)
	}

	pkt := packetFromProcessed(res, now)
	pkt.Source = t.Kind
	if p.dedup.Seen(pkt.dedupKey(topic, payload)) {
		p.stats.duplicates.Add(1)
		return ErrDuplicate
	}
	if pkt.DecodeErr != "" {
		p.stats.decodeErrors.Add(1)
		p.logger.Debug("partial decode", "port", pkt.Port.String(), "error", pkt.DecodeErr)
	}

	p.apply(pkt, t)
	p.stats.processed.Add(1)

	return nil
}

func (p *Pipeline) handleJSON(t Topic, topic string, payload []byte, now time.Time) error {
	pkt, err := parseJSONMessage(payload, now)
	if err != nil {
		p.stats.jsonErrors.Add(1)
		return err
	}
	if p.dedup.Seen(pkt.dedupKey(topic, payload)) {
		p.stats.duplicates.Add(1)
		return ErrDuplicate
	}

	p.apply(pkt, t)
	p.stats.processed.Add(1)

	return nil
}

// handleStatus applies a presence report: "online" refreshes the node, "offline" clears its
// online flag.
func (p *Pipeline) handleStatus(t Topic, payload []byte, now time.Time) error {
	nodeID := domain.NormalizeNodeID(t.NodeID)
	if nodeID == "" {
		return fmt.Errorf("%w: status topic node id %q", ErrDecode, t.NodeID)
	}

	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "offline":
		p.store.SetNodeOnline(nodeID, false)
	default:
		node, isNew := p.store.UpsertNode(domain.NodeUpdate{
			Node:       domain.Node{NodeID: nodeID},
			LastHeard:  now,
			FromPacket: true,
		})
		p.publishNode(node, isNew)
	}
	p.stats.processed.Add(1)

	return nil
}

// setState records a lifecycle change and returns the previous state.
func (p *Pipeline) setState(state connectors.ConnectionState, cause error, attempt int) connectors.ConnectionState {
	p.mu.Lock()
	prev := p.state
	p.state = state
	p.mu.Unlock()

	status := connectors.ConnectionStatus{
		State:         state,
		TransportName: p.session.Name(),
		Attempt:       attempt,
		Timestamp:     p.now(),
	}
	if r, ok := p.session.(transport.StatusTargetResolver); ok {
		status.Target = r.StatusTarget()
	}
	if cause != nil {
		status.Err = cause.Error()
	}
	p.store.SetConnectionStatus(string(state))
	p.bus.Publish(connectors.TopicConnStatus, status)

	return prev
}
