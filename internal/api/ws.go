package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/skobkin/meshwatch/internal/bus"
	"github.com/skobkin/meshwatch/internal/connectors"
	"github.com/skobkin/meshwatch/internal/domain"
	"github.com/skobkin/meshwatch/internal/ingest"
)

const (
	// MaxWSClients bounds concurrent live-update connections.
	MaxWSClients = 100

	wsSendBuffer   = 64
	wsReadLimit    = 4096
	wsPongWait     = 90 * time.Second
	wsPingPeriod   = 80 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsStateLimit   = 200
)

// wsEvent is the envelope of every server-to-client frame.
type wsEvent struct {
	Type      string     `json:"type"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Data      any        `json:"data,omitempty"`
	Success   *bool      `json:"success,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type wsRequest struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	Destination string `json:"destination"`
	Channel     *int   `json:"channel"`
}

type stateView struct {
	LocalNode  string                     `json:"local_node"`
	Connection connectors.ConnectionState `json:"connection"`
	Health     domain.Health              `json:"health"`
	Nodes      []nodeView                 `json:"nodes"`
	Messages   []messageView              `json:"messages"`
	Alerts     []alertView                `json:"alerts"`
	Channels   []channelView              `json:"channels"`
	Routes     []routeView                `json:"routes"`
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Hub fans bus events out to websocket clients and accepts send/refresh commands from them.
type Hub struct {
	store    *domain.NetworkStore
	pipeline Pipeline
	bus      bus.MessageBus
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

func NewHub(store *domain.NetworkStore, pipeline Pipeline, messageBus bus.MessageBus, allowedOrigins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default().With("component", "api.ws")
	}

	return &Hub{
		store:    store,
		pipeline: pipeline,
		bus:      messageBus,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		now:     time.Now,
		clients: make(map[*wsClient]struct{}),
	}
}

// originChecker accepts same-origin requests, requests without an Origin header and the
// configured CORS origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		host := strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://")

		return strings.EqualFold(host, r.Host)
	}
}

// Start forwards message, alert and node events to every connected client until ctx is done.
func (h *Hub) Start(ctx context.Context) {
	if h == nil || h.bus == nil {
		return
	}

	msgSub := h.bus.Subscribe(connectors.TopicMessage)
	alertSub := h.bus.Subscribe(connectors.TopicAlert)
	nodeSub := h.bus.Subscribe(connectors.TopicNodeUpdate)

	go func() {
		defer h.bus.Unsubscribe(msgSub, connectors.TopicMessage)
		defer h.bus.Unsubscribe(alertSub, connectors.TopicAlert)
		defer h.bus.Unsubscribe(nodeSub, connectors.TopicNodeUpdate)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-msgSub:
				if !ok {
					return
				}
				if msg, ok := raw.(domain.Message); ok {
					h.broadcast("message", newMessageView(msg))
				}
			case raw, ok := <-alertSub:
				if !ok {
					return
				}
				if alert, ok := raw.(domain.Alert); ok {
					h.broadcast("alert", newAlertView(alert))
				}
			case raw, ok := <-nodeSub:
				if !ok {
					return
				}
				if ev, ok := raw.(domain.NodeEvent); ok {
					kind := "node_update"
					if ev.IsNew {
						kind = "node_new"
					}
					h.broadcast(kind, newNodeView(ev.Node))
				}
			}
		}
	}()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Close disconnects every client. Hijacked connections survive http.Server.Shutdown, so the
// runtime calls this explicitly.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = map[*wsClient]struct{}{}
	h.mu.Unlock()

	for _, c := range clients {
		c.close("server shutdown")
	}
}

// ServeWS upgrades the request and streams live updates. The first frame is the full state.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{hub: h, conn: conn, send: make(chan []byte, wsSendBuffer)}
	if !h.register(client) {
		deadline := time.Now().Add(wsWriteTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "Too many connections"), deadline)
		_ = conn.Close()
		return
	}

	h.sendTo(client, wsEvent{Type: "init", Data: h.state()})
	go client.writePump()
	client.readPump(c.Request.Context())
}

func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || len(h.clients) >= MaxWSClients {
		return false
	}
	h.clients[c] = struct{}{}

	return true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) broadcast(kind string, data any) {
	ts := h.now().UTC()
	raw, err := json.Marshal(wsEvent{Type: kind, Timestamp: &ts, Data: data})
	if err != nil {
		h.logger.Warn("encode websocket event", "type", kind, "error", err)
		return
	}

	h.mu.Lock()
	var slow []*wsClient
	for c := range h.clients {
		if !c.enqueue(raw) {
			slow = append(slow, c)
			delete(h.clients, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		c.close("client too slow")
	}
}

func (h *Hub) sendTo(c *wsClient, ev wsEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("encode websocket reply", "type", ev.Type, "error", err)
		return
	}
	if !c.enqueue(raw) {
		h.unregister(c)
		c.close("client too slow")
	}
}

func (h *Hub) state() stateView {
	out := stateView{
		LocalNode:  h.store.LocalNodeID(),
		Connection: connectors.ConnectionStateDisconnected,
		Health:     h.store.Health(),
	}
	if h.pipeline != nil {
		out.Connection = h.pipeline.State()
	}
	for _, n := range h.store.Nodes() {
		out.Nodes = append(out.Nodes, newNodeView(n))
	}
	for _, m := range h.store.Messages(domain.MessageFilter{Limit: wsStateLimit}) {
		out.Messages = append(out.Messages, newMessageView(m))
	}
	alerts := h.store.Alerts(false)
	if len(alerts) > wsStateLimit {
		alerts = alerts[len(alerts)-wsStateLimit:]
	}
	for _, a := range alerts {
		out.Alerts = append(out.Alerts, newAlertView(a))
	}
	for _, ch := range h.store.Channels() {
		out.Channels = append(out.Channels, newChannelView(ch))
	}
	for _, r := range h.store.Routes() {
		out.Routes = append(out.Routes, newRouteView(r))
	}

	return out
}

func (h *Hub) handleRequest(ctx context.Context, c *wsClient, raw []byte) {
	var req wsRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.sendTo(c, wsEvent{Type: "error", Error: "invalid json"})
		return
	}

	switch req.Type {
	case "ping":
		h.sendTo(c, wsEvent{Type: "pong"})
	case "refresh":
		h.sendTo(c, wsEvent{Type: "refresh", Data: h.state()})
	case "send_message":
		h.sendTo(c, h.sendMessage(ctx, req))
	default:
		h.sendTo(c, wsEvent{Type: "error", Error: "unknown request type"})
	}
}

func (h *Hub) sendMessage(ctx context.Context, req wsRequest) wsEvent {
	failed := false
	reply := wsEvent{Type: "message_status", Success: &failed}
	if h.pipeline == nil {
		reply.Error = "sending is not available"
		return reply
	}

	text := strings.TrimSpace(req.Text)
	switch {
	case text == "":
		reply.Error = "Empty message"
		return reply
	case len(text) > ingest.MaxTextBytes:
		reply.Error = fmt.Sprintf("Message too long (max %d)", ingest.MaxTextBytes)
		return reply
	}

	channel := 0
	if req.Channel != nil && *req.Channel >= 0 && *req.Channel < domain.ChannelSlots {
		channel = *req.Channel
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	msg, err := h.pipeline.SendText(ctx, text, req.Destination, channel)
	if err != nil {
		h.logger.Debug("websocket send failed", "error", err)
		reply.Error = err.Error()
		return reply
	}
	ok := true
	reply.Success = &ok
	reply.Data = newMessageView(msg)

	return reply
}

func (c *wsClient) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.close("")
	}()

	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		c.hub.handleRequest(ctx, c, data)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues a frame without blocking. It reports false for closed or saturated clients.
func (c *wsClient) enqueue(raw []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}

// close stops the write pump. The close frame is written by the pump itself so that no two
// goroutines write to the connection at once.
func (c *wsClient) close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if reason != "" {
		c.hub.logger.Debug("closing websocket client", "remote", c.conn.RemoteAddr().String(), "reason", reason)
	}
}
