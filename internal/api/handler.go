package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skobkin/meshwatch/internal/bus"
	"github.com/skobkin/meshwatch/internal/connectors"
	"github.com/skobkin/meshwatch/internal/domain"
	"github.com/skobkin/meshwatch/internal/ingest"
	"github.com/skobkin/meshwatch/internal/transport"
)

const (
	defaultMessageLimit = 100
	sendTimeout         = 10 * time.Second
)

// Pipeline is the ingest side the API reports on and sends through.
type Pipeline interface {
	Stats() ingest.StatsSnapshot
	State() connectors.ConnectionState
	SendText(ctx context.Context, text, destination string, channel int) (domain.Message, error)
}

// Handler handles HTTP API requests
type Handler struct {
	store    *domain.NetworkStore
	pipeline Pipeline
	bus      bus.Publisher
}

func NewHandler(store *domain.NetworkStore, pipeline Pipeline, pub bus.Publisher) *Handler {
	return &Handler{
		store:    store,
		pipeline: pipeline,
		bus:      pub,
	}
}

// ListNodes returns every known node, optionally only online ones.
func (h *Handler) ListNodes(c *gin.Context) {
	onlineOnly, err := queryBool(c, "online")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_online"})
		return
	}

	nodes := h.store.Nodes()
	out := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		if onlineOnly && !n.Online {
			continue
		}
		out = append(out, newNodeView(n))
	}

	c.JSON(http.StatusOK, gin.H{"nodes": out, "count": len(out)})
}

func (h *Handler) GetNode(c *gin.Context) {
	nodeID := domain.NormalizeNodeID(c.Param("id"))
	if nodeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_node_id"})
		return
	}
	if !strings.HasPrefix(nodeID, "!") {
		nodeID = "!" + nodeID
	}

	node, ok := h.store.GetNode(nodeID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "node_not_found"})
		return
	}
	resp := gin.H{"node": newNodeView(node)}
	if route, ok := h.store.Route(nodeID); ok {
		resp["route"] = newRouteView(route)
	}

	c.JSON(http.StatusOK, resp)
}

// ListMessages filters the message log by channel, node or conversation key.
func (h *Handler) ListMessages(c *gin.Context) {
	filter := domain.MessageFilter{
		NodeID:       domain.NormalizeNodeID(c.Query("node")),
		Conversation: strings.TrimSpace(c.Query("conversation")),
		Limit:        defaultMessageLimit,
	}
	if raw := c.Query("channel"); raw != "" {
		index, err := strconv.Atoi(raw)
		if err != nil || index < 0 || index >= domain.ChannelSlots {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_channel"})
			return
		}
		filter.Channel = &index
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > domain.MaxMessages {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		filter.Limit = limit
	}

	messages := h.store.Messages(filter)
	out := make([]messageView, 0, len(messages))
	for _, m := range messages {
		out = append(out, newMessageView(m))
	}

	c.JSON(http.StatusOK, gin.H{"messages": out, "count": len(out)})
}

// SendMessageRequest represents an outgoing text message
type SendMessageRequest struct {
	Text        string `json:"text" binding:"required"`
	Destination string `json:"destination"`
	Channel     int    `json:"channel"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), sendTimeout)
	defer cancel()
	msg, err := h.pipeline.SendText(ctx, req.Text, req.Destination, req.Channel)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrEmptyMessage),
			errors.Is(err, ingest.ErrMessageTooLong),
			errors.Is(err, ingest.ErrInvalidChannel),
			errors.Is(err, ingest.ErrInvalidTarget):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ingest.ErrMissingNodeID):
			c.JSON(http.StatusConflict, gin.H{"error": "node_id_not_configured"})
		case errors.Is(err, transport.ErrNotConnected):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not_connected"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "send_failed"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": newMessageView(msg)})
}

func (h *Handler) ListAlerts(c *gin.Context) {
	unreadOnly, err := queryBool(c, "unread")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_unread"})
		return
	}

	alerts := h.store.Alerts(unreadOnly)
	out := make([]alertView, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, newAlertView(a))
	}

	c.JSON(http.StatusOK, gin.H{"alerts": out, "count": len(out)})
}

// AcknowledgeAlert marks an alert as read and announces it on the bus for persistence.
func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if !h.store.AcknowledgeAlert(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert_not_found"})
		return
	}
	if h.bus != nil {
		h.bus.Publish(connectors.TopicAlertAck, domain.AlertAck{ID: id})
	}

	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

func (h *Handler) ListRoutes(c *gin.Context) {
	routes := h.store.Routes()
	out := make([]routeView, 0, len(routes))
	for _, r := range routes {
		out = append(out, newRouteView(r))
	}

	c.JSON(http.StatusOK, gin.H{"routes": out, "count": len(out)})
}

func (h *Handler) ListChannels(c *gin.Context) {
	channels := h.store.Channels()
	out := make([]channelView, 0, len(channels))
	for _, ch := range channels {
		out = append(out, newChannelView(ch))
	}

	c.JSON(http.StatusOK, gin.H{"channels": out})
}

func (h *Handler) GeoJSON(c *gin.Context) {
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, h.store.GeoJSON())
}

func (h *Handler) Health(c *gin.Context) {
	state := connectors.ConnectionStateDisconnected
	if h.pipeline != nil {
		state = h.pipeline.State()
	}

	c.JSON(http.StatusOK, gin.H{
		"network":    h.store.Health(),
		"connection": state,
		"local_node": h.store.LocalNodeID(),
	})
}

func (h *Handler) Stats(c *gin.Context) {
	resp := gin.H{
		"nodes":    h.store.NodeCount(),
		"messages": len(h.store.Messages(domain.MessageFilter{})),
		"alerts":   len(h.store.Alerts(true)),
		"routes":   len(h.store.Routes()),
	}
	if h.pipeline != nil {
		resp["ingest"] = h.pipeline.Stats()
	}

	c.JSON(http.StatusOK, resp)
}

func queryBool(c *gin.Context, key string) (bool, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return false, nil
	}

	return strconv.ParseBool(raw)
}
