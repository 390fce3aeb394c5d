package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	streamWriteWait      = 10 * time.Second
	streamPongWait       = 60 * time.Second
	streamPingPeriod     = 54 * time.Second
	streamReadLimit      = 512
	streamSendBuffer     = 16
	streamBroadcastQueue = 64
	streamLatestReports  = 5
)

// streamEvent is what admin dashboards receive after every store save.
type streamEvent struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Total     int            `json:"total"`
	Counts    map[Status]int `json:"counts"`
	Latest    []Report       `json:"latest"`
}

func reportsUpdatedEvent(reports []Report, now time.Time) streamEvent {
	return buildStreamEvent("reports_updated", reports, now)
}

func buildStreamEvent(kind string, reports []Report, now time.Time) streamEvent {
	counts := make(map[Status]int, len(reportStatuses))
	for _, status := range reportStatuses {
		counts[status] = 0
	}
	for _, r := range reports {
		counts[r.Status]++
	}

	latest := append([]Report(nil), reports...)
	sort.SliceStable(latest, func(i, j int) bool {
		return latest[i].Timestamp.After(latest[j].Timestamp)
	})
	if len(latest) > streamLatestReports {
		latest = latest[:streamLatestReports]
	}

	return streamEvent{Type: kind, Timestamp: now, Total: len(reports), Counts: counts, Latest: latest}
}

type streamClient struct {
	hub  *reportHub
	conn *websocket.Conn
	send chan []byte
}

// reportHub fans store change events out to websocket clients.
type reportHub struct {
	log        *slog.Logger
	gauge      prometheus.Gauge
	register   chan *streamClient
	unregister chan *streamClient
	broadcast  chan []byte
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

func newReportHub(logger *slog.Logger, gauge prometheus.Gauge) *reportHub {
	return &reportHub{
		log:        logger,
		gauge:      gauge,
		register:   make(chan *streamClient),
		unregister: make(chan *streamClient),
		broadcast:  make(chan []byte, streamBroadcastQueue),
		done:       make(chan struct{}),
		clients:    make(map[*streamClient]struct{}),
	}
}

func (h *reportHub) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.gauge.Set(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.gauge.Set(float64(count))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.gauge.Set(float64(count))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.gauge.Set(float64(count))
		}
	}
}

// publish never blocks the saving goroutine; events are dropped when the
// queue is full or nobody runs the hub.
func (h *reportHub) publish(event streamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to encode stream event", "err", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("stream event dropped", "type", event.Type)
	}
}

func (h *reportHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *streamClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(streamReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("stream read failed", "err", err)
			}
			return
		}
	}
}

func (c *streamClient) writePump() {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (a *App) streamUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || a.isAllowedCORSOrigin(origin)
		},
	}
}

// reportStreamHandler upgrades to a websocket, sends a snapshot and then
// one event per store save.
func (a *App) reportStreamHandler(c *gin.Context) {
	reports, err := a.store.Load(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}

	upgrader := a.streamUpgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.log.Warn("stream upgrade failed", "err", err)
		return
	}

	snapshot, err := json.Marshal(buildStreamEvent("snapshot", reports, a.now()))
	if err != nil {
		_ = conn.Close()
		a.log.Error("failed to encode stream snapshot", "err", err)
		return
	}

	client := &streamClient{hub: a.hub, conn: conn, send: make(chan []byte, streamSendBuffer)}
	client.send <- snapshot
	select {
	case a.hub.register <- client:
	case <-a.hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
