package hub

import (
	"net/http"
	"sync"
	"time"

	"can-telemetry-dashboard/internal/logger"
	"can-telemetry-dashboard/internal/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 10
)

// Envelope is the wire format pushed to dashboard renderers.
type Envelope struct {
	Type  string             `json:"type"` // "change" or "error"
	Data  *model.ChangeEvent `json:"data,omitempty"`
	Error string             `json:"error,omitempty"`
}

var (
	metricSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dashboard", Subsystem: "hub", Name: "subscribers", Help: "Connected dashboard clients.",
	})
	metricDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dashboard", Subsystem: "hub", Name: "events_delivered_total", Help: "Envelopes written to clients.",
	})
	metricDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dashboard", Subsystem: "hub", Name: "events_dropped_total", Help: "Envelopes dropped because a client's buffer was full.",
	})
)

func init() {
	prometheus.MustRegister(metricSubscribers, metricDelivered, metricDropped)
}

type subscriber struct {
	id string
	ch chan Envelope
}

// Hub broadcasts change events and error notices to websocket subscribers.
// A slow subscriber loses envelopes rather than blocking the poll loop.
type Hub struct {
	mu       sync.Mutex
	subs     []*subscriber
	subBuf   int
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func New(subBuf int, log *logger.Logger) *Hub {
	return &Hub{
		subBuf: subBuf,
		log:    log,
		upgrader: websocket.Upgrader{
			// local dashboard surface, any origin may connect
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// PublishChange implements poller.Sink.
func (h *Hub) PublishChange(ev model.ChangeEvent) {
	h.broadcast(Envelope{Type: "change", Data: &ev})
}

// PublishError implements poller.Sink.
func (h *Hub) PublishError(msg string) {
	h.broadcast(Envelope{Type: "error", Error: msg})
}

func (h *Hub) broadcast(env Envelope) {
	h.mu.Lock()
	subs := make([]*subscriber, len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- env:
		default:
			metricDropped.Inc()
			h.log.Debugw("subscriber buffer full, envelope dropped", "id", sub.id)
		}
	}
}

// ServeHTTP upgrades the request and streams envelopes until the client
// disconnects or the connection errors.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorw("ws upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	sub := &subscriber{id: uuid.NewString(), ch: make(chan Envelope, h.subBuf)}
	h.addSubscriber(sub)
	defer h.removeSubscriber(sub.id)
	h.log.Infow("subscriber added", "id", sub.id)

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// reader drains control frames and detects disconnects
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.log.Infow("ws ping failed", "id", sub.id, "err", err)
				return
			}
		case env := <-sub.ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				h.log.Infow("ws write failed", "id", sub.id, "err", err)
				return
			}
			metricDelivered.Inc()
		}
	}
}

func (h *Hub) addSubscriber(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, sub)
	metricSubscribers.Set(float64(len(h.subs)))
}

func (h *Hub) removeSubscriber(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, sub := range h.subs {
		if sub.id != id {
			h.subs[n] = sub
			n++
		}
	}
	h.subs = h.subs[:n]
	metricSubscribers.Set(float64(len(h.subs)))
	h.log.Infow("subscriber removed", "id", id, "remain", len(h.subs))
}
