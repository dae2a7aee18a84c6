// Package realtime pushes preference changes to websocket subscribers so open
// dashboards pick up filter selections saved from another tab or instance.
package realtime

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/v3/websocket"
	"github.com/gofiber/fiber/v3"

	"github.com/seuros/mfdash/internal/logging"
)

const sendBuffer = 64

// Hub fans messages out to connected subscribers. All subscriber bookkeeping
// happens on the run goroutine.
type Hub struct {
	register    chan *Subscriber
	unregister  chan *Subscriber
	broadcast   chan []byte
	clientCount chan chan int
	quit        chan struct{}
	closeOnce   sync.Once
	subscribers map[*Subscriber]struct{}
}

type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

// Subscriber is one websocket connection.
type Subscriber struct {
	hub  *Hub
	conn wsConn
	send chan []byte
}

type pingTicker interface {
	C() <-chan time.Time
	Stop()
}

type realPingTicker struct {
	*time.Ticker
}

func (t *realPingTicker) C() <-chan time.Time {
	return t.Ticker.C
}

var pingTickerFactory = func() pingTicker {
	return &realPingTicker{time.NewTicker(30 * time.Second)}
}

func NewHub() *Hub {
	h := &Hub{
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		broadcast:   make(chan []byte, 256),
		clientCount: make(chan chan int),
		quit:        make(chan struct{}),
		subscribers: make(map[*Subscriber]struct{}),
	}

	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			h.subscribers[sub] = struct{}{}
		case sub := <-h.unregister:
			h.drop(sub)
		case message := <-h.broadcast:
			for sub := range h.subscribers {
				select {
				case sub.send <- message:
				default:
					// slow consumer
					close(sub.send)
					delete(h.subscribers, sub)
				}
			}
		case response := <-h.clientCount:
			response <- len(h.subscribers)
		case <-h.quit:
			for sub := range h.subscribers {
				h.drop(sub)
			}
			return
		}
	}
}

func (h *Hub) drop(sub *Subscriber) {
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.send)
	_ = sub.conn.Close()
}

// Broadcast queues a raw message for every subscriber. It never blocks; when
// the queue is full the message is dropped.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		logging.L().Warn("dropping realtime payload", "reason", "slow consumers")
	}
}

// Publish encodes ev and broadcasts it.
func (h *Hub) Publish(ev Event) {
	data, err := ev.encode()
	if err != nil {
		logging.L().Warn("failed to marshal realtime payload", "error", err)
		return
	}
	h.Broadcast(data)
}

// GetClientCount returns the number of connected subscribers.
func (h *Hub) GetClientCount() int {
	response := make(chan int)
	select {
	case h.clientCount <- response:
		return <-response
	case <-h.quit:
		return 0
	}
}

// Close disconnects every subscriber and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}

// Handler upgrades GET /ws. Route it behind websocket.IsWebSocketUpgrade.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		sub := &Subscriber{
			hub:  h,
			conn: conn,
			send: make(chan []byte, sendBuffer),
		}

		select {
		case h.register <- sub:
		case <-h.quit:
			_ = conn.Close()
			return
		}

		go sub.writePump()
		sub.readPump()
	})
}

// UpgradeRequired rejects plain HTTP requests to the websocket route.
func UpgradeRequired(c fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// readPump discards client frames; it only exists to notice disconnects.
func (s *Subscriber) readPump() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.quit:
		}
	}()

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Subscriber) writePump() {
	ticker := pingTickerFactory()
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C():
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
