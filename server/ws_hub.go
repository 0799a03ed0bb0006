package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/worldsim/worldsim/sim"
	"github.com/worldsim/worldsim/sim/company"
	"github.com/worldsim/worldsim/sim/metrics"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// DayMessage is the JSON message sent to WebSocket clients for every
// persisted day.
type DayMessage struct {
	Type       string  `json:"type"`
	CompanyID  string  `json:"company_id"`
	Date       string  `json:"date"`
	UnitsSold  int     `json:"units_sold"`
	LostDemand int     `json:"lost_demand"`
	Stockouts  int     `json:"stockouts"`
	Revenue    float64 `json:"revenue"`
	Spend      float64 `json:"spend"`
}

// NewDayMessage condenses a simulated day into its feed message.
func NewDayMessage(companyID string, day *sim.DayResult) DayMessage {
	msg := DayMessage{Type: "day", CompanyID: companyID, Date: sim.FormatDate(day.Date)}
	for _, r := range day.Sales {
		msg.Revenue += r.Revenue
	}
	for _, r := range day.Inventory {
		msg.UnitsSold += r.UnitsDispatched
		msg.LostDemand += r.LostDemand
		if r.Stockout {
			msg.Stockouts++
		}
	}
	for _, r := range day.Marketing {
		msg.Spend += r.Spend
	}
	return msg
}

// client is one WebSocket connection. Only its writer goroutine writes to
// conn.
type client struct {
	conn    *websocket.Conn
	company string // empty subscribes to every company
	send    chan []byte
}

type outbound struct {
	company string
	data    []byte
}

// Hub manages WebSocket connections and broadcasts persisted days to all
// subscribed clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan outbound
	register   chan *client
	unregister chan *client
	done       chan struct{}
	upgrader   websocket.Upgrader
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
	}
}

// Run starts the hub's event loop and returns when ctx is done. Must be
// called in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			metrics.WebSocketClients.Set(0)
			return

		case c := <-h.register:
			h.clients[c] = true
			metrics.WebSocketClients.Set(float64(len(h.clients)))
			logrus.Debugf("ws client connected (total %d)", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				metrics.WebSocketClients.Set(float64(len(h.clients)))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				if c.company != "" && c.company != msg.company {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					// Slow client: drop it rather than block the hub.
					delete(h.clients, c)
					close(c.send)
					metrics.WebSocketClients.Set(float64(len(h.clients)))
				}
			}
		}
	}
}

// BroadcastDay sends a day to all clients subscribed to companyID. A nil hub
// discards it.
func (h *Hub) BroadcastDay(companyID string, day *sim.DayResult) {
	if h == nil {
		return
	}
	data, err := json.Marshal(NewDayMessage(companyID, day))
	if err != nil {
		return
	}
	select {
	case h.broadcast <- outbound{company: companyID, data: data}:
	default:
		// Drop if buffer full to avoid blocking the simulation.
	}
}

// Broadcaster returns hub as a company.Broadcaster, or a nil interface when
// hub is nil so the service skips broadcasting entirely.
func Broadcaster(hub *Hub) company.Broadcaster {
	if hub == nil {
		return nil
	}
	return hub
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws. The
// optional company query parameter limits the feed to one company.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("ws upgrade failed: %v", err)
		return
	}
	c := &client{conn: conn, company: r.URL.Query().Get("company"), send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() {
			select {
			case h.unregister <- c:
			case <-h.done:
			}
		}()
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writePump forwards queued messages and pings until the hub closes send.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
