// Package hub fans queue snapshots out to status-board connections.
package hub

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"smartq/queue-service/internal/queue"
	"smartq/queue-service/internal/store"
)

const (
	EventQueueUpdated  = "queue.updated"
	EventTicketUpdated = "ticket.updated"
)

// Subscription narrows what a client receives. The zero value is the whole
// board; a ticket code follows one ticket's position.
type Subscription struct {
	TicketCode string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// TicketView is what a ticket subscriber sees. Entry is nil once the ticket
// has left the queue.
type TicketView struct {
	TicketCode   string       `json:"ticket_code"`
	Entry        *queue.Entry `json:"entry"`
	TotalWaiting int          `json:"total_waiting"`
}

type SubscribeMessage struct {
	Action     string `json:"action"`
	TicketCode string `json:"ticket_code"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	last    *queue.Queue
	logger  *slog.Logger
	now     func() time.Time
}

func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register adds the client and sends it the latest snapshot, if any.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	if h.last != nil {
		h.deliver(client, h.message(client.Subscription, *h.last))
	}
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub.TicketCode = store.NormalizeTicketCode(sub.TicketCode)
	client.Subscription = sub
	if h.last != nil {
		h.deliver(client, h.message(sub, *h.last))
	}
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishQueue remembers q as the latest snapshot and sends each client its
// view of it. Slow clients miss updates rather than block the caller.
func (h *Hub) PublishQueue(q queue.Queue) {
	h.mu.Lock()
	h.last = &q
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	rendered := make(map[Subscription][]byte)
	for _, client := range h.clients {
		payload, ok := rendered[client.Subscription]
		if !ok {
			payload = h.message(client.Subscription, q)
			rendered[client.Subscription] = payload
		}
		h.deliver(client, payload)
	}
}

func (h *Hub) deliver(client *Client, payload []byte) {
	if payload == nil {
		return
	}
	select {
	case client.Send <- payload:
	default:
		h.logger.Warn("drop message for slow client", "client_id", client.ID)
	}
}

func (h *Hub) message(sub Subscription, q queue.Queue) []byte {
	eventType := EventQueueUpdated
	var body interface{} = q
	if sub.TicketCode != "" {
		eventType = EventTicketUpdated
		view := TicketView{TicketCode: sub.TicketCode, TotalWaiting: q.TotalWaiting}
		for i := range q.Entries {
			if q.Entries[i].TicketCode == sub.TicketCode {
				entry := q.Entries[i]
				view.Entry = &entry
				break
			}
		}
		body = view
	}

	raw, err := json.Marshal(body)
	if err != nil {
		h.logger.Error("encode board payload", "error", err)
		return nil
	}
	payload, err := json.Marshal(Envelope{Type: eventType, Payload: raw, CreatedAt: h.now()})
	if err != nil {
		h.logger.Error("encode board envelope", "error", err)
		return nil
	}
	return payload
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	msg.TicketCode = strings.TrimSpace(msg.TicketCode)
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
