package httpapi

import (
	"log/slog"
	"net/http"

	"smartq/queue-service/internal/hub"
	"smartq/queue-service/internal/store"

	"github.com/igm/sockjs-go/sockjs"
)

// BoardHandler serves the public status board over sockjs. A connection
// receives the whole queue, or one ticket's position after it sends
// {"action":"subscribe","ticket_code":"..."} or connects with ?ticket_code=.
func BoardHandler(h *hub.Hub, logger *slog.Logger) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &hub.Client{ID: session.ID(), Send: make(chan []byte, 16)}
		if code := session.Request().URL.Query().Get("ticket_code"); code != "" {
			client.Subscription = hub.Subscription{TicketCode: store.NormalizeTicketCode(code)}
		}
		h.Register(client)
		defer h.Unregister(client)
		logger.Debug("board client connected", "client_id", client.ID)

		go func() {
			for msg := range client.Send {
				if err := session.Send(string(msg)); err != nil {
					return
				}
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				logger.Debug("board client disconnected", "client_id", client.ID)
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, hub.Subscription{})
				continue
			}
			h.UpdateSubscription(client, hub.Subscription{TicketCode: parsed.TicketCode})
		}
	})
}
