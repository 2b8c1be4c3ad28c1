package feed

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/trivia-pipeline/internal/metrics"
	"github.com/gokatarajesh/trivia-pipeline/internal/server"
	httperrors "github.com/gokatarajesh/trivia-pipeline/pkg/http/errors"
	ws "github.com/gokatarajesh/trivia-pipeline/pkg/http/ws"
)

// Handler serves the question feed WebSocket.
type Handler struct {
	hub     *ws.Hub
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewHandler creates a feed WebSocket handler.
func NewHandler(hub *ws.Hub, m *metrics.Metrics, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:     hub,
		metrics: m,
		logger:  logger.With().Str("component", "feed_handler").Logger(),
	}
}

// HandleWebSocket upgrades the request and streams question_added events.
// An optional ?category= narrows the feed to one category.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httperrors.RespondMethodNotAllowed(w)
		return
	}
	topic := strings.TrimSpace(r.URL.Query().Get("category"))

	conn, err := server.WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	wsConn := ws.NewConnection(conn, topic, h.logger)
	id := h.hub.Register(wsConn)
	h.metrics.FeedConnections(h.hub.Count())

	if welcome, err := ws.NewMessage(ws.TypeWelcome, ws.WelcomePayload{ConnectionID: id.String(), Category: topic}); err == nil {
		_ = wsConn.Send(welcome)
	}

	go wsConn.WritePump()

	wsConn.ReadPump(func(msg ws.Message) error {
		switch msg.Type {
		case ws.TypePing:
			return wsConn.Send(ws.Message{Type: ws.TypePong, RequestID: msg.RequestID})
		default:
			errMsg, err := ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: "unsupported_message", Message: "The feed is read-only"})
			if err != nil {
				return err
			}
			errMsg.RequestID = msg.RequestID
			return wsConn.Send(errMsg)
		}
	})

	h.hub.Unregister(id)
	h.metrics.FeedConnections(h.hub.Count())
}
