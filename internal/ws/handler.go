package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kpessa/dynamic-text-sub006/internal/logging"
	"github.com/kpessa/dynamic-text-sub006/internal/monitoring"
	"github.com/kpessa/dynamic-text-sub006/internal/orchestrator"
	"github.com/kpessa/dynamic-text-sub006/internal/sandbox"
	"github.com/kpessa/dynamic-text-sub006/internal/worker"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is one client frame.
type Message struct {
	Type    string                   `json:"type"`
	ID      string                   `json:"id,omitempty"`
	Source  string                   `json:"source,omitempty"`
	Context sandbox.ExecutionContext `json:"context"`
}

// Handler manages WebSocket connections
type Handler struct {
	orch    *orchestrator.Orchestrator
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler. metrics may be nil.
func NewHandler(orch *orchestrator.Orchestrator, log *logging.Logger, metrics *monitoring.Metrics) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{orch: orch, log: log.Named("ws"), metrics: metrics}
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// HandleConnection handles WebSocket upgrade and messages. Console output
// captured during an execution arrives as console_log frames before the
// result frame, correlated by request id.
func (h *Handler) HandleConnection(c *gin.Context) {
	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer raw.Close()

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	wc := &conn{ws: raw}
	reqCtx := c.Request.Context()

	wc.send(map[string]any{
		"type":    "system",
		"message": "connected to script sandbox",
	})

	for {
		var msg Message
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "execute":
			h.handleExecute(reqCtx, wc, msg)
		case "validate":
			res, err := h.orch.Validate(reqCtx, msg.Source)
			if err != nil {
				h.sendError(wc, msg.ID, err.Error())
				continue
			}
			wc.send(map[string]any{
				"type":       "validation",
				"requestId":  msg.ID,
				"validation": res,
			})
		case "ping":
			wc.send(map[string]any{"type": "pong"})
		default:
			h.sendError(wc, msg.ID, "unknown message type")
		}
	}
}

func (h *Handler) handleExecute(ctx context.Context, wc *conn, msg Message) {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}

	out, err := h.orch.ExecuteAs(ctx, id, msg.Source, msg.Context)
	if err != nil {
		h.sendError(wc, id, err.Error())
		return
	}

	if len(out.Console) > 0 {
		wc.send(map[string]any{
			"type":      "console_log",
			"requestId": out.RequestID,
			"lines":     out.Console,
		})
	}
	wc.send(map[string]any{
		"type":      "result",
		"requestId": out.RequestID,
		"success":   out.Result.OK(),
		"result":    out.Result,
	})
}

// HandleConsoleFeed tails every execution's console output. Monitoring
// clients get one console_log frame per notification, regardless of which
// transport submitted the script.
func (h *Handler) HandleConsoleFeed(c *gin.Context) {
	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer raw.Close()

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	notifications, cancel := h.orch.Subscribe()
	defer cancel()

	wc := &conn{ws: raw}
	wc.send(map[string]any{
		"type":    "system",
		"message": "console feed attached",
	})

	// Reads only serve to detect the client hanging up.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := raw.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case n, ok := <-notifications:
			if !ok {
				return
			}
			if n.Type != worker.NotificationConsoleLog {
				continue
			}
			frame := map[string]any{
				"type":      "console_log",
				"requestId": n.RequestID,
				"lines":     n.Lines,
			}
			if n.ItemID != "" {
				frame["itemId"] = n.ItemID
			}
			if err := wc.send(frame); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (h *Handler) sendError(wc *conn, id, msg string) {
	wc.send(map[string]any{
		"type":      "error",
		"requestId": id,
		"error":     msg,
	})
}
