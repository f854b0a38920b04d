package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/claimlens/backend/internal/enhance"
	"github.com/claimlens/backend/internal/verify"
	"github.com/claimlens/backend/pkg/logger"
)

// WebSocketHandler drives interactive verification: stage events stream to
// the client as the pipeline advances, and ambiguous claims pause for a
// clarification round-trip over the same connection.
type WebSocketHandler struct {
	engine        *verify.Engine
	clarifyWindow time.Duration
	defaults      verify.Options
}

func NewWebSocketHandler(engine *verify.Engine, clarifyWindow time.Duration, defaults verify.Options) *WebSocketHandler {
	if clarifyWindow == 0 {
		clarifyWindow = 60 * time.Second
	}
	return &WebSocketHandler{
		engine:        engine,
		clarifyWindow: clarifyWindow,
		defaults:      defaults,
	}
}

type wsMessage struct {
	Type    string `json:"type"`
	Claim   string `json:"claim"`
	Choice  string `json:"choice"`
	UserID  string `json:"user_id"`
	Options struct {
		Enhance        *bool `json:"enhance"`
		ExternalSearch *bool `json:"external_search"`
		TopK           int   `json:"top_k"`
		Interactive    bool  `json:"interactive"`
	} `json:"options"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsMessage

		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "verify" {
			continue
		}
		if strings.TrimSpace(msg.Claim) == "" {
			h.sendError(c, "Claim is required")
			continue
		}

		logger.Info("Processing WebSocket verification", zap.String("claim", msg.Claim))

		done, err := h.runVerification(c, msg)
		if err != nil {
			logger.Error("Failed to verify claim", zap.Error(err))
			h.sendError(c, "Failed to verify claim")
		}
		if done {
			// An expired clarification deadline leaves the connection
			// unreadable, so say goodbye cleanly instead of reusing it.
			c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			break
		}
	}
}

func (h *WebSocketHandler) runVerification(c *websocket.Conn, msg wsMessage) (bool, error) {
	opts := h.defaults
	opts.UserID = msg.UserID
	if msg.Options.Enhance != nil {
		opts.Enhance = *msg.Options.Enhance
	}
	if msg.Options.ExternalSearch != nil {
		opts.ExternalSearch = *msg.Options.ExternalSearch
	}
	if msg.Options.TopK > 0 {
		opts.TopK = msg.Options.TopK
	}
	var clarifier *wsClarifier
	if msg.Options.Interactive {
		clarifier = &wsClarifier{conn: c, window: h.clarifyWindow}
		opts.Clarifier = clarifier
	}
	opts.Observer = func(stage verify.Stage, detail string) {
		h.sendStage(c, stage, detail)
	}

	result, err := h.engine.Verify(context.Background(), msg.Claim, opts)
	if err != nil {
		if errors.Is(err, verify.ErrVerificationUnavailable) {
			h.sendError(c, "Verification is temporarily unavailable")
			return clarifier.poisoned(), nil
		}
		return clarifier.poisoned(), err
	}

	err = c.WriteJSON(map[string]interface{}{
		"type":   "result",
		"result": verify.Format(result),
	})
	return clarifier.poisoned(), err
}

func (h *WebSocketHandler) sendStage(c *websocket.Conn, stage verify.Stage, detail string) {
	msg := map[string]interface{}{
		"type":  "stage",
		"stage": string(stage),
	}
	if detail != "" {
		msg["detail"] = detail
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Debug("Failed to send stage event", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

// clarifyConn is the slice of *websocket.Conn the clarifier needs.
type clarifyConn interface {
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
	SetReadDeadline(t time.Time) error
}

// wsClarifier asks the connected client to resolve an ambiguous claim. The
// wait is bounded; on timeout or any read problem the original claim stands,
// but the connection is marked expired because a missed read deadline makes
// every later read on it fail.
type wsClarifier struct {
	conn    clarifyConn
	window  time.Duration
	expired bool
}

// poisoned reports whether the clarifier left the connection unable to serve
// further reads. Safe on a nil receiver.
func (w *wsClarifier) poisoned() bool {
	return w != nil && w.expired
}

func (w *wsClarifier) Clarify(ctx context.Context, clarification enhance.Clarification) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	err := w.conn.WriteJSON(map[string]interface{}{
		"type":     "clarify",
		"question": clarification.Question,
		"options":  clarification.Options,
		"original": clarification.Original,
	})
	if err != nil {
		return clarification.Original, nil
	}

	w.conn.SetReadDeadline(time.Now().Add(w.window))
	defer w.conn.SetReadDeadline(time.Time{})

	var reply wsMessage
	if err := w.conn.ReadJSON(&reply); err != nil {
		logger.Debug("Clarification wait ended without an answer", zap.Error(err))
		w.expired = true
		return clarification.Original, nil
	}

	if reply.Type != "clarification" || strings.TrimSpace(reply.Choice) == "" {
		return clarification.Original, nil
	}

	return reply.Choice, nil
}
