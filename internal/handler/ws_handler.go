package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-practice/internal/middleware"
	"github.com/stemsi/exstem-practice/internal/response"
	"github.com/stemsi/exstem-practice/internal/service"
	"github.com/stemsi/exstem-practice/internal/session"
	"github.com/stemsi/exstem-practice/internal/validator"
	ws "github.com/stemsi/exstem-practice/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler drives a hosted session over a WebSocket.
type WSHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// wsConn serializes writes; gorilla allows one writer at a time.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ws.WriteTyped(w.conn, v)
}

func (w *wsConn) fail(code response.ErrCode, message string) error {
	if message == "" {
		message = response.GetMessage(code)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return ws.WriteError(w.conn, string(code), message)
}

// SessionStream godoc
// WS /ws/v1/sessions/:id/stream
// Pushes every session event and accepts select, navigate, save, submit,
// cancel and ping actions.
func (h *WSHandler) SessionStream(c *gin.Context) {
	cred := middleware.GetCredential(c)
	if cred == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id := c.Param("id")
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := h.sessions.Subscribe(ctx, cred.Owner, id)
	if err != nil {
		writeSessionError(c, h.log, err)
		return
	}
	defer sub.Close()

	info, err := h.sessions.Get(cred.Owner, id)
	if err != nil {
		writeSessionError(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("session_id", id).Str("owner", cred.Owner).Logger()
	wsLog.Info().Msg("Client connected")

	out := &wsConn{conn: conn}
	initial, _ := json.Marshal(NewSessionView(info))
	if err := out.write(ws.SessionMessage{Event: ws.EventSession, Payload: initial}); err != nil {
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-sub.C:
				if !ok {
					return
				}
				if err := out.write(ws.SessionMessage{Event: ws.EventSession, Payload: payload}); err != nil {
					wsLog.Debug().Err(err).Msg("Event forward failed")
					cancel()
					return
				}
			}
		}
	}()

	ws.Prepare(conn)
	for {
		data, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		h.dispatch(ctx, out, wsLog, cred.Owner, id, data)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, out *wsConn, log zerolog.Logger, owner, id string, data []byte) {
	var env ws.RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		out.fail(response.ErrInvalidPayload, "")
		return
	}

	var err error
	switch env.Action {
	case ws.ActionSelect:
		var req ws.SelectRequest
		if !decodeFrame(out, data, &req) {
			return
		}
		_, err = h.sessions.SelectAnswer(owner, id, *req.Question, *req.Option)

	case ws.ActionNavigate:
		var req ws.NavigateRequest
		if !decodeFrame(out, data, &req) {
			return
		}
		_, err = h.sessions.Navigate(owner, id, *req.Index)

	case ws.ActionSave:
		_, err = h.sessions.Save(owner, id)

	case ws.ActionSubmit:
		outcome, info, submitErr := h.sessions.Submit(ctx, owner, id)
		if submitErr == nil {
			out.write(ws.SubmitResponse{Event: ws.EventSubmit, Outcome: string(outcome)})
			return
		}
		if errors.Is(submitErr, session.ErrSubmitFailed) && info != nil {
			f := classifySessionError(submitErr)
			out.fail(f.code, info.Snapshot.LastError)
			return
		}
		err = submitErr

	case ws.ActionCancel:
		_, err = h.sessions.CancelSubmit(owner, id)

	case ws.ActionPing:
		out.write(ws.PongResponse{Event: ws.EventPong})
		return

	default:
		log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		out.fail(response.ErrInvalidPayload, "unknown action: "+string(env.Action))
		return
	}

	if err != nil {
		f := classifySessionError(err)
		if f.code == response.ErrInternal {
			log.Error().Err(err).Str("action", string(env.Action)).Msg("Action failed")
		}
		out.fail(f.code, f.message)
	}
}

func decodeFrame(out *wsConn, data []byte, dst any) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		out.fail(response.ErrInvalidPayload, "")
		return false
	}
	if fields := validator.Struct(dst); fields != nil {
		msgs := make([]string, 0, len(fields))
		for _, m := range fields {
			msgs = append(msgs, m)
		}
		sort.Strings(msgs)
		out.fail(response.ErrValidation, strings.Join(msgs, "; "))
		return false
	}
	return true
}
