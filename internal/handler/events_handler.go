package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-practice/internal/middleware"
	"github.com/stemsi/exstem-practice/internal/response"
	"github.com/stemsi/exstem-practice/internal/service"
)

// keepAliveInterval is a var so tests can shorten it.
var keepAliveInterval = 30 * time.Second

// EventsHandler streams session events to EventSource clients.
type EventsHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
}

func NewEventsHandler(sessions *service.SessionService, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		sessions: sessions,
		log:      log.With().Str("component", "events_handler").Logger(),
	}
}

// SessionEventsSSE godoc
// GET /api/v1/sessions/:id/events
// Sends the current view, then every controller event published for the session.
func (h *EventsHandler) SessionEventsSSE(c *gin.Context) {
	cred := middleware.GetCredential(c)
	if cred == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id := c.Param("id")
	reqCtx := c.Request.Context()

	// Subscribe before reading the snapshot so no event falls in between.
	sub, err := h.sessions.Subscribe(reqCtx, cred.Owner, id)
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

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	initial, _ := json.Marshal(NewSessionView(info))
	writeSSE(c, "snapshot", initial)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	log := h.log.With().Str("session_id", id).Str("owner", cred.Owner).Logger()
	log.Debug().Msg("Client attached to session events")

	for {
		select {
		case <-reqCtx.Done():
			log.Debug().Msg("Client detached from session events")
			return

		case payload, ok := <-sub.C:
			if !ok {
				return
			}
			// Forward raw JSON; no need to decode.
			writeSSE(c, "session", payload)

		case <-keepAlive.C:
			c.Writer.Write([]byte(": ping\n\n"))
			c.Writer.Flush()
		}
	}
}

func writeSSE(c *gin.Context, event string, data []byte) {
	c.Writer.Write([]byte("event: " + event + "\n"))
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
