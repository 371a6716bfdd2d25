package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/response"
	"github.com/stemsi/examcore/internal/service"
	ws "github.com/stemsi/examcore/internal/websocket"
)

// TickInterval is how often the stream pushes the remaining time.
const TickInterval = 10 * time.Second

// wsOpTimeout bounds each action so a stuck store cannot pin the reader.
const wsOpTimeout = 10 * time.Second

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

// Presence records whether a session's stream is connected.
type Presence interface {
	Heartbeat(ctx context.Context, sessionID uuid.UUID)
	Disconnect(ctx context.Context, sessionID uuid.UUID)
}

// WSHandler handles the candidate session stream.
type WSHandler struct {
	sessionService *service.ExamSessionService
	presence       Presence
	log            zerolog.Logger
	upgrader       websocket.Upgrader
	tick           time.Duration
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.ExamSessionService, presence Presence, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		presence:       presence,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
		tick:           TickInterval,
	}
}

// SessionStream godoc
// WS /ws/v1/candidate/sessions/:id/stream?token=
// Carries save_answer, navigate, submit and ping, and pushes a tick with the
// remaining time every TickInterval.
func (h *WSHandler) SessionStream(c *gin.Context) {
	cand, ok := candidateID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "id")
	if !ok {
		return
	}

	// Ownership is checked before the upgrade so failures get a normal HTTP error.
	if err := h.sessionService.Owner(c.Request.Context(), sid, cand); err != nil {
		fail(c, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("candidate_id", cand).
		Str("session_id", sid.String()).
		Logger()
	wsLog.Info().Msg("Candidate connected")

	h.presence.Heartbeat(context.Background(), sid)
	defer h.presence.Disconnect(context.Background(), sid)

	done := make(chan struct{})
	defer close(done)
	go h.tickLoop(conn, sid, cand, done)

	for {
		var msg ws.Request
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		h.presence.Heartbeat(context.Background(), sid)
		if !h.dispatch(conn, wsLog, sid, cand, &msg) {
			return
		}
	}
}

// dispatch handles one client message. It returns false when the stream should close.
func (h *WSHandler) dispatch(conn *ws.Conn, log zerolog.Logger, sid uuid.UUID, cand string, msg *ws.Request) bool {
	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	switch msg.Action {
	case ws.ActionPing:
		conn.WriteJSON(ws.EventPong, msg.RequestID, nil)

	case ws.ActionSaveAnswer:
		qid, err := uuid.Parse(msg.QuestionID)
		if err != nil {
			writeCode(conn, msg.RequestID, response.ErrInvalidPayload)
			return true
		}
		state, err := h.sessionService.SaveAnswer(ctx, sid, cand, qid, msg.SelectedOptionIDs)
		if err != nil {
			writeErr(conn, log, msg.RequestID, err)
			return true
		}
		conn.WriteJSON(ws.EventSuccess, msg.RequestID, state)

	case ws.ActionNavigate:
		if msg.Index == nil {
			writeCode(conn, msg.RequestID, response.ErrInvalidPayload)
			return true
		}
		state, err := h.sessionService.Navigate(ctx, sid, cand, *msg.Index)
		if err != nil {
			writeErr(conn, log, msg.RequestID, err)
			return true
		}
		conn.WriteJSON(ws.EventSuccess, msg.RequestID, state)

	case ws.ActionSubmit:
		result, err := h.sessionService.Submit(ctx, sid, cand)
		if err != nil {
			writeErr(conn, log, msg.RequestID, err)
			return true
		}
		log.Info().Float64("score", result.Score).Msg("Session submitted over stream")
		conn.WriteJSON(ws.EventGraded, msg.RequestID, result)
		return false

	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		writeCode(conn, msg.RequestID, response.ErrInvalidPayload)
	}
	return true
}

// tickLoop pushes the remaining time until done is closed or the session ends.
func (h *WSHandler) tickLoop(conn *ws.Conn, sid uuid.UUID, cand string, done <-chan struct{}) {
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
			state, err := h.sessionService.State(ctx, sid, cand)
			if err == nil {
				h.presence.Heartbeat(ctx, sid)
			}
			cancel()
			if err != nil {
				continue
			}
			if err := conn.WriteJSON(ws.EventTick, "", ws.Tick{
				RemainingSeconds: state.RemainingSeconds,
				ServerTime:       state.ServerTime,
			}); err != nil {
				return
			}
			if state.Session.Status.Terminal() {
				return
			}
		}
	}
}

func writeCode(conn *ws.Conn, requestID string, code response.ErrCode) {
	conn.WriteError(requestID, string(code), response.GetMessage(code))
}

func writeErr(conn *ws.Conn, log zerolog.Logger, requestID string, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Stream action failed")
	}
	writeCode(conn, requestID, code)
}
