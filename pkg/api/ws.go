package api

import (
	stdliberrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/savanahq/savana/pkg/errors"
	"github.com/savanahq/savana/pkg/observability"
	"github.com/savanahq/savana/pkg/realtime"
)

const (
	wsSendBuffer   = 64
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
)

// errChannelSaturated reports a client whose send buffer is full. The
// channel is torn down; room delivery to other members continues.
var errChannelSaturated = stdliberrors.New("api: channel send buffer full")

// handleWebSocket is the channel handshake. Admission runs before the
// upgrade so a rejected client gets a plain HTTP status, not a broken
// websocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	credential := bearerToken(r)

	session, err := s.gate.Admit(r.Context(), credential, projectID)
	if err != nil {
		switch {
		case stdliberrors.Is(err, realtime.ErrInvalidTarget):
			respondError(w, http.StatusBadRequest, apperrors.Wrap(err, apperrors.ErrCodeInvalidTarget, "invalid project"))
		case stdliberrors.Is(err, realtime.ErrUnauthenticated):
			respondError(w, http.StatusUnauthorized, apperrors.Wrap(err, apperrors.ErrCodeAuthInvalid, "unauthorized"))
		default:
			respondError(w, http.StatusInternalServerError, err)
		}
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.isWebSocketOriginAllowed,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	ch := &wsChannel{
		id:   session.ChannelID,
		conn: conn,
		send: make(chan *realtime.ChatMessage, wsSendBuffer),
		done: make(chan struct{}),
	}

	s.router.Connect(session, ch)
	observability.ActiveChannels.Inc()

	go ch.writePump()
	go s.readPump(session, ch)
}

// readPump consumes inbound frames for one channel until the client goes
// away, feeding each message to the room router.
func (s *Server) readPump(session *realtime.Session, ch *wsChannel) {
	defer func() {
		s.router.Disconnect(session, "connection closed")
		ch.Close()
		observability.ActiveChannels.Dec()
	}()

	ch.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	ch.conn.SetPongHandler(func(string) error {
		ch.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		return nil
	})

	for {
		var msg realtime.ChatMessage
		if err := ch.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Debug("websocket read error", "channel_id", session.ChannelID, "error", err)
			}
			return
		}
		s.router.HandleInbound(session, &msg)
	}
}

// wsChannel adapts one websocket connection to realtime.Channel. Outbound
// messages funnel through a buffered channel drained by a single write
// pump, so concurrent broadcasts never interleave frames.
type wsChannel struct {
	id   string
	conn *websocket.Conn
	send chan *realtime.ChatMessage

	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsChannel) ID() string { return c.id }

// Send enqueues without blocking. A full buffer means the client cannot
// keep up; it is disconnected rather than allowed to stall the room.
func (c *wsChannel) Send(msg *realtime.ChatMessage) error {
	select {
	case <-c.done:
		return stdliberrors.New("api: channel closed")
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.Close()
		return errChannelSaturated
	}
}

// Close tears down the connection. Idempotent.
func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	return nil
}

func (c *wsChannel) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
