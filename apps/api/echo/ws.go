package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/chat"
	"github.com/trezcool/masomo-chat/services/broadcast"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 16 << 10
	sendBufferSize = 256
)

// Inbound actions.
const (
	actionJoinRoom           = "JoinRoom"
	actionLeaveRoom          = "LeaveRoom"
	actionSendTyping         = "SendTyping"
	actionSendMessage        = "SendMessage"
	actionLoadMessageHistory = "LoadMessageHistory"
)

type (
	inboundFrame struct {
		ID     string          `json:"id"`
		Action string          `json:"action"`
		Data   json.RawMessage `json:"data"`
	}

	replyFrame struct {
		Type string      `json:"type"` // "result" | "error"
		ID   string      `json:"id"`
		Data interface{} `json:"data"`
	}

	errorData struct {
		Kind    string            `json:"kind"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields,omitempty"`
	}

	roomRequest struct {
		RoomID      string `json:"roomId"`
		AccessToken string `json:"accessToken,omitempty"`
		DisplayName string `json:"displayName,omitempty"`
		Text        string `json:"text,omitempty"`
		Count       int    `json:"count,omitempty"`
	}
)

// wsClient is one websocket connection. It implements broadcastsvc.Sink.
type wsClient struct {
	conn *websocket.Conn
	chat chat.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

var _ broadcastsvc.Sink = (*wsClient)(nil)

func (c *wsClient) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

type chatSocket struct {
	auth     *tokenAuth
	svc      *chat.Service
	hub      *broadcastsvc.Hub
	logger   core.Logger
	upgrader websocket.Upgrader
}

func registerChatSocket(g *echo.Group, auth *tokenAuth, deps *ServerDeps) {
	origins := make(map[string]bool, len(deps.Conf.Server.AllowedOrigins))
	for _, o := range deps.Conf.Server.AllowedOrigins {
		origins[o] = true
	}
	debug := deps.Conf.Debug

	s := &chatSocket{
		auth:   auth,
		svc:    deps.ChatSvc,
		hub:    deps.Hub,
		logger: deps.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || debug || origins[origin] || origins["*"]
			},
		},
	}
	g.GET("/chat/ws", s.serve)
}

// serve upgrades the request. A valid `access_token` makes the connection authenticated;
// without one the connection stays open but every identity-bound action is refused.
func (s *chatSocket) serve(ctx echo.Context) error {
	var ident *chat.Identity
	if raw := ctx.QueryParam("access_token"); raw != "" {
		claims, err := s.auth.parse(raw)
		if err != nil {
			return err
		}
		ident = claims.Identity()
	}

	ws, err := s.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // the upgrader already replied
	}

	c := &wsClient{
		conn: ws,
		chat: chat.Conn{ID: uuid.NewString(), User: ident},
		send: make(chan []byte, sendBufferSize),
	}
	s.hub.Register(c.chat.ID, c)

	go s.writePump(c)
	s.readPump(c)
	return nil
}

func (s *chatSocket) readPump(c *wsClient) {
	defer func() {
		s.svc.Disconnect(context.Background(), c.chat)
		s.hub.Unregister(c.chat.ID)
		c.close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("chat.ws: read", err, map[string]interface{}{"conn": c.chat.ID})
			}
			return
		}
		s.reply(c, s.dispatch(c, data))
	}
}

func (s *chatSocket) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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

func (s *chatSocket) dispatch(c *wsClient, data []byte) replyFrame {
	var in inboundFrame
	if err := json.Unmarshal(data, &in); err != nil {
		return s.errorFrame(c, "", core.NewValidationError(errors.New("malformed frame")))
	}
	var req roomRequest
	if len(in.Data) > 0 {
		if err := json.Unmarshal(in.Data, &req); err != nil {
			return s.errorFrame(c, in.ID, core.NewValidationError(errors.New("malformed data")))
		}
	}

	ctx := context.Background()
	var (
		result interface{}
		err    error
	)
	switch in.Action {
	case actionJoinRoom:
		err = s.svc.JoinRoom(ctx, c.chat, req.RoomID, req.AccessToken)
	case actionLeaveRoom:
		err = s.svc.LeaveRoom(ctx, c.chat, req.RoomID)
	case actionSendTyping:
		s.svc.SendTyping(ctx, c.chat, req.RoomID, req.DisplayName)
	case actionSendMessage:
		result, err = s.svc.SendMessage(ctx, c.chat, req.RoomID, req.Text)
	case actionLoadMessageHistory:
		result, err = s.svc.LoadMessageHistory(ctx, c.chat, req.RoomID, req.Count)
	default:
		err = core.NewValidationError(errors.Errorf("unknown action %q", in.Action))
	}
	if err != nil {
		return s.errorFrame(c, in.ID, err)
	}
	return replyFrame{Type: "result", ID: in.ID, Data: result}
}

// errorFrame reports the failure kind to the caller only. Server-side failures are logged, not detailed.
func (s *chatSocket) errorFrame(c *wsClient, id string, err error) replyFrame {
	kind := chat.ErrorKind(err)
	data := errorData{Kind: kind, Message: errors.Cause(err).Error()}

	switch kind {
	case chat.KindValidation:
		if vErr, ok := errors.Cause(err).(*core.ValidationError); ok && len(vErr.Fields) > 0 {
			data.Fields = make(map[string]string, len(vErr.Fields))
			for _, f := range vErr.Fields {
				data.Fields[f.Field] = f.Error
			}
		}
	case chat.KindPersistence, chat.KindEncryption, chat.KindDecryption, chat.KindInternal:
		s.logger.Error("chat.ws: "+kind, err, c.chat.User, map[string]interface{}{"conn": c.chat.ID})
		data.Message = "internal error"
	}
	return replyFrame{Type: "error", ID: id, Data: data}
}

func (s *chatSocket) reply(c *wsClient, frame replyFrame) {
	b, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("chat.ws: encoding reply", err)
		return
	}
	if !c.Send(b) {
		s.logger.Warn("chat.ws: reply dropped", map[string]interface{}{"conn": c.chat.ID, "id": frame.ID})
	}
}
