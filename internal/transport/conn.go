// Package transport is the per-connection websocket handler: it
// upgrades an HTTP request, reads binary frames carrying JSON
// envelopes, dispatches them to the lobby registry, and writes back
// responses and broadcasts.
package transport

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"palace/internal/domain"
	"palace/internal/logging"
	"palace/internal/lobby"
	"palace/internal/protocol"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: isValidOrigin,
}

// isValidOrigin allows same-origin and localhost connections; a
// non-browser client with no Origin header is allowed through too.
func isValidOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if r.Host == originURL.Host {
		return true
	}
	return strings.HasPrefix(originURL.Host, "localhost:") ||
		strings.HasPrefix(originURL.Host, "127.0.0.1:") ||
		originURL.Host == "localhost" ||
		originURL.Host == "127.0.0.1"
}

// role tracks what this socket currently is, so onClose cleanup
// knows which side of the registry to touch.
type role int

const (
	roleNone role = iota
	rolePlayer
	roleSpectator
)

// Conn is one live websocket connection. It implements lobby.Sender
// so the registry can push events to it without knowing about
// gorilla/websocket.
type Conn struct {
	ws       *websocket.Conn
	registry *lobby.Registry

	mu       sync.Mutex // guards concurrent writes to ws
	role     role
	lobbyID  protocol.LobbyId
	playerID protocol.PlayerId

	closed chan struct{}
}

// Send implements lobby.Sender: it JSON-encodes env and writes it as
// a single binary frame.
func (c *Conn) Send(env protocol.OutEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *Conn) ping(w time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(w))
}

// pingLoop keeps the connection's read deadline alive against idle
// clients. It exits once run's defer closes c.closed.
func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.ping(10 * time.Second); err != nil {
				return
			}
		}
	}
}

// Handler upgrades an HTTP request to a websocket and runs the
// connection's read loop until it closes.
func Handler(registry *lobby.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.L().WithError(err).Debug("websocket upgrade failed")
			return
		}
		conn := &Conn{ws: ws, registry: registry, closed: make(chan struct{})}
		go conn.pingLoop()
		conn.run()
	}
}

func (c *Conn) run() {
	defer c.onClose()
	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))

		if msgType != websocket.BinaryMessage {
			logging.L().Debug("received non-binary frame; closing connection")
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseUnsupportedData, ""), time.Now().Add(time.Second))
			return
		}

		var env protocol.InEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			logging.L().WithError(err).Debug("received undecodable binary frame; closing connection")
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInvalidFramePayloadData, ""), time.Now().Add(time.Second))
			return
		}

		msg, err := protocol.DecodeInbound(env)
		if err != nil {
			logging.L().WithError(err).Debug("received undecodable message payload; closing connection")
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInvalidFramePayloadData, ""), time.Now().Add(time.Second))
			return
		}

		c.dispatch(env.Type, msg)
	}
}

func (c *Conn) onClose() {
	close(c.closed)
	c.ws.Close()
	switch c.role {
	case rolePlayer:
		c.registry.Disconnect(c.lobbyID, c.playerID)
	case roleSpectator:
		c.registry.RemoveSpectator(c.lobbyID, c)
	}
}

func errPayload(err error) interface{} {
	if re, ok := err.(domain.RuleError); ok {
		return protocol.GameRuleError{GameError: re.Error()}
	}
	return err
}
