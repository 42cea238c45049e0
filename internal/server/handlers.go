// Package server exposes HTTP handlers, including authenticated WebSocket
// upgrades, token issuance, health checks, and the built-in test page.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/presence-relay/internal/auth"
	"github.com/Tyrowin/presence-relay/internal/relay"
	"github.com/Tyrowin/presence-relay/internal/session"
)

// previewIdentity is the identity stamped on every preview-channel token.
const previewIdentity = "client"

// Channel is one relay endpoint: its own session registry, lifecycle
// manager and WebSocket hub.
type Channel struct {
	name           string
	hub            *Hub
	manager        *relay.Manager
	upgrader       websocket.Upgrader
	sendBufferSize int
	maxMessageSize int64
}

func newChannel(name string, cfg Config, origins *originPolicy, verifier relay.Verifier, table relay.Table, opts ...relay.Option) *Channel {
	registry := session.NewRegistry()
	router := relay.NewRouter(registry, table)
	hub := NewHub(name)

	return &Channel{
		name:    name,
		hub:     hub,
		manager: relay.NewManager(verifier, registry, router, hub, opts...),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		sendBufferSize: cfg.SendBufferSize,
		maxMessageSize: cfg.MaxMessageSize,
	}
}

// Hub returns the channel's transport hub.
func (ch *Channel) Hub() *Hub {
	return ch.hub
}

// Presence returns who is currently connected to the channel.
func (ch *Channel) Presence() session.Presence {
	return ch.manager.Presence()
}

// WebSocketHandler authenticates the bearer credential, upgrades the request
// and activates the connection. A rejected credential gets an upgraded socket
// that is immediately closed with a policy-violation status.
func (ch *Channel) WebSocketHandler(c *gin.Context) {
	conn, authErr := ch.manager.Authenticate(bearerToken(c.Request))

	ws, err := ch.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug().Err(err).Str("channel", ch.name).Str("addr", c.Request.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	if authErr != nil {
		log.Info().Str("channel", ch.name).Str("addr", c.Request.RemoteAddr).Msg("Rejected unauthenticated connection")
		closeWithStatus(ws, websocket.ClosePolicyViolation, "Unauthorized")
		return
	}

	client := NewClient(ws, ch.hub, ch.manager, conn, c.Request.RemoteAddr, ch.sendBufferSize, ch.maxMessageSize)
	if err := ch.hub.Attach(client); err != nil {
		log.Warn().Err(err).Str("channel", ch.name).Str("conn", client.id).Msg("Could not attach client")
		ch.manager.Close(conn)
		closeWithStatus(ws, websocket.CloseTryAgainLater, "Unavailable")
		return
	}

	if err := ch.manager.Activate(conn, client.id); err != nil {
		ch.hub.Detach(client)
		closeWithStatus(ws, websocket.CloseInternalServerErr, "Rejected")
		return
	}

	ch.hub.start(client)
}

// bearerToken reads the credential from the token query parameter or an
// Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return ""
}

func closeWithStatus(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && !isExpectedCloseError(err) {
		log.Debug().Err(err).Msg("Error writing close frame")
	}
	if err := ws.Close(); err != nil && !isExpectedCloseError(err) {
		log.Debug().Err(err).Msg("Error closing rejected connection")
	}
}

type chatTokenRequest struct {
	Username string `json:"username" binding:"required"`
}

// ChatTokenHandler issues a chat-channel credential for the posted username.
func (a *App) ChatTokenHandler(c *gin.Context) {
	var req chatTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username required"})
		return
	}

	a.issue(c, a.chatIssuer, strings.TrimSpace(req.Username))
}

// PreviewTokenHandler issues a preview-channel credential.
func (a *App) PreviewTokenHandler(c *gin.Context) {
	a.issue(c, a.previewIssuer, previewIdentity)
}

func (a *App) issue(c *gin.Context, issuer *auth.Issuer, identity string) {
	token, _, err := issuer.Issue(identity)
	if err != nil {
		log.Error().Err(err).Msg("Error issuing token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// APIIndexHandler lists the token endpoints.
func APIIndexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "Relay API",
		"endpoints": []string{"/api/token", "/api/chat/token"},
	})
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(c *gin.Context) {
	c.String(http.StatusOK, "relay server is running")
}

// TestPageHandler serves an HTML page that requests a chat token, connects
// to the chat channel and shows every event it receives.
func TestPageHandler(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(testPage))
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Relay WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        #presence { margin: 10px 0; color: #555; }
    </style>
</head>
<body>
    <h1>Relay WebSocket Test</h1>
    <div>
        <input type="text" id="username" placeholder="Username">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div id="presence">Offline</div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>
    <div id="events"></div>

    <script>
        let ws = null;
        let typing = false;
        const eventsDiv = document.getElementById('events');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const presenceDiv = document.getElementById('presence');

        function addLine(text) {
            const line = document.createElement('div');
            line.textContent = text;
            eventsDiv.appendChild(line);
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
        }

        function setConnected(connected) {
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
            if (!connected) presenceDiv.textContent = 'Offline';
        }

        async function connect() {
            const username = document.getElementById('username').value.trim();
            const res = await fetch('/api/chat/token', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ username })
            });
            const body = await res.json();
            if (!res.ok) { addLine(body.error); return; }

            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws/chat?token=' + encodeURIComponent(body.token));
            ws.onopen = () => setConnected(true);
            ws.onclose = (e) => { addLine('Connection closed (' + e.code + ')'); setConnected(false); ws = null; };
            ws.onmessage = (e) => {
                const evt = JSON.parse(e.data);
                switch (evt.type) {
                case 'chat-message': addLine(evt.timestamp + ' ' + evt.identity + ': ' + evt.content); break;
                case 'typing-state': addLine(evt.identity + (evt.isTyping ? ' is typing...' : ' stopped typing')); break;
                case 'presence-joined':
                case 'presence-left':
                    presenceDiv.textContent = evt.userCount + ' online: ' + evt.users.join(', ');
                    addLine(evt.identity + (evt.type === 'presence-joined' ? ' joined' : ' left'));
                    break;
                default: addLine(e.data);
                }
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) { ws.close(); } else { connect(); }
        }

        function sendMessage() {
            const content = messageInput.value.trim();
            if (content && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({ type: 'chat-message', content }));
                ws.send(JSON.stringify({ type: 'typing-state', isTyping: false }));
                typing = false;
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('input', () => {
            if (!typing && ws && ws.readyState === WebSocket.OPEN) {
                typing = true;
                ws.send(JSON.stringify({ type: 'typing-state', isTyping: true }));
            }
        });
        messageInput.addEventListener('keypress', (e) => { if (e.key === 'Enter') sendMessage(); });
    </script>
</body>
</html>`
