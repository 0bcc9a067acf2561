package realtime

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const wsAuthProtocol = "afrodite.connect"

var upgrader = websocket.Upgrader{
	CheckOrigin:  func(r *http.Request) bool { return true },
	Subprotocols: []string{wsAuthProtocol},
}

// ServeWs handles GET /common_api/connect (SPEC_FULL.md §6). Unlike the
// teacher's ServeWs, no prior HTTP auth middleware runs here: identity is
// established entirely through the refresh-token handshake inside Serve.
func ServeWs(c *gin.Context, hub *Hub, auth Authenticator) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	Serve(c.Request.Context(), hub, auth, conn)
}
