package live

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/DEEPML1818/dsoc/cmd/api/middleware"
	"github.com/DEEPML1818/dsoc/common/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware in front of the API
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades GET /ws?address=0x... to a websocket carrying the
// events addressed to that wallet
func Handler(hub *Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		address := c.QueryParam("address")
		if !common.IsHexAddress(address) {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": "address query parameter must be a wallet address",
			})
		}

		// A signed-in caller may only listen to its own wallet
		if caller := middleware.GetAddress(c); caller != "" && caller != models.NormalizeAddress(address) {
			return c.JSON(http.StatusForbidden, map[string]interface{}{
				"error": "cannot subscribe to another wallet",
			})
		}

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			hub.log.Warn("websocket upgrade failed", "address", address, "error", err)
			return nil
		}

		client := NewClient(hub, conn, address)
		if !hub.Register(client) {
			conn.Close()
			return nil
		}

		hub.log.Info("websocket connected", "address", client.address, "remote", c.RealIP())

		go client.writePump()
		go client.readPump()
		return nil
	}
}
