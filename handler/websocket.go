package handler

import (
	"net/http"

	"kiko-backend/hub"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Clients connect from the app webview and local dev origins.
		return true
	},
}

// ServeWS handles GET /ws/sync/{scriptId}: upgrades the connection and joins
// the client to the script's sync room.
func ServeWS(h *hub.Hub, log *logrus.Logger, w http.ResponseWriter, r *http.Request) {
	scriptID, err := uuid.Parse(mux.Vars(r)["scriptId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid scriptId")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &hub.Client{
		ID:       uuid.NewString(),
		ScriptID: scriptID.String(),
		Hub:      h,
		Conn:     conn,
		Send:     make(chan []byte, 256),
	}
	h.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
