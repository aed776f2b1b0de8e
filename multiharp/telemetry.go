package multiharp

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// telemetryPeriod is how often rate snapshots are pushed to a
// connected websocket client.
const telemetryPeriod = 250 * time.Millisecond

var upgrader = websocket.Upgrader{
	// the UI is served from a different origin than the device hosts
	CheckOrigin: func(r *http.Request) bool { return true },
}

// telemetryFrame is one websocket message.
type telemetryFrame struct {
	Status string   `json:"status"`
	Rates  []uint64 `json:"rates"`
}

// Telemetry upgrades the connection to a websocket and streams live
// rate snapshots until the client disconnects.
func (h HTTPWrapper) Telemetry(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("multiharp: telemetry upgrade: %v", err)
		return
	}
	defer conn.Close()

	// drain control frames so pings and closes are processed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	tick := time.NewTicker(telemetryPeriod)
	defer tick.Stop()
	for range tick.C {
		rates := h.Camera.LiveRates()
		msg := telemetryFrame{
			Status: h.Camera.Status().String(),
			Rates:  rates[:],
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
