package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meshcom-gateway/meshcom-server/internal/models"
	"github.com/meshcom-gateway/meshcom-server/pkg/meshcom"
)

const (
	wsSendBuffer = 64
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// HandleWebSocket streams accepted messages as meshcom_message events.
// Each socket is one gateway listener for its lifetime.
func (s *RESTServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	myCall := s.gw.Identity().Callsign()
	events := make(chan models.MessageEvent, wsSendBuffer)

	// 监听器不能阻塞分发协程，客户端过慢时丢弃
	unregister := s.gw.RegisterListener(func(msg *meshcom.Message) {
		select {
		case events <- models.NewMessageEvent(msg, myCall):
		default:
			log.Warn().Str("remote", r.RemoteAddr).Msg("WebSocket client too slow, dropping message")
		}
	})
	defer unregister()

	log.Info().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

	done := make(chan struct{})
	go func() {
		defer close(done)

		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-events:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(map[string]interface{}{
				"event": models.EventMeshComMessage,
				"data":  ev,
			}); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			log.Info().Str("remote", r.RemoteAddr).Msg("WebSocket client disconnected")
			return
		}
	}
}
