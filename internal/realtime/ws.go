package realtime

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsPingEvery    = 30 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 5 * time.Second

	// CloseResync tells the client it fell behind and must re-fetch the board.
	CloseResync = 4001
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS streams a topic to a websocket client as JSON ChangeEvents.
// The subscription is taken before the upgrade so no event after the
// handshake is missed.
func ServeWS(c *gin.Context, sub Subscriber, topic string, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	s, err := sub.Subscribe(c.Request.Context(), topic)
	if err != nil {
		log.Error("realtime: subscribe failed", "topic", topic, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscribe failed"})
		return
	}
	defer s.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	var writeMu sync.Mutex
	write := func(fn func() error) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return fn()
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := write(func() error { return conn.WriteMessage(websocket.PingMessage, nil) }); err != nil {
				return
			}
		case ev, ok := <-s.C:
			if !ok {
				msg := websocket.FormatCloseMessage(CloseResync, "resync")
				_ = write(func() error { return conn.WriteMessage(websocket.CloseMessage, msg) })
				log.Info("realtime: stream closed", "topic", topic)
				return
			}
			if err := write(func() error { return conn.WriteJSON(ev) }); err != nil {
				return
			}
		}
	}
}
